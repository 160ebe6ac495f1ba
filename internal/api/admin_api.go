package api

import (
	"net/http"
	"time"

	"vehiql/internal/auth"
	"vehiql/internal/dashboard"
	"vehiql/internal/export"
	"vehiql/internal/model"
)

// WorkingHoursRequest is the body of PUT /api/v1/admin/working-hours.
type WorkingHoursRequest struct {
	WorkingHours []model.WorkingHours `json:"workingHours"`
}

// ChangeRoleRequest is the body of PATCH /api/v1/admin/users/{id}/role.
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// GET /api/v1/admin/dashboard
func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data, err := dashboard.Load(r.Context(), s.Store)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// PUT /api/v1/admin/working-hours
func (s *HTTPServer) handleSaveWorkingHours(w http.ResponseWriter, r *http.Request) {
	var req WorkingHoursRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	u, _ := auth.UserFrom(r.Context())
	saved, err := s.Dealership.SaveWorkingHours(r.Context(), u, req.WorkingHours)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workingHours": saved})
}

// GET /api/v1/admin/users
func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	users, err := s.Access.ListUsers(r.Context(), u)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": users})
}

// PATCH /api/v1/admin/users/{id}/role
func (s *HTTPServer) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := model.ParseRole(req.Role); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, _ := auth.UserFrom(r.Context())
	updated, err := s.Access.ChangeRole(r.Context(), u, r.PathValue("id"), req.Role)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// GET /api/v1/admin/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.Export.Workbook(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
