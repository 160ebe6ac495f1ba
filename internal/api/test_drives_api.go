package api

import (
	"net/http"

	"vehiql/internal/auth"
	"vehiql/internal/booking"
	"vehiql/internal/model"
)

// BookTestDriveRequest is the body of POST /api/v1/test-drives.
type BookTestDriveRequest struct {
	CarID       string `json:"carId"`
	BookingDate string `json:"bookingDate"` // YYYY-MM-DD
	StartTime   string `json:"startTime"`   // HH:MM
	EndTime     string `json:"endTime"`     // HH:MM
	Notes       string `json:"notes,omitempty"`
}

// UpdateStatusRequest is the body of PATCH /api/v1/admin/test-drives/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func requester(r *http.Request) booking.Requester {
	u, _ := auth.UserFrom(r.Context())
	return booking.RequesterOf(u)
}

// POST /api/v1/test-drives
func (s *HTTPServer) handleBookTestDrive(w http.ResponseWriter, r *http.Request) {
	var req BookTestDriveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CarID == "" || req.BookingDate == "" || req.StartTime == "" || req.EndTime == "" {
		writeError(w, http.StatusBadRequest, "carId, bookingDate, startTime and endTime are required")
		return
	}

	date, err := model.ParseDate(req.BookingDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bookingDate format; expected YYYY-MM-DD")
		return
	}
	if err := s.Bookings.ValidateBookingDate(date); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	b, err := s.Bookings.TryBook(r.Context(), booking.BookRequest{
		CarID:       req.CarID,
		BookingDate: date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Notes:       req.Notes,
		Requester:   requester(r),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GET /api/v1/test-drives
func (s *HTTPServer) handleMyTestDrives(w http.ResponseWriter, r *http.Request) {
	list, err := s.Bookings.ListForUser(r.Context(), requester(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeBookings(w, list)
}

// POST /api/v1/test-drives/{id}/cancel
func (s *HTTPServer) handleCancelTestDrive(w http.ResponseWriter, r *http.Request) {
	b, err := s.Bookings.Cancel(r.Context(), r.PathValue("id"), requester(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/v1/admin/test-drives?status=&search=
func (s *HTTPServer) handleAdminTestDrives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.Bookings.ListForAdmin(r.Context(), requester(r), q.Get("status"), q.Get("search"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeBookings(w, list)
}

// PATCH /api/v1/admin/test-drives/{id}/status
func (s *HTTPServer) handleUpdateTestDriveStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.Bookings.UpdateStatus(r.Context(), r.PathValue("id"), req.Status, requester(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func writeBookings(w http.ResponseWriter, list []model.BookingDetails) {
	if list == nil {
		list = []model.BookingDetails{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}
