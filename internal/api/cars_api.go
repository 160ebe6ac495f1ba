package api

import (
	"errors"
	"net/http"
	"strconv"

	"vehiql/internal/auth"
	"vehiql/internal/database"
	"vehiql/internal/events"
	"vehiql/internal/model"
)

const maxPageLimit = 100

// Pagination describes one page of the car listing.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// TestDriveInfo is attached to a car detail for the signed-in caller.
type TestDriveInfo struct {
	UserTestDrive *model.Booking        `json:"userTestDrive"`
	Dealership    *model.DealershipInfo `json:"dealership"`
}

// UpdateCarRequest is the body of PATCH /api/v1/admin/cars/{id}.
type UpdateCarRequest struct {
	Status   *string `json:"status,omitempty"`
	Featured *bool   `json:"featured,omitempty"`
}

// GET /api/v1/cars?search=&make=&bodyType=&fuelType=&transmission=&minPrice=&maxPrice=&sortBy=&page=&limit=
func (s *HTTPServer) handleListCars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := database.CarQuery{
		Search:       q.Get("search"),
		Make:         q.Get("make"),
		BodyType:     q.Get("bodyType"),
		FuelType:     q.Get("fuelType"),
		Transmission: q.Get("transmission"),
		SortBy:       q.Get("sortBy"),
	}

	var err error
	if query.MinPrice, err = floatParam(q.Get("minPrice")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid minPrice")
		return
	}
	if query.MaxPrice, err = floatParam(q.Get("maxPrice")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid maxPrice")
		return
	}
	if query.Page, err = intParam(q.Get("page"), 1); err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if query.Limit, err = intParam(q.Get("limit"), 6); err != nil || query.Limit > maxPageLimit {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	cars, total, err := s.Store.ListCars(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if cars == nil {
		cars = []model.Car{}
	}
	pages := (total + query.Limit - 1) / query.Limit
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       cars,
		"pagination": Pagination{Total: total, Page: query.Page, Limit: query.Limit, Pages: pages},
	})
}

// GET /api/v1/cars/filters
func (s *HTTPServer) handleCarFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := s.Store.GetCarFilters(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, filters)
}

// GET /api/v1/cars/featured?limit=3
func (s *HTTPServer) handleFeaturedCars(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 3)
	if err != nil || limit > maxPageLimit {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	cars, err := s.Store.FeaturedCars(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if cars == nil {
		cars = []model.Car{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cars})
}

// GET /api/v1/cars/{id}
func (s *HTTPServer) handleGetCar(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())

	car, err := s.Store.GetCar(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var info TestDriveInfo
	latest, err := s.Store.LatestUserBookingForCar(r.Context(), u.ID, car.ID)
	switch {
	case err == nil:
		info.UserTestDrive = latest
	case !errors.Is(err, database.ErrNotFound):
		s.writeServiceError(w, r, err)
		return
	}

	if info.Dealership, err = s.Dealership.Info(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	saved, err := s.Store.IsCarSaved(r.Context(), u.ID, car.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"car": car, "isWishlisted": saved, "testDriveInfo": info})
}

// POST /api/v1/cars/{id}/save
func (s *HTTPServer) handleSaveCar(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	if err := s.Store.SaveCar(r.Context(), u.ID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true})
}

// DELETE /api/v1/cars/{id}/save
func (s *HTTPServer) handleUnsaveCar(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	if err := s.Store.UnsaveCar(r.Context(), u.ID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": false})
}

// GET /api/v1/saved-cars
func (s *HTTPServer) handleSavedCars(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	cars, err := s.Store.ListSavedCars(r.Context(), u.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cars})
}

// GET /api/v1/cars/{id}/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleCarSlots(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	date, err := model.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	free, err := s.Dealership.FreeSlots(r.Context(), r.PathValue("id"), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": dateStr, "slots": free})
}

// GET /api/v1/dealership
func (s *HTTPServer) handleDealership(w http.ResponseWriter, r *http.Request) {
	info, err := s.Dealership.Info(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// POST /api/v1/admin/cars
func (s *HTTPServer) handleCreateCar(w http.ResponseWriter, r *http.Request) {
	var car model.Car
	if err := decodeJSON(w, r, &car); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	car.ID = ""
	if car.Status == "" {
		car.Status = model.CarAvailable
	}
	if err := car.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Store.CreateCar(r.Context(), &car); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info().Str("car_id", car.ID).Str("make", car.Make).Str("model", car.Model).Msg("car created")
	writeJSON(w, http.StatusCreated, car)
}

// PATCH /api/v1/admin/cars/{id}
func (s *HTTPServer) handleUpdateCar(w http.ResponseWriter, r *http.Request) {
	var req UpdateCarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var status *model.CarStatus
	if req.Status != nil {
		st, err := model.ParseCarStatus(*req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = &st
	}

	car, err := s.Store.UpdateCar(r.Context(), r.PathValue("id"), status, req.Featured)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

// DELETE /api/v1/admin/cars/{id}
func (s *HTTPServer) handleDeleteCar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Store.DeleteCar(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info().Str("car_id", id).Msg("car deleted")

	if s.Events != nil {
		u, _ := auth.UserFrom(r.Context())
		if err := s.Events.PublishJSON(events.CarDeleted, id, events.CarPayload{CarID: id, ActorID: u.ID}); err != nil {
			s.logger.Warn().Err(err).Str("car_id", id).Msg("failed to publish car event")
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.New("must be a positive integer")
	}
	return n, nil
}

func floatParam(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}
