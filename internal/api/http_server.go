// Package api exposes the inventory, test-drive and admin operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"vehiql/internal/access"
	"vehiql/internal/auth"
	"vehiql/internal/booking"
	"vehiql/internal/dashboard"
	"vehiql/internal/database"
	"vehiql/internal/dealership"
	"vehiql/internal/export"
	"vehiql/internal/model"
	"vehiql/internal/ratelimit"
)

// Store is the direct persistence the handlers read and write.
type Store interface {
	dashboard.Source
	ListCars(ctx context.Context, q database.CarQuery) ([]model.Car, int, error)
	FeaturedCars(ctx context.Context, limit int) ([]model.Car, error)
	GetCarFilters(ctx context.Context) (*model.CarFilters, error)
	GetCar(ctx context.Context, id string) (*model.Car, error)
	CreateCar(ctx context.Context, c *model.Car) error
	UpdateCar(ctx context.Context, id string, status *model.CarStatus, featured *bool) (*model.Car, error)
	DeleteCar(ctx context.Context, id string) error
	LatestUserBookingForCar(ctx context.Context, userID, carID string) (*model.Booking, error)
	SaveCar(ctx context.Context, userID, carID string) error
	UnsaveCar(ctx context.Context, userID, carID string) error
	IsCarSaved(ctx context.Context, userID, carID string) (bool, error)
	ListSavedCars(ctx context.Context, userID string) ([]model.Car, error)
}

// Publisher emits the events of admin car changes.
type Publisher interface {
	PublishJSON(eventType, key string, payload any) error
}

type Deps struct {
	Store      Store
	Verifier   *auth.Verifier
	Access     *access.Service
	Bookings   *booking.Service
	Dealership *dealership.Service
	Export     *export.Service
	Events     Publisher          // nil drops car events
	Limiter    *ratelimit.Limiter // nil disables rate limiting
}

type HTTPServer struct {
	Deps
	logger zerolog.Logger
	srv    *http.Server
}

func NewHTTPServer(deps Deps, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{Deps: deps, logger: logger.With().Str("component", "api").Logger()}
}

// Handler returns the routed API.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/cars", s.public("cars_list", s.handleListCars))
	mux.Handle("GET /api/v1/cars/filters", s.public("cars_filters", s.handleCarFilters))
	mux.Handle("GET /api/v1/cars/featured", s.public("cars_featured", s.handleFeaturedCars))
	mux.Handle("GET /api/v1/cars/{id}", s.user("car_get", s.handleGetCar))
	mux.Handle("GET /api/v1/cars/{id}/slots", s.user("car_slots", s.handleCarSlots))
	mux.Handle("POST /api/v1/cars/{id}/save", s.user("car_save", s.handleSaveCar))
	mux.Handle("DELETE /api/v1/cars/{id}/save", s.user("car_unsave", s.handleUnsaveCar))
	mux.Handle("GET /api/v1/saved-cars", s.user("saved_cars", s.handleSavedCars))
	mux.Handle("GET /api/v1/dealership", s.user("dealership", s.handleDealership))

	mux.Handle("POST /api/v1/test-drives", s.user("test_drive_book", s.handleBookTestDrive))
	mux.Handle("GET /api/v1/test-drives", s.user("test_drive_list", s.handleMyTestDrives))
	mux.Handle("POST /api/v1/test-drives/{id}/cancel", s.user("test_drive_cancel", s.handleCancelTestDrive))

	mux.Handle("GET /api/v1/admin/test-drives", s.admin("admin_test_drives", s.handleAdminTestDrives))
	mux.Handle("PATCH /api/v1/admin/test-drives/{id}/status", s.admin("admin_test_drive_status", s.handleUpdateTestDriveStatus))
	mux.Handle("GET /api/v1/admin/dashboard", s.admin("admin_dashboard", s.handleDashboard))
	mux.Handle("PUT /api/v1/admin/working-hours", s.admin("admin_working_hours", s.handleSaveWorkingHours))
	mux.Handle("GET /api/v1/admin/users", s.admin("admin_users", s.handleListUsers))
	mux.Handle("PATCH /api/v1/admin/users/{id}/role", s.admin("admin_user_role", s.handleChangeRole))
	mux.Handle("POST /api/v1/admin/cars", s.admin("admin_car_create", s.handleCreateCar))
	mux.Handle("PATCH /api/v1/admin/cars/{id}", s.admin("admin_car_update", s.handleUpdateCar))
	mux.Handle("DELETE /api/v1/admin/cars/{id}", s.admin("admin_car_delete", s.handleDeleteCar))
	mux.Handle("GET /api/v1/admin/export", s.admin("admin_export", s.handleExport))

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(ctxShutdown); err != nil {
			s.logger.Error().Err(err).Msg("api shutdown")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("api listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// writeServiceError maps domain errors to HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var validation *dealership.ValidationError

	switch {
	case errors.Is(err, booking.ErrCarUnavailable),
		errors.Is(err, booking.ErrSlotTaken),
		errors.Is(err, booking.ErrAlreadyCancelled),
		errors.Is(err, booking.ErrAlreadyCompleted),
		errors.Is(err, booking.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, booking.ErrUnauthorized), access.IsAccessDenied(err):
		status = http.StatusForbidden
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, database.ErrNotFound),
		errors.Is(err, dealership.ErrCarNotFound):
		status = http.StatusNotFound
	case errors.As(err, &validation),
		errors.Is(err, booking.ErrPastDate),
		errors.Is(err, booking.ErrDateTooFar),
		errors.Is(err, booking.ErrInvalidSlot),
		errors.Is(err, booking.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
