package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehiql/internal/access"
	"vehiql/internal/auth"
	"vehiql/internal/booking"
	"vehiql/internal/cache"
	"vehiql/internal/database"
	"vehiql/internal/dealership"
	"vehiql/internal/events"
	"vehiql/internal/export"
	"vehiql/internal/model"
	"vehiql/internal/ratelimit"
)

type testServer struct {
	srv      *httptest.Server
	db       *database.DB
	verifier *auth.Verifier
	mr       *miniredis.Miniredis
	car      *model.Car
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.New(client, time.Minute, &logger)

	bus := events.NewEventBus(&logger)
	c.Subscribe(bus)

	car := &model.Car{Make: "Toyota", Model: "Corolla", Year: 2022, Price: 21000, Status: model.CarAvailable, Featured: true}
	require.NoError(t, db.CreateCar(context.Background(), car))

	verifier := auth.NewVerifier("test-secret", "vehiql")
	dealer := dealership.NewService(db, c, bus, model.DealershipInfo{Name: "Vehiql Motors"}, logger)
	server := NewHTTPServer(Deps{
		Store:      db,
		Verifier:   verifier,
		Access:     access.NewService(db, []string{"admin-ext"}, logger),
		Bookings:   booking.NewService(db, dealer, bus, 60, &logger),
		Dealership: dealer,
		Export:     export.NewService(db, nil, logger),
		Events:     bus,
		Limiter:    limiter,
	}, logger)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, db: db, verifier: verifier, mr: mr, car: car}
}

func (ts *testServer) token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := ts.verifier.Issue(auth.Identity{Subject: subject, Email: subject + "@example.com", Name: subject}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func bookingDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format(model.DateLayout)
}

func TestPublicCarEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/cars?search=corolla", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, float64(1), body["pagination"].(map[string]any)["total"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/cars/featured", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/cars/filters", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"Toyota"}, body["makes"])

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/cars?page=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/cars?limit=100", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, "/api/v1/cars?limit=1000000000", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, "/api/v1/cars/featured?limit=101", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/cars/"+ts.car.ID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/cars/"+ts.car.ID, "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/admin/dashboard", ts.token(t, "user-1"), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/admin/dashboard", ts.token(t, "admin-ext"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTestDriveLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	alice, bob, admin := ts.token(t, "alice"), ts.token(t, "bob"), ts.token(t, "admin-ext")

	req := BookTestDriveRequest{CarID: ts.car.ID, BookingDate: bookingDate(7), StartTime: "10:00", EndTime: "11:00"}

	resp, body := ts.do(t, http.MethodPost, "/api/v1/test-drives", alice, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	bookingID := body["id"].(string)
	assert.Equal(t, "PENDING", body["status"])

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/test-drives", bob, req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	loose := req
	loose.StartTime, loose.EndTime = "10:00", "11:00 "
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/test-drives", bob, loose)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/cars/"+ts.car.ID, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := body["testDriveInfo"].(map[string]any)
	assert.Equal(t, bookingID, info["userTestDrive"].(map[string]any)["id"])
	assert.Equal(t, "Vehiql Motors", info["dealership"].(map[string]any)["name"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/test-drives", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/test-drives/"+bookingID+"/cancel", bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPatch, "/api/v1/admin/test-drives/"+bookingID+"/status", admin,
		UpdateStatusRequest{Status: "CONFIRMED"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CONFIRMED", body["status"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/test-drives/"+bookingID+"/cancel", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", body["status"])

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/test-drives/"+bookingID+"/cancel", alice, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// the cancelled slot is free again
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/test-drives", bob, req)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/admin/test-drives?status=CANCELLED", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)
}

func TestBookTestDrive_Validation(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.token(t, "alice")

	tests := []struct {
		name string
		req  BookTestDriveRequest
		want int
	}{
		{"missing fields", BookTestDriveRequest{CarID: ts.car.ID}, http.StatusBadRequest},
		{"bad date", BookTestDriveRequest{CarID: ts.car.ID, BookingDate: "02/11/2026", StartTime: "10:00", EndTime: "11:00"}, http.StatusBadRequest},
		{"past date", BookTestDriveRequest{CarID: ts.car.ID, BookingDate: bookingDate(-2), StartTime: "10:00", EndTime: "11:00"}, http.StatusBadRequest},
		{"too far", BookTestDriveRequest{CarID: ts.car.ID, BookingDate: bookingDate(90), StartTime: "10:00", EndTime: "11:00"}, http.StatusBadRequest},
		{"inverted slot", BookTestDriveRequest{CarID: ts.car.ID, BookingDate: bookingDate(3), StartTime: "11:00", EndTime: "10:00"}, http.StatusBadRequest},
		{"unknown car", BookTestDriveRequest{CarID: "nope", BookingDate: bookingDate(3), StartTime: "10:00", EndTime: "11:00"}, http.StatusConflict},
		{"half hour", BookTestDriveRequest{CarID: ts.car.ID, BookingDate: bookingDate(3), StartTime: "10:30", EndTime: "11:30"}, http.StatusBadRequest},
		{"two hours", BookTestDriveRequest{CarID: ts.car.ID, BookingDate: bookingDate(3), StartTime: "10:00", EndTime: "12:00"}, http.StatusBadRequest},
		{"before opening", BookTestDriveRequest{CarID: ts.car.ID, BookingDate: bookingDate(3), StartTime: "07:00", EndTime: "08:00"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := ts.do(t, http.MethodPost, "/api/v1/test-drives", alice, tt.req)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCarSlots(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.token(t, "alice")

	resp, body := ts.do(t, http.MethodGet, "/api/v1/cars/"+ts.car.ID+"/slots?date="+bookingDate(5), alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "slots")

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/cars/"+ts.car.ID+"/slots?date=tomorrow", alice, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/cars/missing/slots?date="+bookingDate(5), alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminCars(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.token(t, "admin-ext")

	resp, _ := ts.do(t, http.MethodPost, "/api/v1/admin/cars", admin, map[string]any{"make": "Kia"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/admin/cars", admin, map[string]any{
		"make": "Kia", "model": "Ceed", "year": 2020, "price": 15000, "mileage": 30000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	assert.Equal(t, "AVAILABLE", body["status"])

	resp, body = ts.do(t, http.MethodPatch, "/api/v1/admin/cars/"+id, admin, map[string]any{"status": "SOLD"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SOLD", body["status"])

	resp, _ = ts.do(t, http.MethodPatch, "/api/v1/admin/cars/"+id, admin, map[string]any{"status": "GONE"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	slotsKey := cache.SlotsKey(id, bookingDate(5))
	resp, _ = ts.do(t, http.MethodGet, "/api/v1/cars/"+id+"/slots?date="+bookingDate(5), admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, ts.mr.Exists(slotsKey))

	resp, _ = ts.do(t, http.MethodDelete, "/api/v1/admin/cars/"+id, admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, ts.mr.Exists(slotsKey))

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/cars/"+id+"/slots?date="+bookingDate(5), admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/api/v1/admin/cars/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSavedCars(t *testing.T) {
	ts := newTestServer(t, nil)
	alice, bob := ts.token(t, "alice"), ts.token(t, "bob")
	carPath := "/api/v1/cars/" + ts.car.ID

	resp, body := ts.do(t, http.MethodGet, carPath, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["isWishlisted"])

	resp, body = ts.do(t, http.MethodPost, carPath+"/save", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["saved"])
	resp, _ = ts.do(t, http.MethodPost, carPath+"/save", alice, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/cars/missing/save", alice, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, carPath, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["isWishlisted"])

	resp, body = ts.do(t, http.MethodGet, carPath, bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["isWishlisted"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/saved-cars", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["data"], 1)
	assert.Equal(t, ts.car.ID, body["data"].([]any)[0].(map[string]any)["id"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/saved-cars", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["data"])

	resp, body = ts.do(t, http.MethodDelete, carPath+"/save", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["saved"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/saved-cars", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/saved-cars", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminUsersAndHours(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.token(t, "admin-ext")

	resp, _ := ts.do(t, http.MethodGet, "/api/v1/dealership", ts.token(t, "carol"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	carol, err := ts.db.GetUserByExternalID(context.Background(), "carol")
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 2)

	resp, _ = ts.do(t, http.MethodPatch, "/api/v1/admin/users/"+carol.ID+"/role", admin, ChangeRoleRequest{Role: "ROOT"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPatch, "/api/v1/admin/users/"+carol.ID+"/role", admin, ChangeRoleRequest{Role: "ADMIN"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ADMIN", body["role"])

	resp, _ = ts.do(t, http.MethodPut, "/api/v1/admin/working-hours", admin, map[string]any{
		"workingHours": []map[string]any{{"dayOfWeek": "FUNDAY", "openTime": "09:00", "closeTime": "18:00", "isOpen": true}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPut, "/api/v1/admin/working-hours", admin, map[string]any{
		"workingHours": []map[string]any{{"dayOfWeek": "MONDAY", "openTime": "09:00", "closeTime": "12:00", "isOpen": true}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["workingHours"], 1)
}

func TestAdminExport(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/admin/export", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, "admin-ext"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "vehiql_")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), data[:2])
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, ratelimit.New(0.001, 1))

	resp, _ := ts.do(t, http.MethodGet, "/api/v1/cars", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/cars", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// the client IP is throttled before the token is looked at
	resp, _ = ts.do(t, http.MethodGet, "/api/v1/dealership", ts.token(t, "alice"), nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimit_InvalidTokensAreThrottled(t *testing.T) {
	ts := newTestServer(t, ratelimit.New(0.001, 3))

	codes := map[int]int{}
	for i := 0; i < 10; i++ {
		resp, _ := ts.do(t, http.MethodGet, "/api/v1/test-drives", "garbage", nil)
		codes[resp.StatusCode]++
	}
	assert.Equal(t, map[int]int{http.StatusUnauthorized: 3, http.StatusTooManyRequests: 7}, codes)
}
