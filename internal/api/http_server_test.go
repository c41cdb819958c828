package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rentdesk/internal/clock"
	"rentdesk/internal/config"
	"rentdesk/internal/database"
	"rentdesk/internal/events"
	"rentdesk/internal/models"
	"rentdesk/internal/repository"
	"rentdesk/internal/service"

	"github.com/rs/zerolog"
)

const (
	testOwner    int64 = 100
	testRenter   int64 = 7
	testResource int64 = 1
)

var testNow = time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, config.APIConfig{}, stubPayments{ok: true})

	resp := doRequest(t, ts, http.MethodGet, "/healthz", 0, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	ts, clk := newTestServer(t, config.APIConfig{}, stubPayments{ok: true})

	created := createBooking(t, ts, testNow.Add(24*time.Hour), testNow.Add(72*time.Hour))
	if created.Status != models.StatusPendingApproval {
		t.Fatalf("expected pending_approval, got %s", created.Status)
	}
	if created.TotalPrice != 10000 {
		t.Fatalf("expected total_price=10000, got %d", created.TotalPrice)
	}

	approved := postBooking(t, ts, "/api/v1/bookings/"+created.ID+"/approve", testOwner,
		map[string]string{"delivery_method": "pickup", "pickup_location": "Main St"}, http.StatusOK)
	if approved.Status != models.StatusApproved || approved.DeliveryCode == "" {
		t.Fatalf("unexpected approved booking: %+v", approved)
	}

	paid := postBooking(t, ts, "/api/v1/bookings/"+created.ID+"/payment", testRenter,
		map[string]string{"payment_ref": "pay-1"}, http.StatusOK)
	if paid.Status != models.StatusPaid {
		t.Fatalf("expected paid, got %s", paid.Status)
	}

	clk.Advance(96 * time.Hour)
	completed := postBooking(t, ts, "/api/v1/bookings/"+created.ID+"/complete", testOwner, nil, http.StatusOK)
	if completed.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings/"+created.ID+"/reviews", testRenter,
		map[string]any{"rating": 5, "comment": "great", "type": "renter"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for review, got %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodPost, "/api/v1/bookings/"+created.ID+"/reviews", testRenter,
		map[string]any{"rating": 4, "type": "renter"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate review, got %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/bookings/"+created.ID+"/reviews", 0, nil)
	defer resp.Body.Close()
	var body struct {
		Reviews []models.Review `json:"reviews"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode reviews: %v", err)
	}
	if len(body.Reviews) != 1 || body.Reviews[0].Rating != 5 {
		t.Fatalf("unexpected reviews: %+v", body.Reviews)
	}
}

func TestCreateBookingConflict(t *testing.T) {
	ts, _ := newTestServer(t, config.APIConfig{}, stubPayments{ok: true})

	createBooking(t, ts, testNow.Add(24*time.Hour), testNow.Add(72*time.Hour))

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", testRenter, map[string]any{
		"resource_id": testResource,
		"start_at":    testNow.Add(48 * time.Hour),
		"end_at":      testNow.Add(96 * time.Hour),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestErrorStatusCodes(t *testing.T) {
	ts, _ := newTestServer(t, config.APIConfig{}, stubPayments{ok: false})
	booking := createBooking(t, ts, testNow.Add(24*time.Hour), testNow.Add(48*time.Hour))
	path := "/api/v1/bookings/" + booking.ID

	tests := []struct {
		name   string
		method string
		path   string
		actor  int64
		body   any
		want   int
	}{
		{"invalid interval", http.MethodPost, "/api/v1/bookings", testRenter,
			map[string]any{"resource_id": testResource, "start_at": testNow.Add(48 * time.Hour), "end_at": testNow.Add(24 * time.Hour)},
			http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/bookings", testRenter, map[string]any{"bogus": 1}, http.StatusBadRequest},
		{"unknown booking", http.MethodGet, "/api/v1/bookings/missing", 0, nil, http.StatusNotFound},
		{"renter approves", http.MethodPost, path + "/approve", testRenter,
			map[string]string{"delivery_method": "shipping"}, http.StatusForbidden},
		{"pay before approval", http.MethodPost, path + "/payment", testRenter,
			map[string]string{"payment_ref": "x"}, http.StatusConflict},
		{"reject without reason", http.MethodPost, path + "/reject", testOwner, map[string]string{}, http.StatusBadRequest},
		{"bad resource id", http.MethodGet, "/api/v1/resources/abc/bookings", 0, nil, http.StatusBadRequest},
		{"bad conflict window", http.MethodGet, "/api/v1/resources/1/conflicts?start=nope&end=nope", 0, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, ts, tt.method, tt.path, tt.actor, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestPaymentNotConfirmed(t *testing.T) {
	ts, _ := newTestServer(t, config.APIConfig{}, stubPayments{ok: false})
	booking := createBooking(t, ts, testNow.Add(24*time.Hour), testNow.Add(48*time.Hour))
	postBooking(t, ts, "/api/v1/bookings/"+booking.ID+"/approve", testOwner,
		map[string]string{"delivery_method": "shipping"}, http.StatusOK)

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/payment", testRenter,
		map[string]string{"payment_ref": "pay-1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestPaymentUpstreamFailure(t *testing.T) {
	ts, _ := newTestServer(t, config.APIConfig{}, stubPayments{err: fmt.Errorf("connection refused")})
	booking := createBooking(t, ts, testNow.Add(24*time.Hour), testNow.Add(48*time.Hour))
	postBooking(t, ts, "/api/v1/bookings/"+booking.ID+"/approve", testOwner,
		map[string]string{"delivery_method": "shipping"}, http.StatusOK)

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings/"+booking.ID+"/payment", testRenter,
		map[string]string{"payment_ref": "pay-1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	got := getBooking(t, ts, booking.ID)
	if got.Status != models.StatusApproved {
		t.Fatalf("expected booking to stay approved, got %s", got.Status)
	}
}

func TestQueries(t *testing.T) {
	ts, _ := newTestServer(t, config.APIConfig{}, stubPayments{ok: true})
	start := testNow.Add(24 * time.Hour)
	end := testNow.Add(48 * time.Hour)
	booking := createBooking(t, ts, start, end)

	resp := doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/renters/%d/bookings", testRenter), 0, nil)
	var list struct {
		Bookings []models.Booking `json:"bookings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(list.Bookings) != 1 || list.Bookings[0].ID != booking.ID {
		t.Fatalf("unexpected renter bookings: %+v", list.Bookings)
	}

	window := fmt.Sprintf("from=%s&to=%s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	resp = doRequest(t, ts, http.MethodGet, fmt.Sprintf("/api/v1/resources/%d/bookings?%s", testResource, window), 0, nil)
	list.Bookings = nil
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(list.Bookings) != 1 {
		t.Fatalf("expected 1 resource booking, got %d", len(list.Bookings))
	}

	check := func(s, e time.Time) bool {
		t.Helper()
		path := fmt.Sprintf("/api/v1/resources/%d/conflicts?start=%s&end=%s", testResource, s.Format(time.RFC3339), e.Format(time.RFC3339))
		resp := doRequest(t, ts, http.MethodGet, path, 0, nil)
		defer resp.Body.Close()
		var body struct {
			Conflict bool `json:"conflict"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body.Conflict
	}
	if !check(start.Add(time.Hour), end.Add(time.Hour)) {
		t.Fatalf("expected overlap to conflict")
	}
	if check(end, end.Add(24*time.Hour)) {
		t.Fatalf("adjacent interval must not conflict")
	}
}

func TestResourceEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, config.APIConfig{}, stubPayments{ok: true})

	resp := doRequest(t, ts, http.MethodGet, "/api/v1/resources", 0, nil)
	var list struct {
		Resources []models.Resource `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(list.Resources) != 1 || list.Resources[0].ID != testResource {
		t.Fatalf("unexpected resources: %+v", list.Resources)
	}

	path := fmt.Sprintf("/api/v1/resources/%d/availability", testResource)
	resp = doRequest(t, ts, http.MethodPost, path, testRenter, map[string]bool{"available": false})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodPost, path, testOwner, map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without flag, got %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodPost, path, testOwner, map[string]bool{"available": false})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodPost, "/api/v1/bookings", testRenter, map[string]any{
		"resource_id": testResource,
		"start_at":    testNow.Add(24 * time.Hour),
		"end_at":      testNow.Add(48 * time.Hour),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for withdrawn resource, got %d", resp.StatusCode)
	}

	resp = doRequest(t, ts, http.MethodGet, "/api/v1/resources/42", 0, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSystemActorRejectedWithoutGrant(t *testing.T) {
	ts, clk := newTestServer(t, config.APIConfig{}, stubPayments{ok: true})
	booking := createBooking(t, ts, testNow.Add(24*time.Hour), testNow.Add(48*time.Hour))
	path := "/api/v1/bookings/" + booking.ID
	postBooking(t, ts, path+"/approve", testOwner, map[string]string{"delivery_method": "shipping"}, http.StatusOK)

	resp := doRequest(t, ts, http.MethodPost, path+"/payment", 0, map[string]string{"payment_ref": "pay-1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for system actor on payment, got %d", resp.StatusCode)
	}

	postBooking(t, ts, path+"/payment", testRenter, map[string]string{"payment_ref": "pay-1"}, http.StatusOK)
	clk.Set(testNow.Add(72 * time.Hour))

	resp = doRequest(t, ts, http.MethodPost, path+"/complete", 0, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for system actor on complete, got %d", resp.StatusCode)
	}
	if got := getBooking(t, ts, booking.ID); got.Status != models.StatusPaid {
		t.Fatalf("expected booking to stay paid, got %s", got.Status)
	}
}

func TestMissingActorHeader(t *testing.T) {
	ts, _ := newTestServer(t, config.APIConfig{}, stubPayments{ok: true})

	resp := doRequest(t, ts, http.MethodPost, "/api/v1/bookings", -1, map[string]any{"resource_id": 1})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// Helpers

type stubPayments struct {
	ok  bool
	err error
}

func (s stubPayments) ConfirmExternalPayment(context.Context, string) (bool, error) {
	return s.ok, s.err
}

func newTestServer(t *testing.T, cfg config.APIConfig, payments stubPayments) (*httptest.Server, *clock.Fixed) {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.SyncResources(context.Background(), []models.Resource{
		{ID: testResource, OwnerID: testOwner, Name: "Camera", PricePerDay: 5000, IsAvailable: true},
	}); err != nil {
		t.Fatalf("sync resources: %v", err)
	}

	clk := clock.NewFixed(testNow)
	bus := events.NewEventBus()
	bookings := service.NewBookingService(db, db, db, payments, repository.NewMemoryLocker(), bus, clk,
		config.BookingConfig{PaymentTimeout: time.Second}, &logger)
	reviews := service.NewReviewService(db, db, db, clk, &logger)

	resources := service.NewResourceService(db, &logger)

	server := NewHTTPServer(cfg, bookings, reviews, resources, repository.NewMemoryRateLimiter(), &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, clk
}

// doRequest sends body as JSON. A negative actor omits the actor header.
func doRequest(t *testing.T, ts *httptest.Server, method, path string, actor int64, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor >= 0 && method != http.MethodGet {
		req.Header.Set("X-Actor-ID", fmt.Sprint(actor))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func postBooking(t *testing.T, ts *httptest.Server, path string, actor int64, body any, want int) models.Booking {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, path, actor, body)
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var e map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("POST %s: expected %d, got %d (%s)", path, want, resp.StatusCode, e["error"])
	}
	var booking models.Booking
	if err := json.NewDecoder(resp.Body).Decode(&booking); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	return booking
}

func createBooking(t *testing.T, ts *httptest.Server, start, end time.Time) models.Booking {
	t.Helper()
	return postBooking(t, ts, "/api/v1/bookings", testRenter, map[string]any{
		"resource_id": testResource,
		"start_at":    start,
		"end_at":      end,
	}, http.StatusCreated)
}

func getBooking(t *testing.T, ts *httptest.Server, id string) models.Booking {
	t.Helper()
	resp := doRequest(t, ts, http.MethodGet, "/api/v1/bookings/"+id, 0, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET booking: expected 200, got %d", resp.StatusCode)
	}
	var booking models.Booking
	if err := json.NewDecoder(resp.Body).Decode(&booking); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	return booking
}
