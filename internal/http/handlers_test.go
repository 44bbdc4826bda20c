package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/adapters/memory"
	"github.com/robertarktes/ticket-inventory/internal/checkin"
	"github.com/robertarktes/ticket-inventory/internal/clock"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	tixhttp "github.com/robertarktes/ticket-inventory/internal/http"
	"github.com/robertarktes/ticket-inventory/internal/idempotency"
	"github.com/robertarktes/ticket-inventory/internal/inventory"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"github.com/robertarktes/ticket-inventory/internal/payment"
	"github.com/robertarktes/ticket-inventory/internal/purchase"
	"github.com/robertarktes/ticket-inventory/internal/rateLimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	capacity map[uuid.UUID]int
	status   map[uuid.UUID]domain.EventStatus
}

func (c *fakeCatalog) EventCapacity(_ context.Context, id uuid.UUID) (int, error) {
	n, ok := c.capacity[id]
	if !ok {
		return 0, domain.ErrEventNotFound
	}
	return n, nil
}

func (c *fakeCatalog) SetEventStatus(_ context.Context, id uuid.UUID, s domain.EventStatus) error {
	c.status[id] = s
	return nil
}

const callbackSecret = "gateway-shared-secret"

type server struct {
	t       *testing.T
	srv     *httptest.Server
	clock   *clock.Manual
	catalog *fakeCatalog
}

func newServer(t *testing.T, ratePerMin int) *server {
	t.Helper()
	log := observability.NewNopLogger()
	clk := clock.NewManual(time.Date(2025, 11, 20, 18, 0, 0, 0, time.UTC))
	inv := inventory.NewService(memory.NewInventoryStore(), clk)
	l := ledger.New(memory.NewTicketStore(), clk, nil, log)
	kv := memory.NewKV(clk)
	catalog := &fakeCatalog{capacity: map[uuid.UUID]int{}, status: map[uuid.UUID]domain.EventStatus{}}

	h := tixhttp.NewHandlers(tixhttp.Deps{
		Inventory:  inv,
		Ledger:     l,
		Purchase:   purchase.NewService(inv, l, log),
		Reconciler: payment.NewReconciler(inv, l, clk, log),
		CheckIn:    checkin.NewService(l, log),
		Catalog:    catalog,
		Checks: map[string]tixhttp.Check{
			"kv": func(context.Context) error { return nil },
		},
		Logger: log,
	})
	router := tixhttp.SetupRouter(h, log,
		rateLimit.NewRateLimiter(kv, ratePerMin, time.Minute),
		idempotency.NewIdempotency(kv, time.Hour),
		callbackSecret)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &server{t: t, srv: srv, clock: clk, catalog: catalog}
}

func (s *server) do(method, path string, user uuid.UUID, body interface{}, headers ...string) (*http.Response, map[string]interface{}) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	if user != uuid.Nil {
		req.Header.Set(tixhttp.UserIDHeader, user.String())
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *server) publish(capacity int) uuid.UUID {
	s.t.Helper()
	eventID := uuid.New()
	resp, _ := s.do(http.MethodPost, "/v1/events/"+eventID.String()+"/publish", uuid.New(), map[string]int{"capacity": capacity})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	return eventID
}

func (s *server) callback(body interface{}) (*http.Response, map[string]interface{}) {
	return s.do(http.MethodPost, "/v1/payments/callback", uuid.Nil, body,
		tixhttp.CallbackSecretHeader, callbackSecret)
}

func (s *server) purchase(user, eventID uuid.UUID, qty int, key string) (*http.Response, map[string]interface{}) {
	return s.do(http.MethodPost, "/v1/purchases", user,
		map[string]interface{}{"event_id": eventID, "quantity": qty},
		"Idempotency-Key", key)
}

func TestAPI_PurchasePayCheckIn(t *testing.T) {
	s := newServer(t, 1000)
	eventID := s.publish(2)
	buyer := uuid.New()

	resp, body := s.purchase(buyer, eventID, 2, "purchase-key-0001")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "RESERVED", body["status"])
	ticketID := body["ticket_id"].(string)

	resp, body = s.purchase(uuid.New(), eventID, 1, "purchase-key-0002")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "capacity_exceeded", body["error"])

	resp, body = s.callback(map[string]interface{}{"ticket_id": ticketID, "outcome": "success", "amount_cents": 9000, "transaction_id": "tx-9"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "VALID", body["status"])

	_, body = s.do(http.MethodGet, "/v1/events/"+eventID.String()+"/availability", buyer, nil)
	assert.EqualValues(t, 2, body["sold"])
	assert.EqualValues(t, 0, body["available"])

	operatorA, operatorB := uuid.New(), uuid.New()
	resp, body = s.do(http.MethodPost, "/v1/tickets/"+ticketID+"/checkin", operatorA, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "USED", body["status"])
	assert.Equal(t, operatorA.String(), body["checked_in_by"])

	resp, body = s.do(http.MethodPost, "/v1/tickets/"+ticketID+"/checkin", operatorB, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_used", body["error"])

	resp, body = s.do(http.MethodGet, "/v1/tickets/"+ticketID, buyer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, operatorA.String(), body["checked_in_by"])

	resp, _ = s.do(http.MethodGet, "/v1/tickets/"+ticketID, uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_PurchaseIsIdempotentPerKey(t *testing.T) {
	s := newServer(t, 1000)
	eventID := s.publish(5)
	buyer := uuid.New()

	first, body1 := s.purchase(buyer, eventID, 2, "retry-key-000001")
	require.Equal(t, http.StatusCreated, first.StatusCode)
	again, body2 := s.purchase(buyer, eventID, 2, "retry-key-000001")
	require.Equal(t, http.StatusCreated, again.StatusCode)
	assert.Equal(t, "true", again.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, body1["ticket_id"], body2["ticket_id"])

	_, avail := s.do(http.MethodGet, "/v1/events/"+eventID.String()+"/availability", buyer, nil)
	assert.EqualValues(t, 2, avail["reserved"])

	resp, _ := s.purchase(buyer, eventID, 1, "short")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/v1/users/"+buyer.String()+"/tickets", buyer, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/v1/users/"+buyer.String()+"/tickets", uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_ExpiredReservationRejectsLatePayment(t *testing.T) {
	s := newServer(t, 1000)
	eventID := s.publish(1)
	buyer := uuid.New()

	_, body := s.purchase(buyer, eventID, 1, "late-payment-0001")
	ticketID := body["ticket_id"].(string)

	s.clock.Advance(inventory.DefaultReservationTTL)

	resp, body := s.callback(map[string]interface{}{"ticket_id": ticketID, "outcome": "success"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "reservation_expired", body["error"])

	_, body = s.do(http.MethodGet, "/v1/tickets/"+ticketID, buyer, nil)
	assert.Equal(t, "CANCELLED", body["status"])
	_, avail := s.do(http.MethodGet, "/v1/events/"+eventID.String()+"/availability", buyer, nil)
	assert.EqualValues(t, 1, avail["available"])
}

func TestAPI_PublishFromCatalogAndCancel(t *testing.T) {
	s := newServer(t, 1000)
	eventID := uuid.New()
	s.catalog.capacity[eventID] = 40
	operator := uuid.New()

	resp, body := s.do(http.MethodPost, "/v1/events/"+eventID.String()+"/publish", operator, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 40, body["capacity"])

	resp, body = s.do(http.MethodPost, "/v1/events/"+eventID.String()+"/publish", operator, map[string]int{"capacity": 50})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "capacity_immutable", body["error"])

	resp, _ = s.do(http.MethodPost, "/v1/events/"+uuid.New().String()+"/publish", operator, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(http.MethodPost, "/v1/events/"+eventID.String()+"/cancel", operator, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.Equal(t, domain.EventCancelled, s.catalog.status[eventID])

	resp, body = s.purchase(uuid.New(), eventID, 1, "cancelled-event-01")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "event_not_available", body["error"])
}

func TestAPI_IdentityAndRateLimit(t *testing.T) {
	s := newServer(t, 2)
	eventID := s.publish(1)

	resp, _ := s.do(http.MethodGet, "/v1/events/"+eventID.String()+"/availability", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	user := uuid.New()
	for i := 0; i < 2; i++ {
		resp, _ = s.do(http.MethodGet, "/v1/events/"+eventID.String()+"/availability", user, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ = s.do(http.MethodGet, "/v1/events/"+eventID.String()+"/availability", user, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	s.clock.Advance(time.Minute)
	resp, _ = s.do(http.MethodGet, "/v1/events/"+eventID.String()+"/availability", user, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Health(t *testing.T) {
	s := newServer(t, 10)
	resp, _ := s.do(http.MethodGet, "/v1/healthz", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/v1/readyz", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.callback(map[string]string{"ticket_id": uuid.NewString(), "outcome": "chargeback"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CallbackRequiresSecret(t *testing.T) {
	s := newServer(t, 1000)
	eventID := s.publish(1)
	buyer := uuid.New()
	_, body := s.purchase(buyer, eventID, 1, "callback-auth-0001")
	ticketID := body["ticket_id"].(string)
	success := map[string]interface{}{"ticket_id": ticketID, "outcome": "success"}

	resp, _ := s.do(http.MethodPost, "/v1/payments/callback", uuid.Nil, success)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.do(http.MethodPost, "/v1/payments/callback", buyer, success,
		tixhttp.CallbackSecretHeader, "guessed")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, body = s.do(http.MethodGet, "/v1/tickets/"+ticketID, buyer, nil)
	assert.Equal(t, "RESERVED", body["status"])

	resp, body = s.callback(success)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "VALID", body["status"])
}

func TestCallbackSecretMiddleware_EmptySecretAllows(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	rec := httptest.NewRecorder()
	tixhttp.CallbackSecretMiddleware("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/payments/callback", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReadyzReportsFailedChecks(t *testing.T) {
	log := observability.NewNopLogger()
	h := tixhttp.NewHandlers(tixhttp.Deps{
		Checks: map[string]tixhttp.Check{
			"crdb": func(context.Context) error { return errors.New("connection refused") },
		},
		Logger: log,
	})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/v1/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
