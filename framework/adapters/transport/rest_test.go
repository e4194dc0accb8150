package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/akriventsev/automat/framework/adapters/repository"
)

func newIntrospectionAdapter(t *testing.T) (*RESTAdapter, *repository.InMemoryRepository) {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	adapter := NewRESTAdapter(DefaultRESTConfig())
	adapter.RegisterSaga("order", repo)
	return adapter, repo
}

func TestRESTAdapter_GetInstance(t *testing.T) {
	adapter, repo := newIntrospectionAdapter(t)
	ctx := context.Background()

	instance, err := repo.Create(ctx, "order-1", "AwaitingPayment", map[string]interface{}{"amount": 149.90})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	instance.ApplyTransition("AwaitingShipment", "on PaymentCompleted")
	if err := repo.Save(ctx, instance); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/sagas/order/order-1", nil)
	adapter.Router().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["correlation_id"] != "order-1" {
		t.Errorf("Expected correlation_id 'order-1', got %v", body["correlation_id"])
	}
	if body["current_state"] != "AwaitingShipment" {
		t.Errorf("Expected current_state 'AwaitingShipment', got %v", body["current_state"])
	}
}

func TestRESTAdapter_GetInstance_NotFound(t *testing.T) {
	adapter, _ := newIntrospectionAdapter(t)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/sagas/order/order-404", nil)
	adapter.Router().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", recorder.Code)
	}
}

func TestRESTAdapter_UnknownProcessor(t *testing.T) {
	adapter, _ := newIntrospectionAdapter(t)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/sagas/billing/order-1", nil)
	adapter.Router().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown processor, got %d", recorder.Code)
	}
}

func TestRESTAdapter_GetHistory(t *testing.T) {
	adapter, repo := newIntrospectionAdapter(t)
	ctx := context.Background()

	instance, _ := repo.Create(ctx, "order-1", "Initial", nil)
	instance.ApplyTransition("AwaitingPayment", "on OrderCreated")
	instance.ApplyTransition("AwaitingShipment", "on PaymentCompleted")
	if err := repo.Save(ctx, instance); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/sagas/order/order-1/history", nil)
	adapter.Router().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var body struct {
		CorrelationID string `json:"correlation_id"`
		Version       int64  `json:"version"`
		StateHistory  []struct {
			FromState string `json:"from_state"`
			ToState   string `json:"to_state"`
		} `json:"state_history"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Version != 2 {
		t.Errorf("Expected version 2, got %d", body.Version)
	}
	if len(body.StateHistory) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(body.StateHistory))
	}
	if body.StateHistory[1].ToState != "AwaitingShipment" {
		t.Errorf("Expected last transition to 'AwaitingShipment', got '%s'", body.StateHistory[1].ToState)
	}
}

func TestRESTAdapter_Healthz(t *testing.T) {
	adapter, _ := newIntrospectionAdapter(t)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	adapter.Router().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", recorder.Code)
	}
}
