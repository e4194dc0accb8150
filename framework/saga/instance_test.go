package saga

import (
	"fmt"
	"testing"
)

func TestNewInstance(t *testing.T) {
	instance := NewInstance("order-1", "Initial", &orderData{})

	if instance.CorrelationID != "order-1" {
		t.Errorf("Expected correlation ID 'order-1', got '%s'", instance.CorrelationID)
	}
	if instance.CurrentState != "Initial" {
		t.Errorf("Expected state 'Initial', got '%s'", instance.CurrentState)
	}
	if instance.Version != 0 {
		t.Errorf("Expected version 0, got %d", instance.Version)
	}
	if !instance.IsActive() {
		t.Error("New instance must be active")
	}
	if instance.IsCompleted() || instance.IsFaulted() {
		t.Error("New instance must not be completed or faulted")
	}
	if len(instance.StateHistory) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(instance.StateHistory))
	}
}

func TestInstance_ApplyTransition_VersionMonotonic(t *testing.T) {
	instance := NewInstance("order-1", "Initial", nil)

	states := []string{"A", "B", "C", "D", "E"}
	for _, state := range states {
		instance.ApplyTransition(state, "test")
	}

	if instance.Version != int64(len(states)) {
		t.Errorf("Expected version %d after %d transitions, got %d", len(states), len(states), instance.Version)
	}
	if len(instance.StateHistory) != len(states) {
		t.Errorf("Expected %d history entries, got %d", len(states), len(instance.StateHistory))
	}
	if instance.CurrentState != "E" {
		t.Errorf("Expected current state 'E', got '%s'", instance.CurrentState)
	}
}

func TestInstance_StateHistoryConsistency(t *testing.T) {
	instance := NewInstance("order-1", "Initial", nil)
	instance.ApplyTransition("AwaitingPayment", "on OrderCreated")
	instance.ApplyTransition("AwaitingShipment", "on PaymentCompleted")
	instance.ApplyTransition("Shipped", "on OrderShipped")
	instance.MarkCompleted(ReasonTerminalState)

	history := instance.StateHistory
	for i := 0; i < len(history)-1; i++ {
		if history[i].ToState != history[i+1].FromState {
			t.Errorf("History broken at %d: ToState '%s' != next FromState '%s'",
				i, history[i].ToState, history[i+1].FromState)
		}
	}
	if history[0].FromState != "Initial" {
		t.Errorf("Expected first FromState 'Initial', got '%s'", history[0].FromState)
	}
}

func TestInstance_MarkCompleted_Idempotent(t *testing.T) {
	instance := NewInstance("order-1", "Initial", nil)
	instance.ApplyTransition("Shipped", "on OrderShipped")

	instance.MarkCompleted(ReasonTerminalState)
	completedAt := instance.CompletedAt
	version := instance.Version
	historyLen := len(instance.StateHistory)

	instance.MarkCompleted(ReasonTerminalState)

	if instance.CompletedAt != completedAt {
		t.Error("CompletedAt must be set at most once")
	}
	if instance.Version != version {
		t.Errorf("Repeated MarkCompleted must not change version: %d -> %d", version, instance.Version)
	}
	if len(instance.StateHistory) != historyLen {
		t.Error("Repeated MarkCompleted must not append history")
	}
}

func TestInstance_MarkFaulted(t *testing.T) {
	instance := NewInstance("order-1", "AwaitingPayment", nil)

	instance.MarkFaulted(fmt.Errorf("payment gateway unavailable"))

	if !instance.IsFaulted() {
		t.Fatal("Instance must be faulted")
	}
	if instance.IsActive() {
		t.Error("Faulted instance must not be active")
	}
	if instance.ErrorMessage != "payment gateway unavailable" {
		t.Errorf("Unexpected error message: %s", instance.ErrorMessage)
	}
	if len(instance.Errors) != 1 {
		t.Fatalf("Expected 1 error entry, got %d", len(instance.Errors))
	}

	last := instance.StateHistory[len(instance.StateHistory)-1]
	if last.Reason != ReasonFaulted {
		t.Errorf("Expected '%s' transition reason, got '%s'", ReasonFaulted, last.Reason)
	}

	// Журнал ошибок append-only, FaultedAt не перезаписывается
	faultedAt := instance.FaultedAt
	instance.MarkFaulted(fmt.Errorf("second failure"))
	if instance.FaultedAt != faultedAt {
		t.Error("FaultedAt must be set at most once")
	}
	if len(instance.Errors) != 2 {
		t.Errorf("Expected 2 error entries, got %d", len(instance.Errors))
	}
	if instance.ErrorMessage != "second failure" {
		t.Errorf("ErrorMessage must reflect the latest error, got '%s'", instance.ErrorMessage)
	}
}

func TestInstance_TimeoutTracking(t *testing.T) {
	instance := NewInstance("order-1", "AwaitingPayment", nil)

	instance.TrackTimeout("timeout-1")
	instance.TrackTimeout("timeout-2")
	instance.TrackTimeout("timeout-1") // дубликат не добавляется

	if len(instance.ScheduledTimeouts) != 2 {
		t.Fatalf("Expected 2 tracked timeouts, got %d", len(instance.ScheduledTimeouts))
	}

	instance.UntrackTimeout("timeout-1")
	if len(instance.ScheduledTimeouts) != 1 {
		t.Fatalf("Expected 1 tracked timeout after untrack, got %d", len(instance.ScheduledTimeouts))
	}
	if instance.ScheduledTimeouts[0] != "timeout-2" {
		t.Errorf("Wrong timeout remained: %s", instance.ScheduledTimeouts[0])
	}
}

func TestInstance_Metadata(t *testing.T) {
	instance := NewInstance("order-1", "Initial", nil)

	instance.SetMetadata("warehouse", "msk-01")
	val, ok := instance.GetMetadata("warehouse")
	if !ok {
		t.Fatal("Expected metadata key to exist")
	}
	if val != "msk-01" {
		t.Errorf("Expected 'msk-01', got '%v'", val)
	}

	if _, ok := instance.GetMetadata("missing"); ok {
		t.Error("Missing key must not be found")
	}
}
