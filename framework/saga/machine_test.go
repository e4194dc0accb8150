package saga

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/akriventsev/automat/framework/core"
)

func TestStateMachine_CanStartSaga(t *testing.T) {
	machine, err := newOrderMachine()
	if err != nil {
		t.Fatalf("Failed to build machine: %v", err)
	}

	if !machine.CanStartSaga("OrderCreated") {
		t.Error("OrderCreated must be able to start a saga")
	}
	if machine.CanStartSaga("PaymentCompleted") {
		t.Error("PaymentCompleted must not start a saga")
	}
	if machine.CanStartSaga("UnknownEvent") {
		t.Error("Unknown event must not start a saga")
	}
}

func TestStateMachine_ProcessEvent_Unhandled(t *testing.T) {
	machine, _ := newOrderMachine()
	instance := NewInstance("order-1", "AwaitingPayment", &orderData{})

	// OrderShipped не зарегистрировано для AwaitingPayment
	event := NewEvent("OrderShipped", orderPayload{ID: "order-1"})
	handled, err := machine.ProcessEvent(context.Background(), instance, event, newTestMessageContext(event))

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if handled {
		t.Error("Event without a registered handler must return handled=false")
	}
	if instance.Version != 0 {
		t.Errorf("Unhandled event must not mutate the instance, version=%d", instance.Version)
	}
	if len(instance.StateHistory) != 0 {
		t.Error("Unhandled event must not append history")
	}
}

func TestStateMachine_ProcessEvent_Transition(t *testing.T) {
	machine, _ := newOrderMachine()
	data := &orderData{}
	instance := NewInstance("order-1", machine.InitialState(), data)

	event := NewEvent("OrderCreated", orderPayload{ID: "order-1"})
	handled, err := machine.ProcessEvent(context.Background(), instance, event, newTestMessageContext(event))

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !handled {
		t.Fatal("Expected event to be handled")
	}
	if instance.CurrentState != "AwaitingPayment" {
		t.Errorf("Expected state 'AwaitingPayment', got '%s'", instance.CurrentState)
	}
	if instance.Version != 1 {
		t.Errorf("Expected version 1, got %d", instance.Version)
	}
	if data.OrderID != "order-1" {
		t.Error("Action must have run and mutated the data")
	}
}

func TestStateMachine_ProcessEvent_RunsAllApplicableHandlers(t *testing.T) {
	var order []string

	recording := func(tag string) Action {
		return func(ctx context.Context, instance *Instance, event Event, mctx MessageContext) error {
			order = append(order, tag)
			return nil
		}
	}

	machine, err := NewMachineBuilder("Initial").
		Initially("Started", NewHandler().
			WithAction(recording("first")).
			Build()).
		Initially("Started", NewHandler().
			WithAction(recording("second")).
			Build()).
		Initially("Started", NewHandler().
			WithAction(recording("third")).
			TransitionTo("Working").
			Build()).
		Build()
	if err != nil {
		t.Fatalf("Failed to build machine: %v", err)
	}

	instance := NewInstance("x-1", "Initial", nil)
	event := NewEvent("Started", orderPayload{ID: "x-1"})
	handled, err := machine.ProcessEvent(context.Background(), instance, event, newTestMessageContext(event))

	if err != nil || !handled {
		t.Fatalf("Expected handled without error, got handled=%v err=%v", handled, err)
	}
	if len(order) != 3 {
		t.Fatalf("All registered handlers must run, ran %d", len(order))
	}
	for i, expected := range []string{"first", "second", "third"} {
		if order[i] != expected {
			t.Errorf("Handler %d ran out of order: expected '%s', got '%s'", i, expected, order[i])
		}
	}
}

func TestStateMachine_ProcessEvent_GuardSkipsHandler(t *testing.T) {
	ran := false

	machine, err := NewMachineBuilder("Initial").
		Initially("Started", NewHandler().
			WithGuard(func(instance *Instance, event Event) bool {
				return false
			}).
			WithAction(func(ctx context.Context, instance *Instance, event Event, mctx MessageContext) error {
				ran = true
				return nil
			}).
			TransitionTo("Working").
			Build()).
		Build()
	if err != nil {
		t.Fatalf("Failed to build machine: %v", err)
	}

	instance := NewInstance("x-1", "Initial", nil)
	event := NewEvent("Started", orderPayload{ID: "x-1"})
	handled, err := machine.ProcessEvent(context.Background(), instance, event, newTestMessageContext(event))

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !handled {
		t.Error("Registered handler pair means handled=true even when the guard declines")
	}
	if ran {
		t.Error("Action must not run when guard declines")
	}
	if instance.CurrentState != "Initial" {
		t.Errorf("Guarded-out handler must not transition, state='%s'", instance.CurrentState)
	}
	if instance.Version != 0 {
		t.Errorf("Guarded-out handler must not bump version, version=%d", instance.Version)
	}
}

func TestStateMachine_ProcessEvent_ActionErrorFaultsInstance(t *testing.T) {
	actionErr := errors.New("inventory reservation failed")
	secondRan := false

	machine, err := NewMachineBuilder("Initial").
		Initially("Started", NewHandler().
			WithAction(func(ctx context.Context, instance *Instance, event Event, mctx MessageContext) error {
				return actionErr
			}).
			TransitionTo("Working").
			Build()).
		Initially("Started", NewHandler().
			WithAction(func(ctx context.Context, instance *Instance, event Event, mctx MessageContext) error {
				secondRan = true
				return nil
			}).
			Build()).
		Build()
	if err != nil {
		t.Fatalf("Failed to build machine: %v", err)
	}

	instance := NewInstance("x-1", "Initial", nil)
	event := NewEvent("Started", orderPayload{ID: "x-1"})
	handled, dispatchErr := machine.ProcessEvent(context.Background(), instance, event, newTestMessageContext(event))

	if !handled {
		t.Error("Failed dispatch is still a handled event")
	}
	if !errors.Is(dispatchErr, actionErr) {
		t.Errorf("Expected the action error to surface unwrapped, got %v", dispatchErr)
	}
	if !instance.IsFaulted() {
		t.Error("Action error must fault the instance")
	}
	if secondRan {
		t.Error("Remaining handlers must not run after a fault")
	}
	if instance.CurrentState != "Initial" {
		t.Errorf("Failed handler must not apply its transition, state='%s'", instance.CurrentState)
	}
}

func TestStateMachine_ProcessEvent_FinalizeCompletes(t *testing.T) {
	machine, _ := newOrderMachine()
	instance := NewInstance("order-1", "AwaitingPayment", &orderData{})

	event := NewEvent("PaymentFailed", orderPayload{ID: "order-1"})
	handled, err := machine.ProcessEvent(context.Background(), instance, event, newTestMessageContext(event))

	if err != nil || !handled {
		t.Fatalf("Expected handled without error, got handled=%v err=%v", handled, err)
	}
	if !instance.IsCompleted() {
		t.Fatal("Finalize handler must complete the instance")
	}
	if instance.CurrentState != "AwaitingPayment" {
		t.Errorf("Finalize without TransitionTo must keep the state, got '%s'", instance.CurrentState)
	}
	last := instance.StateHistory[len(instance.StateHistory)-1]
	if last.Reason != ReasonFinalized {
		t.Errorf("Expected completion reason '%s', got '%s'", ReasonFinalized, last.Reason)
	}
}

func TestStateMachine_ProcessEvent_TerminalStateCompletes(t *testing.T) {
	machine, _ := NewMachineBuilder("Initial").
		Initially("Started", NewHandler().
			TransitionTo("Done").
			Build()).
		MarkTerminal("Done").
		Build()

	instance := NewInstance("x-1", "Initial", nil)
	event := NewEvent("Started", orderPayload{ID: "x-1"})
	if _, err := machine.ProcessEvent(context.Background(), instance, event, newTestMessageContext(event)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !instance.IsCompleted() {
		t.Fatal("Entering a terminal state must complete the instance")
	}
	last := instance.StateHistory[len(instance.StateHistory)-1]
	if last.Reason != ReasonTerminalState {
		t.Errorf("Expected completion reason '%s', got '%s'", ReasonTerminalState, last.Reason)
	}
}

func TestStateMachine_ProcessEvent_CompletedInstanceImmutable(t *testing.T) {
	machine, _ := newOrderMachine()
	instance := NewInstance("order-1", "AwaitingPayment", &orderData{})
	instance.MarkCompleted(ReasonFinalized)

	version := instance.Version
	historyLen := len(instance.StateHistory)

	event := NewEvent("PaymentCompleted", orderPayload{ID: "order-1"})
	handled, err := machine.ProcessEvent(context.Background(), instance, event, newTestMessageContext(event))

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if handled {
		t.Error("Completed instance must not handle further events")
	}
	if instance.Version != version || len(instance.StateHistory) != historyLen {
		t.Error("Completed instance must not be mutated")
	}
	if instance.CurrentState != "AwaitingPayment" {
		t.Errorf("Completed instance state must not change, got '%s'", instance.CurrentState)
	}
}

func TestStateMachine_ProcessEvent_ContextCancelled(t *testing.T) {
	machine, _ := newOrderMachine()
	instance := NewInstance("order-1", machine.InitialState(), &orderData{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event := NewEvent("OrderCreated", orderPayload{ID: "order-1"})
	handled, err := machine.ProcessEvent(ctx, instance, event, newTestMessageContext(event))

	if !handled {
		t.Error("Cancellation during dispatch still counts as handled")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if instance.IsFaulted() {
		t.Error("Cancellation must not fault the instance")
	}
}

func TestStateMachine_ExtractCorrelationID_Extractor(t *testing.T) {
	machine, err := NewMachineBuilder("Initial").
		Initially("Started", NewHandler().Build()).
		WithExtractor("Started", func(event Event) (string, error) {
			payload, ok := event.Payload().(map[string]string)
			if !ok {
				return "", fmt.Errorf("unexpected payload type %T", event.Payload())
			}
			return payload["request_id"], nil
		}).
		Build()
	if err != nil {
		t.Fatalf("Failed to build machine: %v", err)
	}

	id, err := machine.ExtractCorrelationID(NewEvent("Started", map[string]string{"request_id": "req-42"}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if id != "req-42" {
		t.Errorf("Expected 'req-42', got '%s'", id)
	}

	// Пустой результат экстрактора считается сбоем корреляции
	_, err = machine.ExtractCorrelationID(NewEvent("Started", map[string]string{}))
	if !core.IsCode(err, core.ErrCorrelationFailed) {
		t.Errorf("Expected correlation failure, got %v", err)
	}
}

func TestStateMachine_ExtractCorrelationID_CorrelatableFallback(t *testing.T) {
	machine, _ := newOrderMachine()

	id, err := machine.ExtractCorrelationID(NewEvent("OrderCreated", orderPayload{ID: "order-7"}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if id != "order-7" {
		t.Errorf("Expected 'order-7', got '%s'", id)
	}

	_, err = machine.ExtractCorrelationID(NewEvent("OrderCreated", struct{}{}))
	if !core.IsCode(err, core.ErrCorrelationFailed) {
		t.Errorf("Expected correlation failure for uncorrelatable payload, got %v", err)
	}
}

func TestMachineBuilder_Validation(t *testing.T) {
	if _, err := NewMachineBuilder("").Initially("Started", NewHandler().Build()).Build(); err == nil {
		t.Error("Empty initial state must be rejected")
	}

	if _, err := NewMachineBuilder("Initial").Build(); err == nil {
		t.Error("Machine without initial handlers must be rejected")
	}

	_, err := NewMachineBuilder("Initial").
		Initially("Started", NewHandler().Build()).
		During("Initial", "Other", NewHandler().Build()).
		Build()
	if err == nil {
		t.Error("During on the initial state must be rejected")
	}
}

func TestStateMachine_OrderScenario(t *testing.T) {
	machine, err := newOrderMachine()
	if err != nil {
		t.Fatalf("Failed to build machine: %v", err)
	}

	data := &orderData{Amount: 149.90}
	instance := NewInstance("order-1", machine.InitialState(), data)
	ctx := context.Background()

	steps := []struct {
		event string
		state string
	}{
		{"OrderCreated", "AwaitingPayment"},
		{"PaymentCompleted", "AwaitingShipment"},
		{"OrderShipped", "Shipped"},
	}
	for _, step := range steps {
		event := NewEvent(step.event, orderPayload{ID: "order-1"})
		handled, err := machine.ProcessEvent(ctx, instance, event, newTestMessageContext(event))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", step.event, err)
		}
		if !handled {
			t.Fatalf("%s: expected handled", step.event)
		}
		if instance.CurrentState != step.state {
			t.Fatalf("%s: expected state '%s', got '%s'", step.event, step.state, instance.CurrentState)
		}
	}

	if !instance.IsCompleted() {
		t.Error("Instance must complete in the terminal state")
	}
	if !data.Paid || !data.Shipped {
		t.Error("All actions must have mutated the data")
	}
	// 3 перехода + запись о завершении
	if instance.Version != 4 {
		t.Errorf("Expected version 4, got %d", instance.Version)
	}
	if int64(len(instance.StateHistory)) != instance.Version {
		t.Errorf("History length %d must equal version %d", len(instance.StateHistory), instance.Version)
	}
}

func TestStateMachine_OrderScenario_PaymentFailed(t *testing.T) {
	machine, _ := newOrderMachine()
	instance := NewInstance("order-2", machine.InitialState(), &orderData{})
	ctx := context.Background()

	created := NewEvent("OrderCreated", orderPayload{ID: "order-2"})
	if _, err := machine.ProcessEvent(ctx, instance, created, newTestMessageContext(created)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	failed := NewEvent("PaymentFailed", orderPayload{ID: "order-2"})
	handled, err := machine.ProcessEvent(ctx, instance, failed, newTestMessageContext(failed))
	if err != nil || !handled {
		t.Fatalf("Expected handled without error, got handled=%v err=%v", handled, err)
	}

	if !instance.IsCompleted() {
		t.Error("PaymentFailed must finalize the saga")
	}
	if instance.IsFaulted() {
		t.Error("Business-level payment failure is a completion, not a fault")
	}
}
