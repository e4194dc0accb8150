package testing

import (
	"context"
	"testing"

	"github.com/akriventsev/automat/framework/saga"
)

type bookingPayload struct {
	BookingID string `json:"booking_id"`
	Room      string `json:"room"`
}

func (p *bookingPayload) CorrelationID() string {
	return p.BookingID
}

type bookingData struct {
	Room string `json:"room"`
}

func newBookingMachine(t *testing.T) *saga.StateMachine {
	t.Helper()

	machine, err := saga.NewMachineBuilder("Requested").
		Initially("BookingRequested", saga.NewHandler().
			WithAction(func(ctx context.Context, instance *saga.Instance, event saga.Event, mctx saga.MessageContext) error {
				if payload, ok := event.Payload().(*bookingPayload); ok {
					instance.Data.(*bookingData).Room = payload.Room
				}
				return nil
			}).
			TransitionTo("Confirmed").
			Build()).
		During("Confirmed", "GuestArrived", saga.NewHandler().
			TransitionTo("CheckedIn").
			Build()).
		MarkTerminal("CheckedIn").
		Build()
	if err != nil {
		t.Fatalf("failed to build booking machine: %v", err)
	}
	return machine
}

func TestSagaTestEnvironment_EndToEnd(t *testing.T) {
	env := NewSagaTestEnvironment(t, "booking", newBookingMachine(t),
		[]string{"BookingRequested", "GuestArrived"},
		WithDataFactory(func() interface{} { return &bookingData{} }),
		WithPayload("BookingRequested", func() interface{} { return &bookingPayload{} }),
		WithPayload("GuestArrived", func() interface{} { return &bookingPayload{} }),
	)
	ctx := context.Background()
	defer func() {
		if err := env.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	}()

	recorder := RecordNotifications(t, env.Notifications)

	err := env.PublishEvent(ctx, t, "BookingRequested",
		saga.NewEvent("BookingRequested", &bookingPayload{BookingID: "bk-1", Room: "402"}))
	if err != nil {
		t.Fatalf("PublishEvent failed: %v", err)
	}

	instance := env.Instance(ctx, t, "bk-1")
	if instance == nil {
		t.Fatal("Expected saga instance after the initial event")
	}
	if instance.CurrentState != "Confirmed" {
		t.Errorf("Expected state 'Confirmed', got '%s'", instance.CurrentState)
	}
	if data, ok := instance.Data.(*bookingData); !ok || data.Room != "402" {
		t.Errorf("Expected typed data with room 402, got %#v", instance.Data)
	}

	err = env.PublishEvent(ctx, t, "GuestArrived",
		saga.NewEvent("GuestArrived", &bookingPayload{BookingID: "bk-1"}))
	if err != nil {
		t.Fatalf("PublishEvent failed: %v", err)
	}

	instance = env.Instance(ctx, t, "bk-1")
	if instance.CurrentState != "CheckedIn" {
		t.Errorf("Expected terminal state 'CheckedIn', got '%s'", instance.CurrentState)
	}
	if !instance.IsCompleted() {
		t.Error("Instance in a terminal state must be completed")
	}

	if len(recorder.OfType(saga.NotificationInstanceCreated)) != 1 {
		t.Error("Expected one instance-created notification")
	}
	if len(recorder.OfType(saga.NotificationCompleted)) != 1 {
		t.Error("Expected one completed notification")
	}
}

func TestNewTestContainer(t *testing.T) {
	cnt := NewTestContainer(t, map[string]interface{}{"region": "eu-west-1"})
	if !cnt.Has("region") {
		t.Error("Registered value must be resolvable")
	}
}
