package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akriventsev/automat/framework/container"
	"github.com/akriventsev/automat/framework/core"
)

// orderData бизнес-payload тестовой саги заказа
type orderData struct {
	OrderID string
	Amount  float64
	Paid    bool
	Shipped bool
}

// orderPayload payload события с correlation ID
type orderPayload struct {
	ID string
}

func (p orderPayload) CorrelationID() string {
	return p.ID
}

// newOrderMachine строит автомат сценария обработки заказа:
// OrderCreated -> AwaitingPayment, PaymentCompleted -> AwaitingShipment,
// PaymentFailed -> Finalize, OrderShipped -> Shipped (terminal).
func newOrderMachine() (*StateMachine, error) {
	return NewMachineBuilder("Initial").
		Initially("OrderCreated", NewHandler().
			WithAction(func(ctx context.Context, instance *Instance, event Event, mctx MessageContext) error {
				if data, ok := instance.Data.(*orderData); ok {
					data.OrderID = instance.CorrelationID
				}
				return nil
			}).
			TransitionTo("AwaitingPayment").
			Build()).
		During("AwaitingPayment", "PaymentCompleted", NewHandler().
			WithAction(func(ctx context.Context, instance *Instance, event Event, mctx MessageContext) error {
				if data, ok := instance.Data.(*orderData); ok {
					data.Paid = true
				}
				return nil
			}).
			TransitionTo("AwaitingShipment").
			Build()).
		During("AwaitingPayment", "PaymentFailed", NewHandler().
			Finalize().
			Build()).
		During("AwaitingShipment", "OrderShipped", NewHandler().
			WithAction(func(ctx context.Context, instance *Instance, event Event, mctx MessageContext) error {
				if data, ok := instance.Data.(*orderData); ok {
					data.Shipped = true
				}
				return nil
			}).
			TransitionTo("Shipped").
			Finalize().
			Build()).
		MarkTerminal("Shipped").
		Build()
}

// memoryRepo простое in-memory хранилище для тестов процессора
type memoryRepo struct {
	mu        sync.Mutex
	instances map[string]*Instance
	saves     int
	findErr   error
	saveErr   error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{instances: make(map[string]*Instance)}
}

func (r *memoryRepo) Find(ctx context.Context, correlationID string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	instance, ok := r.instances[correlationID]
	if !ok {
		return nil, nil
	}
	return instance, nil
}

func (r *memoryRepo) Create(ctx context.Context, correlationID, initialState string, data interface{}) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[correlationID]; exists {
		return nil, core.NewError(core.ErrAlreadyExists, fmt.Sprintf("instance %s already exists", correlationID))
	}
	instance := NewInstance(correlationID, initialState, data)
	r.instances[correlationID] = instance
	return instance, nil
}

func (r *memoryRepo) Save(ctx context.Context, instance *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.instances[instance.CorrelationID] = instance
	return nil
}

// published одно опубликованное ответное сообщение
type published struct {
	subject string
	payload interface{}
}

// testMessageContext контекст сообщения для тестов
type testMessageContext struct {
	event     Event
	resolver  *container.Container
	scheduler TimeoutScheduler
	published []published
}

func newTestMessageContext(event Event) *testMessageContext {
	return &testMessageContext{
		event:    event,
		resolver: container.NewContainer().BeginScope(),
	}
}

func (m *testMessageContext) Event() Event {
	return m.event
}

func (m *testMessageContext) Publish(ctx context.Context, subject string, payload interface{}, headers map[string]string) error {
	m.published = append(m.published, published{subject: subject, payload: payload})
	return nil
}

func (m *testMessageContext) Resolver() *container.Container {
	return m.resolver
}

func (m *testMessageContext) Scheduler() TimeoutScheduler {
	return m.scheduler
}

// stubScheduler планировщик таймаутов для тестов
type stubScheduler struct {
	scheduled []string
	cancelled []string
}

func (s *stubScheduler) Schedule(ctx context.Context, correlationID, eventName string, delay time.Duration) (string, error) {
	id := fmt.Sprintf("timeout-%d", len(s.scheduled)+1)
	s.scheduled = append(s.scheduled, id)
	return id, nil
}

func (s *stubScheduler) Cancel(ctx context.Context, timeoutID string) error {
	s.cancelled = append(s.cancelled, timeoutID)
	return nil
}
