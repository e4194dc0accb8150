// Package testing предоставляет утилиты для тестирования саг на базе фреймворка.
package testing

import (
	"context"
	"testing"

	"github.com/akriventsev/automat/framework/adapters/messagebus"
	"github.com/akriventsev/automat/framework/adapters/repository"
	"github.com/akriventsev/automat/framework/container"
	"github.com/akriventsev/automat/framework/events"
	"github.com/akriventsev/automat/framework/saga"
	"github.com/akriventsev/automat/framework/transport"
)

// SagaTestEnvironment тестовая среда с готовыми in-memory компонентами:
// синхронный message bus, in-memory репозиторий, шина уведомлений и
// приемник, подписанный на указанные subject'ы. Публикация события в bus
// синхронно прогоняет его через процессор, после чего состояние
// экземпляра можно проверять без ожиданий.
type SagaTestEnvironment struct {
	Bus           *messagebus.InMemoryAdapter
	Repository    *repository.InMemoryRepository
	Notifications *events.InMemoryBus
	Codec         *transport.Codec
	Processor     *saga.Processor
	Receiver      *transport.Receiver
	Resolver      *container.Container
}

// EnvironmentOption настраивает тестовую среду перед запуском
type EnvironmentOption func(*SagaTestEnvironment)

// WithDataFactory задает фабрику типизированных данных саги
func WithDataFactory(factory saga.DataFactory) EnvironmentOption {
	return func(env *SagaTestEnvironment) {
		env.Repository.WithDataFactory(repository.DataFactory(factory))
		env.Processor.WithDataFactory(factory)
	}
}

// WithPayload регистрирует фабрику payload'а для декодирования конвертов
func WithPayload(eventName string, factory transport.PayloadFactory) EnvironmentOption {
	return func(env *SagaTestEnvironment) {
		env.Codec.RegisterPayload(eventName, factory)
	}
}

// NewSagaTestEnvironment собирает тестовую среду для машины состояний.
// Приемник подписывается на все переданные subject'ы. Если сборка
// завершается с ошибкой, тест завершается с t.Fatalf.
func NewSagaTestEnvironment(t *testing.T, processorName string, machine *saga.StateMachine, subjects []string, options ...EnvironmentOption) *SagaTestEnvironment {
	t.Helper()

	env := &SagaTestEnvironment{
		Bus:           messagebus.NewInMemoryAdapter(messagebus.DefaultInMemoryConfig()),
		Repository:    repository.NewInMemoryRepository(),
		Notifications: events.NewInMemoryBus(),
		Codec:         transport.NewCodec(),
		Resolver:      container.NewContainer(),
	}
	env.Processor = saga.NewProcessor(processorName, machine, env.Repository).
		WithNotificationBus(env.Notifications)

	for _, option := range options {
		option(env)
	}

	receiver, err := transport.NewReceiver(
		transport.DefaultReceiverConfig(subjects...),
		env.Bus,
		env.Processor,
		env.Codec,
	)
	if err != nil {
		t.Fatalf("failed to build test receiver: %v", err)
	}
	env.Receiver = receiver.WithResolver(env.Resolver)

	ctx := context.Background()
	if err := env.Bus.Start(ctx); err != nil {
		t.Fatalf("failed to start test message bus: %v", err)
	}
	if err := env.Receiver.Start(ctx); err != nil {
		t.Fatalf("failed to start test receiver: %v", err)
	}
	return env
}

// PublishEvent кодирует событие конвертом и публикует его в bus.
// Доставка синхронная: по возврату событие уже обработано процессором.
func (e *SagaTestEnvironment) PublishEvent(ctx context.Context, t *testing.T, subject string, event saga.Event) error {
	t.Helper()

	msg, err := e.Codec.Encode(subject, event)
	if err != nil {
		t.Fatalf("failed to encode event %s: %v", event.Name(), err)
	}
	return e.Bus.Publish(ctx, msg.Subject, msg.Data, msg.Headers)
}

// Instance загружает экземпляр саги, завершая тест при ошибке хранилища
func (e *SagaTestEnvironment) Instance(ctx context.Context, t *testing.T, correlationID string) *saga.Instance {
	t.Helper()

	instance, err := e.Repository.Find(ctx, correlationID)
	if err != nil {
		t.Fatalf("failed to load saga instance %s: %v", correlationID, err)
	}
	return instance
}

// Shutdown корректно завершает работу тестовой среды
func (e *SagaTestEnvironment) Shutdown(ctx context.Context) error {
	if err := e.Receiver.Stop(ctx); err != nil {
		return err
	}
	if err := e.Bus.Stop(ctx); err != nil {
		return err
	}
	return e.Notifications.Shutdown(ctx)
}

// NotificationRecorder накапливает уведомления жизненного цикла саг
type NotificationRecorder struct {
	Received []events.Notification
	handlers map[string]*events.HandlerFunc
	bus      events.Bus
}

// RecordNotifications подписывает recorder на все типы уведомлений саг
func RecordNotifications(t *testing.T, bus events.Bus) *NotificationRecorder {
	t.Helper()

	recorder := &NotificationRecorder{
		handlers: make(map[string]*events.HandlerFunc),
		bus:      bus,
	}
	notificationTypes := []string{
		saga.NotificationInstanceCreated,
		saga.NotificationTransitioned,
		saga.NotificationCompleted,
		saga.NotificationFaulted,
		saga.NotificationEventUnhandled,
		saga.NotificationUnroutable,
	}
	for _, kind := range notificationTypes {
		handler := events.NewHandlerFunc(kind, func(ctx context.Context, notification events.Notification) error {
			recorder.Received = append(recorder.Received, notification)
			return nil
		})
		if err := bus.Subscribe(kind, handler); err != nil {
			t.Fatalf("failed to subscribe notification recorder: %v", err)
		}
		recorder.handlers[kind] = handler
	}
	return recorder
}

// OfType возвращает записанные уведомления указанного типа
func (r *NotificationRecorder) OfType(notificationType string) []events.Notification {
	var matched []events.Notification
	for _, notification := range r.Received {
		if notification.NotificationType() == notificationType {
			matched = append(matched, notification)
		}
	}
	return matched
}
