// Package transport предоставляет приемник, подписывающий процессор саг
// на входящие сообщения.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akriventsev/automat/framework/container"
	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/saga"
)

// ReceiverConfig конфигурация приемника сообщений
type ReceiverConfig struct {
	// Subjects список subject'ов, на которые подписывается приемник
	Subjects []string
	// Retry политика повторов при сбое обработки
	Retry RetryPolicy
}

// DefaultReceiverConfig возвращает конфигурацию по умолчанию
func DefaultReceiverConfig(subjects ...string) ReceiverConfig {
	return ReceiverConfig{
		Subjects: subjects,
		Retry: &ExponentialBackoffRetryPolicy{
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			MaxAttempts:  3,
		},
	}
}

// Validate проверяет конфигурацию приемника
func (c ReceiverConfig) Validate() error {
	if len(c.Subjects) == 0 {
		return fmt.Errorf("receiver requires at least one subject")
	}
	for _, subject := range c.Subjects {
		if subject == "" {
			return fmt.Errorf("subject name cannot be empty")
		}
	}
	return nil
}

// Receiver подписывает процессор саг на сообщения шины: декодирует конверт,
// строит контекст обработки и передает событие процессору. Ошибка обработки
// после исчерпания повторов возвращается шине для nack/redelivery.
type Receiver struct {
	mu        sync.Mutex
	config    ReceiverConfig
	bus       MessageBus
	processor *saga.Processor
	codec     *Codec
	resolver  *container.Container
	scheduler saga.TimeoutScheduler
	running   bool
}

// NewReceiver создает приемник сообщений для процессора
func NewReceiver(config ReceiverConfig, bus MessageBus, processor *saga.Processor, codec *Codec) (*Receiver, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid receiver config")
	}
	return &Receiver{
		config:    config,
		bus:       bus,
		processor: processor,
		codec:     codec,
		resolver:  container.NewContainer(),
	}, nil
}

// WithResolver устанавливает корневой контейнер зависимостей.
// Для каждой обработки создается дочерний scope.
func (r *Receiver) WithResolver(resolver *container.Container) *Receiver {
	r.resolver = resolver
	return r
}

// WithScheduler устанавливает планировщик таймаутов
func (r *Receiver) WithScheduler(scheduler saga.TimeoutScheduler) *Receiver {
	r.scheduler = scheduler
	return r
}

// Name возвращает имя компонента
func (r *Receiver) Name() string {
	return fmt.Sprintf("receiver-%s", r.processor.Name())
}

// Type возвращает тип компонента
func (r *Receiver) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

// Start подписывает приемник на все subject'ы конфигурации
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	for _, subject := range r.config.Subjects {
		if err := r.bus.Subscribe(ctx, subject, r.handle); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
	}
	r.running = true
	return nil
}

// Stop отписывает приемник от всех subject'ов
func (r *Receiver) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil
	}

	for _, subject := range r.config.Subjects {
		if err := r.bus.Unsubscribe(subject); err != nil {
			return fmt.Errorf("failed to unsubscribe from %s: %w", subject, err)
		}
	}
	r.running = false
	return nil
}

// IsRunning проверяет, запущен ли приемник
func (r *Receiver) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// handle обрабатывает одно входящее сообщение с повторами.
// Ошибка декодирования не повторяется: сообщение не станет валидным
// при повторной доставке.
func (r *Receiver) handle(ctx context.Context, msg *Message) error {
	event, err := r.codec.Decode(msg)
	if err != nil {
		return err
	}

	mctx := NewMessageContext(event, r.bus, r.codec, r.resolver.BeginScope(), r.scheduler)

	var processErr error
	attempts := 1
	if r.config.Retry != nil {
		attempts = r.config.Retry.GetMaxAttempts()
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		processErr = r.processor.Process(ctx, mctx)
		if processErr == nil {
			return nil
		}
		if r.config.Retry == nil || !r.config.Retry.ShouldRetry(attempt, processErr) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.Retry.GetDelay(attempt)):
		}
	}
	return processErr
}
