// Package saga предоставляет процессор, связывающий входящие сообщения
// с автоматом и хранилищем экземпляров.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akriventsev/automat/framework/events"
	"github.com/akriventsev/automat/framework/metrics"
)

// DataFactory создает пустой бизнес-payload для нового экземпляра
type DataFactory func() interface{}

// Processor обрабатывает ровно одно входящее сообщение за вызов Process:
// извлечение корреляции, поиск/создание экземпляра, short-circuit для
// терминальных экземпляров, диспетчеризация, сохранение, учет сбоев.
//
// Процессор не сериализует обработку по correlation ID: конкурентную
// доставку для одного ID должен упорядочить транспорт, а устаревшие
// записи отсекает optimistic-concurrency проверка репозитория.
type Processor struct {
	name     string
	machine  *StateMachine
	repo     Repository
	newData  DataFactory
	notFound NotFoundHandler
	bus      events.Bus
	metrics  *metrics.Metrics
}

// NewProcessor создает новый процессор сообщений
func NewProcessor(name string, machine *StateMachine, repo Repository) *Processor {
	return &Processor{
		name:    name,
		machine: machine,
		repo:    repo,
		newData: func() interface{} { return nil },
	}
}

// WithDataFactory устанавливает фабрику бизнес-payload новых экземпляров
func (p *Processor) WithDataFactory(factory DataFactory) *Processor {
	p.newData = factory
	return p
}

// WithNotFoundHandler устанавливает callback для немаршрутизируемых событий
func (p *Processor) WithNotFoundHandler(handler NotFoundHandler) *Processor {
	p.notFound = handler
	return p
}

// WithNotificationBus устанавливает шину уведомлений жизненного цикла
func (p *Processor) WithNotificationBus(bus events.Bus) *Processor {
	p.bus = bus
	return p
}

// WithMetrics устанавливает сборщик метрик
func (p *Processor) WithMetrics(m *metrics.Metrics) *Processor {
	p.metrics = m
	return p
}

// Name возвращает имя процессора
func (p *Processor) Name() string {
	return p.name
}

// Machine возвращает автомат процессора
func (p *Processor) Machine() *StateMachine {
	return p.machine
}

// Process обрабатывает одно входящее сообщение.
//
// Ошибки корреляции, хранилища и обработчиков поднимаются вызывающему
// без оборачивания: политику retry/dead-letter применяет транспорт.
// Немаршрутизируемые события и события для терминальных экземпляров
// считаются успешными исходами: они фиксируются уведомлением и метрикой,
// но не являются сбоем обработки.
func (p *Processor) Process(ctx context.Context, mctx MessageContext) error {
	event := mctx.Event()
	started := time.Now()

	if p.metrics != nil {
		p.metrics.DispatchStarted(ctx)
		defer p.metrics.DispatchFinished(ctx)
	}

	correlationID, err := p.machine.ExtractCorrelationID(event)
	if err != nil {
		return err
	}

	instance, err := p.repo.Find(ctx, correlationID)
	if err != nil {
		return err
	}

	isNew := false
	if instance == nil {
		if !p.machine.CanStartSaga(event.Name()) {
			if p.notFound != nil {
				p.notFound(ctx, event)
			}
			p.notify(ctx, NewUnroutableNotification(correlationID, event.Name()))
			if p.metrics != nil {
				p.metrics.RecordEventUnroutable(ctx, event.Name())
			}
			return nil
		}

		instance, err = p.repo.Create(ctx, correlationID, p.machine.InitialState(), p.newData())
		if err != nil {
			return err
		}
		isNew = true
	}

	if instance.IsCompleted() || instance.IsFaulted() {
		p.notify(ctx, NewEventUnhandledNotification(correlationID, event.Name(), instance.CurrentState))
		if p.metrics != nil {
			p.metrics.RecordTerminalIgnored(ctx, event.Name())
		}
		return nil
	}

	fromState := instance.CurrentState
	handled, dispatchErr := p.machine.ProcessEvent(ctx, instance, event, mctx)
	if dispatchErr != nil {
		// Отмена контекста не переводит экземпляр в faulted: сообщение
		// будет доставлено транспортом повторно.
		if errors.Is(dispatchErr, context.Canceled) || errors.Is(dispatchErr, context.DeadlineExceeded) {
			return dispatchErr
		}

		if !instance.IsFaulted() {
			instance.MarkFaulted(dispatchErr)
		}
		if saveErr := p.repo.Save(ctx, instance); saveErr != nil {
			return fmt.Errorf("handler failed: %w, saving faulted instance also failed: %w", dispatchErr, saveErr)
		}
		p.notify(ctx, NewFaultedNotification(correlationID, event.Name(), instance.ErrorMessage))
		if p.metrics != nil {
			p.metrics.RecordSagaFaulted(ctx, p.name)
		}
		return dispatchErr
	}

	if !handled {
		p.notify(ctx, NewEventUnhandledNotification(correlationID, event.Name(), instance.CurrentState))
		if p.metrics != nil {
			p.metrics.RecordEventUnhandled(ctx, event.Name(), instance.CurrentState)
		}
		return nil
	}

	if err := p.repo.Save(ctx, instance); err != nil {
		return err
	}

	if isNew {
		p.notify(ctx, NewInstanceCreatedNotification(correlationID, p.machine.InitialState(), event.Name()))
		if p.metrics != nil {
			p.metrics.RecordSagaStarted(ctx, p.name)
		}
	}
	if instance.CurrentState != fromState {
		p.notify(ctx, NewTransitionedNotification(correlationID, fromState, instance.CurrentState, event.Name(), instance.Version))
	}
	if instance.IsCompleted() {
		p.notify(ctx, NewCompletedNotification(correlationID, instance.CurrentState))
		if p.metrics != nil {
			p.metrics.RecordSagaCompleted(ctx, p.name)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordEventDispatched(ctx, event.Name(), time.Since(started))
	}

	return nil
}

// notify публикует уведомление, если шина настроена.
// Ошибки уведомлений не влияют на исход обработки сообщения.
func (p *Processor) notify(ctx context.Context, notification events.Notification) {
	if p.bus == nil {
		return
	}
	_ = p.bus.Publish(ctx, notification)
}
