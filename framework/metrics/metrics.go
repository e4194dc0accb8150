// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics сборщик метрик движка саг
type Metrics struct {
	meter             metric.Meter
	sagasStarted      metric.Int64Counter
	sagasCompleted    metric.Int64Counter
	sagasFaulted      metric.Int64Counter
	eventsDispatched  metric.Int64Counter
	eventsUnhandled   metric.Int64Counter
	eventsUnroutable  metric.Int64Counter
	terminalIgnored   metric.Int64Counter
	dispatchDuration  metric.Float64Histogram
	activeDispatches  metric.Int64UpDownCounter
	transportOps      metric.Int64Counter
}

// NewMetrics создает новый сборщик метрик
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("automat")

	sagasStarted, err := meter.Int64Counter(
		"sagas_started_total",
		metric.WithDescription("Total number of saga instances created"),
	)
	if err != nil {
		return nil, err
	}

	sagasCompleted, err := meter.Int64Counter(
		"sagas_completed_total",
		metric.WithDescription("Total number of saga instances completed"),
	)
	if err != nil {
		return nil, err
	}

	sagasFaulted, err := meter.Int64Counter(
		"sagas_faulted_total",
		metric.WithDescription("Total number of saga instances faulted"),
	)
	if err != nil {
		return nil, err
	}

	eventsDispatched, err := meter.Int64Counter(
		"events_dispatched_total",
		metric.WithDescription("Total number of events dispatched to saga handlers"),
	)
	if err != nil {
		return nil, err
	}

	eventsUnhandled, err := meter.Int64Counter(
		"events_unhandled_total",
		metric.WithDescription("Total number of events with no handler for the current state"),
	)
	if err != nil {
		return nil, err
	}

	eventsUnroutable, err := meter.Int64Counter(
		"events_unroutable_total",
		metric.WithDescription("Total number of events that could not correlate or start a saga"),
	)
	if err != nil {
		return nil, err
	}

	terminalIgnored, err := meter.Int64Counter(
		"events_terminal_ignored_total",
		metric.WithDescription("Total number of events ignored because the instance is terminal"),
	)
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram(
		"dispatch_duration_seconds",
		metric.WithDescription("Event dispatch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	activeDispatches, err := meter.Int64UpDownCounter(
		"active_dispatches",
		metric.WithDescription("Number of messages currently being processed"),
	)
	if err != nil {
		return nil, err
	}

	transportOps, err := meter.Int64Counter(
		"transport_operations_total",
		metric.WithDescription("Total number of message bus operations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:            meter,
		sagasStarted:     sagasStarted,
		sagasCompleted:   sagasCompleted,
		sagasFaulted:     sagasFaulted,
		eventsDispatched: eventsDispatched,
		eventsUnhandled:  eventsUnhandled,
		eventsUnroutable: eventsUnroutable,
		terminalIgnored:  terminalIgnored,
		dispatchDuration: dispatchDuration,
		activeDispatches: activeDispatches,
		transportOps:     transportOps,
	}, nil
}

// RecordSagaStarted фиксирует создание нового экземпляра саги
func (m *Metrics) RecordSagaStarted(ctx context.Context, machineName string) {
	m.sagasStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("machine", machineName)))
}

// RecordSagaCompleted фиксирует завершение экземпляра саги
func (m *Metrics) RecordSagaCompleted(ctx context.Context, machineName string) {
	m.sagasCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("machine", machineName)))
}

// RecordSagaFaulted фиксирует перевод экземпляра саги в faulted
func (m *Metrics) RecordSagaFaulted(ctx context.Context, machineName string) {
	m.sagasFaulted.Add(ctx, 1, metric.WithAttributes(attribute.String("machine", machineName)))
}

// RecordEventDispatched фиксирует успешную диспетчеризацию события
func (m *Metrics) RecordEventDispatched(ctx context.Context, eventName string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("event", eventName))
	m.eventsDispatched.Add(ctx, 1, attrs)
	m.dispatchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordEventUnhandled фиксирует событие без обработчика для текущего состояния
func (m *Metrics) RecordEventUnhandled(ctx context.Context, eventName, state string) {
	m.eventsUnhandled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventName),
		attribute.String("state", state),
	))
}

// RecordEventUnroutable фиксирует событие, не нашедшее и не начавшее сагу
func (m *Metrics) RecordEventUnroutable(ctx context.Context, eventName string) {
	m.eventsUnroutable.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventName)))
}

// RecordTerminalIgnored фиксирует событие, проигнорированное терминальным экземпляром
func (m *Metrics) RecordTerminalIgnored(ctx context.Context, eventName string) {
	m.terminalIgnored.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventName)))
}

// RecordTransport фиксирует операцию message bus
func (m *Metrics) RecordTransport(ctx context.Context, adapter string, duration time.Duration, success bool) {
	m.transportOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("adapter", adapter),
		attribute.Bool("success", success),
	))
}

// DispatchStarted отмечает начало обработки сообщения
func (m *Metrics) DispatchStarted(ctx context.Context) {
	m.activeDispatches.Add(ctx, 1)
}

// DispatchFinished отмечает конец обработки сообщения
func (m *Metrics) DispatchFinished(ctx context.Context) {
	m.activeDispatches.Add(ctx, -1)
}
