// Package saga предоставляет уведомления о жизненном цикле экземпляров.
package saga

import (
	"github.com/akriventsev/automat/framework/events"
)

// Типы уведомлений жизненного цикла
const (
	NotificationInstanceCreated = "SagaInstanceCreated"
	NotificationTransitioned    = "SagaTransitioned"
	NotificationCompleted       = "SagaCompleted"
	NotificationFaulted         = "SagaFaulted"
	NotificationEventUnhandled  = "SagaEventUnhandled"
	NotificationUnroutable      = "SagaEventUnroutable"
)

// InstanceCreatedNotification уведомление о создании экземпляра
type InstanceCreatedNotification struct {
	*events.BaseNotification
	InitialState string
	StartedBy    string // имя события, начавшего сагу
}

// NewInstanceCreatedNotification создает уведомление о создании экземпляра
func NewInstanceCreatedNotification(correlationID, initialState, startedBy string) *InstanceCreatedNotification {
	return &InstanceCreatedNotification{
		BaseNotification: events.NewBaseNotification(NotificationInstanceCreated, correlationID),
		InitialState:     initialState,
		StartedBy:        startedBy,
	}
}

// TransitionedNotification уведомление о примененном переходе
type TransitionedNotification struct {
	*events.BaseNotification
	FromState string
	ToState   string
	EventName string
	Version   int64
}

// NewTransitionedNotification создает уведомление о переходе
func NewTransitionedNotification(correlationID, fromState, toState, eventName string, version int64) *TransitionedNotification {
	return &TransitionedNotification{
		BaseNotification: events.NewBaseNotification(NotificationTransitioned, correlationID),
		FromState:        fromState,
		ToState:          toState,
		EventName:        eventName,
		Version:          version,
	}
}

// CompletedNotification уведомление о завершении экземпляра
type CompletedNotification struct {
	*events.BaseNotification
	FinalState string
}

// NewCompletedNotification создает уведомление о завершении
func NewCompletedNotification(correlationID, finalState string) *CompletedNotification {
	return &CompletedNotification{
		BaseNotification: events.NewBaseNotification(NotificationCompleted, correlationID),
		FinalState:       finalState,
	}
}

// FaultedNotification уведомление о переводе экземпляра в faulted
type FaultedNotification struct {
	*events.BaseNotification
	EventName string
	Error     string
}

// NewFaultedNotification создает уведомление о сбое
func NewFaultedNotification(correlationID, eventName, errorMessage string) *FaultedNotification {
	return &FaultedNotification{
		BaseNotification: events.NewBaseNotification(NotificationFaulted, correlationID),
		EventName:        eventName,
		Error:            errorMessage,
	}
}

// EventUnhandledNotification уведомление о событии без обработчика
type EventUnhandledNotification struct {
	*events.BaseNotification
	EventName string
	State     string
}

// NewEventUnhandledNotification создает уведомление о необработанном событии
func NewEventUnhandledNotification(correlationID, eventName, state string) *EventUnhandledNotification {
	return &EventUnhandledNotification{
		BaseNotification: events.NewBaseNotification(NotificationEventUnhandled, correlationID),
		EventName:        eventName,
		State:            state,
	}
}

// UnroutableNotification уведомление о событии, не нашедшем и не начавшем сагу
type UnroutableNotification struct {
	*events.BaseNotification
	EventName string
}

// NewUnroutableNotification создает уведомление о немаршрутизируемом событии
func NewUnroutableNotification(correlationID, eventName string) *UnroutableNotification {
	return &UnroutableNotification{
		BaseNotification: events.NewBaseNotification(NotificationUnroutable, correlationID),
		EventName:        eventName,
	}
}
