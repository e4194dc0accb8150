// Package automat предоставляет движок саг на основе конечного автомата,
// управляемый сообщениями, для координации долгоживущих бизнес-транзакций.
//
// Основные возможности:
//   - Декларативное описание машины состояний (Initially/During/Finalize)
//   - Корреляция событий с экземплярами саг по строковому ID
//   - Оптимистичная конкуренция через версию экземпляра
//   - Хранилища: in-memory, PostgreSQL (JSONB), MongoDB
//   - Message bus адаптеры: in-memory, NATS, Kafka, Redis Streams
//   - Уведомления жизненного цикла и метрики на основе OpenTelemetry
//
// Пример использования:
//
//	rt := automat.New()
//	rt.Register(busAdapter)
//	rt.Register(receiver)
//	if err := rt.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Stop(ctx)
package automat

import (
	"context"
	"fmt"

	"github.com/akriventsev/automat/framework/core"
)

// Version представляет версию фреймворка
const (
	Version = "1.0.0"
	Major   = 1
	Minor   = 0
	Patch   = 0
)

// Runtime управляет жизненным циклом компонентов приложения.
// Компоненты запускаются в порядке регистрации и останавливаются
// в обратном порядке.
type Runtime struct {
	components []core.Component
	byName     map[string]core.Component
	started    []core.Lifecycle
}

// New создает новый Runtime
func New() *Runtime {
	return &Runtime{
		byName: make(map[string]core.Component),
	}
}

// Register регистрирует компонент
func (r *Runtime) Register(component core.Component) error {
	if _, exists := r.byName[component.Name()]; exists {
		return fmt.Errorf("component %s already registered", component.Name())
	}
	r.components = append(r.components, component)
	r.byName[component.Name()] = component
	return nil
}

// Component возвращает компонент по имени
func (r *Runtime) Component(name string) (core.Component, error) {
	component, exists := r.byName[name]
	if !exists {
		return nil, fmt.Errorf("component %s not found", name)
	}
	return component, nil
}

// Start запускает все компоненты, реализующие core.Lifecycle,
// в порядке регистрации. При ошибке уже запущенные компоненты
// останавливаются в обратном порядке.
func (r *Runtime) Start(ctx context.Context) error {
	for _, component := range r.components {
		lifecycle, ok := component.(core.Lifecycle)
		if !ok {
			continue
		}
		if err := lifecycle.Start(ctx); err != nil {
			stopErr := r.Stop(ctx)
			if stopErr != nil {
				return fmt.Errorf("failed to start component %s: %w (rollback also failed: %v)", component.Name(), err, stopErr)
			}
			return fmt.Errorf("failed to start component %s: %w", component.Name(), err)
		}
		r.started = append(r.started, lifecycle)
	}
	return nil
}

// Stop останавливает запущенные компоненты в обратном порядке.
// Возвращается первая встреченная ошибка, остановка продолжается.
func (r *Runtime) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(r.started) - 1; i >= 0; i-- {
		if err := r.started[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.started = nil
	return firstErr
}
