// Package container предоставляет DI контейнер для управления зависимостями.
package container

import (
	"fmt"
	"sync"
)

// DependencyScope область видимости зависимостей
type DependencyScope string

const (
	ScopeSingleton DependencyScope = "singleton"
	ScopeTransient DependencyScope = "transient"
)

// Factory фабрика transient-зависимости
type Factory func(c *Container) (interface{}, error)

// Container контейнер зависимостей.
// Scope-контейнеры, созданные через BeginScope, наследуют singleton
// зависимости родителя и используются как request-scoped резолвер
// на время обработки одного сообщения.
type Container struct {
	mu           sync.RWMutex
	parent       *Container
	dependencies map[string]interface{}
	factories    map[string]Factory
}

// NewContainer создает новый контейнер
func NewContainer() *Container {
	return &Container{
		dependencies: make(map[string]interface{}),
		factories:    make(map[string]Factory),
	}
}

// BeginScope создает дочерний контейнер для одной обработки.
// Зависимости, зарегистрированные в scope, не видны родителю.
func (c *Container) BeginScope() *Container {
	return &Container{
		parent:       c,
		dependencies: make(map[string]interface{}),
		factories:    make(map[string]Factory),
	}
}

// Set регистрирует singleton-зависимость
func Set[T any](c *Container, key string, value T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.dependencies[key]; exists {
		return fmt.Errorf("dependency %s already registered", key)
	}
	c.dependencies[key] = value
	return nil
}

// SetFactory регистрирует фабрику transient-зависимости
func (c *Container) SetFactory(key string, factory Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[key]; exists {
		return fmt.Errorf("factory %s already registered", key)
	}
	c.factories[key] = factory
	return nil
}

// Get получает зависимость по ключу, поднимаясь по цепочке scope-ов
func Get[T any](c *Container, key string) (T, error) {
	var zero T

	for current := c; current != nil; current = current.parent {
		current.mu.RLock()
		dep, exists := current.dependencies[key]
		factory, hasFactory := current.factories[key]
		current.mu.RUnlock()

		if exists {
			typed, ok := dep.(T)
			if !ok {
				return zero, fmt.Errorf("dependency %s has wrong type", key)
			}
			return typed, nil
		}
		if hasFactory {
			created, err := factory(c)
			if err != nil {
				return zero, fmt.Errorf("factory %s failed: %w", key, err)
			}
			typed, ok := created.(T)
			if !ok {
				return zero, fmt.Errorf("dependency %s has wrong type", key)
			}
			return typed, nil
		}
	}

	return zero, fmt.Errorf("dependency %s not found", key)
}

// Has проверяет наличие зависимости или фабрики
func (c *Container) Has(key string) bool {
	for current := c; current != nil; current = current.parent {
		current.mu.RLock()
		_, exists := current.dependencies[key]
		_, hasFactory := current.factories[key]
		current.mu.RUnlock()
		if exists || hasFactory {
			return true
		}
	}
	return false
}
