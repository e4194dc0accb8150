// Package repository предоставляет адаптеры хранилищ экземпляров саг.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/saga"
)

// DataFactory создает пустое значение бизнес-payload для десериализации
type DataFactory func() interface{}

// InMemoryRepository хранилище экземпляров саг в памяти.
// Экземпляры хранятся в сериализованном виде, поэтому Find возвращает
// независимую копию: мутации незавершенной обработки не видны другим
// читателям до Save. Save выполняет optimistic-concurrency проверку
// по версии.
type InMemoryRepository struct {
	mu       sync.RWMutex
	rows     map[string]inMemoryRow
	newData  DataFactory
}

type inMemoryRow struct {
	payload []byte
	version int64
}

// NewInMemoryRepository создает новое in-memory хранилище
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rows: make(map[string]inMemoryRow),
	}
}

// WithDataFactory устанавливает фабрику типизированного бизнес-payload.
// Без фабрики Data загружается как map[string]interface{}.
func (r *InMemoryRepository) WithDataFactory(factory DataFactory) *InMemoryRepository {
	r.newData = factory
	return r
}

// Name возвращает имя компонента (реализация core.Component)
func (r *InMemoryRepository) Name() string {
	return "inmemory-repository"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *InMemoryRepository) Type() core.ComponentType {
	return core.ComponentTypeStore
}

// Find находит экземпляр по correlation ID.
// Возвращает nil без ошибки, если экземпляр не найден.
func (r *InMemoryRepository) Find(ctx context.Context, correlationID string) (*saga.Instance, error) {
	r.mu.RLock()
	row, exists := r.rows[correlationID]
	r.mu.RUnlock()
	if !exists {
		return nil, nil
	}

	instance, err := r.decode(row.payload)
	if err != nil {
		return nil, err
	}
	instance.SyncPersisted()
	return instance, nil
}

// Create создает новый экземпляр в начальном состоянии
func (r *InMemoryRepository) Create(ctx context.Context, correlationID, initialState string, data interface{}) (*saga.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[correlationID]; exists {
		return nil, core.NewError(core.ErrAlreadyExists,
			fmt.Sprintf("saga instance %s already exists", correlationID))
	}

	instance := saga.NewInstance(correlationID, initialState, data)
	payload, err := json.Marshal(instance)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal instance %s: %w", correlationID, err)
	}

	r.rows[correlationID] = inMemoryRow{payload: payload, version: instance.Version}
	instance.SyncPersisted()
	return instance, nil
}

// Save сохраняет экземпляр. Если версия строки изменилась со времени
// загрузки экземпляра, возвращается ошибка с кодом ErrVersionConflict.
func (r *InMemoryRepository) Save(ctx context.Context, instance *saga.Instance) error {
	payload, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.CorrelationID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, exists := r.rows[instance.CorrelationID]
	if !exists {
		return core.NewError(core.ErrNotFound,
			fmt.Sprintf("saga instance %s not found", instance.CorrelationID))
	}
	if row.version != instance.PersistedVersion() {
		return core.NewError(core.ErrVersionConflict,
			fmt.Sprintf("saga instance %s was modified concurrently: stored version %d, expected %d",
				instance.CorrelationID, row.version, instance.PersistedVersion()))
	}

	r.rows[instance.CorrelationID] = inMemoryRow{payload: payload, version: instance.Version}
	instance.SyncPersisted()
	return nil
}

// Count возвращает количество хранимых экземпляров
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// decode восстанавливает экземпляр из сериализованного представления
func (r *InMemoryRepository) decode(payload []byte) (*saga.Instance, error) {
	var instance saga.Instance
	if err := json.Unmarshal(payload, &instance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}

	if r.newData != nil && instance.Data != nil {
		raw, err := json.Marshal(instance.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to remarshal instance data: %w", err)
		}
		typed := r.newData()
		if err := json.Unmarshal(raw, typed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instance data: %w", err)
		}
		instance.Data = typed
	}

	return &instance, nil
}
