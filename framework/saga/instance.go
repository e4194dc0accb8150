// Package saga предоставляет сущность экземпляра саги и ее жизненный цикл.
package saga

import (
	"time"
)

// Зарезервированные причины переходов в истории экземпляра
const (
	ReasonFinalized     = "Finalized"
	ReasonTerminalState = "TerminalState"
	ReasonFaulted       = "Faulted"
)

// StateTransition запись одного перехода в истории экземпляра
type StateTransition struct {
	FromState string    `json:"from_state" bson:"from_state"`
	ToState   string    `json:"to_state" bson:"to_state"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Reason    string    `json:"reason" bson:"reason"`
}

// ErrorEntry запись в журнале ошибок экземпляра
type ErrorEntry struct {
	Message    string    `json:"message" bson:"message"`
	OccurredAt time.Time `json:"occurred_at" bson:"occurred_at"`
}

// Instance представляет один экземпляр долгоживущей бизнес-транзакции.
//
// Экземпляр не содержит собственной синхронизации: движок и процессор
// обрабатывают ровно одно сообщение за вызов, и весь изменяемый state
// живет в значении, переданном через вызов. Семантику "один писатель
// на correlation ID" обеспечивает транспорт либо optimistic-concurrency
// проверка Version на стороне репозитория.
type Instance struct {
	CorrelationID     string                 `json:"correlation_id" bson:"correlation_id"`
	CurrentState      string                 `json:"current_state" bson:"current_state"`
	Data              interface{}            `json:"data" bson:"data"`
	Version           int64                  `json:"version" bson:"version"`
	CreatedAt         time.Time              `json:"created_at" bson:"created_at"`
	LastUpdatedAt     time.Time              `json:"last_updated_at" bson:"last_updated_at"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	FaultedAt         *time.Time             `json:"faulted_at,omitempty" bson:"faulted_at,omitempty"`
	ErrorMessage      string                 `json:"error_message,omitempty" bson:"error_message,omitempty"`
	Errors            []ErrorEntry           `json:"errors,omitempty" bson:"errors,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	ScheduledTimeouts []string               `json:"scheduled_timeouts,omitempty" bson:"scheduled_timeouts,omitempty"`
	StateHistory      []StateTransition      `json:"state_history" bson:"state_history"`

	// persistedVersion версия, зафиксированная хранилищем при последней
	// загрузке или сохранении. Репозитории сравнивают ее с версией строки
	// при Save для обнаружения lost update.
	persistedVersion int64
}

// NewInstance создает новый экземпляр саги в начальном состоянии
func NewInstance(correlationID, initialState string, data interface{}) *Instance {
	now := time.Now()
	return &Instance{
		CorrelationID: correlationID,
		CurrentState:  initialState,
		Data:          data,
		Version:       0,
		CreatedAt:     now,
		LastUpdatedAt: now,
		Metadata:      make(map[string]interface{}),
		StateHistory:  make([]StateTransition, 0),
	}
}

// PersistedVersion возвращает версию последней синхронизации с хранилищем
func (i *Instance) PersistedVersion() int64 {
	return i.persistedVersion
}

// SyncPersisted отмечает текущую версию как сохраненную.
// Вызывается репозиторием после успешных Find, Create и Save.
func (i *Instance) SyncPersisted() {
	i.persistedVersion = i.Version
}

// IsCompleted проверяет, завершен ли экземпляр
func (i *Instance) IsCompleted() bool {
	return i.CompletedAt != nil
}

// IsFaulted проверяет, находится ли экземпляр в состоянии сбоя
func (i *Instance) IsFaulted() bool {
	return i.FaultedAt != nil
}

// IsActive проверяет, принимает ли экземпляр дальнейшие события
func (i *Instance) IsActive() bool {
	return !i.IsCompleted() && !i.IsFaulted()
}

// ApplyTransition применяет переход в новое состояние.
// Каждый примененный переход увеличивает Version ровно на единицу
// и добавляет ровно одну запись в StateHistory.
func (i *Instance) ApplyTransition(toState, reason string) {
	now := time.Now()
	i.StateHistory = append(i.StateHistory, StateTransition{
		FromState: i.CurrentState,
		ToState:   toState,
		Timestamp: now,
		Reason:    reason,
	})
	i.CurrentState = toState
	i.Version++
	i.LastUpdatedAt = now
}

// MarkCompleted помечает экземпляр завершенным.
// Идемпотентно: повторный вызов не изменяет экземпляр.
// CurrentState не меняется, поэтому цепочка FromState/ToState в истории
// остается согласованной.
func (i *Instance) MarkCompleted(reason string) {
	if i.IsCompleted() {
		return
	}
	now := time.Now()
	i.StateHistory = append(i.StateHistory, StateTransition{
		FromState: i.CurrentState,
		ToState:   i.CurrentState,
		Timestamp: now,
		Reason:    reason,
	})
	i.Version++
	i.CompletedAt = &now
	i.LastUpdatedAt = now
}

// MarkFaulted помечает экземпляр сбойным и дописывает ошибку в журнал.
// FaultedAt устанавливается только при первом вызове, журнал ошибок
// append-only.
func (i *Instance) MarkFaulted(err error) {
	if err == nil {
		return
	}
	now := time.Now()
	i.Errors = append(i.Errors, ErrorEntry{
		Message:    err.Error(),
		OccurredAt: now,
	})
	i.ErrorMessage = err.Error()
	if i.FaultedAt == nil {
		i.FaultedAt = &now
		i.StateHistory = append(i.StateHistory, StateTransition{
			FromState: i.CurrentState,
			ToState:   i.CurrentState,
			Timestamp: now,
			Reason:    ReasonFaulted,
		})
		i.Version++
	}
	i.LastUpdatedAt = now
}

// SetMetadata устанавливает значение в side-channel метаданных экземпляра.
// Метаданные не участвуют в диспетчеризации.
func (i *Instance) SetMetadata(key string, value interface{}) {
	if i.Metadata == nil {
		i.Metadata = make(map[string]interface{})
	}
	i.Metadata[key] = value
	i.LastUpdatedAt = time.Now()
}

// GetMetadata получает значение из метаданных экземпляра
func (i *Instance) GetMetadata(key string) (interface{}, bool) {
	val, ok := i.Metadata[key]
	return val, ok
}

// TrackTimeout регистрирует идентификатор запрошенного таймаута.
// Само планирование выполняет внешний TimeoutScheduler.
func (i *Instance) TrackTimeout(timeoutID string) {
	for _, id := range i.ScheduledTimeouts {
		if id == timeoutID {
			return
		}
	}
	i.ScheduledTimeouts = append(i.ScheduledTimeouts, timeoutID)
}

// UntrackTimeout удаляет идентификатор таймаута из отслеживаемых
func (i *Instance) UntrackTimeout(timeoutID string) {
	for idx, id := range i.ScheduledTimeouts {
		if id == timeoutID {
			i.ScheduledTimeouts = append(i.ScheduledTimeouts[:idx], i.ScheduledTimeouts[idx+1:]...)
			return
		}
	}
}
