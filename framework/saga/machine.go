// Package saga предоставляет декларативный конечный автомат саги
// и движок диспетчеризации событий.
package saga

import (
	"context"
	"fmt"

	"github.com/akriventsev/automat/framework/core"
)

// CorrelationExtractor извлекает correlation ID из события.
// Экстракторы регистрируются явно, по имени события, на этапе
// построения автомата — runtime-интроспекция payload не используется.
type CorrelationExtractor func(event Event) (string, error)

// StateMachine декларативный реестр состояний и обработчиков плюс
// движок диспетчеризации. После построения автомат неизменяем и
// безопасен для конкурентного чтения из любого числа обработок.
type StateMachine struct {
	initialState    string
	states          map[string]struct{}
	terminal        map[string]struct{}
	initialHandlers map[string][]Handler            // event name -> handlers
	stateHandlers   map[string]map[string][]Handler // state -> event name -> handlers
	extractors      map[string]CorrelationExtractor
}

// NewStateMachine создает автомат с указанным начальным состоянием
func NewStateMachine(initialState string) *StateMachine {
	m := &StateMachine{
		initialState:    initialState,
		states:          make(map[string]struct{}),
		terminal:        make(map[string]struct{}),
		initialHandlers: make(map[string][]Handler),
		stateHandlers:   make(map[string]map[string][]Handler),
		extractors:      make(map[string]CorrelationExtractor),
	}
	m.DeclareState(initialState)
	return m
}

// InitialState возвращает имя начального состояния
func (m *StateMachine) InitialState() string {
	return m.initialState
}

// DeclareState регистрирует состояние. Идемпотентно.
func (m *StateMachine) DeclareState(name string) {
	m.states[name] = struct{}{}
}

// HasState проверяет, объявлено ли состояние
func (m *StateMachine) HasState(name string) bool {
	_, ok := m.states[name]
	return ok
}

// MarkTerminal помечает состояние завершающим
func (m *StateMachine) MarkTerminal(name string) {
	m.DeclareState(name)
	m.terminal[name] = struct{}{}
}

// IsTerminalState проверяет, является ли состояние завершающим
func (m *StateMachine) IsTerminalState(name string) bool {
	_, ok := m.terminal[name]
	return ok
}

// DeclareInitialHandler регистрирует обработчик, способный начать новую
// сагу по событию eventName. Обработчики одного события выполняются
// в порядке регистрации.
func (m *StateMachine) DeclareInitialHandler(eventName string, handler Handler) {
	if handler.targetState != "" {
		m.DeclareState(handler.targetState)
	}
	m.initialHandlers[eventName] = append(m.initialHandlers[eventName], handler)
}

// DeclareStateHandler регистрирует обработчик события eventName для
// состояния stateName. Обработчики одного события выполняются в порядке
// регистрации, и выполняются все, чей guard пропустил событие, а не
// только первый подошедший.
func (m *StateMachine) DeclareStateHandler(stateName, eventName string, handler Handler) {
	m.DeclareState(stateName)
	if handler.targetState != "" {
		m.DeclareState(handler.targetState)
	}
	if m.stateHandlers[stateName] == nil {
		m.stateHandlers[stateName] = make(map[string][]Handler)
	}
	m.stateHandlers[stateName][eventName] = append(m.stateHandlers[stateName][eventName], handler)
}

// RegisterExtractor регистрирует экстрактор correlation ID для события
func (m *StateMachine) RegisterExtractor(eventName string, extractor CorrelationExtractor) {
	m.extractors[eventName] = extractor
}

// CanStartSaga проверяет, может ли событие начать новую сагу
func (m *StateMachine) CanStartSaga(eventName string) bool {
	return len(m.initialHandlers[eventName]) > 0
}

// ExtractCorrelationID извлекает correlation ID из события: сначала
// через зарегистрированный экстрактор, затем через payload, реализующий
// Correlatable.
func (m *StateMachine) ExtractCorrelationID(event Event) (string, error) {
	if extractor, ok := m.extractors[event.Name()]; ok {
		id, err := extractor(event)
		if err != nil {
			return "", core.Wrap(err, core.ErrCorrelationFailed,
				fmt.Sprintf("extractor for event %s failed", event.Name()))
		}
		if id == "" {
			return "", core.NewError(core.ErrCorrelationFailed,
				fmt.Sprintf("extractor for event %s returned empty correlation id", event.Name()))
		}
		return id, nil
	}

	if c, ok := event.Payload().(Correlatable); ok {
		if id := c.CorrelationID(); id != "" {
			return id, nil
		}
	}

	return "", core.NewError(core.ErrCorrelationFailed,
		fmt.Sprintf("no correlation id found on event %s", event.Name()))
}

// handlersFor возвращает набор обработчиков для пары (состояние, событие).
// Для начального состояния используется карта initial-обработчиков.
func (m *StateMachine) handlersFor(state, eventName string) []Handler {
	if state == m.initialState {
		return m.initialHandlers[eventName]
	}
	if byEvent, ok := m.stateHandlers[state]; ok {
		return byEvent[eventName]
	}
	return nil
}

// ProcessEvent находит и выполняет обработчики события для экземпляра.
//
// Возвращает handled=false без ошибки, если для пары (состояние, событие)
// не зарегистрировано ни одного обработчика — это штатный исход, а не сбой.
// Ошибка действия переводит экземпляр в faulted, прерывает оставшиеся
// обработчики и возвращается вызывающему без оборачивания.
func (m *StateMachine) ProcessEvent(ctx context.Context, instance *Instance, event Event, mctx MessageContext) (bool, error) {
	if !instance.IsActive() {
		return false, nil
	}

	handlers := m.handlersFor(instance.CurrentState, event.Name())
	if len(handlers) == 0 {
		return false, nil
	}

	for _, handler := range handlers {
		// После отмены контекста новая работа не начинается;
		// уже примененные изменения не откатываются.
		if err := ctx.Err(); err != nil {
			return true, err
		}

		if !handler.matches(instance, event) {
			continue
		}

		if handler.action != nil {
			if err := handler.action(ctx, instance, event, mctx); err != nil {
				instance.MarkFaulted(err)
				return true, err
			}
		}

		if handler.targetState != "" {
			instance.ApplyTransition(handler.targetState, fmt.Sprintf("on %s", event.Name()))
		}

		if handler.finalize && !instance.IsCompleted() {
			instance.MarkCompleted(ReasonFinalized)
		}
	}

	if m.IsTerminalState(instance.CurrentState) && !instance.IsCompleted() {
		instance.MarkCompleted(ReasonTerminalState)
	}

	return true, nil
}
