// Package saga предоставляет fluent API builder для декларативного
// описания автомата саги.
package saga

import (
	"fmt"
)

// MachineBuilder построитель автомата саги
type MachineBuilder struct {
	initialState string
	states       []string
	terminal     []string
	initially    []eventBinding
	during       []stateBinding
	extractors   map[string]CorrelationExtractor
}

type eventBinding struct {
	eventName string
	handler   Handler
}

type stateBinding struct {
	stateName string
	eventName string
	handler   Handler
}

// NewMachineBuilder создает новый построитель автомата
func NewMachineBuilder(initialState string) *MachineBuilder {
	return &MachineBuilder{
		initialState: initialState,
		extractors:   make(map[string]CorrelationExtractor),
	}
}

// DeclareState объявляет состояние
func (b *MachineBuilder) DeclareState(name string) *MachineBuilder {
	b.states = append(b.states, name)
	return b
}

// Initially регистрирует обработчик, способный начать новую сагу
func (b *MachineBuilder) Initially(eventName string, handler Handler) *MachineBuilder {
	b.initially = append(b.initially, eventBinding{eventName: eventName, handler: handler})
	return b
}

// During регистрирует обработчик события для состояния
func (b *MachineBuilder) During(stateName, eventName string, handler Handler) *MachineBuilder {
	b.during = append(b.during, stateBinding{stateName: stateName, eventName: eventName, handler: handler})
	return b
}

// MarkTerminal помечает состояние завершающим
func (b *MachineBuilder) MarkTerminal(stateName string) *MachineBuilder {
	b.terminal = append(b.terminal, stateName)
	return b
}

// WithExtractor регистрирует экстрактор correlation ID для события
func (b *MachineBuilder) WithExtractor(eventName string, extractor CorrelationExtractor) *MachineBuilder {
	b.extractors[eventName] = extractor
	return b
}

// Build строит неизменяемый автомат
func (b *MachineBuilder) Build() (*StateMachine, error) {
	// Валидация
	if b.initialState == "" {
		return nil, fmt.Errorf("initial state name cannot be empty")
	}
	if len(b.initially) == 0 {
		return nil, fmt.Errorf("machine must have at least one initial handler")
	}
	for _, binding := range b.initially {
		if binding.eventName == "" {
			return nil, fmt.Errorf("initial handler event name cannot be empty")
		}
	}
	for _, binding := range b.during {
		if binding.stateName == "" || binding.eventName == "" {
			return nil, fmt.Errorf("state handler requires state and event names")
		}
		if binding.stateName == b.initialState {
			return nil, fmt.Errorf("use Initially for handlers of the initial state %s", b.initialState)
		}
	}

	machine := NewStateMachine(b.initialState)
	for _, name := range b.states {
		machine.DeclareState(name)
	}
	for _, binding := range b.initially {
		machine.DeclareInitialHandler(binding.eventName, binding.handler)
	}
	for _, binding := range b.during {
		machine.DeclareStateHandler(binding.stateName, binding.eventName, binding.handler)
	}
	for _, name := range b.terminal {
		machine.MarkTerminal(name)
	}
	for eventName, extractor := range b.extractors {
		machine.RegisterExtractor(eventName, extractor)
	}

	return machine, nil
}
