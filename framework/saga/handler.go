// Package saga предоставляет дескрипторы обработчиков событий.
package saga

import (
	"context"
)

// Guard предикат, решающий, применим ли обработчик к событию
type Guard func(instance *Instance, event Event) bool

// Action побочное действие обработчика (публикация ответных сообщений,
// мутация Data и т.п.). Ошибка действия переводит экземпляр в faulted.
type Action func(ctx context.Context, instance *Instance, event Event, mctx MessageContext) error

// Handler неизменяемый дескриптор обработчика события.
// Собирается через HandlerBuilder и после Build не модифицируется,
// поэтому реестр можно безопасно читать из любого числа горутин.
type Handler struct {
	guard       Guard
	action      Action
	targetState string
	finalize    bool
}

// TargetState возвращает целевое состояние перехода ("" = без перехода)
func (h Handler) TargetState() string {
	return h.targetState
}

// Finalizes проверяет, завершает ли обработчик экземпляр
func (h Handler) Finalizes() bool {
	return h.finalize
}

// matches проверяет guard обработчика
func (h Handler) matches(instance *Instance, event Event) bool {
	if h.guard == nil {
		return true
	}
	return h.guard(instance, event)
}

// HandlerBuilder построитель дескриптора обработчика
type HandlerBuilder struct {
	handler Handler
}

// NewHandler создает новый построитель обработчика
func NewHandler() *HandlerBuilder {
	return &HandlerBuilder{}
}

// WithGuard устанавливает guard-предикат
func (b *HandlerBuilder) WithGuard(guard Guard) *HandlerBuilder {
	b.handler.guard = guard
	return b
}

// WithAction устанавливает побочное действие
func (b *HandlerBuilder) WithAction(action Action) *HandlerBuilder {
	b.handler.action = action
	return b
}

// TransitionTo устанавливает целевое состояние перехода
func (b *HandlerBuilder) TransitionTo(state string) *HandlerBuilder {
	b.handler.targetState = state
	return b
}

// Finalize помечает обработчик завершающим
func (b *HandlerBuilder) Finalize() *HandlerBuilder {
	b.handler.finalize = true
	return b
}

// Build возвращает неизменяемый дескриптор обработчика
func (b *HandlerBuilder) Build() Handler {
	return b.handler
}
