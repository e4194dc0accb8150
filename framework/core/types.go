// Package core предоставляет базовые типы для всех компонентов движка.
package core

// ComponentType enum для типов компонентов
type ComponentType string

const (
	ComponentTypeEngine    ComponentType = "engine"
	ComponentTypeAdapter   ComponentType = "adapter"
	ComponentTypeTransport ComponentType = "transport"
	ComponentTypeStore     ComponentType = "store"
)
