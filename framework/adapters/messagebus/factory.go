// Package messagebus предоставляет фабрику адаптеров message bus.
package messagebus

import (
	"fmt"
	"sync"

	"github.com/akriventsev/automat/framework/transport"
)

// Creator создает адаптер из конфигурации
type Creator func(config interface{}) (transport.MessageBus, error)

// Factory фабрика адаптеров message bus.
// Встроенные типы: nats, kafka, redis, inmemory. Дополнительные адаптеры
// регистрируются через Register.
type Factory struct {
	mu       sync.RWMutex
	creators map[string]Creator
}

// NewFactory создает фабрику с зарегистрированными встроенными адаптерами
func NewFactory() *Factory {
	factory := &Factory{
		creators: make(map[string]Creator),
	}

	_ = factory.Register("nats", func(config interface{}) (transport.MessageBus, error) {
		switch cfg := config.(type) {
		case NATSConfig:
			builder := NewNATSAdapterBuilder().
				WithURL(cfg.URL).
				WithMaxReconnects(cfg.MaxReconnects).
				WithReconnectWait(cfg.ReconnectWait).
				WithDrainTimeout(cfg.DrainTimeout).
				WithConnectionTimeout(cfg.ConnectionTimeout).
				WithQueue(cfg.Queue).
				WithMetrics(cfg.EnableMetrics)
			if cfg.TLS != nil {
				builder.WithTLS(cfg.TLS)
			}
			if cfg.Token != "" {
				builder.WithToken(cfg.Token)
			}
			if cfg.Username != "" {
				builder.WithCredentials(cfg.Username, cfg.Password)
			}
			return builder.Build()
		case string:
			return NewNATSAdapter(cfg)
		default:
			return nil, fmt.Errorf("invalid NATS config type: %T", config)
		}
	})

	_ = factory.Register("kafka", func(config interface{}) (transport.MessageBus, error) {
		cfg, ok := config.(KafkaConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Kafka config type: %T", config)
		}
		return NewKafkaAdapter(cfg)
	})

	_ = factory.Register("redis", func(config interface{}) (transport.MessageBus, error) {
		cfg, ok := config.(RedisConfig)
		if !ok {
			return nil, fmt.Errorf("invalid Redis config type: %T", config)
		}
		return NewRedisAdapter(cfg)
	})

	_ = factory.Register("inmemory", func(config interface{}) (transport.MessageBus, error) {
		cfg, ok := config.(InMemoryConfig)
		if !ok {
			cfg = DefaultInMemoryConfig()
		}
		return NewInMemoryAdapter(cfg), nil
	})

	return factory
}

// Create создает адаптер указанного типа
func (f *Factory) Create(busType string, config interface{}) (transport.MessageBus, error) {
	f.mu.RLock()
	creator, exists := f.creators[busType]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown message bus type: %s", busType)
	}

	adapter, err := creator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", busType, err)
	}
	return adapter, nil
}

// Register регистрирует адаптер под именем
func (f *Factory) Register(name string, creator Creator) error {
	if name == "" {
		return fmt.Errorf("adapter name cannot be empty")
	}
	if creator == nil {
		return fmt.Errorf("creator function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.creators[name]; exists {
		return fmt.Errorf("adapter %s already registered", name)
	}
	f.creators[name] = creator
	return nil
}

// ListRegistered возвращает список зарегистрированных типов
func (f *Factory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	return names
}
