// Package repository предоставляет фабрику хранилищ экземпляров саг.
package repository

import (
	"context"
	"fmt"

	"github.com/akriventsev/automat/framework/saga"
)

// Factory создает хранилище экземпляров по типу.
// Встроенные типы: inmemory, postgres, mongodb.
type Factory struct {
	newData DataFactory
}

// NewFactory создает фабрику хранилищ
func NewFactory() *Factory {
	return &Factory{}
}

// WithDataFactory устанавливает фабрику бизнес-payload для создаваемых хранилищ
func (f *Factory) WithDataFactory(factory DataFactory) *Factory {
	f.newData = factory
	return f
}

// Create создает хранилище указанного типа
func (f *Factory) Create(ctx context.Context, storeType string, config interface{}) (saga.Repository, error) {
	switch storeType {
	case "inmemory":
		repo := NewInMemoryRepository()
		if f.newData != nil {
			repo.WithDataFactory(f.newData)
		}
		return repo, nil

	case "postgres":
		cfg, ok := config.(PostgresConfig)
		if !ok {
			return nil, fmt.Errorf("invalid postgres config type: %T", config)
		}
		repo, err := NewPostgresRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if f.newData != nil {
			repo.WithDataFactory(f.newData)
		}
		return repo, nil

	case "mongodb":
		cfg, ok := config.(MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid mongodb config type: %T", config)
		}
		repo, err := NewMongoRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if f.newData != nil {
			repo.WithDataFactory(f.newData)
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown repository type: %s", storeType)
	}
}
