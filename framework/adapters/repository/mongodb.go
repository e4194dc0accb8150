// Package repository предоставляет MongoDB хранилище экземпляров саг.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/saga"
)

// MongoConfig конфигурация для MongoDB хранилища
type MongoConfig struct {
	URI         string
	Database    string
	Collection  string
	Timeout     time.Duration
	MaxPoolSize uint64
	MinPoolSize uint64
}

// Validate проверяет корректность конфигурации
func (c MongoConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("URI cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection cannot be empty")
	}
	return nil
}

// DefaultMongoConfig возвращает конфигурацию MongoDB по умолчанию
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database:    "automat",
		Collection:  "saga_instances",
		Timeout:     10 * time.Second,
		MaxPoolSize: 100,
		MinPoolSize: 10,
	}
}

// MongoRepository хранилище экземпляров саг в MongoDB.
// Optimistic-concurrency реализована replace с фильтром по версии.
type MongoRepository struct {
	config     MongoConfig
	client     *mongo.Client
	collection *mongo.Collection
	newData    DataFactory
}

// NewMongoRepository создает MongoDB хранилище
func NewMongoRepository(ctx context.Context, config MongoConfig) (*MongoRepository, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid mongodb config")
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	repo := &MongoRepository{
		config:     config,
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// WithDataFactory устанавливает фабрику типизированного бизнес-payload
func (r *MongoRepository) WithDataFactory(factory DataFactory) *MongoRepository {
	r.newData = factory
	return r
}

// ensureIndexes создает уникальный индекс по correlation ID
func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "correlation_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create correlation index: %w", err)
	}
	return nil
}

// Name возвращает имя компонента (реализация core.Component)
func (r *MongoRepository) Name() string {
	return "mongodb-repository"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *MongoRepository) Type() core.ComponentType {
	return core.ComponentTypeStore
}

// HealthCheck проверяет соединение с MongoDB (реализация core.HealthCheckable)
func (r *MongoRepository) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close закрывает подключение к MongoDB
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Find находит экземпляр по correlation ID.
// Возвращает nil без ошибки, если экземпляр не найден.
func (r *MongoRepository) Find(ctx context.Context, correlationID string) (*saga.Instance, error) {
	var instance saga.Instance
	err := r.collection.FindOne(ctx, bson.M{"correlation_id": correlationID}).Decode(&instance)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find instance %s: %w", correlationID, err)
	}

	if err := r.retypeData(&instance); err != nil {
		return nil, err
	}
	instance.SyncPersisted()
	return &instance, nil
}

// Create создает новый экземпляр в начальном состоянии
func (r *MongoRepository) Create(ctx context.Context, correlationID, initialState string, data interface{}) (*saga.Instance, error) {
	instance := saga.NewInstance(correlationID, initialState, data)

	if _, err := r.collection.InsertOne(ctx, instance); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, core.NewError(core.ErrAlreadyExists,
				fmt.Sprintf("saga instance %s already exists", correlationID))
		}
		return nil, fmt.Errorf("failed to create instance %s: %w", correlationID, err)
	}

	instance.SyncPersisted()
	return instance, nil
}

// Save сохраняет экземпляр через replace с фильтром по версии.
// Если документ уже изменен другим писателем, возвращается ошибка
// с кодом ErrVersionConflict.
func (r *MongoRepository) Save(ctx context.Context, instance *saga.Instance) error {
	filter := bson.M{
		"correlation_id": instance.CorrelationID,
		"version":        instance.PersistedVersion(),
	}

	result, err := r.collection.ReplaceOne(ctx, filter, instance)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.CorrelationID, err)
	}
	if result.MatchedCount == 0 {
		return core.NewError(core.ErrVersionConflict,
			fmt.Sprintf("saga instance %s was modified concurrently: expected version %d",
				instance.CorrelationID, instance.PersistedVersion()))
	}

	instance.SyncPersisted()
	return nil
}

// retypeData преобразует декодированный BSON payload в типизированное значение
func (r *MongoRepository) retypeData(instance *saga.Instance) error {
	if r.newData == nil || instance.Data == nil {
		return nil
	}
	raw, err := json.Marshal(instance.Data)
	if err != nil {
		return fmt.Errorf("failed to remarshal instance data: %w", err)
	}
	typed := r.newData()
	if err := json.Unmarshal(raw, typed); err != nil {
		return fmt.Errorf("failed to unmarshal instance data: %w", err)
	}
	instance.Data = typed
	return nil
}
