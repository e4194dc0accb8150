// Package repository предоставляет PostgreSQL хранилище экземпляров саг.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/saga"
)

// PostgresConfig конфигурация для PostgreSQL хранилища
type PostgresConfig struct {
	DSN             string
	TableName       string
	SchemaName      string
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

// Validate проверяет корректность конфигурации
func (c PostgresConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if c.TableName == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	return nil
}

// DefaultPostgresConfig возвращает конфигурацию PostgreSQL по умолчанию
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		TableName:       "saga_instances",
		SchemaName:      "public",
		MaxConns:        25,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// PostgresRepository хранилище экземпляров саг в PostgreSQL.
// Вложенные структуры экземпляра (данные, история, журнал ошибок)
// хранятся в JSONB колонках; optimistic-concurrency реализована
// version-guarded UPDATE.
type PostgresRepository struct {
	config  PostgresConfig
	pool    *pgxpool.Pool
	newData DataFactory
}

// NewPostgresRepository создает PostgreSQL хранилище
func NewPostgresRepository(ctx context.Context, config PostgresConfig) (*PostgresRepository, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid postgres config")
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PostgresRepository{
		config: config,
		pool:   pool,
	}, nil
}

// WithDataFactory устанавливает фабрику типизированного бизнес-payload
func (r *PostgresRepository) WithDataFactory(factory DataFactory) *PostgresRepository {
	r.newData = factory
	return r
}

// Name возвращает имя компонента (реализация core.Component)
func (r *PostgresRepository) Name() string {
	return "postgres-repository"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *PostgresRepository) Type() core.ComponentType {
	return core.ComponentTypeStore
}

// HealthCheck проверяет соединение с базой (реализация core.HealthCheckable)
func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) table() string {
	return fmt.Sprintf("%s.%s", r.config.SchemaName, r.config.TableName)
}

// Find находит экземпляр по correlation ID.
// Возвращает nil без ошибки, если экземпляр не найден.
func (r *PostgresRepository) Find(ctx context.Context, correlationID string) (*saga.Instance, error) {
	query := fmt.Sprintf(`
		SELECT current_state, data, version, created_at, last_updated_at,
		       completed_at, faulted_at, error_message, errors, metadata,
		       scheduled_timeouts, state_history
		FROM %s WHERE correlation_id = $1`, r.table())

	var (
		instance          saga.Instance
		dataJSON          []byte
		errorsJSON        []byte
		metadataJSON      []byte
		timeoutsJSON      []byte
		historyJSON       []byte
	)
	instance.CorrelationID = correlationID

	err := r.pool.QueryRow(ctx, query, correlationID).Scan(
		&instance.CurrentState,
		&dataJSON,
		&instance.Version,
		&instance.CreatedAt,
		&instance.LastUpdatedAt,
		&instance.CompletedAt,
		&instance.FaultedAt,
		&instance.ErrorMessage,
		&errorsJSON,
		&metadataJSON,
		&timeoutsJSON,
		&historyJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find instance %s: %w", correlationID, err)
	}

	if err := r.unmarshalColumns(&instance, dataJSON, errorsJSON, metadataJSON, timeoutsJSON, historyJSON); err != nil {
		return nil, err
	}
	instance.SyncPersisted()
	return &instance, nil
}

// Create создает новый экземпляр в начальном состоянии
func (r *PostgresRepository) Create(ctx context.Context, correlationID, initialState string, data interface{}) (*saga.Instance, error) {
	instance := saga.NewInstance(correlationID, initialState, data)

	dataJSON, metadataJSON, errorsJSON, timeoutsJSON, historyJSON, err := marshalColumns(instance)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (correlation_id, current_state, data, version, created_at,
		                last_updated_at, errors, metadata, scheduled_timeouts, state_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (correlation_id) DO NOTHING`, r.table())

	tag, err := r.pool.Exec(ctx, query,
		correlationID, initialState, dataJSON, instance.Version,
		instance.CreatedAt, instance.LastUpdatedAt,
		errorsJSON, metadataJSON, timeoutsJSON, historyJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance %s: %w", correlationID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, core.NewError(core.ErrAlreadyExists,
			fmt.Sprintf("saga instance %s already exists", correlationID))
	}

	instance.SyncPersisted()
	return instance, nil
}

// Save сохраняет экземпляр через version-guarded UPDATE.
// Если строка уже изменена другим писателем, возвращается ошибка
// с кодом ErrVersionConflict и экземпляр не перезаписывается.
func (r *PostgresRepository) Save(ctx context.Context, instance *saga.Instance) error {
	dataJSON, metadataJSON, errorsJSON, timeoutsJSON, historyJSON, err := marshalColumns(instance)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET current_state = $2, data = $3, version = $4, last_updated_at = $5,
		    completed_at = $6, faulted_at = $7, error_message = $8,
		    errors = $9, metadata = $10, scheduled_timeouts = $11, state_history = $12
		WHERE correlation_id = $1 AND version = $13`, r.table())

	tag, err := r.pool.Exec(ctx, query,
		instance.CorrelationID, instance.CurrentState, dataJSON, instance.Version,
		instance.LastUpdatedAt, instance.CompletedAt, instance.FaultedAt,
		instance.ErrorMessage, errorsJSON, metadataJSON, timeoutsJSON, historyJSON,
		instance.PersistedVersion())
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.CorrelationID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewError(core.ErrVersionConflict,
			fmt.Sprintf("saga instance %s was modified concurrently: expected version %d",
				instance.CorrelationID, instance.PersistedVersion()))
	}

	instance.SyncPersisted()
	return nil
}

// unmarshalColumns восстанавливает JSONB колонки экземпляра
func (r *PostgresRepository) unmarshalColumns(instance *saga.Instance, dataJSON, errorsJSON, metadataJSON, timeoutsJSON, historyJSON []byte) error {
	if len(dataJSON) > 0 {
		if r.newData != nil {
			typed := r.newData()
			if err := json.Unmarshal(dataJSON, typed); err != nil {
				return fmt.Errorf("failed to unmarshal instance data: %w", err)
			}
			instance.Data = typed
		} else if err := json.Unmarshal(dataJSON, &instance.Data); err != nil {
			return fmt.Errorf("failed to unmarshal instance data: %w", err)
		}
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &instance.Errors); err != nil {
			return fmt.Errorf("failed to unmarshal errors: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &instance.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if len(timeoutsJSON) > 0 {
		if err := json.Unmarshal(timeoutsJSON, &instance.ScheduledTimeouts); err != nil {
			return fmt.Errorf("failed to unmarshal scheduled timeouts: %w", err)
		}
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &instance.StateHistory); err != nil {
			return fmt.Errorf("failed to unmarshal state history: %w", err)
		}
	}
	return nil
}

// marshalColumns сериализует JSONB колонки экземпляра
func marshalColumns(instance *saga.Instance) (dataJSON, metadataJSON, errorsJSON, timeoutsJSON, historyJSON []byte, err error) {
	if dataJSON, err = json.Marshal(instance.Data); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to marshal instance data: %w", err)
	}
	if metadataJSON, err = json.Marshal(instance.Metadata); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if errorsJSON, err = json.Marshal(instance.Errors); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to marshal errors: %w", err)
	}
	if timeoutsJSON, err = json.Marshal(instance.ScheduledTimeouts); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to marshal scheduled timeouts: %w", err)
	}
	if historyJSON, err = json.Marshal(instance.StateHistory); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to marshal state history: %w", err)
	}
	return dataJSON, metadataJSON, errorsJSON, timeoutsJSON, historyJSON, nil
}
