// Package migrations предоставляет обертку над goose для управления
// схемой хранилища саг в PostgreSQL.
package migrations

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
)

// Status представляет статус одной миграции
type Status struct {
	Version   int64
	Name      string
	AppliedAt *time.Time
	State     string // "pending", "applied"
}

// SetDialect устанавливает диалект БД.
// Если dialect пустой, используется "postgres".
func SetDialect(dialect string) error {
	if dialect == "" {
		dialect = "postgres"
	}
	return goose.SetDialect(dialect)
}

// Up применяет все pending миграции из указанной директории
func Up(db *sql.DB, dir string) error {
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// UpLimited применяет не более steps pending миграций
func UpLimited(db *sql.DB, dir string, steps int64) error {
	if steps <= 0 {
		return Up(db, dir)
	}

	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		// Таблица версий еще не создана
		currentVersion = 0
	}

	all, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("failed to collect migrations: %w", err)
	}

	var pending []*goose.Migration
	for _, migration := range all {
		if migration.Version > currentVersion {
			pending = append(pending, migration)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	target := pending[len(pending)-1].Version
	if int64(len(pending)) > steps {
		target = pending[steps-1].Version
	}

	if err := goose.UpTo(db, dir, target); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Down откатывает steps последних миграций
func Down(db *sql.DB, dir string, steps int64) error {
	if steps <= 1 {
		if err := goose.Down(db, dir); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		return nil
	}

	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	target := currentVersion - steps
	if target < 0 {
		target = 0
	}
	if err := goose.DownTo(db, dir, target); err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

// CurrentVersion возвращает текущую версию схемы
func CurrentVersion(db *sql.DB) (int64, error) {
	version, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// CollectStatus возвращает статус всех миграций директории
func CollectStatus(db *sql.DB, dir string) ([]Status, error) {
	all, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to collect migrations: %w", err)
	}

	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		// Таблица версий еще не создана, все миграции pending
		currentVersion = 0
	}

	var statuses []Status
	for _, migration := range all {
		status := Status{
			Version: migration.Version,
			Name:    filepath.Base(migration.Source),
			State:   "pending",
		}

		if migration.Version <= currentVersion {
			var appliedAt time.Time
			err := db.QueryRow(
				"SELECT tstamp FROM goose_db_version WHERE version_id = $1 AND is_applied = true ORDER BY tstamp DESC LIMIT 1",
				migration.Version,
			).Scan(&appliedAt)
			if err == nil {
				status.AppliedAt = &appliedAt
				status.State = "applied"
			}
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}

// Create создает новый файл миграции в формате goose:
// YYYYMMDDHHMMSS_name.sql
func Create(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.sql", time.Now().Format("20060102150405"), name)
	path := filepath.Join(dir, filename)

	content := fmt.Sprintf(`-- +goose Up
-- Migration: %s

-- +goose Down
`, name)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}
	return path, nil
}
