package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresConfig_Validate(t *testing.T) {
	cfg := DefaultPostgresConfig()
	cfg.DSN = "postgres://localhost:5432/automat"
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "saga_instances", cfg.TableName)
	assert.Equal(t, "public", cfg.SchemaName)

	cfg.DSN = ""
	assert.Error(t, cfg.Validate(), "empty DSN must be rejected")

	cfg = DefaultPostgresConfig()
	cfg.DSN = "postgres://localhost:5432/automat"
	cfg.TableName = ""
	assert.Error(t, cfg.Validate(), "empty table name must be rejected")
}

func TestMongoConfig_Validate(t *testing.T) {
	cfg := DefaultMongoConfig()
	cfg.URI = "mongodb://localhost:27017"
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "automat", cfg.Database)
	assert.Equal(t, "saga_instances", cfg.Collection)

	cfg.URI = ""
	assert.Error(t, cfg.Validate(), "empty URI must be rejected")

	cfg = DefaultMongoConfig()
	cfg.URI = "mongodb://localhost:27017"
	cfg.Database = ""
	assert.Error(t, cfg.Validate(), "empty database must be rejected")

	cfg = DefaultMongoConfig()
	cfg.URI = "mongodb://localhost:27017"
	cfg.Collection = ""
	assert.Error(t, cfg.Validate(), "empty collection must be rejected")
}
