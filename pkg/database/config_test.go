package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "provd", cfg.User)
	assert.Equal(t, "provd", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 10, cfg.MaxOpenConns)
}

func TestLoadConfigFromEnv_InvalidPort(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	_, err := LoadConfigFromEnv()
	assert.Error(t, err)
}

func TestDSN_URLWins(t *testing.T) {
	cfg := Config{
		URL:  "postgres://u:p@db.internal:5432/provd?sslmode=require",
		Host: "ignored",
	}
	assert.Equal(t, "postgres://u:p@db.internal:5432/provd?sslmode=require", cfg.DSN())
}

func TestDSN_DiscreteFields(t *testing.T) {
	cfg := Config{
		Host:     "db.internal",
		Port:     5433,
		User:     "provd",
		Password: "s3cret",
		Database: "provenance",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=provd password=s3cret dbname=provenance sslmode=require",
		cfg.DSN())
}
