package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFilePresent(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 10000, cfg.Server.MaxConnections)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "relaychat", cfg.Database.Name)
	assert.NotEmpty(t, cfg.Redis.Addrs)
	assert.Equal(t, "chat-events", cfg.Kafka.Topic)
}

func TestDatabaseConfigDSNIncludesAllFields(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable",
	}
	dsn := d.DSN()
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "dbname=n")
	assert.Contains(t, dsn, "sslmode=disable")
}
