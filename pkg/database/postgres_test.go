package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-schedule/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "roster"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=roster sslmode=disable", dsn)

	dsn = DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "roster", SSLMode: "require"})
	assert.Contains(t, dsn, "sslmode=require")
}
