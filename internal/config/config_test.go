package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("VEHIQL_TEST_SECRET", "s3cret")
	dbPath := filepath.Join(t.TempDir(), "nested", "vehiql.db")

	path := writeConfig(t, `
server:
  port: 8181
database:
  path: `+dbPath+`
auth:
  jwt_secret: ${VEHIQL_TEST_SECRET}
  admins: [admin@example.com, user_1]
dealership:
  name: Vehiql Motors
booking:
  max_advance_days: 30
kafka:
  brokers: "k1:9092,k2:9092"
notify:
  telegram:
    chat_ids: [100, -200]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"admin@example.com", "user_1"}, cfg.Auth.Admins)
	assert.Equal(t, ":8181", cfg.ListenAddr())
	assert.Equal(t, 30, cfg.MaxAdvanceDays())
	assert.Equal(t, []int64{100, -200}, cfg.Notify.Telegram.ChatIDs)
	assert.Equal(t, "Vehiql Motors", cfg.DealershipProfile().Name)
	assert.DirExists(t, filepath.Dir(dbPath))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no secret", mutate: func(c *Config) { c.Auth.JWTSecret = " " }, wantErr: "jwt_secret"},
		{name: "no dealership", mutate: func(c *Config) { c.Dealership.Name = "" }, wantErr: "dealership.name"},
		{name: "negative advance", mutate: func(c *Config) { c.Booking.MaxAdvanceDays = -1 }, wantErr: "max_advance_days"},
		{name: "sheets without id", mutate: func(c *Config) { c.Sheets.Enabled = true }, wantErr: "spreadsheet_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Auth.JWTSecret = "secret"
			cfg.Dealership.Name = "Vehiql"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout())
	assert.Equal(t, 15*time.Second, cfg.WriteTimeout())
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 60, cfg.MaxAdvanceDays())
	assert.Equal(t, 20, cfg.RateLimitBurst())
	assert.Equal(t, 8090, cfg.HealthPort())
	assert.Equal(t, 9090, cfg.PrometheusPort())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, "backups", cfg.BackupDir())
	assert.Equal(t, 14, cfg.BackupRetentionDays())
	assert.Equal(t, 3, cfg.NotifyMaxRetries())
	assert.Equal(t, "vehiql", cfg.KafkaTopicPrefix())
}
