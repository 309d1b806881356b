package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  tracking_updated_topic_name: "tracking.updated"
  outbound_email_topic_name: "notifications.outbound"
redis:
  host: "localhost"
  port: 6379
returnbox:
  http_addr: ":8080"
  worker_http_addr: ":8081"
  kafka_consumer_group: "digest-worker"
  digest_flush_interval_seconds: 3600
notify:
  from: "no-reply@returnbox.local"
  admin_recipients: ["ops@returnbox.local", "lead@returnbox.local"]
  send_timeout_ms: 5000
  global_toggles:
    marketing: false
    refund-return: true
  mail_provider: "smtp"
  smtp_host: "mail.local"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.DSN())
	require.Equal(t, "tracking.updated", cfg.Kafka.TrackingUpdatedTopicName)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers())
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, ":8080", cfg.ReturnBox.HTTPAddr)
	require.Equal(t, 3600, cfg.ReturnBox.DigestFlushIntervalSeconds)
	require.Len(t, cfg.Notify.AdminRecipients, 2)
	require.Equal(t, "smtp", cfg.Notify.MailProvider)

	toggles, err := cfg.Notify.Toggles()
	require.NoError(t, err)
	require.Equal(t, map[models.Category]bool{
		models.CategoryMarketing:    false,
		models.CategoryRefundReturn: true,
	}, toggles)
}

func TestToggles_UnknownCategory(t *testing.T) {
	n := NotifyConfig{GlobalToggles: map[string]bool{"sms": true}}
	_, err := n.Toggles()
	require.EqualError(t, err, `notify.global_toggles: unknown category "sms"`)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.Contains(t, err.Error(), "failed to read config file")
}
