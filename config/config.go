package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/pkg/errors"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	ReturnBox ReturnBoxConfig `yaml:"returnbox"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.Username, d.Password, d.Host, d.Port, d.DBName, ssl)
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	TrackingUpdatedTopicName string `yaml:"tracking_updated_topic_name"`
	OutboundEmailTopicName   string `yaml:"outbound_email_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type ReturnBoxConfig struct {
	Env                   string `yaml:"env"`
	HTTPAddr              string `yaml:"http_addr"`
	WorkerHTTPAddr        string `yaml:"worker_http_addr"`
	KafkaConsumerGroup    string `yaml:"kafka_consumer_group"`
	ReturnCacheTTLSeconds int    `yaml:"return_cache_ttl_seconds"`

	DigestFlushIntervalSeconds int    `yaml:"digest_flush_interval_seconds"`
	DigestBufferKey            string `yaml:"digest_buffer_key"`

	SwaggerPath       string `yaml:"swagger_path"`
	WorkerSwaggerPath string `yaml:"worker_swagger_path"`
}

type NotifyConfig struct {
	From                string   `yaml:"from"`
	AdminRecipients     []string `yaml:"admin_recipients"`
	SendTimeoutMS       int      `yaml:"send_timeout_ms"`
	DedupeWindowSeconds int      `yaml:"dedupe_window_seconds"`
	MaxConcurrency      int      `yaml:"max_concurrency"`
	RateLimitPerMinute  int      `yaml:"rate_limit_per_minute"`

	// GlobalToggles are process defaults; overrides live in Redis.
	GlobalToggles map[string]bool `yaml:"global_toggles"`

	MailProvider string `yaml:"mail_provider"` // "smtp" | "brevo" | "kafka" | "log"
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	BrevoAPIKey  string `yaml:"brevo_api_key"`
	BrevoSender  string `yaml:"brevo_sender"`
}

// Toggles converts GlobalToggles to categories, rejecting names that are not categories.
func (n NotifyConfig) Toggles() (map[models.Category]bool, error) {
	out := make(map[models.Category]bool, len(n.GlobalToggles))
	for name, enabled := range n.GlobalToggles {
		c := models.Category(strings.TrimSpace(name))
		if !c.Valid() {
			return nil, errors.Errorf("notify.global_toggles: unknown category %q", name)
		}
		out[c] = enabled
	}
	return out, nil
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal YAML")
	}

	return &config, nil
}
