package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultEnvFile = "./config/.env"

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" env-default:":5000"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	Sheet  SheetConfig
	Google GoogleConfig
	LLM    LLMConfig
	Limits LimitConfig
	Kafka  KafkaConfig
}

type SheetConfig struct {
	ID           string `env:"GOOGLE_SHEET_ID"`
	Range        string `env:"GOOGLE_SHEET_RANGE" env-default:"Sheet1!A:Z"`
	VerifyAccess bool   `env:"SHEETS_VERIFY_ACCESS" env-default:"false"`
}

// GoogleConfig carries the service account fields used for the sheet.
type GoogleConfig struct {
	ProjectID     string `env:"GOOGLE_PROJECT_ID"`
	PrivateKeyID  string `env:"GOOGLE_PRIVATE_KEY_ID"`
	PrivateKey    string `env:"GOOGLE_PRIVATE_KEY"`
	ClientEmail   string `env:"GOOGLE_CLIENT_EMAIL"`
	ClientID      string `env:"GOOGLE_CLIENT_ID"`
	ClientCertURL string `env:"GOOGLE_CLIENT_CERT_URL"`
}

type LLMConfig struct {
	Provider    string        `env:"LLM_PROVIDER" env-default:"openai"`
	Model       string        `env:"LLM_MODEL"`
	BaseURL     string        `env:"LLM_BASE_URL"`
	PromptsFile string        `env:"PROMPTS_FILE"`
	Concurrency int           `env:"ANALYZE_CONCURRENCY" env-default:"1"`
	CallTimeout time.Duration `env:"PER_CALL_TIMEOUT" env-default:"0s"`
}

type LimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" env-default:"1"`
	Burst int     `env:"RATE_LIMIT_BURST" env-default:"5"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `env:"KAFKA_TOPIC" env-default:"story-feedback"`
}

// New reads ./config/.env when present and falls back to the process
// environment otherwise.
func New() (*Config, error) {
	return Load(defaultEnvFile)
}

func Load(envFile string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(envFile, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Concurrency < 1 {
		cfg.LLM.Concurrency = 1
	}
	return &cfg, nil
}

// ValidateServe checks what is needed to append rows.
func (c *Config) ValidateServe() error {
	if c.Sheet.ID == "" {
		return errors.New("GOOGLE_SHEET_ID must be set")
	}
	if c.Google.ClientEmail == "" || c.Google.PrivateKey == "" {
		return errors.New("GOOGLE_CLIENT_EMAIL and GOOGLE_PRIVATE_KEY must be set")
	}
	switch c.LLM.Provider {
	case "openai", "deepseek", "anthropic", "gemini", "mock":
	default:
		return fmt.Errorf("llm provider %s not supported", c.LLM.Provider)
	}
	return nil
}

// ServiceAccountJSON assembles the credentials document expected by the
// Google auth libraries.
func (g GoogleConfig) ServiceAccountJSON() ([]byte, error) {
	info := map[string]string{
		"type":                        "service_account",
		"project_id":                  g.ProjectID,
		"private_key_id":              g.PrivateKeyID,
		"private_key":                 strings.ReplaceAll(g.PrivateKey, `\n`, "\n"),
		"client_email":                g.ClientEmail,
		"client_id":                   g.ClientID,
		"auth_uri":                    "https://accounts.google.com/o/oauth2/auth",
		"token_uri":                   "https://oauth2.googleapis.com/token",
		"auth_provider_x509_cert_url": "https://www.googleapis.com/oauth2/v1/certs",
		"client_x509_cert_url":        g.ClientCertURL,
	}
	return json.Marshal(info)
}
