package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Vision   VisionConfig   `yaml:"vision"`
	Verify   VerifyConfig   `yaml:"verify"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
}

// VerifyConfig centralizes every decision threshold used by the matcher,
// the liveness evaluator, and the case classifier. Components receive these
// explicitly; nothing re-declares a threshold at a call site.
type VerifyConfig struct {
	// VerificationThreshold gates 1:1 face verification against a known person.
	VerificationThreshold float64 `yaml:"verification_threshold"`
	// IdentificationThreshold gates 1:N search across all enrolled people.
	IdentificationThreshold float64 `yaml:"identification_threshold"`
	// LivenessThreshold gates the combined anti-spoofing score.
	LivenessThreshold float64 `yaml:"liveness_threshold"`
	// CutoffTime is the "HH:MM" local-time boundary between Present and Late.
	// A capture at exactly the cutoff is Present.
	CutoffTime string `yaml:"cutoff_time"`
	// RegisterLength is the canonical identifier length on ID tokens.
	RegisterLength int `yaml:"register_length"`
	// RegisterMinLength/RegisterMaxLength bound the accepted length band.
	RegisterMinLength int `yaml:"register_min_length"`
	RegisterMaxLength int `yaml:"register_max_length"`
}

// Cutoff parses CutoffTime into hour and minute.
func (v VerifyConfig) Cutoff() (hour, minute int, err error) {
	if _, err := fmt.Sscanf(v.CutoffTime, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("parse cutoff time %q: %w", v.CutoffTime, err)
	}
	return hour, minute, nil
}

// CutoffFor returns the cutoff instant on the same calendar day as t,
// in t's location.
func (v VerifyConfig) CutoffFor(t time.Time) time.Time {
	hour, minute, err := v.Cutoff()
	if err != nil {
		// Validated at load time; fall back to the default rather than panic.
		hour, minute = 8, 45
	}
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

type NotifyConfig struct {
	// URLs are shoutrrr service URLs the notifier worker delivers to.
	URLs []string `yaml:"urls"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if _, _, err := cfg.Verify.Cutoff(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Verify.VerificationThreshold == 0 {
		cfg.Verify.VerificationThreshold = 0.6
	}
	if cfg.Verify.IdentificationThreshold == 0 {
		cfg.Verify.IdentificationThreshold = 0.5
	}
	if cfg.Verify.LivenessThreshold == 0 {
		cfg.Verify.LivenessThreshold = 0.35
	}
	if cfg.Verify.CutoffTime == "" {
		cfg.Verify.CutoffTime = "08:45"
	}
	if cfg.Verify.RegisterLength == 0 {
		cfg.Verify.RegisterLength = 7
	}
	if cfg.Verify.RegisterMinLength == 0 {
		cfg.Verify.RegisterMinLength = 5
	}
	if cfg.Verify.RegisterMaxLength == 0 {
		cfg.Verify.RegisterMaxLength = 9
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRESENCE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PRESENCE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PRESENCE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PRESENCE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PRESENCE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PRESENCE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PRESENCE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PRESENCE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PRESENCE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("PRESENCE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PRESENCE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PRESENCE_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("PRESENCE_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("PRESENCE_CUTOFF_TIME"); v != "" {
		cfg.Verify.CutoffTime = v
	}
	if v := os.Getenv("PRESENCE_VERIFICATION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Verify.VerificationThreshold = f
		}
	}
	if v := os.Getenv("PRESENCE_IDENTIFICATION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Verify.IdentificationThreshold = f
		}
	}
	if v := os.Getenv("PRESENCE_LIVENESS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Verify.LivenessThreshold = f
		}
	}
}
