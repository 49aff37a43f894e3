package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default YAML config location, relative to the working
// directory. Override the path with the CONFIG_PATH environment variable.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	MongoURI      string `yaml:"mongoURI"`
	MongoDatabase string `yaml:"mongoDatabase"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	Bucket         string `yaml:"bucket"`

	AMQPURL       string `yaml:"amqpURL"`
	TaskQueue     string `yaml:"taskQueue"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	WorkerBaseURL string `yaml:"workerBaseURL"`
	TaskSecret    string `yaml:"taskSecret"`

	OpenAIAPIKey  string `yaml:"openaiApiKey"`
	OpenAIBaseURL string `yaml:"openaiBaseURL"`
	OpenAIModel   string `yaml:"openaiModel"`

	AssistantTTLMinutes int    `yaml:"assistantTTLMinutes"`
	SweepSchedule       string `yaml:"sweepSchedule"`
	SummaryWindow       int    `yaml:"summaryWindow"`
	ScratchDir          string `yaml:"scratchDir"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			path = v
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("MONGO_DATABASE"); v != "" {
		cfg.MongoDatabase = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("DOCASSIST_BUCKET"); v != "" {
		cfg.Bucket = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("DOCASSIST_TASK_QUEUE"); v != "" {
		cfg.TaskQueue = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DOCASSIST_WORKER_BASE_URL"); v != "" {
		cfg.WorkerBaseURL = v
	}
	if v := os.Getenv("DOCASSIST_TASK_SECRET"); v != "" {
		cfg.TaskSecret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("DOCASSIST_ASSISTANT_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AssistantTTLMinutes = n
		}
	}
	if v := os.Getenv("DOCASSIST_SWEEP_SCHEDULE"); v != "" {
		cfg.SweepSchedule = v
	}
	if v := os.Getenv("DOCASSIST_SUMMARY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SummaryWindow = n
		}
	}
	if v := os.Getenv("DOCASSIST_SCRATCH_DIR"); v != "" {
		cfg.ScratchDir = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.MongoURI == "" {
		return errors.New("config: mongoURI is required (set in config.yaml or MONGO_URI)")
	}
	if cfg.MongoDatabase == "" {
		return errors.New("config: mongoDatabase is required (set in config.yaml or MONGO_DATABASE)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml or MINIO_ENDPOINT)")
	}
	if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return errors.New("config: minio credentials are required (MINIO_ACCESS_KEY + MINIO_SECRET_KEY)")
	}
	if cfg.Bucket == "" {
		return errors.New("config: bucket is required (set in config.yaml or DOCASSIST_BUCKET)")
	}
	if cfg.AMQPURL == "" {
		return errors.New("config: amqpURL is required (set in config.yaml or AMQP_URL)")
	}
	if cfg.TaskQueue == "" {
		return errors.New("config: taskQueue is required (set in config.yaml or DOCASSIST_TASK_QUEUE)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.WorkerBaseURL == "" {
		return errors.New("config: workerBaseURL is required (set in config.yaml or DOCASSIST_WORKER_BASE_URL)")
	}
	if cfg.TaskSecret == "" {
		return errors.New("config: taskSecret is required (set in config.yaml or DOCASSIST_TASK_SECRET)")
	}
	if cfg.OpenAIAPIKey == "" {
		return errors.New("config: openaiApiKey is required (set in config.yaml or OPENAI_API_KEY)")
	}
	if cfg.AssistantTTLMinutes < 0 {
		return errors.New("config: assistantTTLMinutes must be >= 0")
	}
	if cfg.SummaryWindow < 0 {
		return errors.New("config: summaryWindow must be >= 0")
	}
	return nil
}
