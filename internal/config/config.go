package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	NATS struct {
		URL                 string             `mapstructure:"url"`
		Realtime            ConsumerNatsConfig `mapstructure:"realtime"`
		Snapshot            ConsumerNatsConfig `mapstructure:"snapshot"`
		DLQStream           string             `mapstructure:"dlqStream"`           // Name of the Dead Letter Queue stream
		DLQSubject          string             `mapstructure:"dlqSubject"`          // Base subject for DLQ messages (e.g., v1.dlq)
		DLQWorkers          int                `mapstructure:"dlqWorkers"`          // Number of concurrent DLQ processing workers
		DLQBaseDelayMinutes int                `mapstructure:"dlqBaseDelayMinutes"` // Base delay in minutes for exponential backoff
		DLQMaxDelayMinutes  int                `mapstructure:"dlqMaxDelayMinutes"`  // Max delay in minutes for exponential backoff
		DLQMaxAgeDays       int                `mapstructure:"dlqMaxAgeDays"`       // Retention period for DLQ messages (days)
		DLQMaxDeliver       int                `mapstructure:"dlqMaxDeliver"`       // Max redelivery attempts for DLQ consumer
		DLQAckWait          time.Duration      `mapstructure:"dlqAckWait"`          // Ack wait timeout for DLQ consumer
		DLQMaxAckPending    int                `mapstructure:"dlqMaxAckPending"`    // Max pending ACKs for DLQ consumer
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Company struct {
		Default string `mapstructure:"default"`
		ID      string `mapstructure:"id"`
	} `mapstructure:"company"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Identity struct {
		DefaultCountry string `mapstructure:"defaultCountry"` // Dialing code prepended to short national numbers
	} `mapstructure:"identity"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Responder ResponderConfig `mapstructure:"responder"`
	Bulk      BulkConfig      `mapstructure:"bulk"`
	WorkerPools struct {
		Ingest IngestPoolConfig     `mapstructure:"ingest"`
		Sync   SyncWorkerPoolConfig `mapstructure:"sync"`
	} `mapstructure:"workerPools"`
}

// DispatchConfig holds configuration for the outbound send path.
type DispatchConfig struct {
	QueueSize    int           `mapstructure:"queueSize"`    // Per-tenant outbound queue buffer
	MinSendDelay time.Duration `mapstructure:"minSendDelay"` // Minimum delay between provider sends per tenant
	SendTimeout  time.Duration `mapstructure:"sendTimeout"`  // Deadline for a single provider call
	BridgeURL    string        `mapstructure:"bridgeURL"`    // Provider bridge base URL; empty disables session auto-registration
	BridgeToken  string        `mapstructure:"bridgeToken"`  // Bearer token for the bridge
}

// ResponderConfig holds configuration for the AI auto-reply path.
type ResponderConfig struct {
	Enabled      bool          `mapstructure:"enabled"`      // Tenant-level toggle
	Timeout      time.Duration `mapstructure:"timeout"`      // Deadline for one generation call
	Model        string        `mapstructure:"model"`        // Model identifier
	APIKey       string        `mapstructure:"apiKey"`       // Generator API key
	BaseURL      string        `mapstructure:"baseURL"`      // Generator endpoint (OpenAI-compatible)
	MaxTokens    int64         `mapstructure:"maxTokens"`    // Completion token cap
	Temperature  float64       `mapstructure:"temperature"`  // Sampling temperature
	SystemPrompt string        `mapstructure:"systemPrompt"` // Default persona when none is configured
	HistoryLimit int           `mapstructure:"historyLimit"` // Prior messages included as chat context
}

// BulkConfig holds configuration for bulk fan-out runs.
type BulkConfig struct {
	MinSendDelay time.Duration `mapstructure:"minSendDelay"` // Minimum delay between recipients
	FallbackText string        `mapstructure:"fallbackText"` // Template used when AI generation returns empty
}

// IngestPoolConfig holds configuration for the sharded inbound dispatcher.
type IngestPoolConfig struct {
	Shards    int `mapstructure:"shards"`    // Number of ordered shard workers
	QueueSize int `mapstructure:"queueSize"` // Per-shard buffer size
}

// SyncWorkerPoolConfig holds configuration for the reconciliation worker pool
type SyncWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to block when submitting if queue full
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// ConsumerNatsConfig holds configuration specific to a NATS consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // max age of messages in day
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name
	QueueGroup   string        `mapstructure:"group"`
	SubjectList  []string      `mapstructure:"subjectList"`
	MaxDeliver   int           `mapstructure:"maxDeliver"`   // Max delivery attempts before DLQ
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"` // Base delay for exponential backoff NAK
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`  // Maximum delay for exponential backoff NAK
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("identity.defaultCountry", "34")

	// Dispatch defaults
	v.SetDefault("dispatch.queueSize", 256)
	v.SetDefault("dispatch.minSendDelay", 350*time.Millisecond)
	v.SetDefault("dispatch.sendTimeout", 30*time.Second)

	// Responder defaults
	v.SetDefault("responder.enabled", true)
	v.SetDefault("responder.timeout", 30*time.Second)
	v.SetDefault("responder.model", "deepseek-chat")
	v.SetDefault("responder.baseURL", "https://api.deepseek.com/v1")
	v.SetDefault("responder.maxTokens", 500)
	v.SetDefault("responder.temperature", 0.7)
	v.SetDefault("responder.historyLimit", 10)

	// Bulk defaults
	v.SetDefault("bulk.minSendDelay", 350*time.Millisecond)
	v.SetDefault("bulk.fallbackText", "Hola {{name}}!")

	// DLQ Worker Defaults
	v.SetDefault("nats.dlqWorkers", 8)
	v.SetDefault("nats.dlqBaseDelayMinutes", 1)
	v.SetDefault("nats.dlqMaxDelayMinutes", 15)

	// WorkerPools Defaults
	v.SetDefault("workerPools.ingest.shards", 16)
	v.SetDefault("workerPools.ingest.queueSize", 256)
	v.SetDefault("workerPools.sync.poolSize", 10)
	v.SetDefault("workerPools.sync.queueSize", 10000)
	v.SetDefault("workerPools.sync.maxBlock", time.Second)   // Default to 1 second block
	v.SetDefault("workerPools.sync.expiryTime", time.Minute) // Default to 1 minute expiry

	// Config file settings
	v.SetConfigName("default") // name of config file (without extension)
	v.SetConfigType("yaml")    // REQUIRED if the config file does not have the extension in the name

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.daisi-wa-dispatch-service")
	v.AddConfigPath("/etc/daisi-wa-dispatch-service")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if company := os.Getenv("COMPANY_ID"); company != "" {
		v.Set("company.id", company)
	}
	if apiKey := os.Getenv("AI_API_KEY"); apiKey != "" {
		v.Set("responder.apiKey", apiKey)
	}
	if baseURL := os.Getenv("AI_BASE_URL"); baseURL != "" {
		v.Set("responder.baseURL", baseURL)
	}
	if bridgeURL := os.Getenv("BRIDGE_URL"); bridgeURL != "" {
		v.Set("dispatch.bridgeURL", bridgeURL)
	}
	if bridgeToken := os.Getenv("BRIDGE_TOKEN"); bridgeToken != "" {
		v.Set("dispatch.bridgeToken", bridgeToken)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
