package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig     `envconfig:"SERVER"`
	Database   DatabaseConfig   `envconfig:"DB"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Storage    StorageConfig    `envconfig:"STORAGE"`
	Store      StoreConfig      `envconfig:"STORE"`
	RunPod     RunPodConfig     `envconfig:"RUNPOD"`
	AssemblyAI AssemblyAIConfig `envconfig:"ASSEMBLYAI"`
	LLM        LLMConfig        `envconfig:"LLM"`
	Pipeline   PipelineConfig   `envconfig:"PIPELINE"`
	Media      MediaConfig      `envconfig:"MEDIA"`
	Download   DownloadConfig   `envconfig:"DOWNLOAD"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	Environment     string        `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"524288000"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"5432"`
	User     string `envconfig:"USER" default:"postgres"`
	Password string `envconfig:"PASSWORD" default:"postgres"`
	Name     string `envconfig:"NAME" default:"meeting_minutes"`
	SSLMode  string `envconfig:"SSLMODE" default:"disable"`
	MaxConns int    `envconfig:"MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"MIN_CONNS" default:"5"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string        `envconfig:"ENDPOINT" default:"localhost:9000"`
	AccessKeyID     string        `envconfig:"ACCESS_KEY" default:"minioadmin"`
	SecretAccessKey string        `envconfig:"SECRET_KEY" default:"minioadmin"`
	BucketName      string        `envconfig:"BUCKET" default:"meeting-minutes"`
	UseSSL          bool          `envconfig:"USE_SSL" default:"false"`
	PublicURL       string        `envconfig:"PUBLIC_URL"`
	PresignExpiry   time.Duration `envconfig:"PRESIGN_EXPIRY" default:"24h"`
}

// StoreConfig selects the processing context store backend
type StoreConfig struct {
	Driver string `envconfig:"DRIVER" default:"postgres"`
}

// RunPodConfig holds the asynchronous GPU job endpoints
type RunPodConfig struct {
	APIKey               string        `envconfig:"API_KEY"`
	DiarizationURL       string        `envconfig:"DIARIZATION_URL"`
	TranscriptionURL     string        `envconfig:"TRANSCRIPTION_URL"`
	DiarizationBackend   string        `envconfig:"DIARIZATION_BACKEND" default:"runpod"`
	DiarizationModel     string        `envconfig:"DIARIZATION_MODEL" default:"pyannote/speaker-diarization-3.1"`
	TranscriptionModel   string        `envconfig:"TRANSCRIPTION_MODEL" default:"voxtral-small-latest"`
	PollInterval         time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	DiarizationMaxWait   time.Duration `envconfig:"DIARIZATION_MAX_WAIT" default:"1h"`
	TranscriptionMaxWait time.Duration `envconfig:"TRANSCRIPTION_MAX_WAIT" default:"30m"`
	RequestTimeout       time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// AssemblyAIConfig holds the optional AssemblyAI diarization backend
type AssemblyAIConfig struct {
	APIKey string `envconfig:"API_KEY"`
}

// LLMConfig holds the chat completion service configuration
type LLMConfig struct {
	BaseURL        string        `envconfig:"BASE_URL" default:"https://api.groq.com/openai/v1"`
	APIKey         string        `envconfig:"API_KEY"`
	Model          string        `envconfig:"MODEL" default:"llama-3.3-70b-versatile"`
	MaxTokens      int           `envconfig:"MAX_TOKENS" default:"4096"`
	Temperature    float64       `envconfig:"TEMPERATURE" default:"0.3"`
	ContextTokens  int           `envconfig:"CONTEXT_TOKENS" default:"24000"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"120s"`
}

// PipelineConfig holds orchestration limits
type PipelineConfig struct {
	BatchTokenBudget     int           `envconfig:"BATCH_TOKEN_BUDGET" default:"100000"`
	TokensPerSecond      int           `envconfig:"TOKENS_PER_SECOND" default:"100"`
	TranscriptionWorkers int           `envconfig:"TRANSCRIPTION_WORKERS" default:"2"`
	TranscriptionPrompt  string        `envconfig:"TRANSCRIPTION_PROMPT" default:"Transcribe this meeting segment verbatim."`
	TranscriptionTemp    float64       `envconfig:"TRANSCRIPTION_TEMPERATURE" default:"0"`
	StageAttempts        int           `envconfig:"STAGE_ATTEMPTS" default:"3"`
	RetryInitialInterval time.Duration `envconfig:"RETRY_INITIAL_INTERVAL" default:"2s"`
	RetryMaxInterval     time.Duration `envconfig:"RETRY_MAX_INTERVAL" default:"30s"`
	LeaseTTL             time.Duration `envconfig:"LEASE_TTL" default:"10m"`
	ResumeInterval       time.Duration `envconfig:"RESUME_INTERVAL" default:"1m"`
	MaxResumes           int           `envconfig:"MAX_RESUMES" default:"0"`
	MergeGap             float64       `envconfig:"MERGE_GAP" default:"0"`
}

// MediaConfig holds audio normalization settings
type MediaConfig struct {
	FFmpegPath         string `envconfig:"FFMPEG_PATH"`
	WorkDir            string `envconfig:"WORK_DIR"`
	MaxNormalizedBytes int64  `envconfig:"MAX_NORMALIZED_BYTES" default:"524288000"`
}

// DownloadConfig holds signed download link settings
type DownloadConfig struct {
	Secret string        `envconfig:"SECRET" default:"change-me-in-production"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"24h"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	config, err := Read()
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Read loads configuration without the cross-field checks of Validate. Tools that
// only touch the database (migrations) use it.
func Read() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, postgres, redis (got %q)", c.Store.Driver)
	}

	switch c.RunPod.DiarizationBackend {
	case "runpod":
		if c.RunPod.DiarizationURL == "" {
			return fmt.Errorf("RUNPOD_DIARIZATION_URL is required for the runpod diarization backend")
		}
	case "assemblyai":
		if c.AssemblyAI.APIKey == "" {
			return fmt.Errorf("ASSEMBLYAI_API_KEY is required for the assemblyai diarization backend")
		}
	default:
		return fmt.Errorf("RUNPOD_DIARIZATION_BACKEND must be runpod or assemblyai (got %q)", c.RunPod.DiarizationBackend)
	}

	if c.RunPod.TranscriptionURL == "" {
		return fmt.Errorf("RUNPOD_TRANSCRIPTION_URL is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Pipeline.BatchTokenBudget <= 0 || c.Pipeline.TokensPerSecond <= 0 {
		return fmt.Errorf("PIPELINE_BATCH_TOKEN_BUDGET and PIPELINE_TOKENS_PER_SECOND must be positive")
	}
	if c.LLM.ContextTokens <= 0 {
		return fmt.Errorf("LLM_CONTEXT_TOKENS must be positive")
	}
	if c.Pipeline.TranscriptionTemp < 0 || c.Pipeline.TranscriptionTemp > 2 {
		return fmt.Errorf("PIPELINE_TRANSCRIPTION_TEMPERATURE must be between 0 and 2")
	}
	if c.Pipeline.TranscriptionWorkers < 1 {
		return fmt.Errorf("PIPELINE_TRANSCRIPTION_WORKERS must be at least 1")
	}
	if c.Pipeline.StageAttempts < 1 {
		return fmt.Errorf("PIPELINE_STAGE_ATTEMPTS must be at least 1")
	}
	if c.IsProduction() && c.Download.Secret == "change-me-in-production" {
		return fmt.Errorf("DOWNLOAD_SECRET must be set in production")
	}

	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}
