package config

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDefaults(t *testing.T) {
	t.Setenv("RUNPOD_DIARIZATION_URL", "https://api.runpod.ai/v2/diar")
	t.Setenv("RUNPOD_TRANSCRIPTION_URL", "https://api.runpod.ai/v2/voxtral")
	t.Setenv("LLM_API_KEY", "key")

	var cfg Config
	require.NoError(t, envconfig.Process("", &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.RunPod.PollInterval)
	assert.Equal(t, time.Hour, cfg.RunPod.DiarizationMaxWait)
	assert.Equal(t, 100000, cfg.Pipeline.BatchTokenBudget)
	assert.Equal(t, 100, cfg.Pipeline.TokensPerSecond)
	assert.Equal(t, 3, cfg.Pipeline.StageAttempts)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-9)
	assert.Zero(t, cfg.Pipeline.TranscriptionTemp)
	assert.Equal(t, int64(524288000), cfg.Server.MaxUploadBytes)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
}

func TestProcessTranscriptionTemperature(t *testing.T) {
	t.Setenv("PIPELINE_TRANSCRIPTION_TEMPERATURE", "0.2")

	var cfg Config
	require.NoError(t, envconfig.Process("", &cfg))
	assert.InDelta(t, 0.2, cfg.Pipeline.TranscriptionTemp, 1e-9)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	base := func() Config {
		return Config{
			Store:    StoreConfig{Driver: "memory"},
			RunPod:   RunPodConfig{DiarizationBackend: "runpod", DiarizationURL: "u", TranscriptionURL: "t"},
			LLM:      LLMConfig{APIKey: "k", ContextTokens: 1000},
			Pipeline: PipelineConfig{BatchTokenBudget: 10, TokensPerSecond: 1, TranscriptionWorkers: 1, StageAttempts: 1},
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Store.Driver = "mongo"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.RunPod.DiarizationBackend = "assemblyai"
	assert.Error(t, cfg.Validate(), "assemblyai backend needs an API key")

	cfg = base()
	cfg.Pipeline.TranscriptionWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Pipeline.TranscriptionTemp = 2.5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.Environment = "production"
	cfg.Download.Secret = "change-me-in-production"
	assert.Error(t, cfg.Validate())
}
