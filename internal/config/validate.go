package config

import (
	"errors"
	"fmt"
)

// Validate checks the settings every binary relies on. Provider keys are
// checked separately with RequireGemini and RequireElevenLabs since not
// every command talks to both providers.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Pipeline.MaxTranscriptChars <= 0 {
		return fmt.Errorf("pipeline.max_transcript_chars must be positive, got %d", c.Pipeline.MaxTranscriptChars)
	}
	if c.Pipeline.RetryAttempts < 1 {
		return fmt.Errorf("pipeline.retry_attempts must be at least 1, got %d", c.Pipeline.RetryAttempts)
	}
	if c.Pipeline.RetryBaseSeconds < 1 {
		return fmt.Errorf("pipeline.retry_base_seconds must be at least 1, got %d", c.Pipeline.RetryBaseSeconds)
	}
	if c.Gemini.PollIntervalSeconds < 1 {
		return fmt.Errorf("gemini.poll_interval_seconds must be at least 1, got %d", c.Gemini.PollIntervalSeconds)
	}
	for name, v := range map[string]*float64{
		"stability":        c.ElevenLabs.Stability,
		"similarity_boost": c.ElevenLabs.SimilarityBoost,
		"style":            c.ElevenLabs.Style,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("elevenlabs.%s must be between 0 and 1, got %v", name, *v)
		}
	}
	if l := c.ElevenLabs.OptimizeStreamingLatency; l != nil && (*l < 0 || *l > 4) {
		return fmt.Errorf("elevenlabs.optimize_streaming_latency must be between 0 and 4, got %d", *l)
	}

	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return errors.New("storage.s3_bucket is required for the s3 backend")
		}
		if c.Storage.S3Region == "" {
			return errors.New("storage.s3_region is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or s3, got %q", c.Storage.Backend)
	}

	switch c.Registry.Backend {
	case "memory", "none":
	case "badger":
		if c.Registry.Dir == "" {
			return errors.New("registry.dir is required for the badger backend")
		}
	default:
		return fmt.Errorf("registry.backend must be badger, memory or none, got %q", c.Registry.Backend)
	}
	return nil
}

func (c *Config) RequireGemini() error {
	if c.Gemini.UseMock || c.Gemini.APIKey != "" {
		return nil
	}
	return errors.New("GEMINI_API_KEY is required (or set USE_MOCK_TRANSCRIBE=true)")
}

func (c *Config) RequireElevenLabs() error {
	if c.ElevenLabs.APIKey == "" {
		return errors.New("ELEVENLABS_XI_API_KEY is required")
	}
	return nil
}
