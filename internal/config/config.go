// Package config loads service settings: built-in defaults, then an optional
// TOML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Server contains HTTP surface and upload settings.
type Server struct {
	Port                  string `toml:"port"`
	PublicDir             string `toml:"public_dir"`
	UploadsDir            string `toml:"uploads_dir"`
	MaxUploadMB           int    `toml:"max_upload_mb"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Gemini configures the transcription provider.
type Gemini struct {
	APIKey              string `toml:"api_key"`
	Model               string `toml:"model"`
	Instruction         string `toml:"instruction"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	// UseMock replaces the provider with a canned transcript.
	UseMock bool `toml:"use_mock"`
}

// ElevenLabs configures speech synthesis and the default voice.
type ElevenLabs struct {
	APIKey                   string   `toml:"api_key"`
	BaseURL                  string   `toml:"base_url"`
	ModelID                  string   `toml:"model_id"`
	VoiceID                  string   `toml:"voice_id"`
	OutputFormat             string   `toml:"output_format"`
	Stability                *float64 `toml:"stability"`
	SimilarityBoost          *float64 `toml:"similarity_boost"`
	Style                    *float64 `toml:"style"`
	UseSpeakerBoost          *bool    `toml:"use_speaker_boost"`
	OptimizeStreamingLatency *int     `toml:"optimize_streaming_latency"`
	TimeoutSeconds           int      `toml:"timeout_seconds"`
}

// Pipeline holds orchestration limits.
type Pipeline struct {
	MaxTranscriptChars int    `toml:"max_transcript_chars"`
	RetryAttempts      int    `toml:"retry_attempts"`
	RetryBaseSeconds   int    `toml:"retry_base_seconds"`
	WorkDir            string `toml:"work_dir"`
	FFmpegPath         string `toml:"ffmpeg_path"`
	BatchWorkers       int    `toml:"batch_workers"`
}

// Storage selects where finished artifacts go.
type Storage struct {
	Backend     string `toml:"backend"` // local | s3
	S3Bucket    string `toml:"s3_bucket"`
	S3Prefix    string `toml:"s3_prefix"`
	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3PublicURL string `toml:"s3_public_url"`
	S3PathStyle bool   `toml:"s3_path_style"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
}

// Registry selects where run records are kept.
type Registry struct {
	Backend string `toml:"backend"` // badger | memory | none
	Dir     string `toml:"dir"`
}

type Config struct {
	Server     Server     `toml:"server"`
	Gemini     Gemini     `toml:"gemini"`
	ElevenLabs ElevenLabs `toml:"elevenlabs"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Storage    Storage    `toml:"storage"`
	Registry   Registry   `toml:"registry"`
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Gemini.PollIntervalSeconds) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Pipeline.RetryBaseSeconds) * time.Second
}

func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.ElevenLabs.TimeoutSeconds) * time.Second
}
