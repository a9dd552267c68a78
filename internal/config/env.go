package config

import (
	"fmt"
	"strconv"
	"strings"
)

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables. Blank values are ignored so an
// empty line in .env does not wipe a file setting.
func (c *Config) applyEnv(lookup lookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(dst *string, key string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	str(&c.Server.Port, "PORT")
	str(&c.Server.PublicDir, "PUBLIC_DIR")
	str(&c.Server.UploadsDir, "UPLOADS_DIR")

	str(&c.Gemini.APIKey, "GEMINI_API_KEY")
	str(&c.Gemini.Model, "GEMINI_MODEL")

	str(&c.ElevenLabs.APIKey, "ELEVENLABS_XI_API_KEY")
	str(&c.ElevenLabs.ModelID, "ELEVENLABS_MODEL_ID")
	str(&c.ElevenLabs.VoiceID, "ELEVENLABS_VOICE_ID")
	str(&c.ElevenLabs.OutputFormat, "ELEVENLABS_OUTPUT_FORMAT")

	str(&c.Pipeline.WorkDir, "WORK_DIR")
	str(&c.Pipeline.FFmpegPath, "FFMPEG_PATH")

	str(&c.Storage.Backend, "STORAGE_BACKEND")
	str(&c.Storage.S3Bucket, "S3_BUCKET")
	str(&c.Storage.S3Prefix, "S3_PREFIX")
	str(&c.Storage.S3Region, "S3_REGION")
	str(&c.Storage.S3Endpoint, "S3_ENDPOINT")
	str(&c.Storage.S3PublicURL, "S3_PUBLIC_URL")
	str(&c.Storage.S3AccessKey, "S3_ACCESS_KEY_ID")
	str(&c.Storage.S3SecretKey, "S3_SECRET_ACCESS_KEY")

	str(&c.Registry.Backend, "REGISTRY_BACKEND")
	str(&c.Registry.Dir, "REGISTRY_DIR")

	floats := []struct {
		key string
		dst **float64
	}{
		{"ELEVENLABS_VOICE_STABILITY", &c.ElevenLabs.Stability},
		{"ELEVENLABS_VOICE_SIMILARITY_BOOST", &c.ElevenLabs.SimilarityBoost},
		{"ELEVENLABS_VOICE_STYLE", &c.ElevenLabs.Style},
	}
	for _, f := range floats {
		if v, ok := get(f.key); ok {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = &n
		}
	}

	if v, ok := get("ELEVENLABS_VOICE_USE_SPEAKER_BOOST"); ok {
		b := v == "true"
		c.ElevenLabs.UseSpeakerBoost = &b
	}
	if v, ok := get("ELEVENLABS_OPTIMIZE_STREAMING_LATENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ELEVENLABS_OPTIMIZE_STREAMING_LATENCY: %w", err)
		}
		c.ElevenLabs.OptimizeStreamingLatency = &n
	}
	if v, ok := get("USE_MOCK_TRANSCRIBE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("USE_MOCK_TRANSCRIBE: %w", err)
		}
		c.Gemini.UseMock = b
	}
	if v, ok := get("S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("S3_PATH_STYLE: %w", err)
		}
		c.Storage.S3PathStyle = b
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_UPLOAD_MB", &c.Server.MaxUploadMB},
		{"REQUEST_TIMEOUT_SECONDS", &c.Server.RequestTimeoutSeconds},
		{"POLL_INTERVAL_SECONDS", &c.Gemini.PollIntervalSeconds},
		{"MAX_TRANSCRIPT_CHARS", &c.Pipeline.MaxTranscriptChars},
		{"RETRY_ATTEMPTS", &c.Pipeline.RetryAttempts},
		{"BATCH_WORKERS", &c.Pipeline.BatchWorkers},
	}
	for _, i := range ints {
		if v, ok := get(i.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", i.key, err)
			}
			*i.dst = n
		}
	}
	return nil
}
