// Package app assembles the pipeline from configuration. Both the HTTP
// service and podcastctl build their dependencies here.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"podcastgen/internal/audio"
	"podcastgen/internal/config"
	"podcastgen/internal/conversation"
	"podcastgen/internal/kv"
	"podcastgen/internal/logger"
	"podcastgen/internal/pipeline"
	"podcastgen/internal/processor"
	"podcastgen/internal/registry"
	"podcastgen/internal/retry"
	"podcastgen/internal/storage"
	"podcastgen/internal/synthesis"
	"podcastgen/internal/transcription"
	"podcastgen/internal/types"
)

// App holds the wired components. Close releases the registry store.
type App struct {
	Config       *config.Config
	Orchestrator *pipeline.Orchestrator
	Processor    *processor.Processor
	Registry     *registry.Registry
	Store        storage.ArtifactStore

	closers []func() error
}

// Build wires every component described by cfg. Provider credentials are
// checked here, so a misconfigured service fails at startup instead of on
// the first request.
func Build(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*App, error) {
	if err := cfg.RequireGemini(); err != nil {
		return nil, err
	}
	if err := cfg.RequireElevenLabs(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}

	provider, err := newTranscriptionProvider(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	transcriber := transcription.New(provider,
		transcription.WithPollInterval(cfg.PollInterval()),
		transcription.WithInstruction(cfg.Gemini.Instruction),
		transcription.WithLogger(log),
	)

	synth := synthesis.New(synthesis.Config{
		BaseURL:                 cfg.ElevenLabs.BaseURL,
		APIKey:                  cfg.ElevenLabs.APIKey,
		ModelID:                 cfg.ElevenLabs.ModelID,
		Timeout:                 cfg.SynthesisTimeout(),
		DefaultSettings:         voiceSettings(cfg.ElevenLabs),
		DefaultOutputFormat:     cfg.ElevenLabs.OutputFormat,
		DefaultStreamingLatency: cfg.ElevenLabs.OptimizeStreamingLatency,
	}, log)

	segmenter, err := conversation.NewSegmenter(types.SpeakerHost1, types.SpeakerHost2)
	if err != nil {
		return nil, err
	}

	if cfg.Pipeline.WorkDir != "" {
		if err := os.MkdirAll(cfg.Pipeline.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("work dir: %w", err)
		}
	}

	store, err := NewStore(ctx, cfg.Storage, cfg.Server.PublicDir)
	if err != nil {
		return nil, err
	}
	a.Store = store

	// The registry is bookkeeping only. Another process holding the badger
	// lock must not keep the pipeline from starting.
	reg, closeReg, err := OpenRegistry(cfg.Registry, log)
	if err != nil {
		logger.Component(log, "app").WithError(err).Warn("run registry unavailable, recording runs in memory")
		mem := kv.NewMemory()
		reg, closeReg = registry.New(mem), mem.Close
	}
	a.Registry = reg
	a.closers = append(a.closers, closeReg)

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Pipeline.RetryAttempts
	policy.BaseDelay = cfg.RetryBaseDelay()

	orch, err := pipeline.New(pipeline.Deps{
		Transcriber:        transcriber,
		Synthesizer:        synth,
		Segmenter:          segmenter,
		Concatenator:       audio.NewConcatenator(cfg.Pipeline.FFmpegPath, cfg.Pipeline.WorkDir, log),
		Store:              store,
		Registry:           reg,
		Retry:              policy,
		WorkDir:            cfg.Pipeline.WorkDir,
		DefaultVoice:       types.VoiceProfile{ID: cfg.ElevenLabs.VoiceID},
		MaxTranscriptChars: cfg.Pipeline.MaxTranscriptChars,
		MaxUploadBytes:     cfg.MaxUploadBytes(),
		Log:                log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Orchestrator = orch
	a.Processor = processor.New(orch, cfg.RequestTimeout(), log)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newTranscriptionProvider(ctx context.Context, cfg *config.Config, log *logrus.Entry) (transcription.Provider, error) {
	if cfg.Gemini.UseMock {
		logger.Component(log, "app").Warn("using mock transcription provider")
		return transcription.MockProvider{}, nil
	}
	p, err := transcription.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return p, nil
}

// voiceSettings returns nil when no setting is configured so requests omit
// voice_settings entirely.
func voiceSettings(c config.ElevenLabs) *types.VoiceSettings {
	if c.Stability == nil && c.SimilarityBoost == nil && c.Style == nil && c.UseSpeakerBoost == nil {
		return nil
	}
	return &types.VoiceSettings{
		Stability:       c.Stability,
		SimilarityBoost: c.SimilarityBoost,
		Style:           c.Style,
		UseSpeakerBoost: c.UseSpeakerBoost,
	}
}

// NewStore returns the artifact store selected by c.
func NewStore(ctx context.Context, c config.Storage, publicDir string) (storage.ArtifactStore, error) {
	switch c.Backend {
	case "s3":
		awsCfg, err := loadAWSConfig(ctx, c)
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = c.S3PathStyle
			if c.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(c.S3Endpoint)
			}
		})
		return storage.NewS3(client, c.S3Bucket, c.S3Prefix, c.S3PublicURL), nil
	default:
		return storage.NewLocal(publicDir, "/public")
	}
}

// loadAWSConfig pins static credentials when an access key is configured and
// otherwise leaves the SDK default chain (env, shared files, IMDS) in place.
func loadAWSConfig(ctx context.Context, c config.Storage) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.S3Region)}
	if c.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.S3AccessKey, c.S3SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws config: %w", err)
	}
	return cfg, nil
}

// OpenRegistry opens the run registry selected by c. The "none" backend
// yields a nil registry and a no-op close.
func OpenRegistry(c config.Registry, log *logrus.Entry) (*registry.Registry, func() error, error) {
	var store kv.Store
	switch c.Backend {
	case "none":
		return nil, func() error { return nil }, nil
	case "memory":
		store = kv.NewMemory()
	default:
		if err := os.MkdirAll(c.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("registry dir: %w", err)
		}
		db, err := kv.NewBadger(kv.BadgerOptions{Dir: c.Dir, Log: logger.Component(log, "badger")})
		if err != nil {
			return nil, nil, fmt.Errorf("open registry %s (is another podcastgen process using it?): %w", c.Dir, err)
		}
		store = db
	}
	return registry.New(store), store.Close, nil
}
