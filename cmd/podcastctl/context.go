package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"podcastgen/internal/app"
	"podcastgen/internal/config"
	"podcastgen/internal/logger"
	"podcastgen/internal/registry"
	"podcastgen/internal/storage"
	"podcastgen/internal/types"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// build is swapped in tests.
	build func(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*app.App, error)
	log   *logrus.Entry
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		build:      app.Build,
		log:        logger.NewWithOutput(os.Stderr).Entry,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = os.Getenv("PODCAST_CONFIG")
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	a, err := c.build(ctx, cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.log.WithError(err).Warn("close failed")
		}
	}()
	return fn(a)
}

// withRuns opens the run registry and artifact store without building the
// pipeline, so no provider credentials are needed.
func (c *commandContext) withRuns(ctx context.Context, fn func(*registry.Registry, storage.ArtifactStore) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	reg, closeReg, err := app.OpenRegistry(cfg.Registry, c.log)
	if err != nil {
		return err
	}
	defer closeReg()
	if reg == nil {
		return errors.New("run registry is disabled (registry.backend = none)")
	}
	store, err := app.NewStore(ctx, cfg.Storage, cfg.Server.PublicDir)
	if err != nil {
		return err
	}
	return fn(reg, store)
}

// stageAudio copies src into dir so the pipeline can consume and delete the
// copy while the caller's file stays untouched.
func stageAudio(src, dir string) (types.UploadedAudioAsset, error) {
	ext := strings.ToLower(filepath.Ext(src))
	mimeType := audioMIME(ext)
	if !types.IsAllowedAudioMIME(mimeType) {
		return types.UploadedAudioAsset{}, fmt.Errorf("unsupported audio file %q", filepath.Base(src))
	}

	in, err := os.Open(src)
	if err != nil {
		return types.UploadedAudioAsset{}, err
	}
	defer in.Close()

	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "upload-"+uuid.NewString()+ext)
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return types.UploadedAudioAsset{}, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return types.UploadedAudioAsset{}, fmt.Errorf("stage %s: %w", src, err)
	}
	return types.UploadedAudioAsset{
		Path:         path,
		MIMEType:     mimeType,
		OriginalName: filepath.Base(src),
		Size:         n,
	}, nil
}

func audioMIME(ext string) string {
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	}
	return mime.TypeByExtension(ext)
}
