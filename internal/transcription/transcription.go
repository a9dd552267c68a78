package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"podcastgen/internal/logger"
	"podcastgen/internal/types"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultInstruction  = "Generate a transcript of the speech."
)

// Provider is the remote ASR service.
type Provider interface {
	// Submit registers the asset with the provider and returns its job handle.
	Submit(ctx context.Context, asset types.UploadedAudioAsset) (types.TranscriptionJob, error)
	// Status reports the current state of a job.
	Status(ctx context.Context, jobID string) (types.TranscriptionJob, error)
	// Generate asks the provider for text derived from a processed file.
	Generate(ctx context.Context, uri, mimeType, instruction string) (string, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Client struct {
	provider    Provider
	interval    time.Duration
	instruction string
	sleep       SleepFunc
	log         *logrus.Entry
}

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithInstruction(s string) Option {
	return func(c *Client) {
		if strings.TrimSpace(s) != "" {
			c.instruction = s
		}
	}
}

// WithSleep replaces the wait between polls. Tests use it to skip real delays.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(p Provider, opts ...Option) *Client {
	c := &Client{
		provider:    p,
		interval:    DefaultPollInterval,
		instruction: DefaultInstruction,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Component(nil, "transcription")
	}
	return c
}

// Transcribe submits the asset, waits for the job and reads the transcript.
// It never deletes the local asset.
func (c *Client) Transcribe(ctx context.Context, asset types.UploadedAudioAsset) (string, error) {
	job, err := c.Await(ctx, asset)
	if err != nil {
		return "", err
	}
	return c.Generate(ctx, job)
}

// Await submits the asset and polls until the job reaches a terminal state.
// There is no poll limit here; bound the wall-clock time through ctx.
func (c *Client) Await(ctx context.Context, asset types.UploadedAudioAsset) (types.TranscriptionJob, error) {
	log := c.log.WithFields(logrus.Fields{
		"file":      asset.OriginalName,
		"mime_type": asset.MIMEType,
	})
	log.Info("submitting audio for transcription")

	job, err := c.provider.Submit(ctx, asset)
	if err != nil {
		return types.TranscriptionJob{}, failed("submit", err)
	}
	if job.State == "" {
		job.State = types.JobSubmitted
	}
	log = log.WithField("job_id", job.ID)

	for polls := 1; ; polls++ {
		obs, err := c.provider.Status(ctx, job.ID)
		if err != nil {
			log.WithError(err).Error("transcription status poll failed")
			return job, failed("poll", err)
		}
		if !job.Advance(obs) {
			log.WithField("reported", obs.State).Warn("ignoring backward job state")
		}
		log.WithFields(logrus.Fields{"poll": polls, "state": job.State}).Debug("polled transcription job")

		switch job.State {
		case types.JobSucceeded:
			log.WithField("polls", polls).Info("transcription job ready")
			return job, nil
		case types.JobFailed:
			return job, &types.Error{
				Kind:    types.KindTranscriptionFailed,
				Op:      "transcription.poll",
				Message: fmt.Sprintf("job %s failed", job.ID),
			}
		}

		if err := c.sleep(ctx, c.interval); err != nil {
			return job, failed("poll", err)
		}
	}
}

// Generate reads the transcript of a succeeded job. It makes exactly one
// provider call and is the only step the pipeline wraps in a retry policy.
func (c *Client) Generate(ctx context.Context, job types.TranscriptionJob) (string, error) {
	if job.State != types.JobSucceeded {
		return "", &types.Error{
			Kind:    types.KindTranscriptionFailed,
			Op:      "transcription.generate",
			Message: fmt.Sprintf("job %s is %s", job.ID, job.State),
		}
	}
	text, err := c.provider.Generate(ctx, job.URI, job.MIMEType, c.instruction)
	if err != nil {
		return "", failed("generate", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &types.Error{
			Kind:    types.KindTranscriptionFailed,
			Op:      "transcription.generate",
			Message: "provider returned an empty transcript",
		}
	}
	c.log.WithFields(logrus.Fields{"job_id": job.ID, "chars": len(text)}).Info("transcript received")
	return text, nil
}

// failed wraps a provider error as TranscriptionFailed, keeping the
// provider's transient classification when it supplied one.
func failed(step string, err error) error {
	var e *types.Error
	if errors.As(err, &e) && e.Kind == types.KindTranscriptionFailed {
		return err
	}
	return &types.Error{
		Kind:      types.KindTranscriptionFailed,
		Op:        "transcription." + step,
		Transient: types.IsTransient(err),
		Err:       err,
	}
}
