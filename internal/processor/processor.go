// Package processor is the request-level facade over the pipeline. It turns
// workflow outcomes into the {success, audio, transcript, message} shape the
// API returns, with an HTTP status per error kind.
package processor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"podcastgen/internal/logger"
	"podcastgen/internal/pipeline"
	"podcastgen/internal/types"
)

// Workflows is satisfied by *pipeline.Orchestrator.
type Workflows interface {
	Transcribe(ctx context.Context, asset types.UploadedAudioAsset) (pipeline.TranscriptResult, error)
	TextToPodcast(ctx context.Context, text string, voice types.VoiceProfile) (pipeline.PodcastResult, error)
	ConversationToPodcast(ctx context.Context, script string, voices map[string]types.VoiceProfile) (pipeline.PodcastResult, error)
	AudioToPodcast(ctx context.Context, asset types.UploadedAudioAsset, voice types.VoiceProfile) (pipeline.PodcastResult, error)
}

// Result is returned by every processor call and encoded as the API body.
type Result struct {
	Success    bool            `json:"success"`
	Audio      string          `json:"audio,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Message    string          `json:"message,omitempty"`
	Kind       types.ErrorKind `json:"kind,omitempty"`
	RunID      string          `json:"run_id,omitempty"`
	DurationMs int64           `json:"duration_ms"`

	// Status is the HTTP status matching the outcome.
	Status int   `json:"-"`
	Err    error `json:"-"`
}

type Processor struct {
	wf      Workflows
	timeout time.Duration
	log     *logrus.Entry
}

// New returns a Processor. A positive timeout bounds every workflow.
func New(wf Workflows, timeout time.Duration, log *logrus.Entry) *Processor {
	return &Processor{wf: wf, timeout: timeout, log: logger.Component(log, "processor")}
}

func (p *Processor) Transcribe(ctx context.Context, asset types.UploadedAudioAsset) Result {
	return p.run(ctx, func(ctx context.Context) (Result, error) {
		res, err := p.wf.Transcribe(ctx, asset)
		return Result{RunID: res.RunID, Transcript: res.Transcript}, err
	})
}

func (p *Processor) Text(ctx context.Context, text string, voice types.VoiceProfile) Result {
	return p.run(ctx, func(ctx context.Context) (Result, error) {
		res, err := p.wf.TextToPodcast(ctx, text, voice)
		return Result{RunID: res.RunID, Audio: res.Artifact.PublicPath}, err
	})
}

// Conversation voices "Host 1" with voice1 and "Host 2" with voice2.
func (p *Processor) Conversation(ctx context.Context, script string, voice1, voice2 types.VoiceProfile) Result {
	voices := map[string]types.VoiceProfile{
		types.SpeakerHost1: voice1,
		types.SpeakerHost2: voice2,
	}
	return p.run(ctx, func(ctx context.Context) (Result, error) {
		res, err := p.wf.ConversationToPodcast(ctx, script, voices)
		return Result{RunID: res.RunID, Audio: res.Artifact.PublicPath}, err
	})
}

func (p *Processor) Audio(ctx context.Context, asset types.UploadedAudioAsset, voice types.VoiceProfile) Result {
	return p.run(ctx, func(ctx context.Context) (Result, error) {
		res, err := p.wf.AudioToPodcast(ctx, asset, voice)
		return Result{RunID: res.RunID, Audio: res.Artifact.PublicPath, Transcript: res.Transcript}, err
	})
}

func (p *Processor) run(ctx context.Context, fn func(context.Context) (Result, error)) Result {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := fn(ctx)
	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Audio = ""
		res.Success = false
		res.Err = err
		res.Kind = kindOf(err)
		res.Message = message(err)
		res.Status = StatusFor(res.Kind)
		p.log.WithError(err).WithFields(logrus.Fields{"run_id": res.RunID, "kind": res.Kind}).Warn("request failed")
		return res
	}
	res.Success = true
	res.Status = http.StatusOK
	return res
}

// StatusFor maps an error kind to the HTTP status the API responds with.
func StatusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindInvalidInput:
		return http.StatusBadRequest
	case types.KindSynthesisFailed, types.KindTranscriptionFailed:
		return http.StatusBadGateway
	case types.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// kindOf treats a deadline hit by the workflow timeout as the provider
// being unavailable.
func kindOf(err error) types.ErrorKind {
	if _, ok := types.AsError(err); !ok && errors.Is(err, context.DeadlineExceeded) {
		return types.KindProviderUnavailable
	}
	return types.KindOf(err)
}

func message(err error) string {
	if _, ok := types.AsError(err); !ok && errors.Is(err, context.DeadlineExceeded) {
		return "The request took too long to complete. Please try again."
	}
	return types.UserMessage(err)
}
