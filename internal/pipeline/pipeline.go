// Package pipeline composes transcription, synthesis, segmentation and
// concatenation into the podcast workflows served by the API and the CLI.
//
// Every workflow owns the temporary files it touches: the uploaded asset of
// an audio workflow and the per-turn segment files of a conversation are
// removed before the workflow returns, whatever the outcome. Cleanup
// failures are logged and never replace the workflow's own result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"podcastgen/internal/logger"
	"podcastgen/internal/registry"
	"podcastgen/internal/retry"
	"podcastgen/internal/storage"
	"podcastgen/internal/types"
)

const (
	DefaultMaxTranscriptChars       = 5000
	DefaultMaxUploadBytes     int64 = 10 << 20
)

// Transcriber is satisfied by *transcription.Client.
type Transcriber interface {
	Await(ctx context.Context, asset types.UploadedAudioAsset) (types.TranscriptionJob, error)
	Generate(ctx context.Context, job types.TranscriptionJob) (string, error)
}

// Synthesizer is satisfied by *synthesis.Client.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error)
}

// Segmenter is satisfied by *conversation.Segmenter.
type Segmenter interface {
	Segment(script string) ([]types.ConversationTurn, error)
}

// Concatenator is satisfied by *audio.Concatenator.
type Concatenator interface {
	Concatenate(ctx context.Context, segments []types.AudioSegment) ([]byte, error)
}

// Deps is everything an Orchestrator needs. Registry is optional.
type Deps struct {
	Transcriber  Transcriber
	Synthesizer  Synthesizer
	Segmenter    Segmenter
	Concatenator Concatenator
	Store        storage.ArtifactStore
	Registry     *registry.Registry
	Retry        retry.Policy

	// WorkDir receives per-run segment directories. Empty means os.TempDir().
	WorkDir string
	// DefaultVoice is used when a request does not name a voice.
	DefaultVoice types.VoiceProfile

	MaxTranscriptChars int
	MaxUploadBytes     int64

	Log *logrus.Entry
}

// Orchestrator runs the workflows. It keeps no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	deps Deps
	log  *logrus.Entry

	removeFile func(string) error
	newID      func() string
	now        func() time.Time
}

func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber is required")
	case d.Synthesizer == nil:
		return nil, errors.New("pipeline: synthesizer is required")
	case d.Segmenter == nil:
		return nil, errors.New("pipeline: segmenter is required")
	case d.Concatenator == nil:
		return nil, errors.New("pipeline: concatenator is required")
	case d.Store == nil:
		return nil, errors.New("pipeline: artifact store is required")
	}
	if d.MaxTranscriptChars <= 0 {
		d.MaxTranscriptChars = DefaultMaxTranscriptChars
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if d.Retry.MaxAttempts == 0 {
		p := retry.DefaultPolicy()
		p.NewTimer = d.Retry.NewTimer
		d.Retry = p
	}
	if d.WorkDir == "" {
		d.WorkDir = os.TempDir()
	}
	log := logger.Component(d.Log, "pipeline")
	if d.Retry.Log == nil {
		d.Retry.Log = logger.Component(d.Log, "retry")
	}
	return &Orchestrator{
		deps:       d,
		log:        log,
		removeFile: os.Remove,
		newID:      uuid.NewString,
		now:        time.Now,
	}, nil
}

// TranscriptResult is the outcome of the Audio -> Transcript workflow.
type TranscriptResult struct {
	RunID      string
	Transcript string
}

// PodcastResult is the outcome of the workflows that produce audio.
// Transcript is set only by AudioToPodcast.
type PodcastResult struct {
	RunID      string
	Artifact   types.PodcastArtifact
	Transcript string
}

// Transcribe turns an uploaded recording into text. The asset file is
// deleted on every exit path.
func (o *Orchestrator) Transcribe(ctx context.Context, asset types.UploadedAudioAsset) (TranscriptResult, error) {
	run := o.begin(ctx, registry.WorkflowTranscribe)
	text, err := o.transcribe(ctx, run, asset)
	run.finish(ctx, nil, err)
	return TranscriptResult{RunID: run.id, Transcript: text}, err
}

// TextToPodcast synthesizes text with voice and stores the audio. An empty
// voice ID falls back to the configured default voice.
func (o *Orchestrator) TextToPodcast(ctx context.Context, text string, voice types.VoiceProfile) (PodcastResult, error) {
	run := o.begin(ctx, registry.WorkflowText)
	res := PodcastResult{RunID: run.id}

	voice = o.voice(voice)
	if err := o.validateText(text, voice); err != nil {
		run.finish(ctx, nil, err)
		return res, err
	}
	run.start(ctx)

	art, err := o.textToArtifact(ctx, run, text, voice)
	if err != nil {
		run.finish(ctx, nil, err)
		return res, err
	}
	run.finish(ctx, &art, nil)
	res.Artifact = art
	return res, nil
}

// ConversationToPodcast segments script into turns, synthesizes each turn
// with the voice mapped to its speaker label, and stores the merged audio.
func (o *Orchestrator) ConversationToPodcast(ctx context.Context, script string, voices map[string]types.VoiceProfile) (PodcastResult, error) {
	run := o.begin(ctx, registry.WorkflowConversation)
	res := PodcastResult{RunID: run.id}

	turns, err := o.deps.Segmenter.Segment(script)
	if err == nil {
		err = o.validateTurns(turns, voices)
	}
	if err != nil {
		run.finish(ctx, nil, err)
		return res, err
	}
	run.start(ctx)

	art, err := o.conversationToArtifact(ctx, run, turns, voices)
	if err != nil {
		run.finish(ctx, nil, err)
		return res, err
	}
	run.finish(ctx, &art, nil)
	res.Artifact = art
	return res, nil
}

// AudioToPodcast transcribes the asset and voices the transcript. The
// transcript returned is exactly the text that was synthesized.
func (o *Orchestrator) AudioToPodcast(ctx context.Context, asset types.UploadedAudioAsset, voice types.VoiceProfile) (PodcastResult, error) {
	run := o.begin(ctx, registry.WorkflowAudio)
	res := PodcastResult{RunID: run.id}

	voice = o.voice(voice)
	if voice.ID == "" {
		o.discardAsset(run.log, asset)
		err := types.InvalidInput("pipeline.audio", "voice id is required")
		run.finish(ctx, nil, err)
		return res, err
	}

	text, err := o.transcribe(ctx, run, asset)
	if err != nil {
		run.finish(ctx, nil, err)
		return res, err
	}
	res.Transcript = text
	if err := o.validateText(text, voice); err != nil {
		run.finish(ctx, nil, err)
		return res, err
	}

	art, err := o.textToArtifact(ctx, run, text, voice)
	if err != nil {
		run.finish(ctx, nil, err)
		return res, err
	}
	run.finish(ctx, &art, nil)
	res.Artifact = art
	return res, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, run *tracker, asset types.UploadedAudioAsset) (string, error) {
	defer o.discardAsset(run.log, asset)

	if err := o.validateAsset(asset); err != nil {
		return "", err
	}
	run.start(ctx)

	job, err := o.deps.Transcriber.Await(ctx, asset)
	if err != nil {
		return "", err
	}
	return retry.Value(ctx, o.deps.Retry, "transcription.generate", func(ctx context.Context) (string, error) {
		return o.deps.Transcriber.Generate(ctx, job)
	})
}

func (o *Orchestrator) synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	return retry.Value(ctx, o.deps.Retry, "synthesis.synthesize", func(ctx context.Context) ([]byte, error) {
		return o.deps.Synthesizer.Synthesize(ctx, text, voice)
	})
}

func (o *Orchestrator) textToArtifact(ctx context.Context, run *tracker, text string, voice types.VoiceProfile) (types.PodcastArtifact, error) {
	data, err := o.synthesize(ctx, text, voice)
	if err != nil {
		return types.PodcastArtifact{}, err
	}
	return o.save(ctx, run, data, 1)
}

func (o *Orchestrator) conversationToArtifact(ctx context.Context, run *tracker, turns []types.ConversationTurn, voices map[string]types.VoiceProfile) (types.PodcastArtifact, error) {
	dir, err := os.MkdirTemp(o.deps.WorkDir, "segments-*")
	if err != nil {
		return types.PodcastArtifact{}, &types.Error{Kind: types.KindInternal, Op: "pipeline.conversation", Message: "create segment dir", Err: err}
	}
	segments := make([]types.AudioSegment, 0, len(turns))
	defer o.discardSegments(run.log, dir, &segments)

	for _, turn := range turns {
		data, err := o.synthesize(ctx, turn.Text, voices[turn.Speaker])
		if err != nil {
			run.log.WithFields(logrus.Fields{"turn": turn.Index, "speaker": turn.Speaker}).WithError(err).Error("turn synthesis failed")
			return types.PodcastArtifact{}, err
		}
		path := filepath.Join(dir, fmt.Sprintf("turn-%04d%s", turn.Index, types.ArtifactExt))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return types.PodcastArtifact{}, &types.Error{Kind: types.KindInternal, Op: "pipeline.conversation", Message: "write segment", Err: err}
		}
		segments = append(segments, types.AudioSegment{TurnIndex: turn.Index, Speaker: turn.Speaker, Path: path})
		run.log.WithFields(logrus.Fields{"turn": turn.Index, "speaker": turn.Speaker, "bytes": len(data)}).Debug("turn synthesized")
	}

	merged, err := o.deps.Concatenator.Concatenate(ctx, segments)
	if err != nil {
		return types.PodcastArtifact{}, err
	}
	return o.save(ctx, run, merged, len(segments))
}

func (o *Orchestrator) save(ctx context.Context, run *tracker, data []byte, segments int) (types.PodcastArtifact, error) {
	id := o.newID()
	name := id + types.ArtifactExt
	public, err := o.deps.Store.Save(ctx, name, data)
	if err != nil {
		return types.PodcastArtifact{}, err
	}
	art := types.PodcastArtifact{
		ID:         id,
		Filename:   name,
		PublicPath: public,
		Size:       int64(len(data)),
		Segments:   segments,
		CreatedAt:  o.now().UTC(),
	}
	run.log.WithFields(logrus.Fields{"artifact": name, "bytes": art.Size, "segments": segments}).Info("podcast artifact stored")
	return art, nil
}

func (o *Orchestrator) voice(v types.VoiceProfile) types.VoiceProfile {
	if strings.TrimSpace(v.ID) == "" {
		return o.deps.DefaultVoice
	}
	return v
}

func (o *Orchestrator) validateText(text string, voice types.VoiceProfile) error {
	const op = "pipeline.validate"
	if strings.TrimSpace(text) == "" {
		return types.InvalidInput(op, "transcript is required")
	}
	if n := utf8.RuneCountInString(text); n > o.deps.MaxTranscriptChars {
		return types.InvalidInput(op, "transcript is %d characters, limit is %d", n, o.deps.MaxTranscriptChars)
	}
	if voice.ID == "" {
		return types.InvalidInput(op, "voice id is required")
	}
	return nil
}

// validateTurns checks every speaker has a voice and every turn fits the
// per-request character limit.
func (o *Orchestrator) validateTurns(turns []types.ConversationTurn, voices map[string]types.VoiceProfile) error {
	const op = "pipeline.validate"
	for _, t := range turns {
		if v, ok := voices[t.Speaker]; !ok || strings.TrimSpace(v.ID) == "" {
			return types.InvalidInput(op, "no voice for speaker %q", t.Speaker)
		}
		if n := utf8.RuneCountInString(t.Text); n > o.deps.MaxTranscriptChars {
			return types.InvalidInput(op, "turn %d is %d characters, limit is %d", t.Index+1, n, o.deps.MaxTranscriptChars)
		}
	}
	return nil
}

func (o *Orchestrator) validateAsset(a types.UploadedAudioAsset) error {
	const op = "pipeline.validate"
	if a.Path == "" {
		return types.InvalidInput(op, "audio file is required")
	}
	if !types.IsAllowedAudioMIME(a.MIMEType) {
		return types.InvalidInput(op, "unsupported audio type %q", a.MIMEType)
	}
	fi, err := os.Stat(a.Path)
	if err != nil {
		return types.InvalidInput(op, "audio file is not readable: %v", err)
	}
	if fi.Size() == 0 {
		return types.InvalidInput(op, "audio file is empty")
	}
	if fi.Size() > o.deps.MaxUploadBytes {
		return types.InvalidInput(op, "audio file is %d bytes, limit is %d", fi.Size(), o.deps.MaxUploadBytes)
	}
	return nil
}

func (o *Orchestrator) discardAsset(log *logrus.Entry, a types.UploadedAudioAsset) {
	if a.Path == "" {
		return
	}
	if err := o.removeFile(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).WithField("path", a.Path).Warn("failed to delete uploaded asset")
	}
}

func (o *Orchestrator) discardSegments(log *logrus.Entry, dir string, segments *[]types.AudioSegment) {
	for _, s := range *segments {
		if err := o.removeFile(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("path", s.Path).Warn("failed to delete audio segment")
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		log.WithError(err).WithField("dir", dir).Warn("failed to remove segment dir")
	}
}
