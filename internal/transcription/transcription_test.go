package transcription

import (
	"context"
	"errors"
	"testing"
	"time"

	"podcastgen/internal/logger"
	"podcastgen/internal/types"
)

// fakeProvider replays a scripted sequence of job states.
type fakeProvider struct {
	states      []types.JobState
	statusErr   error
	generateErr error
	transcript  string

	submits     int
	polls       int
	generates   int
	instruction string
}

func (f *fakeProvider) Submit(_ context.Context, asset types.UploadedAudioAsset) (types.TranscriptionJob, error) {
	f.submits++
	return types.TranscriptionJob{ID: "files/abc", State: types.JobSubmitted, MIMEType: asset.MIMEType}, nil
}

func (f *fakeProvider) Status(_ context.Context, id string) (types.TranscriptionJob, error) {
	if f.statusErr != nil {
		return types.TranscriptionJob{}, f.statusErr
	}
	state := f.states[f.polls]
	f.polls++
	job := types.TranscriptionJob{ID: id, State: state}
	if state == types.JobSucceeded {
		job.URI = "https://files.example/abc"
		job.MIMEType = "audio/mpeg"
	}
	return job, nil
}

func (f *fakeProvider) Generate(_ context.Context, uri, mimeType, instruction string) (string, error) {
	f.generates++
	f.instruction = instruction
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.transcript, nil
}

type recordedSleeps struct{ waits []time.Duration }

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestClient(p Provider, s *recordedSleeps) *Client {
	return New(p, WithSleep(s.sleep), WithLogger(logger.Discard()))
}

var asset = types.UploadedAudioAsset{Path: "/tmp/in.mp3", MIMEType: "audio/mpeg", OriginalName: "in.mp3"}

func TestTranscribePollsUntilSucceeded(t *testing.T) {
	p := &fakeProvider{
		states:     []types.JobState{types.JobProcessing, types.JobProcessing, types.JobSucceeded},
		transcript: "  hello from the third poll \n",
	}
	s := &recordedSleeps{}
	text, err := newTestClient(p, s).Transcribe(context.Background(), asset)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello from the third poll" {
		t.Fatalf("text = %q", text)
	}
	if p.polls != 3 {
		t.Fatalf("polls = %d, want 3", p.polls)
	}
	if p.generates != 1 {
		t.Fatalf("generates = %d, want exactly one read", p.generates)
	}
	if len(s.waits) != 2 || s.waits[0] != DefaultPollInterval {
		t.Fatalf("waits = %v, want two waits of %s", s.waits, DefaultPollInterval)
	}
	if p.instruction != DefaultInstruction {
		t.Fatalf("instruction = %q", p.instruction)
	}
}

func TestUnknownStateIsRepolled(t *testing.T) {
	p := &fakeProvider{
		states:     []types.JobState{types.JobUnknown, types.JobSucceeded},
		transcript: "ok",
	}
	s := &recordedSleeps{}
	if _, err := newTestClient(p, s).Transcribe(context.Background(), asset); err != nil {
		t.Fatal(err)
	}
	if p.polls != 2 {
		t.Fatalf("polls = %d, want 2", p.polls)
	}
}

func TestFailedJob(t *testing.T) {
	p := &fakeProvider{states: []types.JobState{types.JobProcessing, types.JobFailed}}
	_, err := newTestClient(p, &recordedSleeps{}).Transcribe(context.Background(), asset)
	if !errors.Is(err, types.ErrTranscriptionFailed) {
		t.Fatalf("err = %v, want transcription failed", err)
	}
	if p.generates != 0 {
		t.Fatal("generate must not run for a failed job")
	}
}

func TestPollErrorPropagatesWithoutRetry(t *testing.T) {
	p := &fakeProvider{statusErr: errors.New("connection reset")}
	_, err := newTestClient(p, &recordedSleeps{}).Transcribe(context.Background(), asset)
	if !errors.Is(err, types.ErrTranscriptionFailed) {
		t.Fatalf("err = %v", err)
	}
	if p.submits != 1 {
		t.Fatalf("submits = %d, want 1", p.submits)
	}
}

func TestGenerateKeepsTransientClassification(t *testing.T) {
	p := &fakeProvider{
		states:      []types.JobState{types.JobSucceeded},
		generateErr: &types.Error{Kind: types.KindTranscriptionFailed, StatusCode: 503, Transient: true},
	}
	_, err := newTestClient(p, &recordedSleeps{}).Transcribe(context.Background(), asset)
	if !types.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestEmptyTranscriptFails(t *testing.T) {
	p := &fakeProvider{states: []types.JobState{types.JobSucceeded}, transcript: "   "}
	_, err := newTestClient(p, &recordedSleeps{}).Transcribe(context.Background(), asset)
	if !errors.Is(err, types.ErrTranscriptionFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateRejectsNonTerminalJob(t *testing.T) {
	c := newTestClient(&fakeProvider{}, &recordedSleeps{})
	_, err := c.Generate(context.Background(), types.TranscriptionJob{ID: "files/x", State: types.JobProcessing})
	if !errors.Is(err, types.ErrTranscriptionFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelledSleepStopsPolling(t *testing.T) {
	p := &fakeProvider{states: []types.JobState{types.JobProcessing, types.JobProcessing}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(p, WithLogger(logger.Discard()), WithPollInterval(time.Hour))
	_, err := c.Transcribe(ctx, asset)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if p.polls != 1 {
		t.Fatalf("polls = %d, want 1", p.polls)
	}
}

func TestMockProvider(t *testing.T) {
	text, err := newTestClient(MockProvider{}, &recordedSleeps{}).Transcribe(context.Background(), asset)
	if err != nil {
		t.Fatal(err)
	}
	if text != MockTranscript {
		t.Fatalf("text = %q", text)
	}
}

func TestMapFileState(t *testing.T) {
	cases := map[string]types.JobState{
		"PROCESSING":        types.JobProcessing,
		"ACTIVE":            types.JobSucceeded,
		"FAILED":            types.JobFailed,
		"STATE_UNSPECIFIED": types.JobUnknown,
		"":                  types.JobUnknown,
	}
	for in, want := range cases {
		if got := mapFileState(in); got != want {
			t.Fatalf("mapFileState(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestTransientStatus(t *testing.T) {
	if !transientStatus(503, "") || !transientStatus(0, "RESOURCE_EXHAUSTED") {
		t.Fatal("expected transient")
	}
	if transientStatus(400, "INVALID_ARGUMENT") {
		t.Fatal("400 is permanent")
	}
}
