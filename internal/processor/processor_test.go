package processor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"podcastgen/internal/logger"
	"podcastgen/internal/pipeline"
	"podcastgen/internal/types"
)

type fakeWorkflows struct {
	mu     sync.Mutex
	err    error
	voices map[string]types.VoiceProfile
	texts  []string
	delay  time.Duration
}

func (f *fakeWorkflows) Transcribe(_ context.Context, a types.UploadedAudioAsset) (pipeline.TranscriptResult, error) {
	if f.err != nil {
		return pipeline.TranscriptResult{RunID: "r1"}, f.err
	}
	return pipeline.TranscriptResult{RunID: "r1", Transcript: "hello"}, nil
}

func (f *fakeWorkflows) TextToPodcast(ctx context.Context, text string, v types.VoiceProfile) (pipeline.PodcastResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return pipeline.PodcastResult{RunID: "r2"}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return pipeline.PodcastResult{RunID: "r2"}, f.err
	}
	return pipeline.PodcastResult{RunID: "r2", Artifact: types.PodcastArtifact{PublicPath: "/public/" + text + ".mp3"}}, nil
}

func (f *fakeWorkflows) ConversationToPodcast(_ context.Context, _ string, voices map[string]types.VoiceProfile) (pipeline.PodcastResult, error) {
	f.mu.Lock()
	f.voices = voices
	f.mu.Unlock()
	if f.err != nil {
		return pipeline.PodcastResult{RunID: "r3"}, f.err
	}
	return pipeline.PodcastResult{RunID: "r3", Artifact: types.PodcastArtifact{PublicPath: "/public/c.mp3"}}, nil
}

func (f *fakeWorkflows) AudioToPodcast(context.Context, types.UploadedAudioAsset, types.VoiceProfile) (pipeline.PodcastResult, error) {
	if f.err != nil {
		return pipeline.PodcastResult{RunID: "r4", Transcript: "partial"}, f.err
	}
	return pipeline.PodcastResult{RunID: "r4", Transcript: "hi", Artifact: types.PodcastArtifact{PublicPath: "/public/a.mp3"}}, nil
}

func TestSuccessResults(t *testing.T) {
	p := New(&fakeWorkflows{}, 0, logger.Discard())
	ctx := context.Background()

	if r := p.Transcribe(ctx, types.UploadedAudioAsset{}); !r.Success || r.Transcript != "hello" || r.Status != http.StatusOK {
		t.Fatalf("transcribe = %+v", r)
	}
	if r := p.Text(ctx, "x", types.VoiceProfile{}); !r.Success || r.Audio != "/public/x.mp3" || r.RunID != "r2" {
		t.Fatalf("text = %+v", r)
	}
	if r := p.Audio(ctx, types.UploadedAudioAsset{}, types.VoiceProfile{}); r.Transcript != "hi" || r.Audio != "/public/a.mp3" {
		t.Fatalf("audio = %+v", r)
	}
}

func TestConversationMapsVoicesToHosts(t *testing.T) {
	f := &fakeWorkflows{}
	p := New(f, 0, logger.Discard())
	r := p.Conversation(context.Background(), "Host 1: a Host 2: b", types.VoiceProfile{ID: "one"}, types.VoiceProfile{ID: "two"})
	if !r.Success {
		t.Fatalf("result = %+v", r)
	}
	if f.voices[types.SpeakerHost1].ID != "one" || f.voices[types.SpeakerHost2].ID != "two" {
		t.Fatalf("voices = %+v", f.voices)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   types.ErrorKind
	}{
		{types.InvalidInput("x", "transcript is required"), http.StatusBadRequest, types.KindInvalidInput},
		{&types.Error{Kind: types.KindSynthesisFailed, Message: "bad voice"}, http.StatusBadGateway, types.KindSynthesisFailed},
		{&types.Error{Kind: types.KindTranscriptionFailed}, http.StatusBadGateway, types.KindTranscriptionFailed},
		{&types.Error{Kind: types.KindProviderUnavailable, Attempts: 3}, http.StatusServiceUnavailable, types.KindProviderUnavailable},
		{&types.Error{Kind: types.KindStorageFailed}, http.StatusInternalServerError, types.KindStorageFailed},
		{errors.New("boom"), http.StatusInternalServerError, types.KindInternal},
	}
	for _, c := range cases {
		p := New(&fakeWorkflows{err: c.err}, 0, logger.Discard())
		r := p.Audio(context.Background(), types.UploadedAudioAsset{}, types.VoiceProfile{})
		if r.Success || r.Status != c.status || r.Kind != c.kind || r.Message == "" {
			t.Errorf("%v: result = %+v", c.err, r)
		}
		if r.Audio != "" {
			t.Errorf("%v: failed result carries audio %q", c.err, r.Audio)
		}
		if r.Transcript != "partial" || r.RunID != "r4" {
			t.Errorf("%v: lost transcript or run id: %+v", c.err, r)
		}
	}
}

func TestTimeoutIsProviderUnavailable(t *testing.T) {
	p := New(&fakeWorkflows{delay: time.Second}, 10*time.Millisecond, logger.Discard())
	r := p.Text(context.Background(), "x", types.VoiceProfile{})
	if r.Success || r.Status != http.StatusServiceUnavailable || r.Kind != types.KindProviderUnavailable {
		t.Fatalf("result = %+v", r)
	}
}

func TestBatchKeepsOrder(t *testing.T) {
	f := &fakeWorkflows{}
	p := New(f, 0, logger.Discard())
	items := []types.BatchItem{
		{Row: 2, ID: "a", Transcript: "one"},
		{Row: 3, ID: "b", Conversation: "Host 1: x Host 2: y", Voice1: "v1", Voice2: "v2"},
		{Row: 4, ID: "c", Transcript: "three"},
		{Row: 5, ID: "d", Transcript: "four"},
	}
	out := p.Batch(context.Background(), items, 3)
	if len(out) != 4 {
		t.Fatalf("len = %d", len(out))
	}
	for i, o := range out {
		if o.Item.ID != items[i].ID || !o.Success {
			t.Fatalf("outcome %d = %+v", i, o)
		}
	}
	if out[1].Workflow != "conversation" || out[0].Workflow != "text" {
		t.Fatalf("workflows = %s, %s", out[0].Workflow, out[1].Workflow)
	}
	if out[2].Audio != "/public/three.mp3" {
		t.Fatalf("audio = %q", out[2].Audio)
	}
}

func TestBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(&fakeWorkflows{}, 0, logger.Discard())
	out := p.Batch(ctx, []types.BatchItem{{ID: "a", Transcript: "x"}}, 0)
	if out[0].Success || out[0].Kind != types.KindInternal {
		t.Fatalf("outcome = %+v", out[0])
	}
}
