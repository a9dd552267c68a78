package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"podcastgen/internal/logger"
	"podcastgen/internal/types"
)

func floatPtr(v float64) *float64 { return &v }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	latency := 2
	return New(Config{
		BaseURL:                 srv.URL,
		APIKey:                  "secret",
		ModelID:                 "eleven_multilingual_v2",
		DefaultSettings:         &types.VoiceSettings{Stability: floatPtr(0.5)},
		DefaultOutputFormat:     "mp3_44100_128",
		DefaultStreamingLatency: &latency,
	}, logger.Discard())
}

func TestSynthesizeSendsRequest(t *testing.T) {
	var got ttsRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/text-to-speech/voice-a" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.URL.Query().Get("output_format") != "mp3_44100_128" || r.URL.Query().Get("optimize_streaming_latency") != "2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-audio"))
	})

	audio, err := c.Synthesize(context.Background(), "Hello there", types.VoiceProfile{ID: "voice-a"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3-audio" {
		t.Fatalf("audio = %q", audio)
	}
	if got.Text != "Hello there" || got.ModelID != "eleven_multilingual_v2" {
		t.Fatalf("request = %+v", got)
	}
	if got.VoiceSettings == nil || got.VoiceSettings.Stability == nil || *got.VoiceSettings.Stability != 0.5 {
		t.Fatalf("default voice settings not applied: %+v", got.VoiceSettings)
	}
}

func TestVoiceOverridesDefaults(t *testing.T) {
	var got ttsRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("output_format") != "pcm_16000" {
			t.Errorf("output_format = %q", r.URL.Query().Get("output_format"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte("pcm"))
	})
	_, err := c.Synthesize(context.Background(), "hi", types.VoiceProfile{
		ID:           "voice-b",
		ModelID:      "eleven_turbo_v2",
		OutputFormat: "pcm_16000",
		Settings:     &types.VoiceSettings{Style: floatPtr(0.3)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.ModelID != "eleven_turbo_v2" || got.VoiceSettings.Style == nil || got.VoiceSettings.Stability != nil {
		t.Fatalf("request = %+v", got)
	}
}

func TestProviderErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		transient bool
		message   string
	}{
		{"overloaded", http.StatusServiceUnavailable, `{"detail":{"status":"system_busy","message":"We are experiencing heavy traffic"}}`, true, "We are experiencing heavy traffic"},
		{"rate limited", http.StatusTooManyRequests, `{"detail":{"status":"too_many_concurrent_requests","message":"slow down"}}`, true, "slow down"},
		{"bad key", http.StatusUnauthorized, `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`, false, "Invalid API key"},
		{"string detail", http.StatusUnprocessableEntity, `{"detail":"text too long"}`, false, "text too long"},
		{"plain body", http.StatusInternalServerError, `oops`, false, "oops"},
		{"busy status on 400", http.StatusBadRequest, `{"detail":{"status":"system_busy"}}`, true, "system_busy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, err := c.Synthesize(context.Background(), "hi", types.VoiceProfile{ID: "v"})
			e, ok := types.AsError(err)
			if !ok || e.Kind != types.KindSynthesisFailed {
				t.Fatalf("err = %v, want synthesis failed", err)
			}
			if e.StatusCode != tc.status || e.Transient != tc.transient || e.Message != tc.message {
				t.Fatalf("got status=%d transient=%v message=%q", e.StatusCode, e.Transient, e.Message)
			}
		})
	}
}

func TestEmptyBodyFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.Synthesize(context.Background(), "hi", types.VoiceProfile{ID: "v"})
	if !errors.Is(err, types.ErrSynthesisFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestMissingVoiceIsInvalidInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Synthesize(context.Background(), "hi", types.VoiceProfile{})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}
