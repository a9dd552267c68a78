package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"podcastgen/internal/logger"
	"podcastgen/internal/types"
)

const DefaultBaseURL = "https://api.elevenlabs.io/v1"

// Config holds the ElevenLabs account settings and the defaults applied to
// voice profiles that leave fields empty.
type Config struct {
	BaseURL string
	APIKey  string
	ModelID string
	Timeout time.Duration

	DefaultSettings         *types.VoiceSettings
	DefaultOutputFormat     string
	DefaultStreamingLatency *int
}

// Client calls the ElevenLabs text-to-speech endpoint. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logrus.Entry
}

func New(cfg Config, log *logrus.Entry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.Component(log, "synthesis"),
	}
}

type ttsRequest struct {
	Text          string               `json:"text"`
	ModelID       string               `json:"model_id,omitempty"`
	VoiceSettings *types.VoiceSettings `json:"voice_settings,omitempty"`
}

// errorBody covers both shapes ElevenLabs uses: detail as an object or a string.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Synthesize converts text to audio bytes with the given voice.
func (c *Client) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	if strings.TrimSpace(voice.ID) == "" {
		return nil, types.InvalidInput("synthesize", "voice id is required")
	}
	req, err := c.newRequest(ctx, text, voice)
	if err != nil {
		return nil, &types.Error{Kind: types.KindSynthesisFailed, Op: "synthesize", Err: err}
	}

	log := c.log.WithFields(logrus.Fields{"voice_id": voice.ID, "chars": len(text)})
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("tts request failed")
		return nil, &types.Error{
			Kind:      types.KindSynthesisFailed,
			Op:        "synthesize",
			Transient: isTimeout(err),
			Err:       err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.Error{Kind: types.KindSynthesisFailed, Op: "synthesize", Transient: true, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := providerError(resp.StatusCode, body)
		log.WithFields(logrus.Fields{"status": resp.StatusCode, "transient": e.Transient}).Warn("tts provider rejected request")
		return nil, e
	}
	if len(body) == 0 {
		return nil, &types.Error{Kind: types.KindSynthesisFailed, Op: "synthesize", StatusCode: resp.StatusCode, Message: "empty audio body"}
	}
	log.WithFields(logrus.Fields{"bytes": len(body), "duration_ms": time.Since(start).Milliseconds()}).Info("speech synthesized")
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, text string, voice types.VoiceProfile) (*http.Request, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/text-to-speech/" + url.PathEscape(voice.ID)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if f := firstNonEmpty(voice.OutputFormat, c.cfg.DefaultOutputFormat); f != "" {
		q.Set("output_format", f)
	}
	latency := voice.OptimizeStreamingLatency
	if latency == nil {
		latency = c.cfg.DefaultStreamingLatency
	}
	if latency != nil {
		q.Set("optimize_streaming_latency", strconv.Itoa(*latency))
	}
	u.RawQuery = q.Encode()

	settings := voice.Settings
	if settings == nil {
		settings = c.cfg.DefaultSettings
	}
	payload, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       firstNonEmpty(voice.ModelID, c.cfg.ModelID),
		VoiceSettings: settings,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	return req, nil
}

func providerError(status int, body []byte) *types.Error {
	e := &types.Error{Kind: types.KindSynthesisFailed, Op: "synthesize", StatusCode: status}
	var eb errorBody
	var detailStatus string
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Detail) > 0 {
		var d errorDetail
		var s string
		switch {
		case json.Unmarshal(eb.Detail, &d) == nil && (d.Message != "" || d.Status != ""):
			e.Message = firstNonEmpty(d.Message, d.Status)
			detailStatus = d.Status
		case json.Unmarshal(eb.Detail, &s) == nil:
			e.Message = s
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
		if len(e.Message) > 512 {
			e.Message = e.Message[:512]
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	e.Transient = transient(status, detailStatus)
	return e
}

// transient reports overload and temporary-unavailability conditions.
func transient(status int, detailStatus string) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
		return true
	}
	switch detailStatus {
	case "system_busy", "too_many_concurrent_requests", "service_unavailable", "rate_limit_exceeded":
		return true
	}
	return false
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
