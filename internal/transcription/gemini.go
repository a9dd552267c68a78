package transcription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"

	"podcastgen/internal/types"
)

const DefaultGeminiModel = "gemini-1.5-pro-latest"

// GeminiProvider implements Provider on the Gemini Files API: the asset is
// uploaded as a file, the file state is polled, and the transcript is
// produced by a GenerateContent call that references the file URI.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not set")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (g *GeminiProvider) Submit(ctx context.Context, asset types.UploadedAudioAsset) (types.TranscriptionJob, error) {
	f, err := os.Open(asset.Path)
	if err != nil {
		return types.TranscriptionJob{}, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	file, err := g.client.Files.Upload(ctx, f, &genai.UploadFileConfig{
		MIMEType:    asset.MIMEType,
		DisplayName: asset.OriginalName,
	})
	if err != nil {
		return types.TranscriptionJob{}, classify("upload", err)
	}
	return jobFromFile(file), nil
}

func (g *GeminiProvider) Status(ctx context.Context, jobID string) (types.TranscriptionJob, error) {
	file, err := g.client.Files.Get(ctx, jobID, nil)
	if err != nil {
		return types.TranscriptionJob{}, classify("get file", err)
	}
	return jobFromFile(file), nil
}

func (g *GeminiProvider) Generate(ctx context.Context, uri, mimeType, instruction string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				genai.NewPartFromURI(uri, mimeType),
				genai.NewPartFromText(instruction),
			},
		},
	}, nil)
	if err != nil {
		return "", classify("generate content", err)
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func jobFromFile(f *genai.File) types.TranscriptionJob {
	if f == nil {
		return types.TranscriptionJob{State: types.JobUnknown}
	}
	return types.TranscriptionJob{
		ID:       f.Name,
		State:    mapFileState(string(f.State)),
		URI:      f.URI,
		MIMEType: f.MIMEType,
	}
}

// mapFileState converts Gemini file states. Anything unrecognized stays
// non-terminal so the client keeps polling.
func mapFileState(s string) types.JobState {
	switch s {
	case "PROCESSING":
		return types.JobProcessing
	case "ACTIVE":
		return types.JobSucceeded
	case "FAILED":
		return types.JobFailed
	default:
		return types.JobUnknown
	}
}

func classify(op string, err error) error {
	e := &types.Error{Kind: types.KindTranscriptionFailed, Op: "gemini." + op, Err: err}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e.StatusCode = apiErr.Code
		e.Message = apiErr.Message
		e.Transient = transientStatus(apiErr.Code, apiErr.Status)
	}
	return e
}

func transientStatus(code int, status string) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	switch status {
	case "RESOURCE_EXHAUSTED", "UNAVAILABLE", "DEADLINE_EXCEEDED":
		return true
	}
	return false
}
