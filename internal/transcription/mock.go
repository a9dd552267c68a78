package transcription

import (
	"context"

	"podcastgen/internal/types"
)

const MockTranscript = "MOCK TRANSCRIPT: Welcome to the show. Today we talk about generating podcasts from recordings."

// MockProvider answers every job immediately with a canned transcript.
// Enabled with USE_MOCK_TRANSCRIBE=true for offline demos.
type MockProvider struct {
	Transcript string
}

func (m MockProvider) Submit(_ context.Context, asset types.UploadedAudioAsset) (types.TranscriptionJob, error) {
	return types.TranscriptionJob{
		ID:       "mock/" + asset.OriginalName,
		State:    types.JobSubmitted,
		MIMEType: asset.MIMEType,
	}, nil
}

func (m MockProvider) Status(_ context.Context, jobID string) (types.TranscriptionJob, error) {
	return types.TranscriptionJob{ID: jobID, State: types.JobSucceeded, URI: "mock://" + jobID}, nil
}

func (m MockProvider) Generate(context.Context, string, string, string) (string, error) {
	if m.Transcript == "" {
		return MockTranscript, nil
	}
	return m.Transcript, nil
}
