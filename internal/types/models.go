package types

import (
	"strings"
	"time"
)

// Speaker labels recognized in conversation scripts.
const (
	SpeakerHost1 = "Host 1"
	SpeakerHost2 = "Host 2"
)

// ArtifactExt is the fixed extension of every persisted podcast.
const ArtifactExt = ".mp3"

// AllowedAudioMIMETypes lists the upload content types accepted for transcription.
var AllowedAudioMIMETypes = []string{"audio/mpeg", "audio/wav", "audio/mp3", "audio/x-wav", "audio/wave"}

// IsAllowedAudioMIME reports whether mime (parameters ignored) is an accepted upload type.
func IsAllowedAudioMIME(mime string) bool {
	base, _, _ := strings.Cut(mime, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	for _, m := range AllowedAudioMIMETypes {
		if m == base {
			return true
		}
	}
	return false
}

// UploadedAudioAsset is a local audio file handed over by the ingest layer.
// The pipeline deletes Path once the asset has been consumed.
type UploadedAudioAsset struct {
	Path         string `json:"path"`
	MIMEType     string `json:"mime_type"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
}

type VoiceSettings struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
}

// VoiceProfile selects a synthesis voice. Zero-valued optional fields fall back
// to the synthesis client's configured defaults.
type VoiceProfile struct {
	ID                       string         `json:"voice_id"`
	ModelID                  string         `json:"model_id,omitempty"`
	Settings                 *VoiceSettings `json:"voice_settings,omitempty"`
	OutputFormat             string         `json:"output_format,omitempty"`
	OptimizeStreamingLatency *int           `json:"optimize_streaming_latency,omitempty"`
}

// ConversationTurn is one speaker's utterance; Index is its 0-based position in the script.
type ConversationTurn struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// AudioSegment is the synthesized audio of a single turn, stored at Path.
type AudioSegment struct {
	TurnIndex int    `json:"turn_index"`
	Speaker   string `json:"speaker"`
	Path      string `json:"path"`
}

// PodcastArtifact is a finished audio file in the artifact store.
type PodcastArtifact struct {
	ID         string    `json:"id" msgpack:"id"`
	Filename   string    `json:"filename" msgpack:"filename"`
	PublicPath string    `json:"public_path" msgpack:"public_path"`
	Size       int64     `json:"size" msgpack:"size"`
	Segments   int       `json:"segments" msgpack:"segments"`
	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`
}
