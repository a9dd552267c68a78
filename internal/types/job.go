package types

// JobState is the lifecycle state of a remote transcription job.
type JobState string

const (
	JobSubmitted  JobState = "SUBMITTED"
	JobProcessing JobState = "PROCESSING"
	JobSucceeded  JobState = "SUCCEEDED"
	JobFailed     JobState = "FAILED"
	JobUnknown    JobState = "UNKNOWN"
)

func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// rank orders states along the forward-only lifecycle. Unknown provider states
// sit next to PROCESSING so they are re-polled.
func (s JobState) rank() int {
	switch s {
	case JobSubmitted:
		return 0
	case JobProcessing, JobUnknown:
		return 1
	case JobSucceeded, JobFailed:
		return 2
	default:
		return 1
	}
}

// TranscriptionJob is the handle the ASR provider assigns to an uploaded asset.
type TranscriptionJob struct {
	ID       string   `json:"id"`
	State    JobState `json:"state"`
	URI      string   `json:"uri,omitempty"`
	MIMEType string   `json:"mime_type,omitempty"`
}

// Advance applies an observed status to the job. Backward moves and any move
// out of a terminal state are ignored; the return value reports whether the
// observation was applied.
func (j *TranscriptionJob) Advance(obs TranscriptionJob) bool {
	if j.State.Terminal() {
		return false
	}
	if obs.State == "" {
		obs.State = JobUnknown
	}
	if j.State != "" && obs.State.rank() < j.State.rank() {
		return false
	}
	j.State = obs.State
	if obs.URI != "" {
		j.URI = obs.URI
	}
	if obs.MIMEType != "" {
		j.MIMEType = obs.MIMEType
	}
	return true
}
