package types

// BatchItem is one row of a batch manifest. A row carries either a
// transcript or a conversation script.
type BatchItem struct {
	Row          int    `json:"row"`
	ID           string `json:"id"`
	Transcript   string `json:"transcript,omitempty"`
	Conversation string `json:"conversation,omitempty"`
	Voice        string `json:"voice,omitempty"`
	Voice1       string `json:"voice1,omitempty"`
	Voice2       string `json:"voice2,omitempty"`
}

// IsConversation reports whether the row should go through the
// conversation workflow.
func (b BatchItem) IsConversation() bool {
	return b.Conversation != ""
}

// BatchOutcome is the result of one batch row.
type BatchOutcome struct {
	Item       BatchItem `json:"item"`
	Workflow   string    `json:"workflow"`
	Success    bool      `json:"success"`
	Audio      string    `json:"audio,omitempty"`
	Message    string    `json:"message,omitempty"`
	Kind       ErrorKind `json:"kind,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}
