package event

// SessionCreatedData is the payload for session.created.
type SessionCreatedData struct {
	ChatID    string `json:"chatId,omitempty"`
	SessionID string `json:"sessionId"`
}

// RecoveryReason says why a session was replaced mid-cycle.
type RecoveryReason string

const (
	ReasonRefusal         RecoveryReason = "refusal"
	ReasonSessionNotFound RecoveryReason = "session_not_found"
)

// SessionRecoveredData is the payload for session.recovered.
type SessionRecoveredData struct {
	OldSessionID string         `json:"oldSessionId"`
	NewSessionID string         `json:"newSessionId"`
	Reason       RecoveryReason `json:"reason"`
}

// PromptCompletedData is the payload for prompt.completed.
type PromptCompletedData struct {
	SessionID  string `json:"sessionId"`
	StopReason string `json:"stopReason"`
}

// CycleStartedData is the payload for cycle.started.
type CycleStartedData struct {
	RequestID string `json:"requestId"`
}

// CycleFinishedData is the payload for cycle.finished. Err is empty on
// success.
type CycleFinishedData struct {
	RequestID string `json:"requestId"`
	Err       string `json:"err,omitempty"`
}

// PermissionRequestedData is the payload for permission.requested.
type PermissionRequestedData struct {
	Title   string   `json:"title"`
	Options []string `json:"options"`
}

// PermissionResolvedData is the payload for permission.resolved.
// OptionID is empty when no option was selected.
type PermissionResolvedData struct {
	OptionID string `json:"optionId,omitempty"`
	Auto     bool   `json:"auto"`
}
