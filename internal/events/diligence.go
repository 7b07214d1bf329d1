package events

import "time"

// Event type constants.
const (
	TypeAnalysisStarted   = "analysis_started"
	TypeAnalysisCompleted = "analysis_completed"
	TypeAnalysisFailed    = "analysis_failed"
	TypeStageChanged      = "stage_changed"
	TypeDocumentAdmitted  = "document_admitted"
	TypeGuardrailWarning  = "guardrail_warning"
	TypeAgentInvoked      = "agent_invoked"
	TypeAgentCompleted    = "agent_completed"
	TypeAgentFailed       = "agent_failed"
)

// Stage names a step of the analysis pipeline.
type Stage string

const (
	StageValidate Stage = "validate"
	StageAdmit    Stage = "admit"
	StageAgents   Stage = "agents"
	StageDecision Stage = "decision"
	StageOutput   Stage = "output"
	StageCleanup  Stage = "cleanup"
)

// AnalysisStartedEvent is published when a request enters the pipeline.
type AnalysisStartedEvent struct {
	BaseEvent
	Query     string `json:"query"`
	FileCount int    `json:"file_count"`
}

// NewAnalysisStartedEvent creates an AnalysisStartedEvent.
func NewAnalysisStartedEvent(requestID, query string, fileCount int) AnalysisStartedEvent {
	return AnalysisStartedEvent{
		BaseEvent: NewBaseEvent(TypeAnalysisStarted, requestID),
		Query:     query,
		FileCount: fileCount,
	}
}

// AnalysisCompletedEvent carries the headline of a finished report.
type AnalysisCompletedEvent struct {
	BaseEvent
	Recommendation string        `json:"recommendation"`
	Duration       time.Duration `json:"duration"`
}

// NewAnalysisCompletedEvent creates an AnalysisCompletedEvent.
func NewAnalysisCompletedEvent(requestID, recommendation string, duration time.Duration) AnalysisCompletedEvent {
	return AnalysisCompletedEvent{
		BaseEvent:      NewBaseEvent(TypeAnalysisCompleted, requestID),
		Recommendation: recommendation,
		Duration:       duration,
	}
}

// AnalysisFailedEvent reports a request that produced no report.
type AnalysisFailedEvent struct {
	BaseEvent
	Stage Stage  `json:"stage"`
	Error string `json:"error"`
}

// NewAnalysisFailedEvent creates an AnalysisFailedEvent.
func NewAnalysisFailedEvent(requestID string, stage Stage, err error) AnalysisFailedEvent {
	e := AnalysisFailedEvent{
		BaseEvent: NewBaseEvent(TypeAnalysisFailed, requestID),
		Stage:     stage,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// StageChangedEvent marks entry into a pipeline stage.
type StageChangedEvent struct {
	BaseEvent
	Stage Stage `json:"stage"`
}

// NewStageChangedEvent creates a StageChangedEvent.
func NewStageChangedEvent(requestID string, stage Stage) StageChangedEvent {
	return StageChangedEvent{
		BaseEvent: NewBaseEvent(TypeStageChanged, requestID),
		Stage:     stage,
	}
}

// DocumentAdmittedEvent reports an indexed upload.
type DocumentAdmittedEvent struct {
	BaseEvent
	DocumentID   string `json:"document_id"`
	Name         string `json:"name"`
	DocumentType string `json:"document_type"`
}

// NewDocumentAdmittedEvent creates a DocumentAdmittedEvent.
func NewDocumentAdmittedEvent(requestID, documentID, name, docType string) DocumentAdmittedEvent {
	return DocumentAdmittedEvent{
		BaseEvent:    NewBaseEvent(TypeDocumentAdmitted, requestID),
		DocumentID:   documentID,
		Name:         name,
		DocumentType: docType,
	}
}

// GuardrailWarningEvent carries an advisory guardrail finding.
type GuardrailWarningEvent struct {
	BaseEvent
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// NewGuardrailWarningEvent creates a GuardrailWarningEvent.
func NewGuardrailWarningEvent(requestID string, stage Stage, message string) GuardrailWarningEvent {
	return GuardrailWarningEvent{
		BaseEvent: NewBaseEvent(TypeGuardrailWarning, requestID),
		Stage:     stage,
		Message:   message,
	}
}

// AgentEvent reports the lifecycle of one registry invocation.
type AgentEvent struct {
	BaseEvent
	Agent     string        `json:"agent"`
	Duration  time.Duration `json:"duration,omitempty"`
	Citations int           `json:"citations,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// NewAgentInvokedEvent creates an agent_invoked event.
func NewAgentInvokedEvent(requestID, agent string) AgentEvent {
	return AgentEvent{
		BaseEvent: NewBaseEvent(TypeAgentInvoked, requestID),
		Agent:     agent,
	}
}

// NewAgentCompletedEvent creates an agent_completed event.
func NewAgentCompletedEvent(requestID, agent string, duration time.Duration, citations int) AgentEvent {
	return AgentEvent{
		BaseEvent: NewBaseEvent(TypeAgentCompleted, requestID),
		Agent:     agent,
		Duration:  duration,
		Citations: citations,
	}
}

// NewAgentFailedEvent creates an agent_failed event.
func NewAgentFailedEvent(requestID, agent string, duration time.Duration, err error) AgentEvent {
	e := AgentEvent{
		BaseEvent: NewBaseEvent(TypeAgentFailed, requestID),
		Agent:     agent,
		Duration:  duration,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
