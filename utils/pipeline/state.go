package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/kris-hansen/metagent/utils/ast"
	"github.com/kris-hansen/metagent/utils/parser"
)

// Execution statuses. Transitions within a run are totally ordered by the
// controller; complete, escalated and failed are terminal.
const (
	StatusInitial    = "initial"
	StatusParsing    = "parsing"
	StatusReasoning  = "reasoning"
	StatusValidating = "validating"
	StatusGenerating = "generating"
	StatusComplete   = "complete"
	StatusEscalated  = "escalated"
	StatusFailed     = "failed"
)

// MaxRetries bounds the reasoner feedback loop. The third failure
// escalates instead of retrying.
const MaxRetries = 3

// ConfidenceThreshold is the minimum confidence for a validated IR to
// proceed without human review.
const ConfidenceThreshold = 0.8

// StageError is one entry in the per-run error history.
type StageError struct {
	Stage       string    `json:"stage"`
	ErrorType   string    `json:"error_type"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
}

// State is the mutable per-run pipeline state. Each run owns its State
// exclusively until termination; it is discarded once the run ends.
type State struct {
	ExecutionID string    `json:"execution_id"`
	Timestamp   time.Time `json:"timestamp"`

	RawSpec          string              `json:"raw_spec"`
	ParsedSections   *parser.Sections    `json:"parsed_sections,omitempty"`
	ParseDiagnostics []parser.Diagnostic `json:"parse_diagnostics,omitempty"`

	CandidateIR    string            `json:"candidate_ir,omitempty"`
	ValidatedSpec  *ast.WorkflowSpec `json:"-"`
	SerializedJSON string            `json:"serialized_json,omitempty"`
	GeneratedCode  string            `json:"generated_code,omitempty"`

	RetryCount       int          `json:"retry_count"`
	ErrorHistory     []StageError `json:"error_history,omitempty"`
	FeedbackMessages []string     `json:"feedback_messages,omitempty"`
	ConfidenceScore  float64      `json:"confidence_score"`
	ReasoningTrace   []string     `json:"reasoning_trace,omitempty"`

	ExecutionStatus string `json:"execution_status"`
	Provider        string `json:"llm_provider"`
	ModelVersion    string `json:"model_version"`
	PromptVersion   string `json:"prompt_version"`
}

// NewState creates the initial state for a run.
func NewState(rawSpec, provider, modelVersion, promptVersion string) *State {
	return &State{
		ExecutionID:     uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		RawSpec:         rawSpec,
		ExecutionStatus: StatusInitial,
		Provider:        provider,
		ModelVersion:    modelVersion,
		PromptVersion:   promptVersion,
	}
}

// RecordError appends an entry to the error history.
func (s *State) RecordError(stage string, errType ErrorType, message string, recoverable bool) {
	s.ErrorHistory = append(s.ErrorHistory, StageError{
		Stage:       stage,
		ErrorType:   string(errType),
		Message:     message,
		Timestamp:   time.Now().UTC(),
		Recoverable: recoverable,
	})
}

// LastErrors returns the messages of the most recent stage's errors, in
// order. Used for escalation reporting.
func (s *State) LastErrors() []string {
	if len(s.ErrorHistory) == 0 {
		return nil
	}
	lastStage := s.ErrorHistory[len(s.ErrorHistory)-1].Stage
	var msgs []string
	for _, e := range s.ErrorHistory {
		if e.Stage == lastStage {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
