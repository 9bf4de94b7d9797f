// Package pipeline implements the two-phase compiler controller: the
// supervised spec-to-IR loop (parser, reasoner, validator) with retry and
// escalation, followed by the deterministic IR-to-code phase (serializer,
// generator). Each run owns its state exclusively; checkpoints go to a
// pluggable sink after every node.
package pipeline

import (
	"context"
	"time"

	"github.com/kris-hansen/metagent/utils/ast"
	"github.com/kris-hansen/metagent/utils/config"
	"github.com/kris-hansen/metagent/utils/generator"
	"github.com/kris-hansen/metagent/utils/models"
	"github.com/kris-hansen/metagent/utils/parser"
	"github.com/kris-hansen/metagent/utils/validator"
)

// DefaultTotalTimeout is the wall-clock budget for a whole pipeline run.
const DefaultTotalTimeout = 120 * time.Second

// Options configures one compilation run.
type Options struct {
	// Provider selects the LLM backend: claude, aimlapi or gemini.
	// Defaults to claude.
	Provider string
	// ModelVersion overrides the provider's default model.
	ModelVersion string
	// PromptVersion tags the prompt template; informational.
	PromptVersion string
	// Sink receives state checkpoints. Defaults to an in-memory sink.
	Sink Sink
	// Client bypasses provider construction and key lookup. Used by
	// embedders and tests to inject a configured (or fake) provider.
	Client models.Provider
	// EnvConfig supplies API keys; defaults to environment-only lookup.
	EnvConfig *config.EnvConfig
	// TotalTimeout bounds the whole run. Defaults to DefaultTotalTimeout.
	TotalTimeout time.Duration
	// Verbose enables provider debug logging.
	Verbose bool
}

// Result is what callers receive from a run.
type Result struct {
	Status        string              `json:"status"`
	ExecutionID   string              `json:"execution_id"`
	WorkflowName  string              `json:"workflow_name,omitempty"`
	GeneratedCode string              `json:"generated_code,omitempty"`
	SerializedIR  string              `json:"serialized_ir,omitempty"`
	Metadata      *generator.Metadata `json:"metadata,omitempty"`
	Errors        []string            `json:"errors,omitempty"`
	Confidence    float64             `json:"confidence"`
}

// Compile runs the full pipeline on a raw specification. Configuration
// problems (unknown provider, missing API key) are returned before a run
// starts; all other outcomes produce a Result whose Status is complete,
// escalated or failed, with the terminal error (if any) alongside.
func Compile(ctx context.Context, rawSpec string, opts Options) (*Result, error) {
	client, err := resolveClient(opts)
	if err != nil {
		return nil, err
	}

	if opts.Provider == "" {
		opts.Provider = models.ProviderClaude
	}
	if opts.ModelVersion == "" {
		opts.ModelVersion = models.DefaultModel(opts.Provider)
	}
	if opts.PromptVersion == "" {
		opts.PromptVersion = DefaultPromptVersion
	}
	sink := opts.Sink
	if sink == nil {
		sink = NewMemorySink()
	}
	timeout := opts.TotalTimeout
	if timeout == 0 {
		timeout = DefaultTotalTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := NewState(rawSpec, opts.Provider, opts.ModelVersion, opts.PromptVersion)
	config.VerboseLog("Starting pipeline run %s (provider=%s model=%s)",
		state.ExecutionID, state.Provider, state.ModelVersion)

	r := &runner{state: state, sink: sink, client: client}
	return r.run(ctx)
}

// resolveClient builds and configures the provider, or validates an
// injected one.
func resolveClient(opts Options) (models.Provider, error) {
	if opts.Client != nil {
		return opts.Client, nil
	}

	provider := opts.Provider
	if provider == "" {
		provider = models.ProviderClaude
	}

	client, err := models.CreateProvider(provider)
	if err != nil {
		return nil, NewConfigurationError("%v", err)
	}

	envConfig := opts.EnvConfig
	if envConfig == nil {
		envConfig = &config.EnvConfig{}
	}
	apiKey := envConfig.GetProviderAPIKey(provider)
	if apiKey == "" {
		return nil, NewConfigurationError(
			"no API key available for provider %s: set %s", provider, config.ProviderEnvVar(provider))
	}
	if err := client.Configure(apiKey); err != nil {
		return nil, NewConfigurationError("%v", err)
	}
	client.SetVerbose(opts.Verbose || config.Debug)
	return client, nil
}

// runner drives one run through the node graph.
type runner struct {
	state  *State
	sink   Sink
	client models.Provider
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	s := r.state

	// ===== Parser =====
	if err := r.enter(ctx, StatusParsing); err != nil {
		return r.failed(err)
	}
	sections, diags := parser.Parse(s.RawSpec)
	s.ParsedSections = sections
	s.ParseDiagnostics = diags
	r.checkpoint()

	// ===== Reasoner / Validator retry loop =====
	for {
		if err := r.enter(ctx, StatusReasoning); err != nil {
			return r.failed(err)
		}

		res, rerr := reason(ctx, r.client, s)
		if rerr != nil {
			s.RecordError("reasoner", rerr.Type, rerr.Message, rerr.Recoverable)
			if rerr.Type == ErrTypeProvider {
				// Transport failures were already retried at the network
				// level; beyond that they surface.
				return r.failed(rerr)
			}
			// Malformed JSON: confidence zero, attempt counted as failure.
			s.ConfidenceScore = 0
			if escalated := r.noteAttemptFailure(rerr.Message); escalated {
				return r.escalated(rerr)
			}
			continue
		}
		s.CandidateIR = res.candidateJSON
		s.ReasoningTrace = append(s.ReasoningTrace, res.trace)
		s.ConfidenceScore = computeConfidence(s.RetryCount, len(s.ParseDiagnostics))
		r.checkpoint()

		if err := r.enter(ctx, StatusValidating); err != nil {
			return r.failed(err)
		}

		spec, perr := ast.ParseWorkflowSpec([]byte(s.CandidateIR))
		if perr != nil {
			msg := perr.Error()
			s.RecordError("validator", ErrTypeValidation, msg, true)
			if escalated := r.noteAttemptFailure(msg); escalated {
				return r.escalated(NewValidationError("%s", msg))
			}
			continue
		}

		result := validator.Validate(spec)
		for _, w := range result.Warnings {
			config.VerboseLog("Validator warning: %s", w.String())
		}
		if !result.Valid {
			for _, e := range result.Errors {
				s.RecordError("validator", ErrTypeValidation, e.String(), true)
			}
			if escalated := r.noteAttemptFailures(result.Messages()); escalated {
				return r.escalated(NewValidationError("IR failed validation after %d attempts", s.RetryCount).
					WithDetail("errors", result.Messages()))
			}
			continue
		}

		s.ValidatedSpec = spec
		r.checkpoint()
		break
	}

	// Low confidence on a validated IR still requires human review.
	if s.ConfidenceScore < ConfidenceThreshold {
		return r.escalated(NewEscalationError(
			"confidence %.2f is below the %.2f threshold", s.ConfidenceScore, ConfidenceThreshold))
	}

	// ===== Serializer =====
	if err := r.enter(ctx, StatusGenerating); err != nil {
		return r.failed(err)
	}
	serialized, err := ast.CanonicalJSON(s.ValidatedSpec)
	if err != nil {
		serr := NewSerializationError("%v", err)
		s.RecordError("serializer", serr.Type, serr.Message, false)
		return r.failed(serr)
	}
	if err := ast.RoundTripCheck(s.ValidatedSpec, serialized); err != nil {
		serr := NewSerializationError("%v", err)
		s.RecordError("serializer", serr.Type, serr.Message, false)
		return r.failed(serr)
	}
	s.SerializedJSON = string(serialized)
	r.checkpoint()

	// ===== Generator =====
	code, meta, err := generator.New(s.ValidatedSpec).Generate(s.ConfidenceScore)
	if err != nil {
		gerr := NewGenerationError("%v", err)
		s.RecordError("generator", gerr.Type, gerr.Message, false)
		return r.failed(gerr)
	}
	s.GeneratedCode = code
	s.ExecutionStatus = StatusComplete
	r.checkpoint()

	config.VerboseLog("Pipeline run %s complete (workflow=%s confidence=%.2f)",
		s.ExecutionID, s.ValidatedSpec.Name, s.ConfidenceScore)

	return &Result{
		Status:        StatusComplete,
		ExecutionID:   s.ExecutionID,
		WorkflowName:  s.ValidatedSpec.Name,
		GeneratedCode: code,
		SerializedIR:  s.SerializedJSON,
		Metadata:      meta,
		Confidence:    s.ConfidenceScore,
	}, nil
}

// enter checks for cancellation, then transitions to the next status and
// checkpoints.
func (r *runner) enter(ctx context.Context, status string) *Error {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return NewProviderError("pipeline exceeded its wall-clock budget").
				WithDetail("status_at_timeout", r.state.ExecutionStatus)
		}
		return NewProviderError("pipeline run cancelled").
			WithDetail("status_at_cancel", r.state.ExecutionStatus)
	default:
	}
	r.state.ExecutionStatus = status
	r.checkpoint()
	return nil
}

// noteAttemptFailure records one failed attempt and reports whether the
// run must escalate. The feedback message is consumed by the next
// reasoning attempt.
func (r *runner) noteAttemptFailure(feedback string) bool {
	return r.noteAttemptFailures([]string{feedback})
}

func (r *runner) noteAttemptFailures(feedback []string) bool {
	s := r.state
	s.FeedbackMessages = append(s.FeedbackMessages, feedback...)
	s.RetryCount++
	r.checkpoint()

	if s.RetryCount >= MaxRetries {
		config.VerboseLog("Run %s exhausted %d attempts, escalating", s.ExecutionID, s.RetryCount)
		return true
	}
	config.VerboseLog("Run %s retrying with %d feedback message(s) (attempt %d/%d)",
		s.ExecutionID, len(s.FeedbackMessages), s.RetryCount+1, MaxRetries)
	return false
}

func (r *runner) checkpoint() {
	if err := r.sink.Save(r.state.ExecutionID, r.state); err != nil {
		config.DebugLog("[Pipeline] Checkpoint save failed for %s: %v", r.state.ExecutionID, err)
	}
}

// failed terminates the run with a fatal error. No partial artifacts are
// emitted.
func (r *runner) failed(perr *Error) (*Result, error) {
	s := r.state
	s.ExecutionStatus = StatusFailed
	r.checkpoint()

	errs := s.LastErrors()
	if len(errs) == 0 || errs[len(errs)-1] != perr.Message {
		errs = append(errs, perr.Message)
	}

	return &Result{
		Status:      StatusFailed,
		ExecutionID: s.ExecutionID,
		Errors:      errs,
		Confidence:  s.ConfidenceScore,
	}, perr
}

// escalated hands back the partial IR and the last errors for human
// review.
func (r *runner) escalated(perr *Error) (*Result, error) {
	s := r.state
	s.ExecutionStatus = StatusEscalated
	r.checkpoint()

	config.VerboseLog("Run %s escalated: %s", s.ExecutionID, perr.Message)

	return &Result{
		Status:       StatusEscalated,
		ExecutionID:  s.ExecutionID,
		SerializedIR: s.CandidateIR,
		Errors:       s.LastErrors(),
		Confidence:   s.ConfidenceScore,
	}, nil
}
