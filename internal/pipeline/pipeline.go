// Package pipeline drives one conversational turn end to end: draft a
// candidate with the synthesizer, validate it against the catalog,
// execute it in the sandbox, and feed every failure back into the next
// round until the query succeeds or the round budget runs out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/querypilot/querypilot/internal/convo"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/project"
	"github.com/querypilot/querypilot/internal/sandbox"
	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/synth"
	"github.com/querypilot/querypilot/internal/validate"
)

// TerminalKind names why a turn ended without an answer.
type TerminalKind string

const (
	TerminalExhaustedRetries TerminalKind = "exhausted_retries"
	TerminalSynthUnavailable TerminalKind = "synth_unavailable"
	TerminalStoreUnavailable TerminalKind = "store_unavailable"
)

// Answer is a successful turn: the final SQL, the projected result, and
// its summary statistics.
type Answer struct {
	SQL       string                `json:"sql"`
	Rationale string                `json:"rationale,omitempty"`
	Table     project.TabularResult `json:"table"`
	Stats     project.SummaryStats  `json:"stats"`
	Rounds    int                   `json:"rounds"`
}

// TurnFailure is a terminal failure. UserMessage is safe to show
// directly; Detail carries the last classified failure verbatim.
type TurnFailure struct {
	Kind        TerminalKind `json:"kind"`
	UserMessage string       `json:"user_message"`
	Detail      string       `json:"detail"`
}

// Outcome is the resolution of one turn. Exactly one field is set.
type Outcome struct {
	Answer  *Answer      `json:"answer,omitempty"`
	Failure *TurnFailure `json:"failure,omitempty"`
}

// Config bounds the retry loop and the sandbox.
type Config struct {
	MaxRounds    int
	MemoizeSize  int
	RowCap       int
	QueryTimeout time.Duration
}

type Pipeline struct {
	catalog     *schema.Catalog
	validator   *validate.Validator
	synthesizer synth.Synthesizer
	engine      sandbox.Engine
	sessions    *convo.Manager
	logger      *slog.Logger
	cfg         Config
	memo        *memoCache
	schemaView  string
}

func New(
	catalog *schema.Catalog,
	validator *validate.Validator,
	synthesizer synth.Synthesizer,
	engine sandbox.Engine,
	sessions *convo.Manager,
	logger *slog.Logger,
	cfg Config,
) *Pipeline {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	return &Pipeline{
		catalog:     catalog,
		validator:   validator,
		synthesizer: synthesizer,
		engine:      engine,
		sessions:    sessions,
		logger:      logger,
		cfg:         cfg,
		memo:        newMemoCache(cfg.MemoizeSize),
		// The rendered view is stable because the catalog is immutable.
		schemaView: catalog.RenderForPrompt(),
	}
}

// Answer resolves one turn for a session. The conversation context is
// appended only once the turn resolves; a context cancellation discards
// the in-flight state without recording anything.
func (p *Pipeline) Answer(ctx context.Context, sessionID, question string) (Outcome, error) {
	session, err := p.sessions.Get(sessionID)
	if err != nil {
		return Outcome{}, err
	}

	memoKey := p.memo.key(p.catalog.Fingerprint(), question)
	if answer, ok := p.memo.get(memoKey); ok {
		observability.IncrementMemoHit()
		observability.ObserveTurn("memoized", 0)
		session.Append(convo.Turn{
			Question: question,
			FinalSQL: answer.SQL,
			Columns:  columnNames(answer.Table),
			RowCount: answer.Table.RowCount,
		})
		return Outcome{Answer: &answer}, nil
	}

	outcome, err := p.runRounds(ctx, session, question)
	if err != nil {
		return Outcome{}, err
	}

	if outcome.Answer != nil {
		p.memo.put(memoKey, *outcome.Answer)
		session.Append(convo.Turn{
			Question: question,
			FinalSQL: outcome.Answer.SQL,
			Columns:  columnNames(outcome.Answer.Table),
			RowCount: outcome.Answer.Table.RowCount,
		})
		observability.ObserveTurn("succeeded", outcome.Answer.Rounds)
	} else {
		session.Append(convo.Turn{Question: question})
		observability.ObserveTurn(string(outcome.Failure.Kind), 0)
	}
	return outcome, nil
}

func (p *Pipeline) runRounds(ctx context.Context, session *convo.Context, question string) (Outcome, error) {
	var (
		rejections  []synth.Rejection
		lastFailure string
	)
	summary := session.Summary()

	for round := 1; round <= p.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		synthStart := time.Now()
		candidate, err := p.synthesizer.Synthesize(ctx, synth.Request{
			Question:            question,
			SchemaView:          p.schemaView,
			ConversationSummary: summary,
			PriorRejections:     rejections,
		})
		observability.ObserveSynthesis(time.Since(synthStart))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, ctxErr
			}
			if errors.Is(err, synth.ErrUnavailable) {
				p.logger.Warn("synthesis unavailable", "round", round, "error", err)
				return failed(TerminalSynthUnavailable, "the assistant is unavailable right now", err.Error()), nil
			}
			return Outcome{}, fmt.Errorf("synthesize candidate: %w", err)
		}

		plan, rejection := p.validator.Validate(candidate.SQL, p.cfg.RowCap)
		if rejection != nil {
			p.logger.Info("candidate rejected",
				"round", round,
				"kind", string(rejection.Kind),
				"detail", rejection.Detail,
			)
			observability.IncrementValidationRejection(string(rejection.Kind))
			rejections = append(rejections, synth.Rejection{
				SQL:    candidate.SQL,
				Kind:   string(rejection.Kind),
				Detail: rejection.Detail,
			})
			lastFailure = rejection.Error()
			continue
		}

		execStart := time.Now()
		result, err := p.engine.Execute(ctx, plan.SQL, p.cfg.QueryTimeout, plan.RowCap)
		observability.ObserveExecution(time.Since(execStart))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, ctxErr
			}
			var failure *sandbox.Failure
			if !errors.As(err, &failure) {
				return Outcome{}, fmt.Errorf("execute candidate: %w", err)
			}
			observability.IncrementExecutionFailure(string(failure.Kind))
			if !failure.Retryable() {
				p.logger.Error("store connection lost", "round", round, "error", failure)
				return failed(TerminalStoreUnavailable, "the data store could not answer", failure.Error()), nil
			}
			p.logger.Info("execution failed",
				"round", round,
				"kind", string(failure.Kind),
				"detail", failure.Detail,
			)
			rejections = append(rejections, synth.Rejection{
				SQL:    candidate.SQL,
				Kind:   string(failure.Kind),
				Detail: failure.Detail,
			})
			lastFailure = failure.Error()
			continue
		}

		table := project.Project(result.Columns, result.Rows)
		return Outcome{Answer: &Answer{
			SQL:       candidate.SQL,
			Rationale: candidate.Rationale,
			Table:     table,
			Stats:     project.Summarize(table),
			Rounds:    round,
		}}, nil
	}

	return failed(
		TerminalExhaustedRetries,
		"could not form a safe query for this question",
		lastFailure,
	), nil
}

func failed(kind TerminalKind, userMessage, detail string) Outcome {
	return Outcome{Failure: &TurnFailure{
		Kind:        kind,
		UserMessage: userMessage,
		Detail:      detail,
	}}
}

func columnNames(table project.TabularResult) []string {
	names := make([]string, len(table.Columns))
	for i, column := range table.Columns {
		names[i] = column.Name
	}
	return names
}
