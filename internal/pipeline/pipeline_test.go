package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/querypilot/querypilot/internal/convo"
	"github.com/querypilot/querypilot/internal/sandbox"
	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/synth"
	"github.com/querypilot/querypilot/internal/validate"
)

type fakeSynth struct {
	calls     int
	requests  []synth.Request
	responses []string
	err       error
}

func (f *fakeSynth) Synthesize(_ context.Context, req synth.Request) (synth.Candidate, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return synth.Candidate{}, f.err
	}
	sql := f.responses[len(f.responses)-1]
	if f.calls <= len(f.responses) {
		sql = f.responses[f.calls-1]
	}
	return synth.Candidate{SQL: sql, Model: "test"}, nil
}

type fakeEngine struct {
	calls    int
	executed []string
	result   sandbox.Result
	errs     []error
}

func (f *fakeEngine) Execute(_ context.Context, sql string, _ time.Duration, _ int) (sandbox.Result, error) {
	f.calls++
	f.executed = append(f.executed, sql)
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return sandbox.Result{}, f.errs[f.calls-1]
	}
	return f.result, nil
}

func (f *fakeEngine) HealthCheck(context.Context) error { return nil }
func (f *fakeEngine) Close() error                      { return nil }

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	catalog, err := schema.Load(schema.Metadata{Tables: []schema.TableMetadata{
		{
			Name: "patients",
			Columns: []schema.ColumnMetadata{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "TEXT"},
				{Name: "age", Type: "INTEGER"},
			},
			PrimaryKey:    []string{"id"},
			EstimatedRows: 1200,
		},
	}})
	if err != nil {
		t.Fatalf("schema.Load() error = %v", err)
	}
	return catalog
}

func testPipeline(t *testing.T, synthesizer synth.Synthesizer, engine sandbox.Engine) (*Pipeline, *convo.Manager) {
	t.Helper()
	catalog := testCatalog(t)
	validator := validate.New(catalog, validate.Config{
		MaxNodes:          400,
		MaxJoins:          6,
		MaxSubqueryDepth:  4,
		WideTableRowCount: 1_000_000,
	})
	sessions := convo.NewManager(8, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(catalog, validator, synthesizer, engine, sessions, logger, Config{
		MaxRounds:    3,
		MemoizeSize:  16,
		RowCap:       100,
		QueryTimeout: time.Second,
	})
	return p, sessions
}

func startSession(t *testing.T, sessions *convo.Manager) string {
	t.Helper()
	return sessions.StartSession().ID()
}

func TestAnswerSucceedsFirstRound(t *testing.T) {
	synthesizer := &fakeSynth{responses: []string{"SELECT name, age FROM patients WHERE age > 40"}}
	engine := &fakeEngine{result: sandbox.Result{
		Columns: []string{"name", "age"},
		Rows:    [][]any{{"Ada", int64(44)}, {"Grace", int64(51)}},
	}}
	p, sessions := testPipeline(t, synthesizer, engine)
	sessionID := startSession(t, sessions)

	outcome, err := p.Answer(context.Background(), sessionID, "who is older than 40?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if outcome.Answer == nil {
		t.Fatalf("outcome = %+v, want answer", outcome)
	}
	if outcome.Answer.Rounds != 1 {
		t.Fatalf("rounds = %d, want 1", outcome.Answer.Rounds)
	}
	if outcome.Answer.Table.RowCount != 2 {
		t.Fatalf("row count = %d, want 2", outcome.Answer.Table.RowCount)
	}
	if !strings.Contains(engine.executed[0], "LIMIT 101") {
		t.Fatalf("executed SQL missing row cap: %q", engine.executed[0])
	}

	session, err := sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	turns := session.Turns()
	if len(turns) != 1 || turns[0].FinalSQL == "" || turns[0].RowCount != 2 {
		t.Fatalf("recorded turn = %+v", turns)
	}
}

func TestAnswerFeedsRejectionIntoNextRound(t *testing.T) {
	synthesizer := &fakeSynth{responses: []string{
		"SELECT nothing FROM missing_table",
		"SELECT name FROM patients",
	}}
	engine := &fakeEngine{result: sandbox.Result{Columns: []string{"name"}, Rows: [][]any{{"Ada"}}}}
	p, sessions := testPipeline(t, synthesizer, engine)
	sessionID := startSession(t, sessions)

	outcome, err := p.Answer(context.Background(), sessionID, "list patient names")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if outcome.Answer == nil || outcome.Answer.Rounds != 2 {
		t.Fatalf("outcome = %+v, want answer after 2 rounds", outcome)
	}

	if len(synthesizer.requests) != 2 {
		t.Fatalf("synth calls = %d, want 2", len(synthesizer.requests))
	}
	second := synthesizer.requests[1]
	if len(second.PriorRejections) != 1 {
		t.Fatalf("prior rejections = %d, want 1", len(second.PriorRejections))
	}
	if second.PriorRejections[0].Kind != string(validate.KindUnknownTable) {
		t.Fatalf("rejection kind = %s", second.PriorRejections[0].Kind)
	}
	if second.PriorRejections[0].SQL != "SELECT nothing FROM missing_table" {
		t.Fatalf("rejection sql = %q", second.PriorRejections[0].SQL)
	}
}

func TestAnswerRetriesAfterRetryableExecutionFailure(t *testing.T) {
	synthesizer := &fakeSynth{responses: []string{
		"SELECT name FROM patients",
		"SELECT name FROM patients WHERE age > 40",
	}}
	engine := &fakeEngine{
		result: sandbox.Result{Columns: []string{"name"}, Rows: [][]any{{"Ada"}}},
		errs: []error{
			&sandbox.Failure{Kind: sandbox.KindTimeout, Detail: "query exceeded the 1s execution budget"},
		},
	}
	p, sessions := testPipeline(t, synthesizer, engine)
	sessionID := startSession(t, sessions)

	outcome, err := p.Answer(context.Background(), sessionID, "patient names")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if outcome.Answer == nil || outcome.Answer.Rounds != 2 {
		t.Fatalf("outcome = %+v, want answer after 2 rounds", outcome)
	}
	if got := synthesizer.requests[1].PriorRejections[0].Kind; got != string(sandbox.KindTimeout) {
		t.Fatalf("fed-back kind = %s, want timeout", got)
	}
}

func TestAnswerExhaustsRetries(t *testing.T) {
	synthesizer := &fakeSynth{responses: []string{"DELETE FROM patients"}}
	engine := &fakeEngine{}
	p, sessions := testPipeline(t, synthesizer, engine)
	sessionID := startSession(t, sessions)

	outcome, err := p.Answer(context.Background(), sessionID, "remove everyone")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if outcome.Failure == nil || outcome.Failure.Kind != TerminalExhaustedRetries {
		t.Fatalf("outcome = %+v, want exhausted retries", outcome)
	}
	if !strings.Contains(outcome.Failure.Detail, "disallowed_statement") {
		t.Fatalf("detail should carry the last failure verbatim: %q", outcome.Failure.Detail)
	}
	if synthesizer.calls != 3 {
		t.Fatalf("synth calls = %d, want 3", synthesizer.calls)
	}
	if engine.calls != 0 {
		t.Fatalf("engine calls = %d, want 0", engine.calls)
	}

	session, _ := sessions.Get(sessionID)
	turns := session.Turns()
	if len(turns) != 1 || turns[0].FinalSQL != "" {
		t.Fatalf("failed turn recorded wrong: %+v", turns)
	}
}

func TestAnswerSynthUnavailableIsTerminal(t *testing.T) {
	synthesizer := &fakeSynth{err: fmt.Errorf("call openai: %w", synth.ErrUnavailable)}
	p, sessions := testPipeline(t, synthesizer, &fakeEngine{})
	sessionID := startSession(t, sessions)

	outcome, err := p.Answer(context.Background(), sessionID, "anything")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if outcome.Failure == nil || outcome.Failure.Kind != TerminalSynthUnavailable {
		t.Fatalf("outcome = %+v, want synth unavailable", outcome)
	}
	if synthesizer.calls != 1 {
		t.Fatalf("synth calls = %d, want 1", synthesizer.calls)
	}
}

func TestAnswerConnectionLostIsTerminal(t *testing.T) {
	synthesizer := &fakeSynth{responses: []string{"SELECT name FROM patients"}}
	engine := &fakeEngine{errs: []error{
		&sandbox.Failure{Kind: sandbox.KindConnectionLost, Detail: "driver: bad connection"},
	}}
	p, sessions := testPipeline(t, synthesizer, engine)
	sessionID := startSession(t, sessions)

	outcome, err := p.Answer(context.Background(), sessionID, "patient names")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if outcome.Failure == nil || outcome.Failure.Kind != TerminalStoreUnavailable {
		t.Fatalf("outcome = %+v, want store unavailable", outcome)
	}
	if synthesizer.calls != 1 {
		t.Fatalf("no retry after lost connection, synth calls = %d", synthesizer.calls)
	}
}

func TestAnswerMemoizesSuccessfulTurns(t *testing.T) {
	synthesizer := &fakeSynth{responses: []string{"SELECT name FROM patients"}}
	engine := &fakeEngine{result: sandbox.Result{Columns: []string{"name"}, Rows: [][]any{{"Ada"}}}}
	p, sessions := testPipeline(t, synthesizer, engine)
	sessionID := startSession(t, sessions)

	if _, err := p.Answer(context.Background(), sessionID, "List patient names"); err != nil {
		t.Fatalf("first Answer() error = %v", err)
	}
	outcome, err := p.Answer(context.Background(), sessionID, "  list   PATIENT names ")
	if err != nil {
		t.Fatalf("second Answer() error = %v", err)
	}
	if outcome.Answer == nil {
		t.Fatalf("outcome = %+v, want memoized answer", outcome)
	}
	if synthesizer.calls != 1 {
		t.Fatalf("synth calls = %d, want 1 (second turn served from memo)", synthesizer.calls)
	}

	session, _ := sessions.Get(sessionID)
	if len(session.Turns()) != 2 {
		t.Fatalf("turns = %d, want 2", len(session.Turns()))
	}
}

func TestAnswerUnknownSession(t *testing.T) {
	p, _ := testPipeline(t, &fakeSynth{responses: []string{"SELECT 1"}}, &fakeEngine{})

	_, err := p.Answer(context.Background(), "missing", "anything")
	if !errors.Is(err, convo.ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestAnswerCancelledContextDiscardsTurn(t *testing.T) {
	synthesizer := &fakeSynth{responses: []string{"SELECT name FROM patients"}}
	p, sessions := testPipeline(t, synthesizer, &fakeEngine{})
	sessionID := startSession(t, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Answer(ctx, sessionID, "patient names")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	session, _ := sessions.Get(sessionID)
	if len(session.Turns()) != 0 {
		t.Fatalf("cancelled turn must not be recorded: %+v", session.Turns())
	}
}
