// Package synth is the language-model boundary. It turns a natural
// language question, the schema view, and accumulated rejection
// feedback into a candidate SQL query. Everything it produces is
// untrusted until validated.
package synth

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the synthesis backend could not be
// reached or refused to answer. It is terminal for the turn: there is
// no point retrying validation-side when no candidate exists.
var ErrUnavailable = errors.New("synthesis unavailable")

// Rejection is feedback from a failed round, phrased for the model.
type Rejection struct {
	SQL    string `json:"sql"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Request carries everything a synthesis round may condition on.
type Request struct {
	Question            string
	SchemaView          string
	ConversationSummary string
	PriorRejections     []Rejection
}

// Candidate is one synthesized query. Rationale is the model's own
// one-line explanation when it chose to provide one.
type Candidate struct {
	SQL       string
	Rationale string
	Model     string
}

// Synthesizer produces SQL candidates. Implementations must be safe
// for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Candidate, error)
}
