package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tradersim/internal/guardrail"
	"tradersim/internal/model"
)

// ErrNoDecision means the response held no JSON object.
var ErrNoDecision = errors.New("no decision object in response")

// ProposedTrade is one trade of a decision, as written by the decision
// maker.
type ProposedTrade struct {
	Action    string `json:"action"`
	Symbol    string `json:"symbol"`
	Shares    int64  `json:"shares"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Proposal converts the trade, rejecting an unknown action. Share and
// symbol validation is left to the execution engine.
func (t ProposedTrade) Proposal() (guardrail.Proposal, error) {
	side, err := model.ParseSide(t.Action)
	if err != nil {
		return guardrail.Proposal{}, err
	}
	return guardrail.Proposal{
		Side:      side,
		Symbol:    strings.ToUpper(strings.TrimSpace(t.Symbol)),
		Shares:    t.Shares,
		Reasoning: t.Reasoning,
	}, nil
}

// Decision is the decision maker's answer.
type Decision struct {
	Analysis      string          `json:"analysis"`
	Trades        []ProposedTrade `json:"trades"`
	HoldReasoning string          `json:"hold_reasoning,omitempty"`
}

// ParseDecision extracts the decision from free text: the span from the
// first '{' to the last '}' is decoded as JSON.
func ParseDecision(text string) (Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Decision{}, ErrNoDecision
	}
	var d Decision
	if err := json.Unmarshal([]byte(text[start:end+1]), &d); err != nil {
		return Decision{}, fmt.Errorf("parse decision: %w", err)
	}
	return d, nil
}

// Skipped is a proposed trade that was not executed.
type Skipped struct {
	Trade  ProposedTrade `json:"trade"`
	Reason string        `json:"reason"`
}

// Outcome reports what happened to each proposed trade.
type Outcome struct {
	Executed []model.Trade `json:"executed"`
	Skipped  []Skipped     `json:"skipped"`
}

// Submitter executes proposals. *guardrail.Validator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, p guardrail.Proposal) (model.Trade, error)
}

// Apply submits every trade of d in order. A rejected trade is recorded
// and the rest still run; only context cancellation stops early.
func Apply(ctx context.Context, s Submitter, d Decision) (Outcome, error) {
	out := Outcome{Executed: []model.Trade{}, Skipped: []Skipped{}}
	for _, t := range d.Trades {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		p, err := t.Proposal()
		if err != nil {
			out.Skipped = append(out.Skipped, Skipped{Trade: t, Reason: err.Error()})
			continue
		}
		trade, err := s.Submit(ctx, p)
		if err != nil {
			out.Skipped = append(out.Skipped, Skipped{Trade: t, Reason: err.Error()})
			continue
		}
		out.Executed = append(out.Executed, trade)
	}
	return out, nil
}
