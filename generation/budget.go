// Package generation turns retrieved chunks into answers: query
// rewriting, token-budget management of conversation history, and the
// streaming answer generator with inline citations.
package generation

import (
	"github.com/yukunliu/ragpipe/cache"
	"github.com/yukunliu/ragpipe/textutil"
)

// BudgetTrimmer fits conversation history into a model context budget.
// The system prompt and current query are always charged; the newest
// turn is kept with priority and older turns are admitted newest-first.
type BudgetTrimmer struct {
	// TotalBudget is the whole prompt budget in estimated tokens.
	TotalBudget int
}

// NewBudgetTrimmer returns a trimmer; non-positive budgets fall back to
// the default 4000.
func NewBudgetTrimmer(totalBudget int) *BudgetTrimmer {
	if totalBudget <= 0 {
		totalBudget = 4000
	}
	return &BudgetTrimmer{TotalBudget: totalBudget}
}

// TrimHistory returns the subset of history that fits the budget next
// to systemPrompt and query, preserving message order. The last turn
// (final two messages) survives unless even it alone overflows, in
// which case the result is empty.
func (b *BudgetTrimmer) TrimHistory(systemPrompt string, history []cache.Message, query string) []cache.Message {
	remaining := b.TotalBudget -
		textutil.EstimateTokens(systemPrompt) -
		textutil.EstimateTokens(query)
	if remaining <= 0 {
		return []cache.Message{}
	}

	var lastTurn, older []cache.Message
	if len(history) >= 2 {
		lastTurn = history[len(history)-2:]
		older = history[:len(history)-2]
	} else {
		lastTurn = history
	}
	for _, m := range lastTurn {
		remaining -= textutil.EstimateTokens(m.Content)
	}
	if remaining < 0 {
		return []cache.Message{}
	}

	// Admit older turns newest-first until the budget runs out.
	var kept []cache.Message
	for i := len(older) - 1; i >= 0; i-- {
		t := textutil.EstimateTokens(older[i].Content)
		if remaining-t < 0 {
			break
		}
		kept = append([]cache.Message{older[i]}, kept...)
		remaining -= t
	}
	return append(kept, lastTurn...)
}
