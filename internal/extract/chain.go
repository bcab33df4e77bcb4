package extract

import (
	"strings"

	"github.com/difranardo/vacancies-scrapper/internal/normalize"
)

// Strategy is one named way of producing a field value from a Document.
type Strategy[T any] struct {
	Name    string
	Extract func(*Document) T
}

// Chain runs strategies in order and returns the first accepted value. The
// order is part of the contract: most specific first, generic fallbacks last.
type Chain[T any] struct {
	strategies []Strategy[T]
	accept     func(T) (T, bool)
}

// NewChain builds a chain with a custom acceptance rule. accept may rewrite
// the value (trim, dedupe) before it is returned.
func NewChain[T any](accept func(T) (T, bool), strategies ...Strategy[T]) *Chain[T] {
	return &Chain[T]{strategies: strategies, accept: accept}
}

// NewTextChain accepts the first trimmed, non-empty string.
func NewTextChain(strategies ...Strategy[string]) *Chain[string] {
	return NewChain(acceptText, strategies...)
}

// NewListChain accepts the first list that is non-empty after deduplication.
func NewListChain(strategies ...Strategy[[]string]) *Chain[[]string] {
	return NewChain(acceptList, strategies...)
}

// Run evaluates the chain and returns the accepted value together with the
// name of the strategy that produced it. Both are zero when nothing matched.
func (c *Chain[T]) Run(doc *Document) (T, string) {
	var zero T
	if c == nil || doc == nil {
		return zero, ""
	}
	for _, s := range c.strategies {
		if s.Extract == nil {
			continue
		}
		if v, ok := c.accept(s.Extract(doc)); ok {
			return v, s.Name
		}
	}
	return zero, ""
}

// Names lists the strategies in evaluation order.
func (c *Chain[T]) Names() []string {
	out := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		out = append(out, s.Name)
	}
	return out
}

func acceptText(v string) (string, bool) {
	v = strings.TrimSpace(v)
	return v, v != ""
}

func acceptList(v []string) ([]string, bool) {
	v = normalize.Dedupe(v)
	return v, len(v) > 0
}
