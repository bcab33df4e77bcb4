// Package uuid generates job identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

// Generator creates UUID v7 strings, so ids sort by submission time.
type Generator struct{}

var _ scrape.IDGenerator = Generator{}

// New creates a new Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether s parses as a UUID. The API uses it to reject
// malformed job ids early.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
