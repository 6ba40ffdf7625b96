package app

import (
	"fmt"
	"sort"
	"strings"

	"rfi-go/internal/database"
)

// Operation tracks the CLI command being run. It is recorded in the history
// database when history is enabled; ID stays 0 otherwise.
type Operation struct {
	ID         int64
	RunID      string
	Name       string
	Parameters string
	Status     string // database.StatusSuccess or database.StatusError
	Summary    string
}

// NewOperation creates a new in-memory operation.
func NewOperation(runID, name, parameters string) *Operation {
	return &Operation{
		RunID:      runID,
		Name:       name,
		Parameters: parameters,
		Status:     database.StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation failed with err as summary.
func (op *Operation) Fail(err error) {
	op.Status = database.StatusError
	op.Summary = err.Error()
}

// Succeed records summary on a successful operation.
func (op *Operation) Succeed(summary string) {
	op.Status = database.StatusSuccess
	op.Summary = summary
}

// FormatParameters renders parameters as sorted "key=value" pairs.
func FormatParameters(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}
