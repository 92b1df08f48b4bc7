package stats

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AggregationError reports the snapshot fields whose queries failed. The
// remaining fields of the accompanying snapshot hold real values.
type AggregationError struct {
	Failures map[string]error
	queries  int
}

func (e *AggregationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %v", f, e.Failures[f]))
	}
	return "aggregate dashboard stats: " + strings.Join(parts, "; ")
}

// Fields returns the degraded field names in a stable order.
func (e *AggregationError) Fields() []string {
	fields := make([]string, 0, len(e.Failures))
	for f := range e.Failures {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Total reports whether every query failed.
func (e *AggregationError) Total() bool {
	return e.queries > 0 && len(e.Failures) >= e.queries
}

func (e *AggregationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Fields() {
		errs = append(errs, e.Failures[f])
	}
	return errs
}

// IsAggregationError reports whether err carries an AggregationError.
func IsAggregationError(err error) bool {
	var aggErr *AggregationError
	return errors.As(err, &aggErr)
}
