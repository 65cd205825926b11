package state

import (
	"encoding/json"
	"fmt"
)

// Result is the tri-state outcome of a reconciliation.
type Result int

const (
	// ResultSuccess means the resource matches the desired state, either
	// because it already did or because a mutation succeeded.
	ResultSuccess Result = iota
	// ResultFailure means a mutation was attempted and reported failure.
	ResultFailure
	// ResultWouldChange means a dry run found work to do.
	ResultWouldChange
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultWouldChange:
		return "would-change"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// MarshalJSON encodes success/failure/would-change as true/false/null.
func (r Result) MarshalJSON() ([]byte, error) {
	switch r {
	case ResultSuccess:
		return []byte("true"), nil
	case ResultFailure:
		return []byte("false"), nil
	case ResultWouldChange:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown result %d", int(r))
	}
}

// Change records what happened to one resource. It is either an old/new pair
// or, when Note is set, a descriptive string.
type Change struct {
	Old  any
	New  any
	Note string
}

// IsNote reports whether the change is a descriptive string.
func (c Change) IsNote() bool {
	return c.Note != ""
}

type changePair struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// MarshalJSON encodes a note as a bare string and a pair as {"old","new"}.
func (c Change) MarshalJSON() ([]byte, error) {
	if c.IsNote() {
		return json.Marshal(c.Note)
	}
	return json.Marshal(changePair{Old: c.Old, New: c.New})
}

// Report is the convergence report returned by every reconciliation. Its
// JSON shape is consumed by report-aggregation tooling and must not change.
type Report struct {
	Name    string            `json:"name"`
	Result  Result            `json:"result"`
	Changes map[string]Change `json:"changes"`
	Comment string            `json:"comment"`
}

func newReport(id string) *Report {
	return &Report{
		Name:    id,
		Result:  ResultSuccess,
		Changes: map[string]Change{},
	}
}

// Changed reports whether the reconciliation mutated the resource.
func (r *Report) Changed() bool {
	return r != nil && r.Result == ResultSuccess && len(r.Changes) > 0
}
