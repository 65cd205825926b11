package converge

import (
	"time"

	"github.com/alexisbeaulieu97/profilestate/internal/state"
)

// Exit codes shared by the apply and verify commands.
const (
	ExitOK           = 0
	ExitDrift        = 1
	ExitConfigError  = 2
	ExitRuntimeError = 3
)

// Status classifies one profile outcome.
type Status string

const (
	StatusUnchanged   Status = "unchanged"
	StatusChanged     Status = "changed"
	StatusWouldChange Status = "would-change"
	StatusFailed      Status = "failed"
	StatusErrored     Status = "errored"
)

// Outcome is the result of reconciling one profile. Exactly one of Report and
// Err is set.
type Outcome struct {
	ID       string
	State    string
	Report   *state.Report
	Err      error
	Duration time.Duration
}

// Status derives the outcome classification from the report.
func (o Outcome) Status() Status {
	switch {
	case o.Err != nil || o.Report == nil:
		return StatusErrored
	case o.Report.Result == state.ResultFailure:
		return StatusFailed
	case o.Report.Result == state.ResultWouldChange:
		return StatusWouldChange
	case o.Report.Changed():
		return StatusChanged
	default:
		return StatusUnchanged
	}
}

// Counts tallies outcomes per status.
type Counts struct {
	Unchanged   int `json:"unchanged"`
	Changed     int `json:"changed"`
	WouldChange int `json:"would_change"`
	Failed      int `json:"failed"`
	Errored     int `json:"errored"`
}

// Total returns the number of outcomes counted.
func (c Counts) Total() int {
	return c.Unchanged + c.Changed + c.WouldChange + c.Failed + c.Errored
}

// Summary aggregates a convergence run. Outcomes follow manifest order.
type Summary struct {
	Name     string
	DryRun   bool
	Outcomes []Outcome
	Started  time.Time
	Finished time.Time
}

// Counts tallies the outcomes recorded so far.
func (s *Summary) Counts() Counts {
	var c Counts
	if s == nil {
		return c
	}
	for _, o := range s.Outcomes {
		switch o.Status() {
		case StatusUnchanged:
			c.Unchanged++
		case StatusChanged:
			c.Changed++
		case StatusWouldChange:
			c.WouldChange++
		case StatusFailed:
			c.Failed++
		case StatusErrored:
			c.Errored++
		}
	}
	return c
}

// HasChanges reports whether any profile changed or would change.
func (s *Summary) HasChanges() bool {
	c := s.Counts()
	return c.Changed+c.WouldChange > 0
}

// HasFailures reports whether any profile failed or errored.
func (s *Summary) HasFailures() bool {
	c := s.Counts()
	return c.Failed+c.Errored > 0
}

// ExitCode maps the run onto a process exit status. Errors win over failures,
// and failures or pending changes win over success.
func (s *Summary) ExitCode() int {
	c := s.Counts()
	switch {
	case c.Errored > 0:
		return ExitRuntimeError
	case c.Failed > 0, c.WouldChange > 0:
		return ExitDrift
	default:
		return ExitOK
	}
}

// Reports returns the reports of every outcome that produced one. Errored
// outcomes carry no report and are not included.
func (s *Summary) Reports() []state.Report {
	if s == nil {
		return nil
	}
	reports := make([]state.Report, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		if o.Report != nil {
			reports = append(reports, *o.Report)
		}
	}
	return reports
}

// Duration is the wall-clock time of the run.
func (s *Summary) Duration() time.Duration {
	if s == nil || s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}
