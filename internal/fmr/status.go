package fmr

import "encoding/json"

// State is the client-side view of a load job's lifecycle.
type State int

const (
	StateInProgress State = iota
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusLabels enumerates the load-status labels reported by an FMR instance,
// grouped by how the client must react to them. The value is immutable once
// handed to a Classifier.
type StatusLabels struct {
	InProgress []string
	Errors     []string
	Completed  []string
}

// DefaultStatusLabels returns the label sets reported by stock FMR releases.
func DefaultStatusLabels() StatusLabels {
	return StatusLabels{
		InProgress: []string{"Initialising", "Analysing", "Validating", "Consolidating"},
		Errors:     []string{"IncorrectDSD", "InvalidRef", "MissingDSD", "Error"},
		Completed:  []string{"Complete"},
	}
}

// Finding is a single diagnostic entry from an FMR validation report.
type Finding struct {
	Type     string `json:"Type,omitempty"`
	Severity string `json:"Severity,omitempty"`
	Message  string `json:"Message,omitempty"`
	Dataset  int    `json:"Dataset,omitempty"`
	Position string `json:"Position,omitempty"`
}

// StatusResponse is the decoded body of one loadStatus check. Raw holds the
// undecoded body so terminal errors can surface the full payload.
type StatusResponse struct {
	Status   string          `json:"Status"`
	Datasets []DatasetStatus `json:"Datasets"`
	Raw      json.RawMessage `json:"-"`
}

// DatasetStatus is the per-dataset section of a completed load response.
type DatasetStatus struct {
	Errors           bool      `json:"Errors"`
	ValidationReport []Finding `json:"ValidationReport"`
}

// JobStatus is the classified outcome of one status check. Substate is the
// server's own label and carries no behavioral difference beyond State.
type JobStatus struct {
	State    State
	Substate string
	Findings []Finding
	Detail   json.RawMessage
}

// Classifier maps raw status responses onto JobStatus values. It performs no
// I/O and holds no mutable state, so a single instance is safe to share.
type Classifier struct {
	inProgress map[string]struct{}
	errSet     map[string]struct{}
	completed  map[string]struct{}
}

// NewClassifier builds a Classifier from the given label sets.
func NewClassifier(labels StatusLabels) *Classifier {
	return &Classifier{
		inProgress: toSet(labels.InProgress),
		errSet:     toSet(labels.Errors),
		completed:  toSet(labels.Completed),
	}
}

// Classify interprets one status response. A missing Status field or a label
// outside the configured sets is a protocol mismatch, not a transient state.
func (c *Classifier) Classify(resp StatusResponse) (JobStatus, error) {
	if resp.Status == "" {
		return JobStatus{}, ErrMalformedResponse
	}

	if _, ok := c.inProgress[resp.Status]; ok {
		return JobStatus{State: StateInProgress, Substate: resp.Status}, nil
	}

	if _, ok := c.errSet[resp.Status]; ok {
		return JobStatus{State: StateFailed, Substate: resp.Status, Detail: resp.Raw}, nil
	}

	if _, ok := c.completed[resp.Status]; ok {
		status := JobStatus{State: StateComplete, Substate: resp.Status, Findings: []Finding{}}
		// A completed job with the per-dataset error flag set exposes its
		// findings verbatim; a clean dataset reports an empty sequence.
		if len(resp.Datasets) > 0 && resp.Datasets[0].Errors && resp.Datasets[0].ValidationReport != nil {
			status.Findings = resp.Datasets[0].ValidationReport
		}
		return status, nil
	}

	return JobStatus{}, ErrMalformedResponse
}

func toSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return set
}
