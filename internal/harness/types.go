package harness

// TraceEvent is one traced engine outcome.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Event   string `json:"event"`
	Track   string `json:"track,omitempty"`
	Session string `json:"session,omitempty"`

	// Position is the reported or sought position in seconds.
	Position *float64 `json:"position,omitempty"`
	Rate     *float64 `json:"rate,omitempty"`

	Started     bool   `json:"started,omitempty"`
	SeekCounted bool   `json:"seek_counted,omitempty"`
	Verdict     string `json:"verdict,omitempty"`

	// Progress is set for awards, manual progress and confirmations.
	Progress *float64 `json:"progress,omitempty"`

	Award        *TraceAward `json:"award,omitempty"`
	Credited     bool        `json:"credited,omitempty"`
	Confirmation string      `json:"confirmation,omitempty"`

	TotalPoints int `json:"total_points"`

	// Commands lists player commands issued while applying the event.
	Commands []string `json:"commands,omitempty"`

	Error string `json:"error,omitempty"`
}

// TraceAward is the penalty summary of an award.
type TraceAward struct {
	Points        int     `json:"points"`
	PenaltyPoints int     `json:"penalty_points"`
	ForwardSeeks  int     `json:"forward_seeks"`
	PeakRate      float64 `json:"peak_rate"`
}

// RecordState is the final state of one progress record.
type RecordState struct {
	Track          string  `json:"track"`
	Completed      bool    `json:"completed"`
	Progress       float64 `json:"progress"`
	PointsDeducted int     `json:"points_deducted"`
	ForwardSeeks   int     `json:"forward_seeks"`
	PeakRate       float64 `json:"peak_rate,omitempty"`
}

// FinalState is the engine and store state after the last step.
type FinalState struct {
	TotalPoints int           `json:"total_points"`
	Completed   []string      `json:"completed"`
	Records     []RecordState `json:"records"`
	Pending     int           `json:"pending"`
	Outbox      int           `json:"outbox"`
	Notices     int           `json:"notices"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	State FinalState `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
