package signature

// Signal names one of the three retrieval signals computed per chunk.
type Signal string

const (
	SignalLexical  Signal = "lexical"
	SignalVector   Signal = "vector"
	SignalPhonetic Signal = "phonetic"
)

// Signals lists every signal in a stable order.
var Signals = []Signal{SignalLexical, SignalVector, SignalPhonetic}

// Status tracks where a chunk's signal is in its lifecycle. A chunk is
// searchable through a signal only once that signal is computed; the
// two failure states differ in whether a later ingest pass retries.
type Status string

const (
	StatusPending         Status = "pending"
	StatusComputed        Status = "computed"
	StatusFailedRetryable Status = "failed-retryable"
	StatusFailedPermanent Status = "failed-permanent"
)

var statusTransitions = map[Status][]Status{
	StatusPending:         {StatusComputed, StatusFailedRetryable, StatusFailedPermanent},
	StatusFailedRetryable: {StatusComputed, StatusFailedRetryable, StatusFailedPermanent},
	StatusComputed:        {StatusComputed, StatusPending},
	StatusFailedPermanent: {StatusPending},
}

// CanTransition reports whether moving from one status to another is
// legal. Computed and failed-permanent chunks only move again when the
// chunk text itself changes, which resets the signal to pending.
func CanTransition(from, to Status) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NeedsWork reports whether a signal in this status should be picked
// up by an ingest or repair pass.
func (s Status) NeedsWork() bool {
	return s == StatusPending || s == StatusFailedRetryable
}
