package core

import (
	"strings"
	"time"
)

// Email represents an inbound support message as delivered by a mail gateway.
// It is never mutated once fetched.
type Email struct {
	ID         string
	ThreadID   string
	From       string
	FromName   string
	To         []string
	Subject    string
	Body       string
	ReceivedAt time.Time
	Headers    map[string][]string
}

// Header returns the first value of the named header, matched case-insensitively.
func (e Email) Header(name string) string {
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Intent is the closed set of categories an email can be classified into.
type Intent string

const (
	IntentBilling          Intent = "billing"
	IntentTechnicalSupport Intent = "technical_support"
	IntentFeatureRequest   Intent = "feature_request"
	IntentGeneral          Intent = "general"
)

var intents = []Intent{IntentBilling, IntentTechnicalSupport, IntentFeatureRequest, IntentGeneral}

// AllIntents returns every intent in its canonical order.
func AllIntents() []Intent {
	out := make([]Intent, len(intents))
	copy(out, intents)
	return out
}

// ParseIntent maps a label onto an Intent. Case, surrounding whitespace and
// space/hyphen separators are tolerated.
func ParseIntent(s string) (Intent, bool) {
	label := strings.ToLower(strings.TrimSpace(s))
	label = strings.NewReplacer(" ", "_", "-", "_").Replace(label)
	for _, in := range intents {
		if string(in) == label {
			return in, true
		}
	}
	return "", false
}

func (i Intent) String() string {
	return string(i)
}

// Valid reports whether i is a member of the closed intent set.
func (i Intent) Valid() bool {
	for _, in := range intents {
		if i == in {
			return true
		}
	}
	return false
}

// Description is the one-line gloss used when prompting the classifier.
func (i Intent) Description() string {
	switch i {
	case IntentBilling:
		return "payment, invoices, charges, refunds, subscriptions or pricing"
	case IntentTechnicalSupport:
		return "bugs, errors, login problems, outages or how-to questions"
	case IntentFeatureRequest:
		return "suggestions for new functionality or improvements"
	case IntentGeneral:
		return "anything that does not fit the other categories"
	default:
		return ""
	}
}

// PolicyChunk is an immutable slice of a policy document together with its
// embedding. Offset and Length are measured in runes.
type PolicyChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Category   Intent    `json:"category,omitempty"`
	Index      int       `json:"index"`
	Offset     int       `json:"offset"`
	Length     int       `json:"length"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector"`
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk PolicyChunk
	Score float64
}

// Stage names a step of the per-email pipeline.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageClassify Stage = "classify"
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
	StageSend     Stage = "send"
	StageIndex    Stage = "index"
)

// State is the position of an email in the pipeline.
type State string

const (
	StateFetched    State = "fetched"
	StateClassified State = "classified"
	StateRetrieved  State = "retrieved"
	StateGenerated  State = "generated"
	StateSent       State = "sent"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateSkipped
}

// Outcome is the terminal classification of an email within a batch.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// SkipReason explains why an email never entered the pipeline.
type SkipReason string

const (
	SkipAlreadyProcessed SkipReason = "already_processed"
	SkipDuplicate        SkipReason = "duplicate_in_batch"
	SkipSuppressed       SkipReason = "suppressed"
	SkipCancelled        SkipReason = "cancelled"
)

// WorkflowResult records how one email left the pipeline.
type WorkflowResult struct {
	MessageID    string        `json:"message_id"`
	Outcome      Outcome       `json:"outcome"`
	FinalState   State         `json:"final_state"`
	FailedStage  Stage         `json:"failed_stage,omitempty"`
	Kind         ErrorKind     `json:"kind,omitempty"`
	SkipReason   SkipReason    `json:"skip_reason,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Degraded     []ErrorKind   `json:"degraded,omitempty"`
	Intent       Intent        `json:"intent,omitempty"`
	ChunkIDs     []string      `json:"chunk_ids,omitempty"`
	SendAttempts int           `json:"send_attempts,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Duration     time.Duration `json:"duration"`
}

// BatchReport summarises one processing run.
type BatchReport struct {
	RunID           string             `json:"run_id"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	Fetched         int                `json:"fetched"`
	Sent            int                `json:"sent"`
	Skipped         int                `json:"skipped"`
	Failed          int                `json:"failed"`
	FailedByKind    map[ErrorKind]int  `json:"failed_by_kind"`
	SkippedByReason map[SkipReason]int `json:"skipped_by_reason"`
	Results         []WorkflowResult   `json:"results"`
}

// NewBatchReport returns an empty report for the given run.
func NewBatchReport(runID string, startedAt time.Time) *BatchReport {
	return &BatchReport{
		RunID:           runID,
		StartedAt:       startedAt,
		FailedByKind:    make(map[ErrorKind]int),
		SkippedByReason: make(map[SkipReason]int),
	}
}

// Add folds a result into the counters.
func (r *BatchReport) Add(res WorkflowResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeSent:
		r.Sent++
	case OutcomeSkipped:
		r.Skipped++
		r.SkippedByReason[res.SkipReason]++
	case OutcomeFailed:
		r.Failed++
		r.FailedByKind[res.Kind]++
	}
}

// Status describes readiness of the running system.
type Status struct {
	Components     map[string]bool `json:"components"`
	IndexDocuments int             `json:"index_documents"`
	IndexChunks    int             `json:"index_chunks"`
	IndexVersion   uint64          `json:"index_version"`
	IndexBuiltAt   time.Time       `json:"index_built_at"`
	LastRun        *BatchReport    `json:"last_run,omitempty"`
}
