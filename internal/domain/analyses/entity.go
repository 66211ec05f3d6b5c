package analyses

import "time"

// Single source of truth for the pipeline's thresholds.
const (
	// RequiredDrops is how many unanalyzed entries a user needs before an
	// analysis can be generated.
	RequiredDrops = 7

	// SummaryMaxWords bounds the generated headline.
	SummaryMaxWords = 15

	// MinBulletPoints and MaxBulletPoints bound the insights section.
	MinBulletPoints = 3
	MaxBulletPoints = 5

	// CorpusCharBudget bounds the assembled prompt text sent to the model.
	CorpusCharBudget = 12000
)

// AnalysisID identifier type
type AnalysisID string

// Analysis is the generated artifact: one per successful pipeline run,
// immutable except for the favorite flag.
type Analysis struct {
	ID           AnalysisID `json:"id"`
	UserID       int64      `json:"user_id"`
	Content      string     `json:"content"`
	Summary      string     `json:"summary"`
	BulletPoints []string   `json:"bullet_points"`
	IsFavorited  bool       `json:"is_favorited"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Eligibility reports whether a user has accumulated enough unreviewed drops.
type Eligibility struct {
	IsEligible      bool `json:"is_eligible"`
	UnanalyzedCount int  `json:"unanalyzed_count"`
	RequiredCount   int  `json:"required_count"`
}

// Preview describes what an analysis would cover without committing to one.
type Preview struct {
	DropCount    int       `json:"drop_count"`
	MessageCount int       `json:"message_count"`
	OldestEntry  time.Time `json:"oldest_entry"`
	NewestEntry  time.Time `json:"newest_entry"`
}

// Metadata carries run details alongside the outcome.
type Metadata struct {
	UserID         int64         `json:"user_id"`
	DropCount      int           `json:"drop_count"`
	ProcessingTime time.Duration `json:"processing_time_ms"`
}

// Result is the single success/failure shape surfaced by the orchestrator.
// Error holds a short user-facing message, never internal detail.
type Result struct {
	Success  bool      `json:"success"`
	Analysis *Analysis `json:"analysis,omitempty"`
	Error    string    `json:"error,omitempty"`
	Metadata Metadata  `json:"metadata"`
}

// Health is the per-check outcome of the operational health probe.
type Health struct {
	Healthy bool            `json:"healthy"`
	Checks  map[string]bool `json:"checks"`
}

// ParsedResponse is the validated structure extracted from the model's
// free-text reply.
type ParsedResponse struct {
	Summary      string
	Content      string
	BulletPoints []string
}

// GenerateRequest is the prepared input for the invocation engine. DropCount
// lets the engine independently enforce the minimum-data precondition.
type GenerateRequest struct {
	Corpus    string
	DropCount int
}
