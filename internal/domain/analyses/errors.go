package analyses

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey indicates no provider credential is configured. Checked
// before any network call; never retried.
var ErrMissingAPIKey = errors.New("API key required")

// ErrInsufficientData indicates the engine was invoked with fewer drops than
// RequiredDrops.
var ErrInsufficientData = errors.New("not enough journal entries")

// ErrProviderAuth indicates the provider rejected the configured credential
// (HTTP 401/403). Not retried; an operator problem, not a user one.
var ErrProviderAuth = errors.New("ai provider rejected credentials")

// ErrEmptyResponse indicates the provider returned a structurally valid reply
// with no content. Retrying is assumed not to help.
var ErrEmptyResponse = errors.New("ai returned an empty response")

// ErrMissingSection indicates the required analysis body section is absent.
var ErrMissingSection = errors.New("Analysis section is required")

// ErrMissingSummary indicates the summary section is absent.
var ErrMissingSummary = errors.New("Summary section is required")

// ErrSummaryTooLong indicates the summary exceeds SummaryMaxWords.
var ErrSummaryTooLong = errors.New("summary exceeds the word limit")

// ErrInvalidBulletCount indicates the insights section has fewer than
// MinBulletPoints or more than MaxBulletPoints lines.
var ErrInvalidBulletCount = errors.New("insights must contain 3-5 bullet points")

// ErrUnparseableResponse indicates no recognizable section markers at all.
var ErrUnparseableResponse = errors.New("response has no recognizable sections")

// ErrAnalysisNotFound indicates the analysis id is unknown.
var ErrAnalysisNotFound = errors.New("analysis not found")

// ErrAnalysisInProgress indicates another analysis is already running for the
// same user.
var ErrAnalysisInProgress = errors.New("analysis already in progress")

// ErrStorage indicates persistence of a generated analysis failed.
var ErrStorage = errors.New("analysis could not be saved")

// RetriesExhaustedError reports a provider call that kept failing retryably
// until the attempt ceiling.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("ai provider unavailable after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// IsParseFailure reports whether err comes from the response parser or its
// validation rules.
func IsParseFailure(err error) bool {
	return errors.Is(err, ErrMissingSection) ||
		errors.Is(err, ErrMissingSummary) ||
		errors.Is(err, ErrSummaryTooLong) ||
		errors.Is(err, ErrInvalidBulletCount) ||
		errors.Is(err, ErrUnparseableResponse)
}
