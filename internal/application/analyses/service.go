package analyses

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stillwater-app/stillwater/internal/application"
	domain "github.com/stillwater-app/stillwater/internal/domain/analyses"
	"github.com/stillwater-app/stillwater/internal/domain/journal"
)

// pipelineDeadline bounds one full run: LLM call, backoff sleeps, persistence.
const pipelineDeadline = 60 * time.Second

// HealthCheckFunc probes one dependency.
type HealthCheckFunc func(ctx context.Context) error

// Service orchestrates the analysis pipeline: check eligibility → aggregate →
// invoke → parse → persist → reset the eligibility window. Safe for
// concurrent use; concurrent runs for the same user are rejected.
type Service struct {
	Drops     domain.DropSource
	Analyses  domain.Repository
	Generator domain.Generator
	Archive   domain.Archive // optional
	Clock     application.Clock
	Checks    map[string]HealthCheckFunc

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// Eligibility reports how many unanalyzed drops the user has against the
// required threshold. Never errors for an absent user.
func (s *Service) Eligibility(ctx context.Context, userID int64) (*domain.Eligibility, error) {
	count, err := s.Drops.CountUnanalyzedDrops(ctx, userID)
	if err != nil {
		if errors.Is(err, journal.ErrUserNotFound) {
			return &domain.Eligibility{IsEligible: false, UnanalyzedCount: 0, RequiredCount: domain.RequiredDrops}, nil
		}
		return nil, err
	}
	return &domain.Eligibility{
		IsEligible:      count >= domain.RequiredDrops,
		UnanalyzedCount: count,
		RequiredCount:   domain.RequiredDrops,
	}, nil
}

// Preview runs eligibility + aggregation only: no LLM call, no writes.
func (s *Service) Preview(ctx context.Context, userID int64) (*domain.Preview, error) {
	drops, err := s.Drops.UnanalyzedDropsWithConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := &domain.Preview{
		DropCount:    len(drops),
		MessageCount: domain.CountMessages(drops),
	}
	if len(drops) > 0 {
		p.OldestEntry = drops[0].CreatedAt
		p.NewestEntry = drops[len(drops)-1].CreatedAt
	}
	return p, nil
}

// CreateForUser runs the full pipeline synchronously. The returned Result is
// always populated; err carries the internal failure for transport mapping.
func (s *Service) CreateForUser(ctx context.Context, userID int64) (domain.Result, error) {
	start := s.Clock.Now()
	res := domain.Result{Metadata: domain.Metadata{UserID: userID}}

	fail := func(err error) (domain.Result, error) {
		res.Error = userMessage(err, res.Metadata.DropCount)
		res.Metadata.ProcessingTime = s.Clock.Now().Sub(start)
		log.Printf("analysis failed user=%d drops=%d err=%v", userID, res.Metadata.DropCount, err)
		return res, err
	}

	if !s.acquire(userID) {
		return fail(domain.ErrAnalysisInProgress)
	}
	defer s.release(userID)

	ctx, cancel := context.WithTimeout(ctx, pipelineDeadline)
	defer cancel()

	elig, err := s.Eligibility(ctx, userID)
	if err != nil {
		return fail(err)
	}
	res.Metadata.DropCount = elig.UnanalyzedCount
	if !elig.IsEligible {
		return fail(fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientData, elig.UnanalyzedCount, elig.RequiredCount))
	}

	drops, err := s.Drops.UnanalyzedDropsWithConversations(ctx, userID)
	if err != nil {
		return fail(err)
	}
	res.Metadata.DropCount = len(drops)

	corpus := domain.BuildCorpus(drops, domain.CorpusCharBudget)
	raw, err := s.Generator.Generate(ctx, domain.GenerateRequest{Corpus: corpus, DropCount: len(drops)})
	if err != nil {
		return fail(err)
	}

	parsed, err := domain.ParseResponse(raw)
	if err != nil {
		// keep the offending text around for diagnosis, never surface it
		s.archive(ctx, userID, "unparseable", raw)
		return fail(err)
	}

	a := &domain.Analysis{
		ID:           domain.AnalysisID(uuid.New().String()),
		UserID:       userID,
		Content:      parsed.Content,
		Summary:      parsed.Summary,
		BulletPoints: parsed.BulletPoints,
		CreatedAt:    s.Clock.Now(),
	}
	dropIDs := make([]int64, len(drops))
	for i, d := range drops {
		dropIDs[i] = d.ID
	}

	if err := s.Analyses.Create(ctx, a, dropIDs); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrStorage, err))
	}

	s.archive(ctx, userID, string(a.ID), raw)

	res.Success = true
	res.Analysis = a
	res.Metadata.ProcessingTime = s.Clock.Now().Sub(start)
	log.Printf("analysis complete user=%d drops=%d id=%s took=%s", userID, len(drops), a.ID, res.Metadata.ProcessingTime)
	return res, nil
}

// HealthCheck probes each configured dependency independently. Operational
// monitoring only; never gates user requests.
func (s *Service) HealthCheck(ctx context.Context) domain.Health {
	h := domain.Health{Healthy: true, Checks: make(map[string]bool, len(s.Checks))}
	for name, check := range s.Checks {
		err := check(ctx)
		h.Checks[name] = err == nil
		if err != nil {
			h.Healthy = false
			log.Printf("health check %s failed: %v", name, err)
		}
	}
	return h
}

// List returns a user's analyses newest-first.
func (s *Service) List(ctx context.Context, userID int64, page, pageSize int) ([]*domain.Analysis, error) {
	return s.Analyses.ListByUser(ctx, userID, page, pageSize)
}

func (s *Service) Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	return s.Analyses.Get(ctx, id)
}

func (s *Service) SetFavorite(ctx context.Context, id domain.AnalysisID, favorited bool) (*domain.Analysis, error) {
	return s.Analyses.SetFavorite(ctx, id, favorited)
}

// AnalysisDrops returns the entries an analysis was built from, chronological.
func (s *Service) AnalysisDrops(ctx context.Context, id domain.AnalysisID) ([]*journal.DropWithQuestion, error) {
	return s.Analyses.Drops(ctx, id)
}

func (s *Service) acquire(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		s.inFlight = make(map[int64]struct{})
	}
	if _, busy := s.inFlight[userID]; busy {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *Service) release(userID int64) {
	s.mu.Lock()
	delete(s.inFlight, userID)
	s.mu.Unlock()
}

func (s *Service) archive(ctx context.Context, userID int64, tag, raw string) {
	if s.Archive == nil {
		return
	}
	key := fmt.Sprintf("responses/%d/%s-%s.txt", userID, s.Clock.Now().UTC().Format("20060102T150405"), tag)
	if _, err := s.Archive.StoreRaw(ctx, key, []byte(raw)); err != nil {
		log.Printf("raw response archive failed key=%s: %v", key, err)
	}
}

// userMessage maps internal failures to the short actionable copy the client
// shows. Internal detail stays in logs.
func userMessage(err error, dropCount int) string {
	var exhausted *domain.RetriesExhaustedError
	switch {
	case errors.Is(err, domain.ErrInsufficientData):
		return fmt.Sprintf("You need at least %d journal entries before we can create an analysis. You have %d so far.", domain.RequiredDrops, dropCount)
	case errors.Is(err, domain.ErrAnalysisInProgress):
		return "An analysis is already being created for you. Check back in a moment."
	case errors.Is(err, journal.ErrUserNotFound):
		return "We couldn't find that account."
	case errors.Is(err, domain.ErrMissingAPIKey), errors.Is(err, domain.ErrProviderAuth):
		return "The analysis service is not configured correctly. Please contact support."
	case errors.As(err, &exhausted), errors.Is(err, context.DeadlineExceeded):
		return "The analysis service is temporarily unavailable. Please try again in a few minutes."
	case errors.Is(err, domain.ErrEmptyResponse), domain.IsParseFailure(err):
		return "Your analysis could not be completed. Please try again."
	case errors.Is(err, domain.ErrStorage):
		return "We couldn't save your analysis. Please try again."
	default:
		return "Something went wrong creating your analysis. Please try again."
	}
}
