package analyses

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/stillwater-app/stillwater/internal/domain/analyses"
	"github.com/stillwater-app/stillwater/internal/domain/journal"
)

const goodReply = `Summary: A steady week with a few rough nights.

Analysis: The entries circle around sleep and focus. When the evenings run
long the next day's writing gets shorter and flatter.

Key Insights:
- Late nights shorten the next entry
- Morning entries carry the most detail
- Exercise days read noticeably brighter
`

type fakeDrops struct {
	count    int
	countErr error
	drops    []*journal.DropConversation
	dropsErr error
}

func (f *fakeDrops) CountUnanalyzedDrops(_ context.Context, _ int64) (int, error) {
	return f.count, f.countErr
}

func (f *fakeDrops) UnanalyzedDropsWithConversations(_ context.Context, _ int64) ([]*journal.DropConversation, error) {
	return f.drops, f.dropsErr
}

type fakeRepo struct {
	created    *domain.Analysis
	createdIDs []int64
	createErr  error
	stored     map[domain.AnalysisID]*domain.Analysis
}

func (f *fakeRepo) Create(_ context.Context, a *domain.Analysis, dropIDs []int64) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = a
	f.createdIDs = dropIDs
	return nil
}

func (f *fakeRepo) ListByUser(_ context.Context, _ int64, _, _ int) ([]*domain.Analysis, error) {
	return nil, nil
}

func (f *fakeRepo) Get(_ context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	a, ok := f.stored[id]
	if !ok {
		return nil, domain.ErrAnalysisNotFound
	}
	return a, nil
}

func (f *fakeRepo) SetFavorite(_ context.Context, id domain.AnalysisID, favorited bool) (*domain.Analysis, error) {
	a, err := f.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	a.IsFavorited = favorited
	return a, nil
}

func (f *fakeRepo) Drops(_ context.Context, _ domain.AnalysisID) ([]*journal.DropWithQuestion, error) {
	return nil, nil
}

type fakeGenerator struct {
	reply   string
	err     error
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (f *fakeGenerator) Generate(_ context.Context, _ domain.GenerateRequest) (string, error) {
	f.calls++
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.reply, f.err
}

type fakeArchive struct {
	keys []string
}

func (f *fakeArchive) StoreRaw(_ context.Context, key string, _ []byte) (string, error) {
	f.keys = append(f.keys, key)
	return key, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func entries(n int) []*journal.DropConversation {
	out := make([]*journal.DropConversation, n)
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = &journal.DropConversation{
			DropWithQuestion: journal.DropWithQuestion{
				Drop: journal.Drop{
					ID:        int64(i + 1),
					UserID:    42,
					Text:      "entry text",
					CreatedAt: base.AddDate(0, 0, i),
				},
			},
		}
	}
	return out
}

func newService(drops *fakeDrops, repo *fakeRepo, gen *fakeGenerator, arc *fakeArchive) *Service {
	s := &Service{
		Drops:     drops,
		Analyses:  repo,
		Generator: gen,
		Clock:     fixedClock{t: time.Date(2025, 8, 8, 12, 0, 0, 0, time.UTC)},
	}
	if arc != nil {
		s.Archive = arc
	}
	return s
}

func TestCreateForUser_happyPath(t *testing.T) {
	drops := &fakeDrops{count: 7, drops: entries(7)}
	repo := &fakeRepo{}
	gen := &fakeGenerator{reply: goodReply}
	arc := &fakeArchive{}
	svc := newService(drops, repo, gen, arc)

	res, err := svc.CreateForUser(context.Background(), 42)
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, "A steady week with a few rough nights.", res.Analysis.Summary)
	assert.Len(t, res.Analysis.BulletPoints, 3)
	assert.NotEmpty(t, res.Analysis.ID)
	assert.Equal(t, int64(42), res.Analysis.UserID)
	assert.Equal(t, 7, res.Metadata.DropCount)

	require.Same(t, res.Analysis, repo.created)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, repo.createdIDs)

	require.Len(t, arc.keys, 1)
	assert.Contains(t, arc.keys[0], string(res.Analysis.ID))
}

func TestCreateForUser_ineligible(t *testing.T) {
	drops := &fakeDrops{count: 3}
	repo := &fakeRepo{}
	gen := &fakeGenerator{reply: goodReply}
	svc := newService(drops, repo, gen, nil)

	res, err := svc.CreateForUser(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrInsufficientData)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "You have 3 so far")
	assert.Equal(t, 0, gen.calls, "generator must not run for ineligible users")
	assert.Nil(t, repo.created)
}

func TestCreateForUser_unknownUser(t *testing.T) {
	drops := &fakeDrops{countErr: journal.ErrUserNotFound}
	svc := newService(drops, &fakeRepo{}, &fakeGenerator{}, nil)

	res, err := svc.CreateForUser(context.Background(), 999)
	require.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.Contains(t, res.Error, "You have 0 so far")
}

func TestCreateForUser_malformedReply(t *testing.T) {
	drops := &fakeDrops{count: 7, drops: entries(7)}
	repo := &fakeRepo{}
	gen := &fakeGenerator{reply: "no structure here at all"}
	arc := &fakeArchive{}
	svc := newService(drops, repo, gen, arc)

	res, err := svc.CreateForUser(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, domain.IsParseFailure(err))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "could not be completed")
	assert.Nil(t, repo.created, "nothing persists when parsing fails")

	require.Len(t, arc.keys, 1)
	assert.Contains(t, arc.keys[0], "unparseable")
}

func TestCreateForUser_storageFailure(t *testing.T) {
	drops := &fakeDrops{count: 7, drops: entries(7)}
	repo := &fakeRepo{createErr: errors.New("disk full")}
	gen := &fakeGenerator{reply: goodReply}
	svc := newService(drops, repo, gen, nil)

	res, err := svc.CreateForUser(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrStorage)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "couldn't save")
}

func TestCreateForUser_retriesExhausted(t *testing.T) {
	drops := &fakeDrops{count: 7, drops: entries(7)}
	gen := &fakeGenerator{err: &domain.RetriesExhaustedError{Attempts: 3, Last: errors.New("503")}}
	svc := newService(drops, &fakeRepo{}, gen, nil)

	res, err := svc.CreateForUser(context.Background(), 42)
	var exhausted *domain.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Contains(t, res.Error, "temporarily unavailable")
}

func TestCreateForUser_duplicateRunRejected(t *testing.T) {
	drops := &fakeDrops{count: 7, drops: entries(7)}
	gen := &fakeGenerator{
		reply:   goodReply,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newService(drops, &fakeRepo{}, gen, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.CreateForUser(context.Background(), 42)
	}()
	<-gen.entered

	res, err := svc.CreateForUser(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrAnalysisInProgress)
	assert.Contains(t, res.Error, "already being created")

	close(gen.release)
	<-done
	assert.Equal(t, 1, gen.calls)
}

func TestEligibility(t *testing.T) {
	svc := newService(&fakeDrops{count: 9}, &fakeRepo{}, &fakeGenerator{}, nil)

	elig, err := svc.Eligibility(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, elig.IsEligible)
	assert.Equal(t, 9, elig.UnanalyzedCount)
	assert.Equal(t, domain.RequiredDrops, elig.RequiredCount)
}

func TestEligibility_unknownUserNeverErrors(t *testing.T) {
	svc := newService(&fakeDrops{countErr: journal.ErrUserNotFound}, &fakeRepo{}, &fakeGenerator{}, nil)

	elig, err := svc.Eligibility(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, elig.IsEligible)
	assert.Equal(t, 0, elig.UnanalyzedCount)
	assert.Equal(t, domain.RequiredDrops, elig.RequiredCount)
}

func TestPreview(t *testing.T) {
	drops := entries(4)
	drops[0].Conversation = []*journal.Message{{Text: "a"}, {Text: "b"}}
	drops[2].Conversation = []*journal.Message{{Text: "c"}}
	svc := newService(&fakeDrops{drops: drops}, &fakeRepo{}, &fakeGenerator{}, nil)

	p, err := svc.Preview(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 4, p.DropCount)
	assert.Equal(t, 3, p.MessageCount)
	assert.Equal(t, drops[0].CreatedAt, p.OldestEntry)
	assert.Equal(t, drops[3].CreatedAt, p.NewestEntry)
}

func TestPreview_empty(t *testing.T) {
	svc := newService(&fakeDrops{}, &fakeRepo{}, &fakeGenerator{}, nil)

	p, err := svc.Preview(context.Background(), 42)
	require.NoError(t, err)
	assert.Zero(t, p.DropCount)
	assert.True(t, p.OldestEntry.IsZero())
}

func TestHealthCheck(t *testing.T) {
	svc := newService(&fakeDrops{}, &fakeRepo{}, &fakeGenerator{}, nil)
	svc.Checks = map[string]HealthCheckFunc{
		"database":      func(context.Context) error { return nil },
		"ai_credential": func(context.Context) error { return domain.ErrMissingAPIKey },
	}

	h := svc.HealthCheck(context.Background())
	assert.False(t, h.Healthy)
	assert.True(t, h.Checks["database"])
	assert.False(t, h.Checks["ai_credential"])
}

func TestUserMessage_neverLeaksInternals(t *testing.T) {
	raw := "Summary ... raw model text with private detail"
	msg := userMessage(errors.New("chat completion failed: "+raw), 7)
	assert.NotContains(t, msg, "private detail")
	assert.False(t, strings.Contains(msg, raw))
}
