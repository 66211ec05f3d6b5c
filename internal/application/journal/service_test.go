package journal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/stillwater-app/stillwater/internal/domain/journal"
)

type memRepo struct {
	users     map[int64]*domain.User
	questions []*domain.Question
	drops     map[int64]*domain.Drop
	messages  map[int64][]*domain.Message
	nextID    int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:    map[int64]*domain.User{},
		drops:    map[int64]*domain.Drop{},
		messages: map[int64][]*domain.Message{},
		nextID:   1,
	}
}

func (r *memRepo) id() int64 {
	id := r.nextID
	r.nextID++
	return id
}

func (r *memRepo) CreateUser(_ context.Context, u *domain.User) error {
	u.ID = r.id()
	r.users[u.ID] = u
	return nil
}

func (r *memRepo) GetUser(_ context.Context, id int64) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *memRepo) ListQuestions(_ context.Context) ([]*domain.Question, error) {
	return r.questions, nil
}

func (r *memRepo) GetQuestion(_ context.Context, id int64) (*domain.Question, error) {
	for _, q := range r.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, domain.ErrQuestionNotFound
}

func (r *memRepo) CreateDrop(_ context.Context, d *domain.Drop) error {
	d.ID = r.id()
	r.drops[d.ID] = d
	return nil
}

func (r *memRepo) GetDrop(_ context.Context, id int64) (*domain.Drop, error) {
	d, ok := r.drops[id]
	if !ok {
		return nil, domain.ErrDropNotFound
	}
	return d, nil
}

func (r *memRepo) ListDrops(_ context.Context, userID int64, _ int) ([]*domain.DropWithQuestion, error) {
	var out []*domain.DropWithQuestion
	for _, d := range r.drops {
		if d.UserID == userID {
			out = append(out, &domain.DropWithQuestion{Drop: *d})
		}
	}
	return out, nil
}

func (r *memRepo) CreateMessage(_ context.Context, m *domain.Message) error {
	m.ID = r.id()
	r.messages[m.DropID] = append(r.messages[m.DropID], m)
	return nil
}

func (r *memRepo) ListMessages(_ context.Context, dropID int64) ([]*domain.Message, error) {
	return r.messages[dropID], nil
}

func (r *memRepo) CountUnanalyzedDrops(ctx context.Context, userID int64) (int, error) {
	drops, err := r.UnanalyzedDropsWithConversations(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(drops), nil
}

func (r *memRepo) UnanalyzedDropsWithConversations(_ context.Context, userID int64) ([]*domain.DropConversation, error) {
	if _, ok := r.users[userID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	var out []*domain.DropConversation
	for _, d := range r.drops {
		if d.UserID == userID {
			out = append(out, &domain.DropConversation{
				DropWithQuestion: domain.DropWithQuestion{Drop: *d},
				Conversation:     r.messages[d.ID],
			})
		}
	}
	return out, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func setup(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	svc := &Service{
		Repo:  repo,
		Clock: fixedClock{t: time.Date(2025, 8, 8, 12, 0, 0, 0, time.UTC)},
	}
	return svc, repo
}

func seedUser(t *testing.T, svc *Service) *domain.User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)
	return u
}

func seedQuestion(repo *memRepo, text string) *domain.Question {
	q := &domain.Question{ID: repo.id(), Text: text}
	repo.questions = append(repo.questions, q)
	return q
}

func TestCreateUser(t *testing.T) {
	svc, _ := setup(t)

	u, err := svc.CreateUser(context.Background(), "  ada@example.com ", " Ada ")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "Ada", u.Name)
	assert.NotZero(t, u.ID)

	_, err = svc.CreateUser(context.Background(), "   ", "nobody")
	require.Error(t, err)
}

func TestTodaysQuestion_rotatesByDay(t *testing.T) {
	svc, repo := setup(t)
	for _, text := range []string{"q0", "q1", "q2"} {
		seedQuestion(repo, text)
	}

	// Aug 8 2025 is day 220 of the year; 220 % 3 == 1.
	q, err := svc.TodaysQuestion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "q1", q.Text)

	svc.Clock = fixedClock{t: time.Date(2025, 8, 9, 12, 0, 0, 0, time.UTC)}
	q, err = svc.TodaysQuestion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "q2", q.Text)
}

func TestTodaysQuestion_noneSeeded(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.TodaysQuestion(context.Background())
	require.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestCreateDrop(t *testing.T) {
	svc, repo := setup(t)
	u := seedUser(t, svc)
	q := seedQuestion(repo, "How was today?")

	d, err := svc.CreateDrop(context.Background(), u.ID, q.ID, "  A good day overall.  ")
	require.NoError(t, err)
	assert.Equal(t, "A good day overall.", d.Text)
	assert.NotZero(t, d.ID)
}

func TestCreateDrop_validation(t *testing.T) {
	svc, repo := setup(t)
	u := seedUser(t, svc)
	q := seedQuestion(repo, "How was today?")

	_, err := svc.CreateDrop(context.Background(), u.ID, q.ID, "   ")
	require.Error(t, err)

	_, err = svc.CreateDrop(context.Background(), u.ID, q.ID, strings.Repeat("x", maxDropLength+1))
	require.Error(t, err)

	_, err = svc.CreateDrop(context.Background(), 999, q.ID, "text")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = svc.CreateDrop(context.Background(), u.ID, 999, "text")
	require.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestAddMessage_exchangeCap(t *testing.T) {
	svc, repo := setup(t)
	u := seedUser(t, svc)
	q := seedQuestion(repo, "How was today?")
	d, err := svc.CreateDrop(context.Background(), u.ID, q.ID, "entry")
	require.NoError(t, err)

	for i := 0; i < MaxExchanges; i++ {
		_, err := svc.AddMessage(context.Background(), d.ID, "user turn", true)
		require.NoError(t, err)
		_, err = svc.AddMessage(context.Background(), d.ID, "coach turn", false)
		require.NoError(t, err)
	}

	_, err = svc.AddMessage(context.Background(), d.ID, "one too many", true)
	require.ErrorIs(t, err, domain.ErrExchangeLimit)

	// coach replies are not capped
	_, err = svc.AddMessage(context.Background(), d.ID, "closing note", false)
	require.NoError(t, err)
}

func TestAddMessage_unknownDrop(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.AddMessage(context.Background(), 123, "hello", true)
	require.ErrorIs(t, err, domain.ErrDropNotFound)
}

func TestTranscript(t *testing.T) {
	svc, repo := setup(t)
	u := seedUser(t, svc)
	q := seedQuestion(repo, "How was today?")
	d, err := svc.CreateDrop(context.Background(), u.ID, q.ID, "entry")
	require.NoError(t, err)

	_, err = svc.AddMessage(context.Background(), d.ID, "first", true)
	require.NoError(t, err)
	_, err = svc.AddMessage(context.Background(), d.ID, "second", false)
	require.NoError(t, err)

	msgs, err := svc.Transcript(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.True(t, msgs[0].FromUser)
	assert.False(t, msgs[1].FromUser)

	_, err = svc.Transcript(context.Background(), 999)
	require.ErrorIs(t, err, domain.ErrDropNotFound)
}
