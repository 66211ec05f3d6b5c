package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/stillwater-app/stillwater/internal/application"
	domain "github.com/stillwater-app/stillwater/internal/domain/journal"
)

// MaxExchanges caps how many user messages a single drop's conversation can
// hold.
const MaxExchanges = 10

const maxDropLength = 4000

// Service implements the CRUD use-cases around entries and their chats.
type Service struct {
	Repo  domain.Repository
	Clock application.Clock
}

func (s *Service) CreateUser(ctx context.Context, email, name string) (*domain.User, error) {
	u := &domain.User{
		Email:     strings.TrimSpace(email),
		Name:      strings.TrimSpace(name),
		CreatedAt: s.Clock.Now(),
	}
	if u.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.Repo.GetUser(ctx, id)
}

// TodaysQuestion rotates through the seeded prompts by day index.
func (s *Service) TodaysQuestion(ctx context.Context) (*domain.Question, error) {
	questions, err := s.Repo.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.ErrQuestionNotFound
	}
	idx := s.Clock.Now().UTC().YearDay() % len(questions)
	return questions[idx], nil
}

func (s *Service) CreateDrop(ctx context.Context, userID, questionID int64, text string) (*domain.Drop, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("entry text is required")
	}
	if len(text) > maxDropLength {
		return nil, fmt.Errorf("entry text exceeds %d characters", maxDropLength)
	}
	if _, err := s.Repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.Repo.GetQuestion(ctx, questionID); err != nil {
		return nil, err
	}

	d := &domain.Drop{
		UserID:     userID,
		QuestionID: questionID,
		Text:       text,
		CreatedAt:  s.Clock.Now(),
	}
	if err := s.Repo.CreateDrop(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDrops(ctx context.Context, userID int64, limit int) ([]*domain.DropWithQuestion, error) {
	return s.Repo.ListDrops(ctx, userID, limit)
}

// AddMessage appends a chat turn to a drop's conversation, enforcing the
// per-drop exchange cap on user messages.
func (s *Service) AddMessage(ctx context.Context, dropID int64, text string, fromUser bool) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message text is required")
	}
	if _, err := s.Repo.GetDrop(ctx, dropID); err != nil {
		return nil, err
	}
	if fromUser {
		existing, err := s.Repo.ListMessages(ctx, dropID)
		if err != nil {
			return nil, err
		}
		sent := 0
		for _, m := range existing {
			if m.FromUser {
				sent++
			}
		}
		if sent >= MaxExchanges {
			return nil, domain.ErrExchangeLimit
		}
	}

	m := &domain.Message{
		DropID:    dropID,
		Text:      text,
		FromUser:  fromUser,
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Repo.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) Transcript(ctx context.Context, dropID int64) ([]*domain.Message, error) {
	if _, err := s.Repo.GetDrop(ctx, dropID); err != nil {
		return nil, err
	}
	return s.Repo.ListMessages(ctx, dropID)
}
