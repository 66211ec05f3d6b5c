package journal

import "context"

// Repository port (interface for persistence)
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)

	ListQuestions(ctx context.Context) ([]*Question, error)
	GetQuestion(ctx context.Context, id int64) (*Question, error)

	CreateDrop(ctx context.Context, d *Drop) error
	GetDrop(ctx context.Context, id int64) (*Drop, error)
	ListDrops(ctx context.Context, userID int64, limit int) ([]*DropWithQuestion, error)

	CreateMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, dropID int64) ([]*Message, error)

	// CountUnanalyzedDrops counts drops created strictly after the user's
	// last analysis date (all drops when it is unset). Returns
	// ErrUserNotFound for an unknown user.
	CountUnanalyzedDrops(ctx context.Context, userID int64) (int, error)

	// UnanalyzedDropsWithConversations loads the unanalyzed drops with their
	// full transcripts in ascending creation order. Returns ErrUserNotFound
	// for an unknown user; a user with zero drops yields an empty slice.
	UnanalyzedDropsWithConversations(ctx context.Context, userID int64) ([]*DropConversation, error)
}
