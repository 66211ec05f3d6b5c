package journal

import "time"

// User is an account holder. LastAnalysisDate gates which drops count as
// unanalyzed: a nil value means the user has never completed an analysis.
type User struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	LastAnalysisDate *time.Time `json:"last_analysis_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Question is a daily journaling prompt.
type Question struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Drop is a single journal entry answering a daily prompt. Immutable once
// created except for the message-count bookkeeping.
type Drop struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	QuestionID   int64     `json:"question_id"`
	Text         string    `json:"text"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is one turn in the coach chat attached to a drop. Append-only,
// ordered by CreatedAt.
type Message struct {
	ID        int64     `json:"id"`
	DropID    int64     `json:"drop_id"`
	Text      string    `json:"text"`
	FromUser  bool      `json:"from_user"`
	CreatedAt time.Time `json:"created_at"`
}

// DropWithQuestion is a drop joined with the prompt it answered.
type DropWithQuestion struct {
	Drop
	QuestionText string `json:"question_text"`
}

// DropConversation is a drop enriched with its full chat transcript.
type DropConversation struct {
	DropWithQuestion
	Conversation []*Message `json:"conversation"`
}
