package analyses

import (
	"context"

	"github.com/stillwater-app/stillwater/internal/domain/journal"
)

// Repository port for persisting and querying analyses
type Repository interface {
	// Create writes the analysis, its drop links, and the advance of the
	// user's last analysis date as one logical transaction.
	Create(ctx context.Context, a *Analysis, dropIDs []int64) error
	ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*Analysis, error)
	Get(ctx context.Context, id AnalysisID) (*Analysis, error)
	SetFavorite(ctx context.Context, id AnalysisID, favorited bool) (*Analysis, error)
	// Drops returns the entries that contributed to an analysis, chronological.
	Drops(ctx context.Context, id AnalysisID) ([]*journal.DropWithQuestion, error)
}

// DropSource is the slice of the record store the pipeline reads from.
type DropSource interface {
	CountUnanalyzedDrops(ctx context.Context, userID int64) (int, error)
	UnanalyzedDropsWithConversations(ctx context.Context, userID int64) ([]*journal.DropConversation, error)
}

// Generator port (interface for the LLM invocation engine)
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Archive port for keeping raw model output around for diagnosis.
type Archive interface {
	StoreRaw(ctx context.Context, key string, data []byte) (string, error)
}
