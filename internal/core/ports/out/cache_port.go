package out

import (
	"context"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

type CachePort interface {
	// Кэш кандидатов на один прогон ранжирования
	GetCandidates(ctx context.Context, key string) ([]domain.CandidateProfile, bool)
	StoreCandidates(ctx context.Context, key string, candidates []domain.CandidateProfile)
	InvalidateCandidates(ctx context.Context, key string)

	// Окна исходящих сообщений по разговорам
	GetWindow(ctx context.Context, conversationKey string) ([]domain.SentMessage, bool)
	StoreWindow(ctx context.Context, conversationKey string, window []domain.SentMessage)
}
