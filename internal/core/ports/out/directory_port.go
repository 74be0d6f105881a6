package out

import (
	"context"

	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

type DirectoryPort interface {
	QueryCandidates(ctx context.Context, query domain.CandidateQuery) ([]domain.CandidateProfile, error)
}
