package ranking_service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
)

type Weights struct {
	Skill        float64
	Proximity    float64
	Reliability  float64
	Availability float64
}

func (w Weights) total() float64 {
	return w.Skill + w.Proximity + w.Reliability + w.Availability
}

type RankingService struct {
	directoryPort out.DirectoryPort
	cachePort     out.CachePort
	weights       Weights
	location      *time.Location
	logger        out.LoggerPort
}

func NewRankingService(
	directoryPort out.DirectoryPort,
	cachePort out.CachePort,
	cfg *config.Config,
	logger out.LoggerPort,
) *RankingService {
	weights := Weights{
		Skill:        cfg.Ranking.SkillWeight,
		Proximity:    cfg.Ranking.ProximityWeight,
		Reliability:  cfg.Ranking.ReliabilityWeight,
		Availability: cfg.Ranking.AvailabilityWeight,
	}
	if weights.total() <= 0 {
		weights = Weights{Skill: 0.35, Proximity: 0.25, Reliability: 0.25, Availability: 0.15}
	}

	return &RankingService{
		directoryPort: directoryPort,
		cachePort:     cachePort,
		weights:       weights,
		location:      cfg.Location(),
		logger:        logger.WithModule("RankingService"),
	}
}

func cacheKey(slot *domain.ShiftSlot, tier int) string {
	return fmt.Sprintf("%s:%d", slot.ID, tier)
}

// Rank возвращает кандидатов для волны policy.Tier по невозрастанию score.
// При недоступности справочника возвращается пустой список и ошибка,
// обернутая в domain.ErrDirectoryUnavailable; волна при этом не блокируется.
func (s *RankingService) Rank(ctx context.Context, slot *domain.ShiftSlot, policy domain.TierPolicy, excludeIDs []string) ([]domain.ScoredCandidate, error) {
	exclude := make(map[string]bool, len(excludeIDs)+1)
	for _, id := range excludeIDs {
		exclude[id] = true
	}
	exclude[slot.OriginalCaregiverID] = true

	profiles, err := s.candidates(ctx, slot, policy, exclude)
	if err != nil {
		return []domain.ScoredCandidate{}, err
	}

	scored := make(ScoredSlice, 0, len(profiles))
	window := slot.Window()
	for _, profile := range profiles {
		if exclude[profile.ID] {
			continue
		}
		// Жесткий фильтр, пока политика тира его не ослабила
		if !policy.RelaxSkills && !hasAllSkills(profile, slot.RequiredSkills) {
			continue
		}
		if !policy.RelaxLanguage && !profile.SpeaksLanguage(slot.RequiredLanguage) {
			continue
		}

		availability := availabilityScore(profile, window, s.location)
		if availability == 0 {
			continue
		}

		score := s.weights.Skill*matchScore(profile, slot.RequiredSkills, slot.RequiredLanguage) +
			s.weights.Proximity*proximityScore(profile.Home, slot.Location) +
			s.weights.Reliability*reliabilityScore(profile.Reliability) +
			s.weights.Availability*availability

		scored = append(scored, domain.ScoredCandidate{
			Profile: profile,
			Score:   score / s.weights.total(),
		})
	}

	ranked := scored.quickSort()
	if policy.TopK > 0 && len(ranked) > policy.TopK {
		ranked = ranked[:policy.TopK]
	}

	s.logger.Info("ranking.completed", out.LogFields{
		"shiftId":    slot.ID,
		"tier":       policy.Tier,
		"candidates": len(profiles),
		"ranked":     len(ranked),
	})

	return []domain.ScoredCandidate(ranked), nil
}

func (s *RankingService) candidates(ctx context.Context, slot *domain.ShiftSlot, policy domain.TierPolicy, exclude map[string]bool) ([]domain.CandidateProfile, error) {
	key := cacheKey(slot, policy.Tier)
	if s.cachePort != nil {
		if profiles, ok := s.cachePort.GetCandidates(ctx, key); ok {
			return profiles, nil
		}
	}

	query := domain.CandidateQuery{
		Location:   slot.Location,
		TimeWindow: slot.Window(),
		ExcludeIDs: make([]string, 0, len(exclude)),
	}
	if !policy.RelaxSkills {
		query.Skills = slot.RequiredSkills
	}
	if !policy.RelaxLanguage {
		query.Language = slot.RequiredLanguage
	}
	for id := range exclude {
		query.ExcludeIDs = append(query.ExcludeIDs, id)
	}
	sort.Strings(query.ExcludeIDs)

	profiles, err := s.directoryPort.QueryCandidates(ctx, query)
	if err != nil {
		s.logger.Warn("ranking.directory.failed", out.LogFields{
			"shiftId": slot.ID,
			"tier":    policy.Tier,
			"error":   err.Error(),
		})
		if errors.Is(err, domain.ErrDirectoryUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrDirectoryUnavailable, err)
	}

	if s.cachePort != nil {
		s.cachePort.StoreCandidates(ctx, key, profiles)
	}
	return profiles, nil
}

