package ranking_service

import "github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"

type ScoredSlice []domain.ScoredCandidate

// ranksBefore - порядок выдачи: score по убыванию, при равенстве меньший id.
func ranksBefore(a, b domain.ScoredCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Profile.ID < b.Profile.ID
}

// quickSort - функция для сортировки ScoredSlice
func (s ScoredSlice) quickSort() ScoredSlice {
	if len(s) < 2 {
		return s
	}

	pivot := s[len(s)/2]

	less := ScoredSlice{}
	equal := ScoredSlice{}
	greater := ScoredSlice{}

	for _, candidate := range s {
		if ranksBefore(candidate, pivot) {
			less = append(less, candidate)
		} else if ranksBefore(pivot, candidate) {
			greater = append(greater, candidate)
		} else {
			equal = append(equal, candidate)
		}
	}

	return append(append(less.quickSort(), equal...), greater.quickSort()...)
}
