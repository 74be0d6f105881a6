package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	nurl "net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/suchimauz/shift-coverage-coordinator/internal/config"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
	"golang.org/x/sync/singleflight"
)

// Запрос повторяется один раз при сетевой ошибке или 5xx
const maxFetchAttempts = 2

type DirectoryAdapter struct {
	client   *http.Client
	baseURL  string
	username string
	password string
	group    *singleflight.Group
	logger   out.LoggerPort
}

func NewDirectoryAdapter(cfg *config.Config, logger out.LoggerPort) *DirectoryAdapter {
	timeout := cfg.Directory.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DirectoryAdapter{
		client:   &http.Client{Timeout: timeout},
		baseURL:  strings.TrimRight(cfg.Directory.URL, "/"),
		username: cfg.Directory.Username,
		password: cfg.Directory.Password,
		group:    &singleflight.Group{},
		logger:   logger.WithModule("DirectoryAdapter"),
	}
}

// QueryCandidates запрашивает пул кандидатов. Одинаковые одновременные
// запросы схлопываются в один HTTP-вызов.
func (a *DirectoryAdapter) QueryCandidates(ctx context.Context, query domain.CandidateQuery) ([]domain.CandidateProfile, error) {
	values := queryValues(query)
	key := values.Encode()

	result, err, shared := a.group.Do(key, func() (interface{}, error) {
		return a.fetch(ctx, values)
	})
	if err != nil {
		return nil, err
	}

	candidates := result.([]domain.CandidateProfile)
	a.logger.Debug("directory.candidates.fetch_success", out.LogFields{
		"count":  len(candidates),
		"shared": shared,
	})

	copied := make([]domain.CandidateProfile, len(candidates))
	copy(copied, candidates)
	return copied, nil
}

func queryValues(query domain.CandidateQuery) nurl.Values {
	values := nurl.Values{}
	if len(query.Skills) > 0 {
		values.Set("skills", strings.Join(query.Skills, ","))
	}
	if query.Language != "" {
		values.Set("language", query.Language)
	}
	if !query.Location.IsZero() {
		values.Set("lat", strconv.FormatFloat(query.Location.Lat, 'f', 6, 64))
		values.Set("lon", strconv.FormatFloat(query.Location.Lon, 'f', 6, 64))
	}
	if !query.TimeWindow.Start.IsZero() {
		values.Set("start", query.TimeWindow.Start.UTC().Format(time.RFC3339))
		values.Set("end", query.TimeWindow.End.UTC().Format(time.RFC3339))
	}
	if len(query.ExcludeIDs) > 0 {
		exclude := append([]string(nil), query.ExcludeIDs...)
		sort.Strings(exclude)
		values.Set("exclude", strings.Join(exclude, ","))
	}
	return values
}

func (a *DirectoryAdapter) fetch(ctx context.Context, values nurl.Values) ([]domain.CandidateProfile, error) {
	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		candidates, retryable, err := a.fetchOnce(ctx, values)
		if err == nil {
			return candidates, nil
		}
		lastErr = err

		a.logger.Warn("directory.candidates.fetch_failed", out.LogFields{
			"attempt":   attempt,
			"retryable": retryable,
			"error":     err.Error(),
		})
		if !retryable || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrDirectoryUnavailable, lastErr)
}

func (a *DirectoryAdapter) fetchOnce(ctx context.Context, values nurl.Values) ([]domain.CandidateProfile, bool, error) {
	url := fmt.Sprintf("%s/candidates", a.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.URL.RawQuery = values.Encode()
	req.Header.Set("Accept", "application/json")
	if a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, !errors.Is(err, context.Canceled), err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= http.StatusInternalServerError, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var candidates []domain.CandidateProfile
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		a.logger.Error("directory.candidates.decode_failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, false, err
	}
	return candidates, false, nil
}
