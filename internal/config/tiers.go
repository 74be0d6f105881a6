package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/ports/out"
	"gopkg.in/yaml.v3"
)

type tiersFile struct {
	Tiers []domain.TierPolicy `yaml:"tiers"`
}

// TierPolicies - политики волн, перечитываются при изменении файла.
type TierPolicies struct {
	mu       sync.RWMutex
	policies []domain.TierPolicy
}

func NewTierPolicies(policies []domain.TierPolicy) (*TierPolicies, error) {
	t := &TierPolicies{}
	if err := t.Replace(policies); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTierPolicies читает YAML с политиками, без пути - политики по умолчанию.
func LoadTierPolicies(path string) (*TierPolicies, error) {
	if path == "" {
		return NewTierPolicies(domain.DefaultTierPolicies())
	}
	policies, err := readTiersFile(path)
	if err != nil {
		return nil, err
	}
	return NewTierPolicies(policies)
}

func readTiersFile(path string) ([]domain.TierPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tiers config: %w", err)
	}
	var file tiersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tiers config: %w", err)
	}
	return file.Tiers, nil
}

func validateTierPolicies(policies []domain.TierPolicy) error {
	if len(policies) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	for i, p := range policies {
		if p.Tier != i+1 {
			return fmt.Errorf("tiers must be numbered consecutively from 1, got %d at position %d", p.Tier, i+1)
		}
		if !p.Channel.IsValid() {
			return fmt.Errorf("tier %d: unknown channel %q", p.Tier, p.Channel)
		}
		if p.Timeout <= 0 {
			return fmt.Errorf("tier %d: timeout must be positive", p.Tier)
		}
		if p.TopK <= 0 {
			return fmt.Errorf("tier %d: top_k must be positive", p.Tier)
		}
	}
	return nil
}

func (t *TierPolicies) Replace(policies []domain.TierPolicy) error {
	sorted := make([]domain.TierPolicy, len(policies))
	copy(sorted, policies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tier < sorted[j].Tier })

	if err := validateTierPolicies(sorted); err != nil {
		return err
	}

	t.mu.Lock()
	t.policies = sorted
	t.mu.Unlock()
	return nil
}

func (t *TierPolicies) Policy(tier int) (domain.TierPolicy, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if tier < 1 || tier > len(t.policies) {
		return domain.TierPolicy{}, false
	}
	return t.policies[tier-1], true
}

func (t *TierPolicies) MaxTier() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.policies)
}

// Watch следит за файлом политик и применяет изменения до отмены ctx.
// Некорректный файл логируется и не заменяет текущие политики.
func (t *TierPolicies) Watch(ctx context.Context, path string, logger out.LoggerPort) error {
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Следим за каталогом, редакторы часто заменяют файл через rename
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				policies, err := readTiersFile(path)
				if err == nil {
					err = t.Replace(policies)
				}
				if err != nil {
					logger.Warn("config.tiers.reload_failed", out.LogFields{
						"path":  path,
						"error": err.Error(),
					})
					continue
				}
				logger.Info("config.tiers.reloaded", out.LogFields{
					"path":    path,
					"maxTier": t.MaxTier(),
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config.tiers.watch_error", out.LogFields{
					"error": err.Error(),
				})
			}
		}
	}()

	return nil
}
