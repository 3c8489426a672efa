package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// TemplateChange is one applied revision of template.yaml.
type TemplateChange struct {
	Config *TemplateConfig
	// Checksum is the sha256 of the file contents Config was parsed from.
	Checksum string
	// Providers holds the ids whose provisioning differs from the previous revision.
	Providers []int
	// All is set on the first revision and when defaults changed, since providers
	// missing from the file fall back to them.
	All bool
}

// Affects reports whether providerID has to be reloaded after the change.
func (c TemplateChange) Affects(providerID int) bool {
	return c.All || slices.Contains(c.Providers, providerID)
}

// DiffTemplates compares two revisions. A nil prev affects every provider.
// Holiday changes affect the providers active in either revision.
func DiffTemplates(prev, next *TemplateConfig) TemplateChange {
	change := TemplateChange{Config: next}
	if prev == nil {
		change.All = true
		return change
	}
	if !sameDefaults(prev.Defaults, next.Defaults) {
		change.All = true
	}

	affected := make(map[int]bool)
	for _, id := range providerIDs(prev, next) {
		if !sameProvider(prev, next, id) {
			affected[id] = true
		}
	}
	if !slices.Equal(prev.Holidays, next.Holidays) {
		for _, cfg := range []*TemplateConfig{prev, next} {
			for _, p := range cfg.GetActiveProviders() {
				affected[p.ID] = true
			}
		}
	}

	for id := range affected {
		change.Providers = append(change.Providers, id)
	}
	sort.Ints(change.Providers)
	return change
}

// WatchTemplate loads path, reports the first revision, then polls the file and reports
// each revision whose contents differ from the last applied one. Unreadable or invalid
// revisions are logged and skipped; the last good one stays in effect.
func WatchTemplate(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onChange func(TemplateChange)) error {
	if path == "" {
		path = "configs/template.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	current, err := ParseTemplateConfig(data)
	if err != nil {
		return err
	}
	checksum := digest(data)

	change := DiffTemplates(nil, current)
	change.Checksum = checksum
	if onChange != nil {
		onChange(change)
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				data, err := os.ReadFile(path)
				if err != nil {
					logger.Debug().Err(err).Str("path", path).Msg("template config unreadable")
					continue
				}
				if len(bytes.TrimSpace(data)) == 0 {
					// Truncated mid-write; the next tick sees the full file.
					continue
				}
				sum := digest(data)
				if sum == checksum {
					continue
				}
				next, err := ParseTemplateConfig(data)
				if err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("template config rejected, keeping previous revision")
					checksum = sum
					continue
				}

				change := DiffTemplates(current, next)
				change.Checksum = sum
				current, checksum = next, sum
				if !change.All && len(change.Providers) == 0 {
					logger.Debug().Str("path", path).Msg("template config reformatted, nothing to apply")
					continue
				}
				if onChange != nil {
					onChange(change)
				}
			}
		}
	}()

	return nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sameDefaults(a, b DefaultsConfig) bool {
	if (a.Schedule == nil) != (b.Schedule == nil) {
		return false
	}
	if a.Schedule != nil && *a.Schedule != *b.Schedule {
		return false
	}
	return slices.Equal(a.DaysOff, b.DaysOff)
}

func sameProvider(prev, next *TemplateConfig, id int) bool {
	a, b := prev.GetProviderByID(id), next.GetProviderByID(id)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Name != b.Name || a.IsActive != b.IsActive {
		return false
	}
	return slices.Equal(prev.WeeklyTemplate(id), next.WeeklyTemplate(id)) &&
		prev.Settings(id) == next.Settings(id)
}

func providerIDs(configs ...*TemplateConfig) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, cfg := range configs {
		for _, p := range cfg.Providers {
			if !seen[p.ID] {
				seen[p.ID] = true
				ids = append(ids, p.ID)
			}
		}
	}
	return ids
}
