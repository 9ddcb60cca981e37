package updater

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	stateFileName = "update-banner.json"
	// DefaultBannerInterval is how long an unchanged banner stays quiet.
	DefaultBannerInterval = 24 * time.Hour
)

// BannerState remembers what the banner last announced.
type BannerState struct {
	Plugins []string  `json:"plugins"`
	ShownAt time.Time `json:"shown_at"`
}

// LoadState reads the banner state from dir.
// Returns nil, nil if the state file does not exist (first run).
func LoadState(dir string) (*BannerState, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading banner state: %w", err)
	}

	var state BannerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing banner state: %w", err)
	}
	return &state, nil
}

// SaveState writes the banner state to dir.
func SaveState(dir string, state *BannerState) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling banner state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFileName), data, 0644); err != nil {
		return fmt.Errorf("writing banner state: %w", err)
	}
	return nil
}

// ShouldShow returns true if plugins differs from what state last announced
// or the announcement is older than interval.
func (s *BannerState) ShouldShow(plugins []string, interval time.Duration, now time.Time) bool {
	if s == nil {
		return true
	}
	if strings.Join(s.Plugins, ",") != strings.Join(plugins, ",") {
		return true
	}
	return now.Sub(s.ShownAt) > interval
}
