// Package persist stores the grouping settings document between runs.
package persist

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/TheAppgineer/roon-extension-zone-presets/internal/domain/preset"
)

// Store reads and writes the settings document at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted settings. A missing file or an undecodable
// document degrades to all-default settings instead of failing startup.
func (s *Store) Load() preset.GroupingSettings {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			zlog.Warn().Err(err).Str("path", s.path).Msg("Failed to read settings, starting with defaults")
		}
		return preset.GroupingSettings{}
	}

	settings, err := preset.Decode(data)
	if err != nil {
		zlog.Warn().Err(err).Str("path", s.path).Msg("Failed to decode settings, starting with defaults")
		return preset.GroupingSettings{}
	}
	return settings
}

// Save writes the settings document. The extracted preset is stripped by the
// encoder; the write goes through a temp file and rename so a crash cannot
// leave a torn document behind.
func (s *Store) Save(settings preset.GroupingSettings) error {
	data, err := preset.Encode(settings)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create settings directory")
	}

	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp settings file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write settings")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close settings file")
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "failed to replace settings file")
	}
	return nil
}
