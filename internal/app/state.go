package app

import (
	"context"
	"time"
	"whalewatch/clients/gist"

	"go.uber.org/zap"
)

// TrackerSettings is the single persisted record. It is overwritten
// wholesale on every change and loaded once at startup; every field is
// derivable, so a lost write only costs the operator a re-start click.
type TrackerSettings struct {
	MinScore         int       `json:"minScore"`
	AutoTrade        bool      `json:"autoTrade"`
	ActiveCategories []string  `json:"activeCategories"`
	LastUpdate       time.Time `json:"lastUpdate"`
}

// StateStore persists tracker settings across process restarts.
type StateStore struct {
	logger   *zap.Logger
	storage  gist.Storage
	filename string
}

func NewStateStore(logger *zap.Logger, storage gist.Storage, filename string) *StateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if filename == "" {
		filename = "tracker_state.json"
	}
	return &StateStore{
		logger:   logger,
		storage:  storage,
		filename: filename,
	}
}

// Save overwrites the persisted record. A disabled backend is not an
// error; the tracker just runs without persistence.
func (ss *StateStore) Save(ctx context.Context, settings TrackerSettings) error {
	if ss.storage == nil || !ss.storage.IsEnabled() {
		ss.logger.Debug("state persistence disabled, skipping save")
		return nil
	}

	settings.LastUpdate = time.Now()
	if err := ss.storage.SaveJSON(ctx, ss.filename, settings); err != nil {
		ss.logger.Error("failed to persist tracker state", zap.Error(err))
		return err
	}

	ss.logger.Debug("tracker state persisted",
		zap.Int("minScore", settings.MinScore),
		zap.Strings("activeCategories", settings.ActiveCategories),
	)
	return nil
}

// Load reads the persisted record. Returns ok=false when persistence
// is disabled or no usable record exists.
func (ss *StateStore) Load(ctx context.Context) (TrackerSettings, bool) {
	var settings TrackerSettings

	if ss.storage == nil || !ss.storage.IsEnabled() {
		return settings, false
	}

	if err := ss.storage.LoadJSON(ctx, ss.filename, &settings); err != nil {
		ss.logger.Warn("no persisted tracker state loaded", zap.Error(err))
		return settings, false
	}

	// Drop categories that no longer exist
	valid := settings.ActiveCategories[:0]
	for _, id := range settings.ActiveCategories {
		if KnownCategory(id) {
			valid = append(valid, id)
		}
	}
	settings.ActiveCategories = valid

	ss.logger.Info("tracker state loaded",
		zap.Int("minScore", settings.MinScore),
		zap.Bool("autoTrade", settings.AutoTrade),
		zap.Strings("activeCategories", settings.ActiveCategories),
		zap.Time("lastUpdate", settings.LastUpdate),
	)
	return settings, true
}
