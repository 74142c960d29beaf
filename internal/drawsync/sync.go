package drawsync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/archive"
	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

const existingDrawChunkSize = 500

// GameResult reports the outcome of one game sync. Failed runs carry the error text instead of a Go error.
type GameResult struct {
	RunID         string        `json:"run_id"`
	Game          lottery.Game  `json:"game"`
	Trigger       string        `json:"trigger"`
	Status        RunStatus     `json:"status"`
	UpsertedCount int           `json:"upserted_count"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	LastKnownDate *lottery.Date `json:"last_known_date,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// AllResult aggregates the sequential sync of every configured game.
type AllResult struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Games      []GameResult `json:"games"`
}

type syncOutcome struct {
	upserted  int
	lastKnown lottery.Date
}

// SyncGame runs one full discovery, download, parse and upsert cycle for game and records it as a SyncRun.
func (s *Service) SyncGame(ctx context.Context, game lottery.Game, trigger string) (GameResult, error) {
	settings, ok := s.games[game]
	if !ok {
		return GameResult{}, newServiceError(opSyncGame, "unknown_game", ErrGameNotConfigured)
	}

	runID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSyncGame, "id_generation_failed", err, zap.String("game", game.String()))
		return GameResult{}, newServiceError(opSyncGame, "id_generation_failed", err)
	}
	startedAt := s.clock().UTC()
	run := SyncRun{
		ID:        runID,
		Game:      game,
		Trigger:   trigger,
		Status:    RunStatusFail,
		StartedAt: startedAt,
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		s.logError(opSyncGame, "run_insert_failed", err, zap.String("game", game.String()))
		return GameResult{}, newServiceError(opSyncGame, "run_insert_failed", err)
	}

	logger := s.loggerOrDefault().With(
		zap.String("game", game.String()),
		zap.String("run_id", runID),
		zap.String("trigger", trigger))
	logger.Info("sync run started")

	result := GameResult{
		RunID:     runID,
		Game:      game,
		Trigger:   trigger,
		StartedAt: startedAt,
	}

	outcome, err := s.runSync(ctx, game, settings, logger)
	if err == nil {
		finishedAt := s.clock().UTC()
		err = s.db.WithContext(ctx).Model(&SyncRun{}).
			Where("id = ?", runID).
			Updates(map[string]any{
				"status":               RunStatusSuccess,
				"finished_at":          finishedAt,
				"draws_upserted_count": outcome.upserted,
				"error":                nil,
			}).Error
		if err == nil {
			result.Status = RunStatusSuccess
			result.UpsertedCount = outcome.upserted
			result.FinishedAt = finishedAt
			lastKnown := outcome.lastKnown
			result.LastKnownDate = &lastKnown
			s.finishRun(result, logger)
			return result, nil
		}
		err = newServiceError(opSyncGame, "run_finalize_failed", err)
	}

	if isLiveCancellation(ctx, err) {
		logger.Warn("sync run cancelled", zap.Error(err))
		return GameResult{}, err
	}

	finishedAt := s.clock().UTC()
	errorText := err.Error()
	if updateErr := s.db.WithContext(context.WithoutCancel(ctx)).Model(&SyncRun{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"status":               RunStatusFail,
			"finished_at":          finishedAt,
			"draws_upserted_count": 0,
			"error":                errorText,
		}).Error; updateErr != nil {
		s.logError(opSyncGame, "run_fail_update_failed", updateErr, zap.String("game", game.String()), zap.String("run_id", runID))
	}

	result.Status = RunStatusFail
	result.FinishedAt = finishedAt
	result.Error = errorText
	s.finishRun(result, logger)
	return result, nil
}

// SyncAll syncs every configured game one after another. A failed game never stops the next one.
func (s *Service) SyncAll(ctx context.Context, trigger string) (AllResult, error) {
	result := AllResult{StartedAt: s.clock().UTC()}
	for _, game := range s.Games() {
		gameResult, err := s.SyncGame(ctx, game, trigger)
		if err != nil {
			if isLiveCancellation(ctx, err) {
				return AllResult{}, err
			}
			gameResult = GameResult{
				Game:       game,
				Trigger:    trigger,
				Status:     RunStatusFail,
				StartedAt:  s.clock().UTC(),
				FinishedAt: s.clock().UTC(),
				Error:      err.Error(),
			}
		}
		result.Games = append(result.Games, gameResult)
	}
	result.FinishedAt = s.clock().UTC()
	return result, nil
}

func (s *Service) runSync(ctx context.Context, game lottery.Game, settings GameSettings, logger *zap.Logger) (syncOutcome, error) {
	release, err := s.lock.Acquire(ctx, game)
	if err != nil {
		return syncOutcome{}, newServiceError(opSyncGame, "lock_unavailable", err)
	}
	defer release()

	state, err := s.loadState(ctx, game)
	if err != nil {
		return syncOutcome{}, newServiceError(opSyncGame, "state_load_failed", err)
	}

	discovery, err := s.locator.Discover(ctx, game, discoveryCacheFromState(state, logger))
	if err != nil {
		return syncOutcome{}, newServiceError(opSyncGame, "discovery_failed", err)
	}
	if len(discovery.Archives) == 0 {
		return syncOutcome{}, newServiceError(opSyncGame, "no_archives", errNoArchives)
	}
	logger.Info("archives discovered",
		zap.Int("archives", len(discovery.Archives)),
		zap.Bool("from_cache", discovery.FromCache))

	merged := make(map[lottery.Date]mergedDraw)
	for _, descriptor := range discovery.Archives {
		payload, err := s.fetcher.Download(ctx, descriptor.DownloadURL)
		if err != nil {
			return syncOutcome{}, newServiceError(opSyncGame, "download_failed", err)
		}
		s.mirrorPayload(ctx, game, descriptor, payload, logger)

		entries, failures := archiveEntries(descriptor.DownloadURL, payload)
		for _, failure := range failures {
			logger.Warn("archive entry unreadable",
				zap.String("archive", descriptor.DownloadURL),
				zap.String("entry", failure.name),
				zap.Error(failure.err))
		}
		for _, entry := range entries {
			draws := s.parser.Parse(game, descriptor.Label, entry.name, entry.content)
			kept := mergeDraws(merged, draws, descriptor.DownloadURL, settings.RuleStartDate, s.precedence)
			logger.Debug("archive entry parsed",
				zap.String("archive", descriptor.DownloadURL),
				zap.String("entry", entry.name),
				zap.Int("parsed", len(draws)),
				zap.Int("kept", kept))
		}
	}
	if len(merged) == 0 {
		return syncOutcome{}, newServiceError(opSyncGame, "no_draws", errNoDraws)
	}

	upserted, err := s.upsertDraws(ctx, game, merged)
	if err != nil {
		return syncOutcome{}, newServiceError(opSyncGame, "upsert_failed", err)
	}

	dates := sortedDates(merged)
	newest := dates[len(dates)-1]
	lastKnown, err := s.saveState(ctx, game, state, newest, discovery)
	if err != nil {
		return syncOutcome{}, newServiceError(opSyncGame, "state_update_failed", err)
	}

	logger.Info("draws merged",
		zap.Int("merged", len(merged)),
		zap.Int("upserted", upserted),
		zap.String("last_known_draw_date", lastKnown.String()))
	return syncOutcome{upserted: upserted, lastKnown: lastKnown}, nil
}

func (s *Service) loadState(ctx context.Context, game lottery.Game) (*SyncState, error) {
	var state SyncState
	result := s.db.WithContext(ctx).Where("game = ?", game).Limit(1).Find(&state)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &state, nil
}

// discoveryCacheFromState returns nil when the state carries neither validators nor cached archives.
func discoveryCacheFromState(state *SyncState, logger *zap.Logger) *archive.DiscoveryCache {
	if state == nil {
		return nil
	}
	cache := archive.DiscoveryCache{
		ETag:         derefString(state.HistoryPageETag),
		LastModified: derefString(state.HistoryPageLastModified),
	}
	if len(state.CachedArchivesJSON) > 0 {
		var archives []archive.Descriptor
		if err := json.Unmarshal(state.CachedArchivesJSON, &archives); err != nil {
			logger.Warn("cached archive list unreadable, ignoring it", zap.Error(err))
		} else {
			cache.Archives = archives
		}
	}
	if cache.ETag == "" && cache.LastModified == "" && len(cache.Archives) == 0 {
		return nil
	}
	return &cache
}

func (s *Service) upsertDraws(ctx context.Context, game lottery.Game, merged map[lottery.Date]mergedDraw) (int, error) {
	dates := sortedDates(merged)
	existing, err := s.existingDraws(ctx, game, dates)
	if err != nil {
		return 0, err
	}

	upserted := 0
	for _, date := range dates {
		var stored *Draw
		if row, ok := existing[date]; ok {
			stored = &row
		}
		outcome := resolveDraw(stored, game, date, merged[date], s.clock().UTC())

		switch outcome.change {
		case drawInserted:
			drawID, err := s.idProvider.NewID()
			if err != nil {
				return upserted, err
			}
			outcome.draw.ID = drawID
			if err := s.db.WithContext(ctx).Create(&outcome.draw).Error; err != nil {
				return upserted, err
			}
			upserted++
		case drawUpdated:
			if err := s.db.WithContext(ctx).Model(&Draw{}).
				Where("id = ?", outcome.draw.ID).
				Updates(map[string]any{
					"main_numbers":  outcome.draw.MainNumbers,
					"bonus_numbers": outcome.draw.BonusNumbers,
					"source":        outcome.draw.Source,
					"updated_at":    outcome.draw.UpdatedAt,
				}).Error; err != nil {
				return upserted, err
			}
			upserted++
		}
	}
	return upserted, nil
}

func (s *Service) existingDraws(ctx context.Context, game lottery.Game, dates []lottery.Date) (map[lottery.Date]Draw, error) {
	existing := make(map[lottery.Date]Draw, len(dates))
	for start := 0; start < len(dates); start += existingDrawChunkSize {
		end := min(start+existingDrawChunkSize, len(dates))
		keys := make([]string, 0, end-start)
		for _, date := range dates[start:end] {
			keys = append(keys, date.String())
		}

		var rows []Draw
		if err := s.db.WithContext(ctx).
			Where("game = ? AND draw_date IN ?", game, keys).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			existing[row.DrawDate] = row
		}
	}
	return existing, nil
}

// saveState upserts the game state and returns the resulting last known draw date, which never moves backwards.
func (s *Service) saveState(ctx context.Context, game lottery.Game, previous *SyncState, newest lottery.Date, discovery archive.DiscoveryResult) (lottery.Date, error) {
	lastKnown := newest
	if previous != nil && previous.LastKnownDrawDate != nil {
		lastKnown = lottery.MaxDate(*previous.LastKnownDrawDate, newest)
	}

	var cachedArchives datatypes.JSON
	if len(discovery.Archives) > 0 {
		encoded, err := json.Marshal(discovery.Archives)
		if err != nil {
			return lottery.Date{}, err
		}
		cachedArchives = datatypes.JSON(encoded)
	}

	syncedAt := s.clock().UTC()
	state := SyncState{
		Game:                    game,
		LastSuccessfulSyncAt:    &syncedAt,
		LastKnownDrawDate:       &lastKnown,
		HistoryPageETag:         optionalString(discovery.ETag),
		HistoryPageLastModified: optionalString(discovery.LastModified),
		CachedArchivesJSON:      cachedArchives,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "game"}}, UpdateAll: true}).
		Create(&state).Error
	if err != nil {
		return lottery.Date{}, err
	}
	return lastKnown, nil
}

func (s *Service) mirrorPayload(ctx context.Context, game lottery.Game, descriptor archive.Descriptor, payload []byte, logger *zap.Logger) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Store(ctx, game, descriptor, payload); err != nil {
		logger.Warn("archive mirror failed", zap.String("archive", descriptor.DownloadURL), zap.Error(err))
	}
}

func (s *Service) finishRun(result GameResult, logger *zap.Logger) {
	s.metrics.observe(result)
	if s.events != nil {
		s.events.Publish(RunEvent{
			Game:          result.Game,
			RunID:         result.RunID,
			Status:        result.Status,
			UpsertedCount: result.UpsertedCount,
			Error:         result.Error,
			Timestamp:     result.FinishedAt,
		})
	}
	if result.Status == RunStatusSuccess {
		logger.Info("sync run succeeded", zap.Int("upserted", result.UpsertedCount))
		return
	}
	logger.Error("sync run failed", zap.String("error", result.Error))
}

func isLiveCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
