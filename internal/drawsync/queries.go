package drawsync

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 5000
)

// DrawQuery bounds a draw listing. Zero dates leave that side open; Limit <= 0 selects the default page.
type DrawQuery struct {
	From  lottery.Date
	To    lottery.Date
	Limit int
}

// GameStatus summarizes the stored history of one game.
type GameStatus struct {
	Game                 lottery.Game  `json:"game"`
	DrawCount            int64         `json:"draw_count"`
	LastDrawDate         *lottery.Date `json:"last_draw_date"`
	NextDrawDate         *lottery.Date `json:"next_draw_date"`
	LastKnownDrawDate    *lottery.Date `json:"last_known_draw_date"`
	LastSuccessfulSyncAt *time.Time    `json:"last_successful_sync_at"`
}

// StatusReport covers every configured game.
type StatusReport struct {
	Games        []GameStatus `json:"games"`
	LastSyncedAt *time.Time   `json:"last_synced_at"`
}

// ListDraws returns stored draws of game, newest first.
func (s *Service) ListDraws(ctx context.Context, game lottery.Game, query DrawQuery) ([]Draw, error) {
	if _, err := lottery.RulesFor(game); err != nil {
		return nil, newServiceError(opListDraws, "unknown_game", err)
	}

	statement := s.db.WithContext(ctx).Where("game = ?", game)
	if !query.From.IsZero() {
		statement = statement.Where("draw_date >= ?", query.From.String())
	}
	if !query.To.IsZero() {
		statement = statement.Where("draw_date <= ?", query.To.String())
	}

	var draws []Draw
	if err := statement.
		Order("draw_date DESC").
		Limit(clampLimit(query.Limit)).
		Find(&draws).Error; err != nil {
		s.logError(opListDraws, "query_failed", err, zap.String("game", game.String()))
		return nil, newServiceError(opListDraws, "query_failed", err)
	}
	return draws, nil
}

// ListRuns returns the audit trail of game, newest first.
func (s *Service) ListRuns(ctx context.Context, game lottery.Game, limit int) ([]SyncRun, error) {
	if _, err := lottery.RulesFor(game); err != nil {
		return nil, newServiceError(opListRuns, "unknown_game", err)
	}

	var runs []SyncRun
	if err := s.db.WithContext(ctx).
		Where("game = ?", game).
		Order("started_at DESC").
		Limit(clampLimit(limit)).
		Find(&runs).Error; err != nil {
		s.logError(opListRuns, "query_failed", err, zap.String("game", game.String()))
		return nil, newServiceError(opListRuns, "query_failed", err)
	}
	return runs, nil
}

type drawSummary struct {
	DrawCount    int64        `gorm:"column:draw_count"`
	LastDrawDate lottery.Date `gorm:"column:last_draw_date"`
}

// Status reports stored history per configured game. The next draw date is computed from reference.
func (s *Service) Status(ctx context.Context, reference lottery.Date) (StatusReport, error) {
	report := StatusReport{Games: make([]GameStatus, 0, len(s.games))}
	for _, game := range s.Games() {
		var summary drawSummary
		if err := s.db.WithContext(ctx).Model(&Draw{}).
			Select("COUNT(*) AS draw_count, MAX(draw_date) AS last_draw_date").
			Where("game = ?", game).
			Scan(&summary).Error; err != nil {
			s.logError(opStatus, "summary_query_failed", err, zap.String("game", game.String()))
			return StatusReport{}, newServiceError(opStatus, "summary_query_failed", err)
		}

		var state SyncState
		err := s.db.WithContext(ctx).Where("game = ?", game).Limit(1).Find(&state).Error
		if err != nil {
			s.logError(opStatus, "state_query_failed", err, zap.String("game", game.String()))
			return StatusReport{}, newServiceError(opStatus, "state_query_failed", err)
		}

		status := GameStatus{
			Game:                 game,
			DrawCount:            summary.DrawCount,
			LastKnownDrawDate:    state.LastKnownDrawDate,
			LastSuccessfulSyncAt: state.LastSuccessfulSyncAt,
		}
		if !summary.LastDrawDate.IsZero() {
			lastDraw := summary.LastDrawDate
			status.LastDrawDate = &lastDraw
		}
		if !reference.IsZero() {
			if next, err := lottery.NextDrawDate(game, reference); err == nil {
				status.NextDrawDate = &next
			}
		}
		if state.LastSuccessfulSyncAt != nil {
			if report.LastSyncedAt == nil || state.LastSuccessfulSyncAt.After(*report.LastSyncedAt) {
				syncedAt := *state.LastSuccessfulSyncAt
				report.LastSyncedAt = &syncedAt
			}
		}
		report.Games = append(report.Games, status)
	}
	return report, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
