package drawsync

import (
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"gorm.io/datatypes"
)

// RunStatus enumerates the outcomes recorded on a sync run.
type RunStatus string

const (
	// RunStatusSuccess marks a run that persisted its merged draws and sync state.
	RunStatusSuccess RunStatus = "success"
	// RunStatusFail is the initial status of every run and the final status of failed runs.
	RunStatusFail RunStatus = "fail"
)

// Draw is the canonical result of one draw, unique per game and date.
type Draw struct {
	ID           string                   `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	Game         lottery.Game             `gorm:"column:game;size:32;not null;uniqueIndex:idx_draws_game_date,priority:1" json:"game"`
	DrawDate     lottery.Date             `gorm:"column:draw_date;type:varchar(10);not null;uniqueIndex:idx_draws_game_date,priority:2" json:"draw_date"`
	MainNumbers  datatypes.JSONSlice[int] `gorm:"column:main_numbers;not null" json:"main_numbers"`
	BonusNumbers datatypes.JSONSlice[int] `gorm:"column:bonus_numbers;not null" json:"bonus_numbers"`
	Source       string                   `gorm:"column:source;size:2048;not null" json:"source"`
	CreatedAt    time.Time                `gorm:"column:created_at;not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt    time.Time                `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Draw) TableName() string {
	return "draws"
}

// SyncRun is the append-only audit record of one sync attempt for one game.
type SyncRun struct {
	ID                 string       `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	Game               lottery.Game `gorm:"column:game;size:32;not null;index:idx_sync_runs_game_started,priority:1" json:"game"`
	Trigger            string       `gorm:"column:trigger_label;size:64;not null" json:"trigger"`
	Status             RunStatus    `gorm:"column:status;size:16;not null" json:"status"`
	StartedAt          time.Time    `gorm:"column:started_at;not null;index:idx_sync_runs_game_started,priority:2" json:"started_at"`
	FinishedAt         *time.Time   `gorm:"column:finished_at" json:"finished_at"`
	DrawsUpsertedCount int          `gorm:"column:draws_upserted_count;not null;default:0" json:"draws_upserted_count"`
	Error              *string      `gorm:"column:error;type:text" json:"error"`
}

// TableName provides the explicit table binding for GORM.
func (SyncRun) TableName() string {
	return "sync_runs"
}

// SyncState is the per-game bookkeeping carried between runs.
type SyncState struct {
	Game                    lottery.Game   `gorm:"column:game;primaryKey;size:32;not null"`
	LastSuccessfulSyncAt    *time.Time     `gorm:"column:last_successful_sync_at"`
	LastKnownDrawDate       *lottery.Date  `gorm:"column:last_known_draw_date;type:varchar(10)"`
	HistoryPageETag         *string        `gorm:"column:history_page_etag;size:512"`
	HistoryPageLastModified *string        `gorm:"column:history_page_last_modified;size:128"`
	CachedArchivesJSON      datatypes.JSON `gorm:"column:cached_archives_json"`
}

// TableName provides the explicit table binding for GORM.
func (SyncState) TableName() string {
	return "sync_state"
}

// Models lists the tables owned by the sync subsystem, in migration order.
func Models() []any {
	return []any{&Draw{}, &SyncRun{}, &SyncState{}}
}
