package drawsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/archive"
	"github.com/MarcoPoloResearchLab/drawsync/internal/drawparse"
	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingLocator    = errors.New("archive locator is required")
	errMissingFetcher    = errors.New("archive fetcher is required")
	errMissingParser     = errors.New("draw parser is required")
	errNoGames           = errors.New("at least one game must be configured")
	errNoArchives        = errors.New("no archives discovered")
	errNoDraws           = errors.New("no valid draws parsed from archives")
	noOpLogger           = zap.NewNop()
)

// ErrGameNotConfigured is returned when a sync is requested for a game without settings.
var ErrGameNotConfigured = errors.New("game is not configured for sync")

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "drawsync.service.new"
	opSyncGame   = "drawsync.sync_game"
	opListDraws  = "drawsync.list_draws"
	opListRuns   = "drawsync.list_runs"
	opStatus     = "drawsync.status"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ArchiveLocator discovers the downloadable archives of a game.
type ArchiveLocator interface {
	Discover(ctx context.Context, game lottery.Game, cache *archive.DiscoveryCache) (archive.DiscoveryResult, error)
}

// ArchiveFetcher downloads one archive payload.
type ArchiveFetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// DrawParser turns one archive entry into validated draws.
type DrawParser interface {
	Parse(game lottery.Game, archiveLabel, entryName string, content []byte) []drawparse.ParsedDraw
}

// RunLock serializes runs of the same game. The returned release must be called exactly once.
type RunLock interface {
	Acquire(ctx context.Context, game lottery.Game) (func(), error)
}

// ArchiveMirror keeps a copy of every downloaded payload.
type ArchiveMirror interface {
	Store(ctx context.Context, game lottery.Game, descriptor archive.Descriptor, payload []byte) error
}

// RunPublisher receives a notification when a run finishes.
type RunPublisher interface {
	Publish(event RunEvent)
}

type IDProvider interface {
	NewID() (string, error)
}

// GameSettings holds the per-game sync parameters.
type GameSettings struct {
	RuleStartDate lottery.Date
}

type ServiceConfig struct {
	Database   *gorm.DB
	Locator    ArchiveLocator
	Fetcher    ArchiveFetcher
	Parser     DrawParser
	Games      map[lottery.Game]GameSettings
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Metrics    *Metrics
	Lock       RunLock
	Mirror     ArchiveMirror
	Events     RunPublisher
	Precedence Precedence
}

type Service struct {
	db         *gorm.DB
	locator    ArchiveLocator
	fetcher    ArchiveFetcher
	parser     DrawParser
	games      map[lottery.Game]GameSettings
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	metrics    *Metrics
	lock       RunLock
	mirror     ArchiveMirror
	events     RunPublisher
	precedence Precedence
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Locator == nil {
		return nil, newServiceError(opServiceNew, "missing_locator", errMissingLocator)
	}
	if cfg.Fetcher == nil {
		return nil, newServiceError(opServiceNew, "missing_fetcher", errMissingFetcher)
	}
	if cfg.Parser == nil {
		return nil, newServiceError(opServiceNew, "missing_parser", errMissingParser)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if len(cfg.Games) == 0 {
		return nil, newServiceError(opServiceNew, "missing_games", errNoGames)
	}

	precedence, err := ParsePrecedence(string(cfg.Precedence))
	if err != nil {
		return nil, newServiceError(opServiceNew, "invalid_precedence", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	lock := cfg.Lock
	if lock == nil {
		lock = NoLock{}
	}

	games := make(map[lottery.Game]GameSettings, len(cfg.Games))
	for game, settings := range cfg.Games {
		games[game] = settings
	}

	return &Service{
		db:         cfg.Database,
		locator:    cfg.Locator,
		fetcher:    cfg.Fetcher,
		parser:     cfg.Parser,
		games:      games,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		metrics:    cfg.Metrics,
		lock:       lock,
		mirror:     cfg.Mirror,
		events:     cfg.Events,
		precedence: precedence,
	}, nil
}

// Games returns the configured games in catalog order.
func (s *Service) Games() []lottery.Game {
	games := make([]lottery.Game, 0, len(s.games))
	for _, game := range lottery.AllGames() {
		if _, ok := s.games[game]; ok {
			games = append(games, game)
		}
	}
	return games
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("drawsync service error", attrs...)
}
