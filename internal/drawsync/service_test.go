package drawsync

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/archive"
	"github.com/MarcoPoloResearchLab/drawsync/internal/drawparse"
	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	sqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const lotoHeader = "date_de_tirage;boule_1;boule_2;boule_3;boule_4;boule_5;numero_chance"

var databaseSequence atomic.Int64

type sequentialIDs struct {
	next atomic.Int64
}

func (g *sequentialIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%04d", g.next.Add(1)), nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(step)
	c.mu.Unlock()
}

type fakeLocator struct {
	mu      sync.Mutex
	results map[lottery.Game]archive.DiscoveryResult
	errs    map[lottery.Game]error
	caches  []*archive.DiscoveryCache
	before  func()
}

func (l *fakeLocator) Discover(ctx context.Context, game lottery.Game, cache *archive.DiscoveryCache) (archive.DiscoveryResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.caches = append(l.caches, cache)
	if l.before != nil {
		l.before()
	}
	if err := ctx.Err(); err != nil {
		return archive.DiscoveryResult{}, err
	}
	if err := l.errs[game]; err != nil {
		return archive.DiscoveryResult{}, err
	}
	return l.results[game], nil
}

type fakeFetcher struct {
	payloads map[string][]byte
	errs     map[string]error
}

func (f *fakeFetcher) Download(_ context.Context, url string) ([]byte, error) {
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	payload, ok := f.payloads[url]
	if !ok {
		return nil, fmt.Errorf("unexpected download %s", url)
	}
	return payload, nil
}

type failingLock struct{}

func (failingLock) Acquire(context.Context, lottery.Game) (func(), error) {
	return nil, errors.New("sync already running")
}

type recordingMirror struct {
	stored []string
}

func (m *recordingMirror) Store(_ context.Context, _ lottery.Game, descriptor archive.Descriptor, _ []byte) error {
	m.stored = append(m.stored, descriptor.DownloadURL)
	return errors.New("bucket unavailable")
}

type harness struct {
	service *Service
	db      *gorm.DB
	locator *fakeLocator
	fetcher *fakeFetcher
	clock   *testClock
}

func newHarness(t *testing.T, configure func(*ServiceConfig)) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:drawsync_test_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), databaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	h := &harness{
		db:      db,
		locator: &fakeLocator{results: map[lottery.Game]archive.DiscoveryResult{}, errs: map[lottery.Game]error{}},
		fetcher: &fakeFetcher{payloads: map[string][]byte{}, errs: map[string]error{}},
		clock:   &testClock{now: time.Date(2026, time.March, 2, 22, 0, 0, 0, time.UTC)},
	}
	cfg := ServiceConfig{
		Database: db,
		Locator:  h.locator,
		Fetcher:  h.fetcher,
		Parser:   drawparse.NewParser(nil),
		Games: map[lottery.Game]GameSettings{
			lottery.GameLoto:         {RuleStartDate: lottery.MustParseDate("2019-11-04")},
			lottery.GameEuroMillions: {RuleStartDate: lottery.MustParseDate("2016-09-01")},
		},
		Clock:      h.clock.Now,
		IDProvider: &sequentialIDs{},
	}
	if configure != nil {
		configure(&cfg)
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	h.service = service
	return h
}

func (h *harness) publish(game lottery.Game, etag string, archives map[string][]byte, order ...string) {
	descriptors := make([]archive.Descriptor, 0, len(order))
	for _, url := range order {
		descriptors = append(descriptors, archive.Descriptor{DownloadURL: url, SourcePageURL: "https://history.example.test/" + game.String(), Label: "Archive " + url})
		h.fetcher.payloads[url] = archives[url]
	}
	h.locator.results[game] = archive.DiscoveryResult{Archives: descriptors, ETag: etag}
}

func mustZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buffer := new(bytes.Buffer)
	writer := zip.NewWriter(buffer)
	for name, content := range files {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatalf("failed to create zip entry: %v", err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write zip entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buffer.Bytes()
}

func lotoCSV(rows ...string) string {
	return lotoHeader + "\n" + strings.Join(rows, "\n") + "\n"
}

func mustLoadDraws(t *testing.T, db *gorm.DB, game lottery.Game) map[string]Draw {
	t.Helper()
	var draws []Draw
	if err := db.Where("game = ?", game).Find(&draws).Error; err != nil {
		t.Fatalf("failed to load draws: %v", err)
	}
	byDate := make(map[string]Draw, len(draws))
	for _, draw := range draws {
		byDate[draw.DrawDate.String()] = draw
	}
	return byDate
}

func mustLoadRun(t *testing.T, db *gorm.DB, runID string) SyncRun {
	t.Helper()
	var run SyncRun
	if err := db.Where("id = ?", runID).Take(&run).Error; err != nil {
		t.Fatalf("failed to load run %s: %v", runID, err)
	}
	return run
}

func mustLoadState(t *testing.T, db *gorm.DB, game lottery.Game) SyncState {
	t.Helper()
	var state SyncState
	if err := db.Where("game = ?", game).Take(&state).Error; err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	return state
}

func seedLotoArchives(t *testing.T, h *harness) {
	t.Helper()
	older := mustZip(t, map[string]string{
		"loto_201911.csv": lotoCSV(
			"02/11/2019;1;2;3;4;5;6",
			"04/11/2019;7;14;21;28;35;2",
			"06/11/2019;1;2;3;4;5;6",
		),
		"readme/": "",
	})
	newer := []byte(lotoCSV(
		"06/11/2019;10;20;30;40;49;10",
		"09/11/2019;3;9;27;33;41;4",
	))
	h.publish(lottery.GameLoto, `"v1"`, map[string][]byte{
		"https://media.example.test/loto_201911.zip": older,
		"https://media.example.test/loto_latest.csv": newer,
	}, "https://media.example.test/loto_201911.zip", "https://media.example.test/loto_latest.csv")
}

func TestSyncGamePersistsMergedDraws(t *testing.T) {
	h := newHarness(t, nil)
	seedLotoArchives(t, h)

	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if result.UpsertedCount != 3 {
		t.Fatalf("expected 3 upserted draws, got %d", result.UpsertedCount)
	}
	if result.LastKnownDate == nil || result.LastKnownDate.String() != "2019-11-09" {
		t.Fatalf("unexpected last known date %v", result.LastKnownDate)
	}

	draws := mustLoadDraws(t, h.db, lottery.GameLoto)
	if len(draws) != 3 {
		t.Fatalf("expected 3 stored draws, got %d", len(draws))
	}
	if _, ok := draws["2019-11-02"]; ok {
		t.Fatalf("expected draw before rule start to be dropped")
	}
	overlap := draws["2019-11-06"]
	if overlap.Source != "https://media.example.test/loto_latest.csv" {
		t.Fatalf("expected later archive to win, got %s", overlap.Source)
	}
	if fmt.Sprint([]int(overlap.MainNumbers)) != "[10 20 30 40 49]" || fmt.Sprint([]int(overlap.BonusNumbers)) != "[10]" {
		t.Fatalf("unexpected merged numbers %v / %v", overlap.MainNumbers, overlap.BonusNumbers)
	}

	run := mustLoadRun(t, h.db, result.RunID)
	if run.Status != RunStatusSuccess || run.FinishedAt == nil || run.Error != nil || run.DrawsUpsertedCount != 3 {
		t.Fatalf("unexpected run row %+v", run)
	}
	if run.Trigger != "test" {
		t.Fatalf("expected trigger to be recorded, got %q", run.Trigger)
	}

	state := mustLoadState(t, h.db, lottery.GameLoto)
	if state.LastKnownDrawDate == nil || state.LastKnownDrawDate.String() != "2019-11-09" {
		t.Fatalf("unexpected state last known date %v", state.LastKnownDrawDate)
	}
	if state.HistoryPageETag == nil || *state.HistoryPageETag != `"v1"` {
		t.Fatalf("expected etag to be stored")
	}
	var cached []archive.Descriptor
	if err := json.Unmarshal(state.CachedArchivesJSON, &cached); err != nil || len(cached) != 2 {
		t.Fatalf("expected cached archives, got %s (%v)", string(state.CachedArchivesJSON), err)
	}
}

func TestFirstSyncDoesNotLogMissingState(t *testing.T) {
	var captured bytes.Buffer
	queryLogger := gormlogger.New(log.New(&captured, "", 0), gormlogger.Config{LogLevel: gormlogger.Error})
	h := newHarness(t, func(cfg *ServiceConfig) {
		cfg.Database = cfg.Database.Session(&gorm.Session{Logger: queryLogger})
	})
	seedLotoArchives(t, h)

	state, err := h.service.loadState(context.Background(), lottery.GameLoto)
	if err != nil || state != nil {
		t.Fatalf("expected no state before the first sync, got %+v (%v)", state, err)
	}
	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil || result.Status != RunStatusSuccess {
		t.Fatalf("sync failed: %v %+v", err, result)
	}
	if _, err := h.service.Status(context.Background(), lottery.MustParseDate("2026-03-03")); err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	if strings.Contains(captured.String(), "record not found") {
		t.Fatalf("expected missing state lookups to stay silent, got %q", captured.String())
	}
}

func TestSyncGameIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	seedLotoArchives(t, h)

	if _, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := mustLoadDraws(t, h.db, lottery.GameLoto)
	h.clock.Advance(time.Hour)

	second, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != RunStatusSuccess || second.UpsertedCount != 0 {
		t.Fatalf("expected no-op success, got %s with %d upserts", second.Status, second.UpsertedCount)
	}

	after := mustLoadDraws(t, h.db, lottery.GameLoto)
	for date, draw := range before {
		if !after[date].UpdatedAt.Equal(draw.UpdatedAt) {
			t.Fatalf("expected %s to be untouched", date)
		}
	}

	var runCount int64
	if err := h.db.Model(&SyncRun{}).Where("game = ?", lottery.GameLoto).Count(&runCount).Error; err != nil {
		t.Fatalf("failed to count runs: %v", err)
	}
	if runCount != 2 {
		t.Fatalf("expected one run row per attempt, got %d", runCount)
	}

	if len(h.locator.caches) != 2 || h.locator.caches[0] != nil {
		t.Fatalf("expected first discovery without cache")
	}
	cache := h.locator.caches[1]
	if cache == nil || cache.ETag != `"v1"` || len(cache.Archives) != 2 {
		t.Fatalf("expected second discovery to reuse stored validators, got %+v", cache)
	}
}

func TestSyncGameUpdatesChangedDrawInPlace(t *testing.T) {
	h := newHarness(t, nil)
	seedLotoArchives(t, h)
	if _, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	original := mustLoadDraws(t, h.db, lottery.GameLoto)["2019-11-09"]

	h.clock.Advance(time.Hour)
	h.fetcher.payloads["https://media.example.test/loto_latest.csv"] = []byte(lotoCSV(
		"06/11/2019;10;20;30;40;49;10",
		"09/11/2019;3;9;27;33;42;4",
	))

	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.UpsertedCount != 1 {
		t.Fatalf("expected one updated draw, got %d", result.UpsertedCount)
	}

	updated := mustLoadDraws(t, h.db, lottery.GameLoto)["2019-11-09"]
	if updated.ID != original.ID {
		t.Fatalf("expected update in place, id changed from %s to %s", original.ID, updated.ID)
	}
	if !updated.CreatedAt.Equal(original.CreatedAt) || !updated.UpdatedAt.After(original.UpdatedAt) {
		t.Fatalf("unexpected timestamps created=%v updated=%v", updated.CreatedAt, updated.UpdatedAt)
	}
	if fmt.Sprint([]int(updated.MainNumbers)) != "[3 9 27 33 42]" {
		t.Fatalf("unexpected numbers %v", updated.MainNumbers)
	}
}

func TestSyncGameHonoursEarlierWinsPrecedence(t *testing.T) {
	h := newHarness(t, func(cfg *ServiceConfig) {
		cfg.Precedence = PrecedenceEarlierWins
	})
	seedLotoArchives(t, h)

	if _, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	overlap := mustLoadDraws(t, h.db, lottery.GameLoto)["2019-11-06"]
	if overlap.Source != "https://media.example.test/loto_201911.zip" {
		t.Fatalf("expected earlier archive to win, got %s", overlap.Source)
	}
}

func TestSyncGameNeverMovesLastKnownDateBackwards(t *testing.T) {
	h := newHarness(t, nil)
	seedLotoArchives(t, h)
	future := lottery.MustParseDate("2030-01-05")
	if err := h.db.Create(&SyncState{Game: lottery.GameLoto, LastKnownDrawDate: &future}).Error; err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}

	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.LastKnownDate == nil || *result.LastKnownDate != future {
		t.Fatalf("expected last known date to stay at %s, got %v", future, result.LastKnownDate)
	}
	state := mustLoadState(t, h.db, lottery.GameLoto)
	if state.LastKnownDrawDate == nil || *state.LastKnownDrawDate != future {
		t.Fatalf("expected stored last known date to stay at %s", future)
	}
	if state.LastSuccessfulSyncAt == nil {
		t.Fatalf("expected last successful sync time to be recorded")
	}
}

func TestSyncGameRecordsFailureWhenNoArchives(t *testing.T) {
	h := newHarness(t, nil)
	h.locator.results[lottery.GameLoto] = archive.DiscoveryResult{}

	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil {
		t.Fatalf("expected failure to be reported in the result, got %v", err)
	}
	if result.Status != RunStatusFail || !strings.Contains(result.Error, "no archives discovered") {
		t.Fatalf("unexpected result %+v", result)
	}

	run := mustLoadRun(t, h.db, result.RunID)
	if run.Status != RunStatusFail || run.FinishedAt == nil || run.DrawsUpsertedCount != 0 {
		t.Fatalf("unexpected run row %+v", run)
	}
	if run.Error == nil || *run.Error != result.Error {
		t.Fatalf("expected run error text to match result")
	}

	var stateCount int64
	h.db.Model(&SyncState{}).Count(&stateCount)
	if stateCount != 0 {
		t.Fatalf("expected failed run to leave sync state alone")
	}
}

func TestSyncGameFailsWhenNothingParses(t *testing.T) {
	h := newHarness(t, nil)
	h.publish(lottery.GameLoto, "", map[string][]byte{
		"https://media.example.test/notes.txt": []byte("nothing useful\n"),
	}, "https://media.example.test/notes.txt")

	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunStatusFail || !strings.Contains(result.Error, "no_draws") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSyncGameFailsOnDownloadError(t *testing.T) {
	h := newHarness(t, nil)
	seedLotoArchives(t, h)
	h.fetcher.errs["https://media.example.test/loto_latest.csv"] = &archive.StatusError{URL: "https://media.example.test/loto_latest.csv", StatusCode: 502}

	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunStatusFail || !strings.Contains(result.Error, "download_failed") {
		t.Fatalf("unexpected result %+v", result)
	}
	if draws := mustLoadDraws(t, h.db, lottery.GameLoto); len(draws) != 0 {
		t.Fatalf("expected no draws persisted after a failed download, got %d", len(draws))
	}
}

func TestSyncGamePropagatesCancellation(t *testing.T) {
	h := newHarness(t, nil)
	seedLotoArchives(t, h)
	ctx, cancel := context.WithCancel(context.Background())
	h.locator.before = cancel

	_, err := h.service.SyncGame(ctx, lottery.GameLoto, "test")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to propagate, got %v", err)
	}

	var runs []SyncRun
	if err := h.db.Find(&runs).Error; err != nil {
		t.Fatalf("failed to load runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected the run row to exist, got %d rows", len(runs))
	}
	if runs[0].Status != RunStatusFail || runs[0].FinishedAt != nil {
		t.Fatalf("expected cancelled run to stay unfinalized, got %+v", runs[0])
	}
}

func TestSyncGameRejectsUnconfiguredGame(t *testing.T) {
	h := newHarness(t, func(cfg *ServiceConfig) {
		delete(cfg.Games, lottery.GameEuroMillions)
	})

	_, err := h.service.SyncGame(context.Background(), lottery.GameEuroMillions, "test")
	if !errors.Is(err, ErrGameNotConfigured) {
		t.Fatalf("expected ErrGameNotConfigured, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "drawsync.sync_game.unknown_game" {
		t.Fatalf("unexpected error code for %v", err)
	}
}

func TestSyncGameFailsWhenLockIsHeld(t *testing.T) {
	h := newHarness(t, func(cfg *ServiceConfig) {
		cfg.Lock = failingLock{}
	})
	seedLotoArchives(t, h)

	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunStatusFail || !strings.Contains(result.Error, "sync already running") {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(h.locator.caches) != 0 {
		t.Fatalf("expected no discovery while the lock is held")
	}
}

func TestSyncGameToleratesMirrorFailures(t *testing.T) {
	mirror := &recordingMirror{}
	h := newHarness(t, func(cfg *ServiceConfig) {
		cfg.Mirror = mirror
	})
	seedLotoArchives(t, h)

	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunStatusSuccess {
		t.Fatalf("expected mirror failures to be non-fatal, got %s", result.Error)
	}
	if len(mirror.stored) != 2 {
		t.Fatalf("expected both archives to be mirrored, got %d", len(mirror.stored))
	}
}

func TestSyncAllRunsEveryGameDespiteFailures(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	if err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}
	hub := NewEventHub()
	h := newHarness(t, func(cfg *ServiceConfig) {
		cfg.Metrics = metrics
		cfg.Events = hub
	})
	h.locator.errs[lottery.GameLoto] = &archive.StatusError{URL: "https://history.example.test/loto", StatusCode: 403}
	h.publish(lottery.GameEuroMillions, "", map[string][]byte{
		"https://media.example.test/euromillions.csv": []byte("date_de_tirage;boule_1;boule_2;boule_3;boule_4;boule_5;etoile_1;etoile_2\n01/03/2024;50;11;22;33;44;12;2\n"),
	}, "https://media.example.test/euromillions.csv")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _ := hub.Subscribe(ctx, lottery.GameEuroMillions)

	result, err := h.service.SyncAll(context.Background(), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Games) != 2 {
		t.Fatalf("expected both games to be attempted, got %d", len(result.Games))
	}
	if result.Games[0].Game != lottery.GameLoto || result.Games[0].Status != RunStatusFail {
		t.Fatalf("expected loto to fail first, got %+v", result.Games[0])
	}
	if !strings.Contains(result.Games[0].Error, "discovery_failed") {
		t.Fatalf("expected discovery failure, got %s", result.Games[0].Error)
	}
	if result.Games[1].Game != lottery.GameEuroMillions || result.Games[1].Status != RunStatusSuccess {
		t.Fatalf("expected euromillions to succeed, got %+v", result.Games[1])
	}

	if value := testutil.ToFloat64(metrics.runs.WithLabelValues("loto", "test", "fail")); value != 1 {
		t.Fatalf("expected one failed loto run metric, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.upserted.WithLabelValues("euromillions", "test", "success")); value != 1 {
		t.Fatalf("expected one upserted euromillions draw, got %v", value)
	}

	select {
	case event := <-events:
		if event.Status != RunStatusSuccess || event.UpsertedCount != 1 || event.RunID != result.Games[1].RunID {
			t.Fatalf("unexpected run event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a run event for euromillions")
	}
}

func TestStatusAndListings(t *testing.T) {
	h := newHarness(t, nil)
	seedLotoArchives(t, h)
	result, err := h.service.SyncGame(context.Background(), lottery.GameLoto, "test")
	if err != nil || result.Status != RunStatusSuccess {
		t.Fatalf("sync failed: %v %+v", err, result)
	}

	report, err := h.service.Status(context.Background(), lottery.MustParseDate("2026-03-03"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Games) != 2 {
		t.Fatalf("expected a status entry per configured game, got %d", len(report.Games))
	}
	loto := report.Games[0]
	if loto.Game != lottery.GameLoto || loto.DrawCount != 3 {
		t.Fatalf("unexpected loto status %+v", loto)
	}
	if loto.LastDrawDate == nil || loto.LastDrawDate.String() != "2019-11-09" {
		t.Fatalf("unexpected last draw date %v", loto.LastDrawDate)
	}
	if loto.NextDrawDate == nil || loto.NextDrawDate.String() != "2026-03-04" {
		t.Fatalf("expected next loto draw on wednesday 2026-03-04, got %v", loto.NextDrawDate)
	}
	euro := report.Games[1]
	if euro.DrawCount != 0 || euro.LastDrawDate != nil || euro.LastSuccessfulSyncAt != nil {
		t.Fatalf("expected empty euromillions status, got %+v", euro)
	}
	if report.LastSyncedAt == nil {
		t.Fatalf("expected overall last sync time")
	}

	draws, err := h.service.ListDraws(context.Background(), lottery.GameLoto, DrawQuery{From: lottery.MustParseDate("2019-11-05"), Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(draws) != 2 || draws[0].DrawDate.String() != "2019-11-09" || draws[1].DrawDate.String() != "2019-11-06" {
		t.Fatalf("unexpected listing %+v", draws)
	}

	runs, err := h.service.ListRuns(context.Background(), lottery.GameLoto, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != result.RunID {
		t.Fatalf("unexpected runs %+v", runs)
	}

	if _, err := h.service.ListDraws(context.Background(), lottery.Game("keno"), DrawQuery{}); err == nil {
		t.Fatalf("expected unknown game to be rejected")
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "drawsync.service.new.missing_database" {
		t.Fatalf("unexpected error %v", err)
	}
}
