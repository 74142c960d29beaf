package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/archive"
	"github.com/MarcoPoloResearchLab/drawsync/internal/config"
	"github.com/MarcoPoloResearchLab/drawsync/internal/database"
	"github.com/MarcoPoloResearchLab/drawsync/internal/drawparse"
	"github.com/MarcoPoloResearchLab/drawsync/internal/drawsync"
	"github.com/MarcoPoloResearchLab/drawsync/internal/logging"
	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"github.com/MarcoPoloResearchLab/drawsync/internal/mirror"
	"github.com/MarcoPoloResearchLab/drawsync/internal/runlock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// appRuntime holds the wired dependencies shared by every subcommand.
type appRuntime struct {
	config   config.AppConfig
	logger   *zap.Logger
	db       *gorm.DB
	service  *drawsync.Service
	events   *drawsync.EventHub
	registry *prometheus.Registry
	closers  []func()
}

func loadRuntime() (*appRuntime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	rt := &appRuntime{config: appConfig, logger: logger}
	rt.closers = append(rt.closers, func() { _ = logger.Sync() })

	db, err := database.Open(database.Config{
		Driver: appConfig.Database.Driver,
		Path:   appConfig.Database.Path,
		MySQL: database.MySQLConfig{
			Host:           appConfig.Database.MySQL.Host,
			Port:           appConfig.Database.MySQL.Port,
			User:           appConfig.Database.MySQL.User,
			Password:       appConfig.Database.MySQL.Password,
			Name:           appConfig.Database.MySQL.Name,
			TimeoutSeconds: appConfig.Database.MySQL.TimeoutSeconds,
		},
	}, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.db = db
	if sqlDB, err := db.DB(); err == nil {
		rt.closers = append(rt.closers, func() { _ = sqlDB.Close() })
	}

	if err := rt.wireService(); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *appRuntime) wireService() error {
	cfg := rt.config

	httpClient := archive.NewHTTPClient(archive.ClientConfig{
		Timeout:     time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		RetryDelays: cfg.HTTP.RetryDelays,
		Logger:      rt.logger,
	})

	sources := make(map[lottery.Game]archive.Source, len(cfg.Games))
	settings := make(map[lottery.Game]drawsync.GameSettings, len(cfg.Games))
	for game, gameConfig := range cfg.Games {
		sources[game] = archive.Source{HistoryURL: gameConfig.HistoryURL, RuleStartDate: gameConfig.RuleStartDate}
		settings[game] = drawsync.GameSettings{RuleStartDate: gameConfig.RuleStartDate}
	}

	lock, err := rt.runLock()
	if err != nil {
		return err
	}
	archiveMirror, err := rt.archiveMirror()
	if err != nil {
		return err
	}

	rt.registry = prometheus.NewRegistry()
	metrics, err := drawsync.NewMetrics(rt.registry)
	if err != nil {
		return err
	}
	rt.events = drawsync.NewEventHub()

	serviceConfig := drawsync.ServiceConfig{
		Database: rt.db,
		Locator: archive.NewLocator(archive.LocatorConfig{
			HTTPClient: httpClient,
			Sources:    sources,
			UserAgent:  cfg.HTTP.UserAgent,
			Logger:     rt.logger,
		}),
		Fetcher: archive.NewFetcher(archive.FetcherConfig{
			HTTPClient:      httpClient,
			UserAgent:       cfg.HTTP.UserAgent,
			MaxArchiveBytes: cfg.HTTP.MaxArchiveBytes,
			Logger:          rt.logger,
		}),
		Parser:     drawparse.NewParser(rt.logger),
		Games:      settings,
		Clock:      time.Now,
		IDProvider: drawsync.NewUUIDProvider(),
		Logger:     rt.logger,
		Metrics:    metrics,
		Lock:       lock,
		Events:     rt.events,
		Precedence: drawsync.Precedence(cfg.Sync.Precedence),
	}
	if archiveMirror != nil {
		serviceConfig.Mirror = archiveMirror
	}

	service, err := drawsync.NewService(serviceConfig)
	if err != nil {
		return err
	}
	rt.service = service
	return nil
}

func (rt *appRuntime) runLock() (drawsync.RunLock, error) {
	switch rt.config.Sync.Lock {
	case config.LockModeMemory:
		return runlock.NewMemory(), nil
	case config.LockModeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     rt.config.Redis.Address,
			Password: rt.config.Redis.Password,
			DB:       rt.config.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", rt.config.Redis.Address, err)
		}
		return runlock.NewRedis(runlock.RedisConfig{
			Client: client,
			TTL:    rt.config.Sync.LockTTL,
			Logger: rt.logger,
		})
	default:
		return drawsync.NoLock{}, nil
	}
}

func (rt *appRuntime) archiveMirror() (*mirror.Mirror, error) {
	if !rt.config.Mirror.Enabled {
		return nil, nil
	}
	mirrorConfig := mirror.Config{
		Endpoint:  rt.config.Mirror.Endpoint,
		AccessKey: rt.config.Mirror.AccessKey,
		SecretKey: rt.config.Mirror.SecretKey,
		Bucket:    rt.config.Mirror.Bucket,
		UseSSL:    rt.config.Mirror.UseSSL,
		Region:    rt.config.Mirror.Region,
	}
	store, err := mirror.NewObjectStore(mirrorConfig)
	if err != nil {
		return nil, err
	}
	rt.logger.Info("archive mirror enabled", zap.String("endpoint", mirrorConfig.Endpoint), zap.String("bucket", mirrorConfig.Bucket))
	return mirror.New(store, mirrorConfig, time.Now)
}

// Close releases resources in reverse acquisition order.
func (rt *appRuntime) Close() {
	for index := len(rt.closers) - 1; index >= 0; index-- {
		rt.closers[index]()
	}
	rt.closers = nil
}
