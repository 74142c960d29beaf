package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/drawsync"
	sqlite "github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	defaultMySQLTimeout = 10 * time.Second
)

var (
	errMissingPath   = errors.New("database path is required")
	errMissingHost   = errors.New("database.mysql.host is required")
	errUnknownDriver = errors.New("unsupported database driver")
)

// MySQLConfig describes a MySQL connection.
type MySQLConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	TimeoutSeconds int
}

// Config selects the database driver and its connection settings.
type Config struct {
	Driver string
	Path   string
	MySQL  MySQLConfig
}

// Open connects to the configured database and brings the schema up to date.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		db  *gorm.DB
		err error
	)
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case DriverSQLite, "":
		db, err = openSQLite(cfg.Path)
	case DriverMySQL:
		db, err = openMySQL(cfg.MySQL)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", firstNonEmpty(driver, DriverSQLite)))
	return db, nil
}

// Migrate creates the tables and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	models := append(drawsync.Models(), &migrationRecord{})
	if err := db.AutoMigrate(models...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

// Ping checks that the database answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func openSQLite(path string) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errMissingPath
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func openMySQL(cfg MySQLConfig) (*gorm.DB, error) {
	dsn, err := MySQLDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), mysqlTimeout(cfg))
	defer cancel()
	if err := Ping(ctx, db); err != nil {
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// MySQLDSN renders cfg as a go-sql-driver DSN with UTC time parsing and utf8mb4.
func MySQLDSN(cfg MySQLConfig) (string, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return "", errMissingHost
	}
	port := cfg.Port
	if port <= 0 {
		port = 3306
	}
	timeout := mysqlTimeout(cfg)

	dsnConfig := mysqldriver.NewConfig()
	dsnConfig.User = cfg.User
	dsnConfig.Passwd = cfg.Password
	dsnConfig.Net = "tcp"
	dsnConfig.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	dsnConfig.DBName = cfg.Name
	dsnConfig.ParseTime = true
	dsnConfig.Loc = time.UTC
	dsnConfig.Collation = "utf8mb4_unicode_ci"
	dsnConfig.Timeout = timeout
	dsnConfig.ReadTimeout = timeout
	dsnConfig.WriteTimeout = timeout
	return dsnConfig.FormatDSN(), nil
}

func mysqlTimeout(cfg MySQLConfig) time.Duration {
	if cfg.TimeoutSeconds <= 0 {
		return defaultMySQLTimeout
	}
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
