package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "DRAWSYNC"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = "sqlite"
	defaultDatabasePath    = "drawsync.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultHTTPTimeout     = 30
	defaultMaxArchiveBytes = 64 << 20
	defaultPrecedence      = "later_wins"
	defaultLockMode        = "none"
	defaultLockTTL         = 15 * time.Minute
	defaultAdminIssuer     = "drawsync"
	defaultAdminAudience   = "drawsync-admin"
	defaultAdminTokenTTL   = 60
	defaultAllowedOrigins  = "*"

	defaultLotoHistoryURL         = "https://www.fdj.fr/jeux-de-tirage/loto/historique"
	defaultLotoRuleStart          = "2019-11-04"
	defaultEuroMillionsHistoryURL = "https://www.fdj.fr/jeux-de-tirage/euromillions-my-million/historique"
	defaultEuroMillionsRuleStart  = "2016-09-01"

	LockModeNone   = "none"
	LockModeMemory = "memory"
	LockModeRedis  = "redis"
)

var defaultRetryDelays = []string{"1s", "2s", "5s"}

// GameConfig locates the history of one game.
type GameConfig struct {
	HistoryURL    string
	RuleStartDate lottery.Date
}

type DatabaseConfig struct {
	Driver string
	Path   string
	MySQL  MySQLConfig
}

type MySQLConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	TimeoutSeconds int
}

type HTTPConfig struct {
	Address         string
	UserAgent       string
	TimeoutSeconds  int
	RetryDelays     []time.Duration
	MaxArchiveBytes int64
	AllowedOrigins  []string
}

type SyncConfig struct {
	Precedence string
	Lock       string
	LockTTL    time.Duration
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type MirrorConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type AdminConfig struct {
	SigningSecret   string
	Issuer          string
	Audience        string
	TokenTTLMinutes int
}

// AppConfig captures runtime configuration for the sync commands and the admin server.
type AppConfig struct {
	LogLevel  string
	LogFormat string
	Database  DatabaseConfig
	HTTP      HTTPConfig
	Games     map[lottery.Game]GameConfig
	Sync      SyncConfig
	Redis     RedisConfig
	Mirror    MirrorConfig
	Admin     AdminConfig
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.mysql.port", 3306)
	configViper.SetDefault("database.mysql.timeout_seconds", 10)
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.timeout_seconds", defaultHTTPTimeout)
	configViper.SetDefault("http.retry_delays", defaultRetryDelays)
	configViper.SetDefault("http.max_archive_bytes", defaultMaxArchiveBytes)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("games.loto.history_url", defaultLotoHistoryURL)
	configViper.SetDefault("games.loto.rule_start_date", defaultLotoRuleStart)
	configViper.SetDefault("games.euromillions.history_url", defaultEuroMillionsHistoryURL)
	configViper.SetDefault("games.euromillions.rule_start_date", defaultEuroMillionsRuleStart)
	configViper.SetDefault("sync.precedence", defaultPrecedence)
	configViper.SetDefault("sync.lock", defaultLockMode)
	configViper.SetDefault("sync.lock_ttl", defaultLockTTL)
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("mirror.enabled", false)
	configViper.SetDefault("mirror.use_ssl", true)
	configViper.SetDefault("admin.issuer", defaultAdminIssuer)
	configViper.SetDefault("admin.audience", defaultAdminAudience)
	configViper.SetDefault("admin.token_ttl_minutes", defaultAdminTokenTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	retryDelays, err := parseDurations(configViper.GetStringSlice("http.retry_delays"))
	if err != nil {
		return AppConfig{}, err
	}

	games := make(map[lottery.Game]GameConfig, len(lottery.AllGames()))
	for _, game := range lottery.AllGames() {
		prefix := "games." + game.String()
		historyURL := strings.TrimSpace(configViper.GetString(prefix + ".history_url"))
		if historyURL == "" {
			continue
		}
		ruleStart, err := lottery.ParseDate(configViper.GetString(prefix + ".rule_start_date"))
		if err != nil {
			return AppConfig{}, fmt.Errorf("%s.rule_start_date: %w", prefix, err)
		}
		games[game] = GameConfig{HistoryURL: historyURL, RuleStartDate: ruleStart}
	}

	cfg := AppConfig{
		LogLevel:  configViper.GetString("log.level"),
		LogFormat: configViper.GetString("log.format"),
		Database: DatabaseConfig{
			Driver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
			Path:   configViper.GetString("database.path"),
			MySQL: MySQLConfig{
				Host:           configViper.GetString("database.mysql.host"),
				Port:           configViper.GetInt("database.mysql.port"),
				User:           configViper.GetString("database.mysql.user"),
				Password:       configViper.GetString("database.mysql.password"),
				Name:           configViper.GetString("database.mysql.name"),
				TimeoutSeconds: configViper.GetInt("database.mysql.timeout_seconds"),
			},
		},
		HTTP: HTTPConfig{
			Address:         configViper.GetString("http.address"),
			UserAgent:       configViper.GetString("http.user_agent"),
			TimeoutSeconds:  configViper.GetInt("http.timeout_seconds"),
			RetryDelays:     retryDelays,
			MaxArchiveBytes: configViper.GetInt64("http.max_archive_bytes"),
			AllowedOrigins:  splitList(configViper.GetStringSlice("http.allowed_origins")),
		},
		Games: games,
		Sync: SyncConfig{
			Precedence: strings.ToLower(strings.TrimSpace(configViper.GetString("sync.precedence"))),
			Lock:       strings.ToLower(strings.TrimSpace(configViper.GetString("sync.lock"))),
			LockTTL:    configViper.GetDuration("sync.lock_ttl"),
		},
		Redis: RedisConfig{
			Address:  configViper.GetString("redis.address"),
			Password: configViper.GetString("redis.password"),
			DB:       configViper.GetInt("redis.db"),
		},
		Mirror: MirrorConfig{
			Enabled:   configViper.GetBool("mirror.enabled"),
			Endpoint:  configViper.GetString("mirror.endpoint"),
			AccessKey: configViper.GetString("mirror.access_key"),
			SecretKey: configViper.GetString("mirror.secret_key"),
			Bucket:    configViper.GetString("mirror.bucket"),
			UseSSL:    configViper.GetBool("mirror.use_ssl"),
			Region:    configViper.GetString("mirror.region"),
		},
		Admin: AdminConfig{
			SigningSecret:   configViper.GetString("admin.signing_secret"),
			Issuer:          configViper.GetString("admin.issuer"),
			Audience:        configViper.GetString("admin.audience"),
			TokenTTLMinutes: configViper.GetInt("admin.token_ttl_minutes"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RequireAdmin checks the settings only the admin server and token command need.
func (c AppConfig) RequireAdmin() error {
	if strings.TrimSpace(c.Admin.SigningSecret) == "" {
		return fmt.Errorf("admin.signing_secret is required")
	}
	if strings.TrimSpace(c.Admin.Issuer) == "" {
		return fmt.Errorf("admin.issuer is required")
	}
	if strings.TrimSpace(c.Admin.Audience) == "" {
		return fmt.Errorf("admin.audience is required")
	}
	if c.Admin.TokenTTLMinutes <= 0 {
		return fmt.Errorf("admin.token_ttl_minutes must be positive")
	}
	return nil
}

func (c AppConfig) validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Database.Path) == "" {
			return fmt.Errorf("database.path is required")
		}
	case "mysql":
		if strings.TrimSpace(c.Database.MySQL.Host) == "" {
			return fmt.Errorf("database.mysql.host is required")
		}
		if strings.TrimSpace(c.Database.MySQL.Name) == "" {
			return fmt.Errorf("database.mysql.name is required")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or mysql, got %q", c.Database.Driver)
	}
	if len(c.Games) == 0 {
		return fmt.Errorf("at least one games.<game>.history_url is required")
	}
	switch c.Sync.Precedence {
	case "later_wins", "earlier_wins":
	default:
		return fmt.Errorf("sync.precedence must be later_wins or earlier_wins, got %q", c.Sync.Precedence)
	}
	switch c.Sync.Lock {
	case LockModeNone, LockModeMemory:
	case LockModeRedis:
		if strings.TrimSpace(c.Redis.Address) == "" {
			return fmt.Errorf("redis.address is required when sync.lock is redis")
		}
	default:
		return fmt.Errorf("sync.lock must be none, memory or redis, got %q", c.Sync.Lock)
	}
	if c.Mirror.Enabled {
		if strings.TrimSpace(c.Mirror.Endpoint) == "" {
			return fmt.Errorf("mirror.endpoint is required when mirror.enabled is set")
		}
		if strings.TrimSpace(c.Mirror.Bucket) == "" {
			return fmt.Errorf("mirror.bucket is required when mirror.enabled is set")
		}
	}
	return nil
}

func parseDurations(values []string) ([]time.Duration, error) {
	durations := make([]time.Duration, 0, len(values))
	for _, value := range splitList(values) {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("http.retry_delays: %w", err)
		}
		durations = append(durations, duration)
	}
	return durations, nil
}

// splitList accepts both real lists and a single comma separated env value.
func splitList(values []string) []string {
	items := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}
