package config

import (
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LedgerConfig tunes the posting engine. Values are reloaded at runtime when ledger.yml changes.
type LedgerConfig struct {
	RequireApproval bool          `mapstructure:"requireApproval"`
	Posting         PostingConfig `mapstructure:"posting"`
	Lock            LockConfig    `mapstructure:"lock"`
}

type PostingConfig struct {
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	InitialInterval time.Duration `mapstructure:"initialInterval"`
	MaxInterval     time.Duration `mapstructure:"maxInterval"`
}

// LockConfig controls the cross-process account lock. It is only used when Redis is configured.
type LockConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Wait    time.Duration `mapstructure:"wait"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		RequireApproval: false,
		Posting: PostingConfig{
			MaxAttempts:     5,
			InitialInterval: 20 * time.Millisecond,
			MaxInterval:     500 * time.Millisecond,
		},
		Lock: LockConfig{
			Enabled: false,
			TTL:     10 * time.Second,
			Wait:    2 * time.Second,
		},
	}
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

// NewStaticLedgerConfigHolder returns a holder that never reloads.
func NewStaticLedgerConfigHolder(cfg LedgerConfig) *LedgerConfigHolder {
	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewLedgerConfigHolder(appCfg Config, log *zap.Logger) (*LedgerConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.ledger")

	v := viper.New()
	if appCfg.LedgerConfigPath != "" {
		v.SetConfigFile(appCfg.LedgerConfigPath)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/bookkeeping")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOOKKEEPING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	v.SetDefault("ledger.requireApproval", defaults.RequireApproval)
	v.SetDefault("ledger.posting.maxAttempts", defaults.Posting.MaxAttempts)
	v.SetDefault("ledger.posting.initialInterval", defaults.Posting.InitialInterval)
	v.SetDefault("ledger.posting.maxInterval", defaults.Posting.MaxInterval)
	v.SetDefault("ledger.lock.enabled", defaults.Lock.Enabled)
	v.SetDefault("ledger.lock.ttl", defaults.Lock.TTL)
	v.SetDefault("ledger.lock.wait", defaults.Lock.Wait)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg LedgerConfig
	if err := v.UnmarshalKey("ledger", &cfg); err != nil {
		return nil, err
	}
	if err := validateLedgerConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticLedgerConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated LedgerConfig
		if err := v.UnmarshalKey("ledger", &updated); err != nil {
			log.Warn("ledger config reload failed", zap.Error(err))
			return
		}
		if err := validateLedgerConfig(updated); err != nil {
			log.Warn("invalid ledger config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("ledger config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	if h == nil {
		return DefaultLedgerConfig()
	}
	return h.current.Load().(LedgerConfig)
}

func validateLedgerConfig(cfg LedgerConfig) error {
	if cfg.Posting.MaxAttempts < 1 {
		return errors.New("ledger.posting.maxAttempts must be at least 1")
	}
	if cfg.Posting.InitialInterval < 0 || cfg.Posting.MaxInterval < 0 {
		return errors.New("ledger.posting intervals cannot be negative")
	}
	if cfg.Lock.Enabled && cfg.Lock.TTL <= 0 {
		return errors.New("ledger.lock.ttl must be positive when the lock is enabled")
	}
	return nil
}
