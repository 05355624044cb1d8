package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"sticky-bot/models"
)

// LoadConfig loads configuration into the global viper instance from, in order:
//  1. .env (environment variables)
//  2. config.yaml (base configuration)
//  3. config/repeater_config.json (merged into the base)
//
// Environment variables override file values; "bot.token" reads BOT_TOKEN.
func LoadConfig() error {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, skipping")
	}
	return readInto(viper.GetViper(), ".")
}

func readInto(v *viper.Viper, dir string) error {
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to parse config.yaml: %w", err)
		}
		log.Info().Msg("config.yaml not found, using environment and defaults")
	}

	return mergeRepeaterConfig(v, dir)
}

// mergeRepeaterConfig merges config/repeater_config.json through a separate
// viper instance so v keeps watching config.yaml.
func mergeRepeaterConfig(v *viper.Viper, dir string) error {
	extra := viper.New()
	extra.SetConfigName("repeater_config")
	extra.SetConfigType("json")
	extra.AddConfigPath(dir + "/config")
	if err := extra.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to merge config/repeater_config.json: %w", err)
		}
		log.Debug().Msg("config/repeater_config.json not found, skipping merge")
		return nil
	}
	return v.MergeConfigMap(extra.AllSettings())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.adminChannelId", "")
	v.SetDefault("bot.timezone", "UTC")
	v.SetDefault("bot.logLevel", "info")
	v.SetDefault("bot.statusFile", "data/status.json")
	v.SetDefault("bot.ScanAtStartup", true)
	v.SetDefault("database.path", "data/repeaters.db")
	v.SetDefault("engine.pollInterval", "1m")
	v.SetDefault("engine.conversationRecheck", "30s")
	v.SetDefault("engine.threadDebounce", "2s")
	v.SetDefault("engine.historyLimit", 100)
	v.SetDefault("engine.sendRate", 1.0)
	v.SetDefault("engine.sendBurst", 2)
	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.address", "127.0.0.1:50051")
	v.SetDefault("commands.auth.developers", []string{})
	v.SetDefault("commands.auth.adminsRoles", []string{})
	v.SetDefault("commands.auth.guest", []string{})
}

// Load reads every source and returns the typed settings.
func Load() (*models.Settings, error) {
	if err := LoadConfig(); err != nil {
		return nil, err
	}
	return Decode(viper.GetViper())
}

// Decode converts the viper tree into Settings and validates it.
func Decode(v *viper.Viper) (*models.Settings, error) {
	var s models.Settings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&s, hook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func validate(s *models.Settings) error {
	var errs []error
	if strings.TrimSpace(s.Bot.Token) == "" {
		errs = append(errs, errors.New("bot.token (BOT_TOKEN) is required"))
	}
	if _, err := time.LoadLocation(s.Bot.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("bot.timezone: %w", err))
	}
	if s.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if s.Engine.PollInterval < time.Second {
		errs = append(errs, errors.New("engine.pollInterval must be at least 1s"))
	}
	if s.Engine.HistoryLimit < 1 || s.Engine.HistoryLimit > models.MaxMessageThreshold {
		errs = append(errs, fmt.Errorf("engine.historyLimit must be between 1 and %d", models.MaxMessageThreshold))
	}
	return errors.Join(errs...)
}

// Location returns the zone used for time conditions.
func Location(s *models.Settings) *time.Location {
	loc, err := time.LoadLocation(s.Bot.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Watch reloads config.yaml on change and hands the decoded settings to onChange.
// Invalid edits are logged and ignored.
func Watch(onChange func(*models.Settings)) {
	v := viper.GetViper()
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := mergeRepeaterConfig(v, "."); err != nil {
			log.Warn().Err(err).Msg("re-merging repeater_config.json failed")
		}
		s, err := Decode(v)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid configuration change")
			return
		}
		log.Info().Str("file", e.Name).Msg("configuration reloaded")
		onChange(s)
	})
	v.WatchConfig()
}
