package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

const (
	ColorInfo  = 0x00ff00 // Green
	ColorWarn  = 0xffff00 // Yellow
	ColorError = 0xff0000 // Red
)

// embedSender is the part of *discordgo.Session the admin mirror needs.
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var (
	mirrorMu  sync.RWMutex
	sender    embedSender
	channelID string
	// at most one embed every 2s with a burst of 5; the rest only reach the console
	limiter = rate.NewLimiter(rate.Every(2*time.Second), 5)
)

// SetupConsole configures the global zerolog logger. It is safe to call again
// when the configured level changes.
func SetupConsole(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"}).
		With().Timestamp().Logger()
	SetLevel(level)
}

// SetLevel changes the global log level; unknown names fall back to info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// InitLogger initializes the logger with a Discord session and mirrors
// Info/Warn/Error to bot.adminChannelId.
func InitLogger(s *discordgo.Session, level string) {
	SetupConsole(level)
	ch := viper.GetString("bot.adminChannelId")
	if ch == "" {
		log.Warn().Msg("bot.adminChannelId is not set; admin channel logging is disabled")
	}
	setMirror(s, ch)
}

func setMirror(s embedSender, ch string) {
	mirrorMu.Lock()
	defer mirrorMu.Unlock()
	sender = s
	channelID = ch
}

// Log writes to the console and, when configured, posts an embed to the admin channel.
func Log(level, module, operation, details string) {
	var event *zerolog.Event
	color := ColorInfo
	switch level {
	case "WARN":
		event, color = log.Warn(), ColorWarn
	case "ERROR":
		event, color = log.Error(), ColorError
	default:
		event = log.Info()
	}
	event.Str("module", module).Str("operation", operation).Msg(details)

	mirrorMu.RLock()
	s, ch := sender, channelID
	mirrorMu.RUnlock()
	if s == nil || ch == "" {
		return
	}
	if !limiter.Allow() {
		log.Debug().Str("module", module).Msg("admin channel log throttled")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("Log Level: %s", level),
		Color:     color,
		Timestamp: time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Module",
				Value:  module,
				Inline: true,
			},
			{
				Name:   "Operation",
				Value:  operation,
				Inline: true,
			},
			{
				Name:  "Details",
				Value: truncate(details, 1024),
			},
		},
	}

	if _, err := s.ChannelMessageSendEmbed(ch, embed); err != nil {
		log.Error().Err(err).Msg("error sending log message to Discord")
	}
}

// truncate keeps embed field values non-empty and under Discord's limit.
func truncate(s string, max int) string {
	if s == "" {
		return "-"
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Info logs an informational message.
func Info(module, operation, details string) {
	Log("INFO", module, operation, details)
}

// Warn logs a warning message.
func Warn(module, operation, details string) {
	Log("WARN", module, operation, details)
}

// Error logs an error message.
func Error(module, operation, details string) {
	Log("ERROR", module, operation, details)
}
