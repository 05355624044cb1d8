package models

import "time"

// Settings is the typed view of config.yaml, config/repeater_config.json and the environment.
type Settings struct {
	Bot      BotSettings      `json:"bot" mapstructure:"bot"`
	Database DatabaseSettings `json:"database" mapstructure:"database"`
	Engine   EngineSettings   `json:"engine" mapstructure:"engine"`
	GRPC     GRPCSettings     `json:"grpc" mapstructure:"grpc"`
	Commands CommandsConfig   `json:"commands" mapstructure:"commands"`
}

// BotSettings holds the connection and logging options.
type BotSettings struct {
	Token          string `json:"-" mapstructure:"token"`
	AdminChannelID string `json:"adminChannelId" mapstructure:"adminChannelId"`
	Timezone       string `json:"timezone" mapstructure:"timezone"`
	LogLevel       string `json:"logLevel" mapstructure:"logLevel"`
	StatusFile     string `json:"statusFile" mapstructure:"statusFile"`
	ScanAtStartup  bool   `json:"ScanAtStartup" mapstructure:"ScanAtStartup"`
}

// DatabaseSettings locates the sqlite file holding repeater records.
type DatabaseSettings struct {
	Path string `json:"path" mapstructure:"path"`
}

// EngineSettings tunes the scheduling engine.
type EngineSettings struct {
	PollInterval        time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
	ConversationRecheck time.Duration `json:"conversationRecheck" mapstructure:"conversationRecheck"`
	ThreadDebounce      time.Duration `json:"threadDebounce" mapstructure:"threadDebounce"`
	HistoryLimit        int           `json:"historyLimit" mapstructure:"historyLimit"`
	SendRate            float64       `json:"sendRate" mapstructure:"sendRate"` // sends per second per channel
	SendBurst           int           `json:"sendBurst" mapstructure:"sendBurst"`
}

// GRPCSettings controls the optional admin server.
type GRPCSettings struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// CommandsConfig holds the permission lists for slash commands.
type CommandsConfig struct {
	Auth AuthConfig `json:"auth" mapstructure:"auth"`
}

// AuthConfig lists who may run privileged commands.
type AuthConfig struct {
	Developers  []string `json:"developers" mapstructure:"developers"`
	AdminsRoles []string `json:"adminsRoles" mapstructure:"adminsRoles"`
	Guest       []string `json:"guest" mapstructure:"guest"`
}
