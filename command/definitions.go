package command

import "github.com/bwmarrin/discordgo"

var (
	minInterval  = 1.0
	minThreshold = 1.0
	maxPriority  = 100.0
	maxMessages  = 100.0
	zero         = 0.0
	minListIndex = 1.0
	textChannels = []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews, discordgo.ChannelTypeGuildForum}
	manageGuild  = int64(discordgo.PermissionManageGuild)
)

// StickyCommand defines the /sticky command and its subcommands.
type StickyCommand struct{}

func indexOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name:         "index",
		Description:  "Position of the sticky in /sticky list",
		Type:         discordgo.ApplicationCommandOptionInteger,
		Required:     true,
		MinValue:     &minListIndex,
		Autocomplete: true,
	}
}

// settingOptions are shared by create and edit; create marks channel and message required.
func settingOptions(create bool) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Name:         "channel",
			Description:  "Channel the sticky lives in",
			Type:         discordgo.ApplicationCommandOptionChannel,
			Required:     create,
			ChannelTypes: textChannels,
		},
		{
			Name:        "message",
			Description: "Message text; supports {channel} {guild} {count} {date} {time}",
			Type:        discordgo.ApplicationCommandOptionString,
			Required:    create,
			MaxLength:   2000,
		},
		{
			Name:        "mode",
			Description: "What makes the sticky repost",
			Type:        discordgo.ApplicationCommandOptionString,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "Every interval", Value: "interval"},
				{Name: "When the channel is busy", Value: "activity"},
				{Name: "When the channel goes quiet", Value: "no_activity"},
				{Name: "After N messages", Value: "after_messages"},
				{Name: "Always stay at the bottom", Value: "immediate"},
			},
		},
		{
			Name:        "interval_minutes",
			Description: "Minutes between posts (interval mode, optional fallback for immediate)",
			Type:        discordgo.ApplicationCommandOptionInteger,
			MinValue:    &minInterval,
		},
		{
			Name:        "start_time",
			Description: "Align interval posts to this time of day (HH:MM)",
			Type:        discordgo.ApplicationCommandOptionString,
		},
		{
			Name:        "activity_threshold",
			Description: "Messages needed (activity and after_messages modes), 1-100",
			Type:        discordgo.ApplicationCommandOptionInteger,
			MinValue:    &minThreshold,
			MaxValue:    maxMessages,
		},
		{
			Name:        "activity_window_minutes",
			Description: "Window the activity check looks at",
			Type:        discordgo.ApplicationCommandOptionInteger,
			MinValue:    &minThreshold,
		},
		{
			Name:        "conversation_threshold",
			Description: "Hold back while the channel sees this many messages per minute (0 = off)",
			Type:        discordgo.ApplicationCommandOptionInteger,
			MinValue:    &zero,
			MaxValue:    maxMessages,
		},
		{
			Name:        "time_window",
			Description: "Only post between these times, e.g. 09:00-17:00",
			Type:        discordgo.ApplicationCommandOptionString,
		},
		{
			Name:        "days",
			Description: "Days for the time window, 0=Sunday, e.g. 1,2,3,4,5",
			Type:        discordgo.ApplicationCommandOptionString,
		},
		{
			Name:        "required_tags",
			Description: "Forum tag IDs a thread must carry, comma separated",
			Type:        discordgo.ApplicationCommandOptionString,
		},
		{
			Name:        "excluded_tags",
			Description: "Forum tag IDs that disqualify a thread, comma separated",
			Type:        discordgo.ApplicationCommandOptionString,
		},
		{
			Name:        "max_triggers",
			Description: "Remove the sticky after this many posts (0 = unlimited)",
			Type:        discordgo.ApplicationCommandOptionInteger,
		},
		{
			Name:        "max_age_hours",
			Description: "Remove the sticky after this many hours (0 = unlimited)",
			Type:        discordgo.ApplicationCommandOptionInteger,
		},
		{
			Name:        "no_redundant",
			Description: "Skip posting while the sticky is still the last message",
			Type:        discordgo.ApplicationCommandOptionBoolean,
		},
		{
			Name:        "thread_auto_sticky",
			Description: "Also post into new threads of the channel",
			Type:        discordgo.ApplicationCommandOptionBoolean,
		},
		{
			Name:        "thread_only",
			Description: "Only post into threads, never the channel itself",
			Type:        discordgo.ApplicationCommandOptionBoolean,
		},
		{
			Name:        "silent",
			Description: "Send without notifications",
			Type:        discordgo.ApplicationCommandOptionBoolean,
		},
		{
			Name:        "priority",
			Description: "Ordering in /sticky list, 0-100",
			Type:        discordgo.ApplicationCommandOptionInteger,
			MaxValue:    maxPriority,
		},
	}
}

// Definition returns the application command definition.
func (c *StickyCommand) Definition() *discordgo.ApplicationCommand {
	editOptions := append([]*discordgo.ApplicationCommandOption{indexOption()}, settingOptions(false)...)
	return &discordgo.ApplicationCommand{
		Name:                     "sticky",
		Description:              "Manage sticky messages",
		DefaultMemberPermissions: &manageGuild,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "create",
				Description: "Create a sticky message",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     settingOptions(true),
			},
			{
				Name:        "edit",
				Description: "Change a sticky message",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     editOptions,
			},
			{
				Name:        "list",
				Description: "List the sticky messages of this server",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "info",
				Description: "Show one sticky message",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{indexOption()},
			},
			{
				Name:        "toggle",
				Description: "Enable or disable a sticky message",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					indexOption(),
					{
						Name:        "enabled",
						Description: "New state; flips the current one when omitted",
						Type:        discordgo.ApplicationCommandOptionBoolean,
					},
				},
			},
			{
				Name:        "delete",
				Description: "Delete a sticky message",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{indexOption()},
			},
		},
	}
}

// PingCommand defines the structure for the /ping command.
type PingCommand struct{}

// Definition returns the application command definition.
func (c *PingCommand) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "ping",
		Description: "Responds with Pong!",
	}
}
