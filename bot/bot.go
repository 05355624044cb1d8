package bot

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"sticky-bot/command"
	"sticky-bot/config"
	"sticky-bot/database"
	admin "sticky-bot/grpc"
	"sticky-bot/models"
	"sticky-bot/repeater"
	"sticky-bot/transport"
	"sticky-bot/utils"
)

// Bot encapsulates the bot's state.
type Bot struct {
	Session  *discordgo.Session
	Settings *models.Settings
	Commands map[string]command.Command

	DB       *sql.DB
	Store    *database.RepeaterDB
	Discord  *transport.Discord
	Registry *repeater.Registry
	Router   *repeater.Router
	Status   *database.StatusManager
	Auth     *utils.Auth

	ctx       context.Context
	cancel    context.CancelFunc
	scheduler *cron.Cron
	adminSrv  *admin.Server
}

// NewBot creates the session and the engine around it. Nothing connects until Start.
func NewBot(settings *models.Settings) (*Bot, error) {
	dg, err := discordgo.New("Bot " + settings.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	db, err := database.InitDB(settings.Database.Path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		Session:  dg,
		Settings: settings,
		Commands: make(map[string]command.Command),
		DB:       db,
		Store:    database.NewRepeaterDB(db),
		Discord:  transport.NewDiscord(dg, settings.Engine.SendRate, settings.Engine.SendBurst),
		Status:   database.NewStatusManager(settings.Bot.StatusFile),
		Auth:     utils.NewAuth(settings.Commands),
		ctx:      ctx,
		cancel:   cancel,
	}

	b.Registry = repeater.NewRegistry(ctx, repeater.Deps{
		Store:               b.Store,
		Messenger:           b.Discord,
		Renderer:            utils.TemplateRenderer{GuildName: b.Discord.GuildName},
		Location:            config.Location(settings),
		PollInterval:        settings.Engine.PollInterval,
		ConversationRecheck: settings.Engine.ConversationRecheck,
		ThreadDebounce:      settings.Engine.ThreadDebounce,
		HistoryLimit:        settings.Engine.HistoryLimit,
	})
	b.Registry.OnRemoved = func(rep *models.Repeater, reason string) {
		utils.Warn("Repeater", "Remove",
			fmt.Sprintf("Sticky #%d in <#%s> (guild %s) was removed: %s", rep.ID, rep.ChannelID, rep.GuildID, reason))
	}
	b.Router = repeater.NewRouter(b.Registry)
	return b, nil
}

// Context is cancelled when the bot stops.
func (b *Bot) Context() context.Context { return b.ctx }

// RegisterCommands registers the provided commands.
func (b *Bot) RegisterCommands(commands []command.Command) {
	for _, cmd := range commands {
		b.Commands[cmd.Definition().Name] = cmd
	}
}

// Start opens the bot's session and registers handlers.
func (b *Bot) Start(registerHandlers func(*Bot)) error {
	utils.InitLogger(b.Session, b.Settings.Bot.LogLevel)
	registerHandlers(b)

	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	// Register slash commands
	for _, cmd := range b.Commands {
		if _, err := b.Session.ApplicationCommandCreate(b.Session.State.User.ID, "", cmd.Definition()); err != nil {
			log.Error().Err(err).Str("command", cmd.Definition().Name).Msg("cannot create command")
		}
	}

	b.startScheduler()

	if b.Settings.GRPC.Enabled {
		b.adminSrv = admin.NewServer(b.Registry)
		if err := b.adminSrv.Start(b.Settings.GRPC.Address); err != nil {
			log.Error().Err(err).Msg("admin gRPC server not started")
			b.adminSrv = nil
		}
	}

	config.Watch(func(s *models.Settings) {
		utils.SetLevel(s.Bot.LogLevel)
	})

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug().Err(err).Msg("sd_notify ready failed")
	}
	log.Info().Msg("bot is now running")
	return nil
}

// Stop gracefully closes the bot's session.
func (b *Bot) Stop() {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Debug().Err(err).Msg("sd_notify stopping failed")
	}
	b.stopScheduler()
	if b.adminSrv != nil {
		b.adminSrv.Stop()
	}

	b.Status.Update(b.Registry.Status())
	if err := b.Status.Save(); err != nil {
		log.Error().Err(err).Msg("failed to save status on shutdown")
	}
	b.Registry.Close()
	b.cancel()

	if b.Session != nil {
		b.Session.Close()
	}
	if b.DB != nil {
		b.DB.Close()
	}
	log.Info().Msg("bot stopped gracefully")
}

// Run starts the bot and blocks until ctx is cancelled.
func Run(ctx context.Context, settings *models.Settings, registerHandlers func(*Bot), commands []command.Command) error {
	b, err := NewBot(settings)
	if err != nil {
		return fmt.Errorf("error initializing bot: %w", err)
	}

	b.RegisterCommands(commands)

	if err := b.Start(registerHandlers); err != nil {
		b.Stop()
		return fmt.Errorf("error starting bot: %w", err)
	}

	<-ctx.Done()
	b.Stop()
	return nil
}
