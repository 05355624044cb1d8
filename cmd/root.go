package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sticky-bot/bot"
	"sticky-bot/command"
	"sticky-bot/config"
	"sticky-bot/handlers"
	"sticky-bot/utils"
)

var rootCmd = &cobra.Command{
	Use:   "sticky-bot",
	Short: "Keep sticky messages at the bottom of Discord channels",
	Long: `sticky-bot reposts configured messages so they stay visible in busy
channels and forum threads. Without a subcommand it connects to Discord
and runs until interrupted.`,
	SilenceUsage: true,
	RunE:         runBot,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	utils.SetupConsole(settings.Bot.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	return bot.Run(ctx, settings, handlers.Register, command.AllCommands)
}
