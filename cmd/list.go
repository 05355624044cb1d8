package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sticky-bot/config"
	"sticky-bot/database"
	"sticky-bot/models"
)

var listGuild string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sticky messages without connecting to Discord",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listGuild, "guild", "", "Only list this guild")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if err := config.LoadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.InitDB(viper.GetString("database.path"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	store := database.NewRepeaterDB(db)

	ctx := cmd.Context()
	guilds := []string{listGuild}
	if listGuild == "" {
		if guilds, err = store.GuildIDs(ctx); err != nil {
			return fmt.Errorf("listing guilds: %w", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUILD\tID\tCHANNEL\tMODE\tENABLED\tSHOWN\tLAST SHOWN\tMESSAGE")
	for _, guildID := range guilds {
		reps, err := store.LoadRepeaters(ctx, guildID)
		if err != nil {
			return fmt.Errorf("loading repeaters of %s: %w", guildID, err)
		}
		for _, rep := range reps {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\t%d\t%s\t%s\n",
				rep.GuildID, rep.ID, rep.ChannelID, rep.TriggerMode, rep.IsEnabled, rep.DisplayCount, lastShown(rep), shorten(rep.Message, 40))
		}
	}
	return w.Flush()
}

func lastShown(rep *models.Repeater) string {
	if rep.LastDisplayed == nil {
		return "-"
	}
	return rep.LastDisplayed.Format("2006-01-02 15:04")
}

func shorten(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
