package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sticky-bot/config"
	admin "sticky-bot/grpc"
)

var (
	adminAddr    string
	adminGuild   string
	adminID      int64
	adminEnabled bool
	adminTimeout time.Duration
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Control a running bot through its gRPC admin server",
}

var adminHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the admin server is serving",
	RunE: withClient(func(cmd *cobra.Command, c *admin.Client) error {
		st, err := c.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(st)
		return nil
	}),
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the live sticky messages of a guild",
	RunE: withClient(func(cmd *cobra.Command, c *admin.Client) error {
		reps, err := c.List(cmd.Context(), adminGuild)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCHANNEL\tMODE\tENABLED\tPRIORITY\tSHOWN\tTHREADS\tMESSAGE")
		for _, r := range reps {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%d\t%d\t%d\t%s\n", r.ID, r.ChannelID, r.Mode, r.Enabled, r.Priority, r.DisplayCount, r.Threads, shorten(r.Message, 40))
		}
		return w.Flush()
	}),
}

var adminToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Enable or disable a sticky message",
	RunE: withClient(func(cmd *cobra.Command, c *admin.Client) error {
		r, err := c.Toggle(cmd.Context(), adminGuild, adminID, adminEnabled)
		if err != nil {
			return err
		}
		fmt.Printf("sticky %d in %s enabled=%t\n", r.ID, r.ChannelID, r.Enabled)
		return nil
	}),
}

var adminDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a sticky message",
	RunE: withClient(func(cmd *cobra.Command, c *admin.Client) error {
		if err := c.Delete(cmd.Context(), adminGuild, adminID); err != nil {
			return err
		}
		fmt.Printf("sticky %d deleted\n", adminID)
		return nil
	}),
}

func init() {
	adminCmd.PersistentFlags().StringVar(&adminAddr, "addr", "", "Admin server address (default grpc.address from config)")
	adminCmd.PersistentFlags().DurationVar(&adminTimeout, "timeout", 10*time.Second, "Per-call timeout")
	for _, c := range []*cobra.Command{adminListCmd, adminToggleCmd, adminDeleteCmd} {
		c.Flags().StringVar(&adminGuild, "guild", "", "Guild ID")
		c.MarkFlagRequired("guild")
	}
	for _, c := range []*cobra.Command{adminToggleCmd, adminDeleteCmd} {
		c.Flags().Int64Var(&adminID, "id", 0, "Sticky ID")
		c.MarkFlagRequired("id")
	}
	adminToggleCmd.Flags().BoolVar(&adminEnabled, "enabled", true, "New state")

	adminCmd.AddCommand(adminHealthCmd, adminListCmd, adminToggleCmd, adminDeleteCmd)
	rootCmd.AddCommand(adminCmd)
}

func withClient(run func(cmd *cobra.Command, c *admin.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		addr := adminAddr
		if addr == "" {
			if err := config.LoadConfig(); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			addr = viper.GetString("grpc.address")
		}
		c, err := admin.NewClient(addr, adminTimeout)
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", addr, err)
		}
		defer c.Close()
		return run(cmd, c)
	}
}
