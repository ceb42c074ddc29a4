package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved design sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum number of sessions to list")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ui := newUI()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate session store: %w", err)
	}

	sessions, err := st.ListSessions(cmd.Context(), sessionsLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.Info("no saved sessions")
		return nil
	}

	table := ui.Table([]string{"ID", "TITLE", "UPDATED"})
	for _, s := range sessions {
		title := s.Title
		if len(title) > 48 {
			title = title[:45] + "..."
		}
		table.Append([]string{s.ID, title, s.UpdatedAt.Format("2006-01-02 15:04")})
	}
	return table.Render()
}
