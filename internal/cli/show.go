package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thruflo/drafter/internal/output"
	"github.com/thruflo/drafter/internal/transcript"
)

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a saved design session",
	Long: `Prints the transcript of a saved session, the recorded auto-mode
rounds, and the final generated code.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
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

	ds, err := st.GetSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	ui.Info("session %s: %s", ds.ID, ds.Title)

	msgs, err := st.ListMessages(cmd.Context(), ds.ID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		label := string(m.Role)
		if m.Role != transcript.RoleUser {
			label = output.AgentLabel(m.AgentType)
		}
		fmt.Fprintf(ui.Out, "\n%s: %s\n", label, m.Content)
	}

	rounds, err := st.ListRounds(cmd.Context(), ds.ID)
	if err != nil {
		return err
	}
	if len(rounds) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"ROUND", "OUTCOME", "FEEDBACK"})
		for _, r := range rounds {
			feedback := r.QAFeedback
			if len(feedback) > 60 {
				feedback = feedback[:57] + "..."
			}
			table.Append([]string{
				fmt.Sprintf("%d", r.Iteration),
				output.OutcomeColor(r.Outcome),
				feedback,
			})
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	ui.Code(ds.CurrentCode)
	return nil
}
