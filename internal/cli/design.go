package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var designIterations int

var designCmd = &cobra.Command{
	Use:   "design <prompt>",
	Short: "Design a part from a single prompt",
	Long: `Runs the full design loop for one prompt: the designer agent writes
part code, the backend executes and tests it, and the QA agent reviews
the result. The loop repeats until QA passes, the iteration budget runs
out, or an error occurs. The final code is printed on success.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDesign,
}

func init() {
	designCmd.Flags().IntVar(&designIterations, "iterations", 0, "override the loop iteration budget")
	rootCmd.AddCommand(designCmd)
}

func runDesign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if designIterations > 0 {
		cfg.Loop.MaxIterations = designIterations
	}

	ui := newUI()
	client := newAPIClient(cfg)
	prompt := strings.Join(args, " ")

	e := newEngine(client, ui, cfg.Loop.MaxIterations)
	if err := e.loadSystemPrompt(cfg); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate session store: %w", err)
	}
	if err := e.withStore(cmd.Context(), st, prompt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	outcome, err := e.autoTurn(cmd.Context(), prompt)
	if err != nil {
		return err
	}

	e.reportOutcome(outcome)
	ui.Code(e.code.Code())
	return nil
}
