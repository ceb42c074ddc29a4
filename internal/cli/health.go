package cli

import (
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend availability",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ui := newUI()
	client := newAPIClient(cfg)

	status, err := client.Health(cmd.Context())
	if err != nil {
		ui.Error("backend unreachable: %v", err)
		return err
	}

	ui.Success("backend %s is %s (model %s)", client.BaseURL(), status.Status, status.Model)

	if flagVerbose {
		prompt, err := client.SystemPrompt(cmd.Context())
		if err != nil {
			ui.Warning("system prompt unavailable: %v", err)
			return nil
		}
		ui.VerboseLog("system prompt: %d bytes", len(prompt))
	}
	return nil
}
