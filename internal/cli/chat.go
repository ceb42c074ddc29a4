package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thruflo/drafter/internal/automode"
)

var chatAuto bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive design conversation",
	Long: `Starts an interactive conversation with the design assistant.

Each message streams a designer reply. With --auto, every message also
runs the full execute-test-review loop until QA passes or the iteration
budget runs out.

In-conversation commands:
  /code   show the current generated code
  /auto   run the loop for the next message once
  /quit   leave the conversation

With a prompt argument, runs a single designer turn instead: streams
the reply, then executes and tests the extracted code.`,
	Args: cobra.ArbitraryArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatAuto, "auto", false, "run the execute-test-review loop on every message")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ui := newUI()
	client := newAPIClient(cfg)

	e := newEngine(client, ui, cfg.Loop.MaxIterations)
	if err := e.loadSystemPrompt(cfg); err != nil {
		return err
	}

	title := "interactive chat"
	if len(args) > 0 {
		title = strings.Join(args, " ")
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate session store: %w", err)
	}
	if err := e.withStore(cmd.Context(), st, title); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	// One-shot mode: a single designer turn, then execute and test.
	if len(args) > 0 {
		if err := e.chatTurn(cmd.Context(), title); err != nil {
			return err
		}
		return e.executeAndShow(cmd.Context())
	}

	ui.Info("connected to %s (session %s)", client.BaseURL(), e.sessionID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	autoOnce := false

	for {
		fmt.Fprint(ui.Out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/code":
			ui.Code(e.code.Code())
			continue
		case line == "/auto":
			autoOnce = true
			ui.Info("next message will run the full loop")
			continue
		case strings.HasPrefix(line, "/"):
			ui.Warning("unknown command: %s", line)
			continue
		}

		if chatAuto || autoOnce {
			autoOnce = false
			outcome, err := e.autoTurn(cmd.Context(), line)
			if err != nil {
				ui.Error("%v", err)
				continue
			}
			e.reportOutcome(outcome)
			if outcome == automode.OutcomePassed {
				ui.Code(e.code.Code())
			}
			continue
		}

		if err := e.chatTurn(cmd.Context(), line); err != nil {
			ui.Error("%v", err)
		}
	}
}
