package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"systemsmap-client/internal/models"
)

var askShowHistory bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question in a new conversation",
	Long: `Starts a conversation, sends the question and prints the analysis.

Example:
  systemsmap ask "Why does hiring more staff not shrink the backlog?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowHistory, "history", false, "print the whole conversation, not just the answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	history, err := a.exchange.Analyze(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	if askShowHistory {
		printHistory(out, history)
	} else if last := lastAssistant(history); last != "" {
		fmt.Fprintln(out, last)
	}
	if a.state.Plot() != nil {
		fmt.Fprintln(out, "(the answer includes a plot; open it with systemsmap serve)")
	}
	return nil
}

func lastAssistant(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}

func printHistory(w io.Writer, history []models.Message) {
	for _, m := range history {
		fmt.Fprintf(w, "%s: %s\n\n", m.Role, m.Content)
	}
}
