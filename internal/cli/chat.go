package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/W1ndR1dr/flowforge/internal/executor"
	"github.com/W1ndR1dr/flowforge/internal/style"
)

// NewChatCmd creates the chat command
func NewChatCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Brainstorm features with the assistant",
		Long: `Brainstorm features with the assistant. The conversation is tool-less:
the assistant cannot read or write files. With a message argument, runs
one turn; without one, starts an interactive session.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				var discard strings.Builder
				return app.chatTurn(cmd, nil, args[0], &discard)
			}
			return app.RunChatInteractive(cmd)
		},
	}

	return cmd
}

// RunChatInteractive loops over turns, carrying the transcript forward
func (a *App) RunChatInteractive(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Chat session started. Empty line to quit.")

	var history []executor.ChatMessage
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, style.Bold.Render("> "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			return nil
		}

		var reply strings.Builder
		if err := a.chatTurn(cmd, history, message, &reply); err != nil {
			return err
		}
		history = append(history,
			executor.ChatMessage{Role: "user", Content: message},
			executor.ChatMessage{Role: "assistant", Content: reply.String()},
		)
	}
}

// chatTurn streams one turn to stdout, teeing the reply into transcript.
func (a *App) chatTurn(cmd *cobra.Command, history []executor.ChatMessage, message string, transcript *strings.Builder) error {
	root, cfg, _, err := openProject()
	if err != nil {
		return err
	}

	prompt := executor.BuildChatPrompt(history, message)
	proc, err := executor.Spawn(cmd.Context(), executor.Project{
		Name:   cfg.Project.Name,
		Root:   root,
		Config: cfg,
	}, root, prompt)
	if err != nil {
		return fmt.Errorf("spawn assistant: %w", err)
	}

	out := cmd.OutOrStdout()
	for chunk := range executor.NewChunkStreamer().Stream(cmd.Context(), proc) {
		if chunk.TimedOut {
			fmt.Fprintln(out, style.Yellow.Render(chunk.Text))
			return nil
		}
		fmt.Fprint(out, chunk.Text)
		transcript.WriteString(chunk.Text)
	}
	fmt.Fprintln(out)
	return nil
}
