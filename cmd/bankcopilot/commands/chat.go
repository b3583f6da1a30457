package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bankcopilot/core"
)

// chat: an interactive session against the group chat, one prompt per line.
func chatCmd() *cobra.Command {
	var (
		tenantID  string
		userID    string
		sessionID string
		seed      string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the banking agents from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := buildApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if seed != "" {
				if _, err := seedDir(ctx, app.Chat, seed); err != nil {
					return err
				}
			}
			return chatLoop(ctx, app, tenantID, userID, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "Contoso", "tenant id")
	cmd.Flags().StringVar(&userID, "user", "Mark", "user id")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	cmd.Flags().StringVar(&seed, "seed", "", "load banking documents from this directory first")
	return cmd
}

func chatLoop(ctx context.Context, app *App, tenantID, userID, sessionID string, in io.Reader, out io.Writer) error {
	if sessionID == "" {
		s, err := app.Chat.CreateNewChatSession(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		sessionID = s.ID
	}
	fmt.Fprintf(out, "session %s (type exit to quit)\n", sessionID)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		prompt := strings.TrimSpace(sc.Text())
		switch prompt {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		for _, msg := range app.Chat.GetChatCompletion(ctx, tenantID, userID, sessionID, prompt) {
			if msg.SenderRole == core.SenderRoleUser {
				continue
			}
			fmt.Fprintf(out, "[%s] %s\n", msg.Sender, msg.Text)
		}
	}
}
