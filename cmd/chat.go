package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trial-chat/internal/chatclient"
	"github.com/sells-group/trial-chat/internal/conversation"
	"github.com/sells-group/trial-chat/internal/sse"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running trial-chat server from the terminal",
	Long: `Opens an interactive session against the /api/chat endpoint.

Commands:
  /clear   start a new conversation
  /quit    exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if server, _ := cmd.Flags().GetString("server"); server != "" {
			cfg.Client.ServerURL = server
		}
		if err := cfg.Validate("chat"); err != nil {
			return err
		}
		historyPath, _ := cmd.Flags().GetString("history")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), chatclient.New(cfg.Client.ServerURL), historyPath)
	},
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, client *chatclient.Client, historyPath string) error {
	conv := conversation.New()
	if historyPath != "" {
		if err := loadHistory(conv, historyPath); err != nil {
			return err
		}
		if conv.Len() > 0 {
			_, _ = fmt.Fprintf(out, "Resumed %d messages from %s\n", conv.Len(), historyPath)
		}
	}

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			conv.Clear()
			_, _ = fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		conv.AppendUser(line)
		if err := chatTurn(ctx, out, client, conv); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			_, _ = fmt.Fprintf(out, "error: %v\n", err)
		}

		if historyPath != "" {
			if err := saveHistory(conv, historyPath); err != nil {
				zap.L().Warn("chat: save history", zap.String("path", historyPath), zap.Error(err))
			}
		}
	}

	return scanner.Err()
}

// chatTurn sends the transcript and renders the reply as it streams.
func chatTurn(ctx context.Context, out io.Writer, client *chatclient.Client, conv *conversation.Conversation) error {
	sub, err := client.Send(ctx, conv.History())
	if err != nil {
		return err
	}
	conv.BeginAssistant()

	for ev := range sub.Events() {
		if err := conv.Apply(ev); err != nil {
			return err
		}
		switch ev.Kind {
		case sse.KindText:
			_, _ = fmt.Fprint(out, ev.Text)
		case sse.KindExtraction:
			if ev.Extraction != nil {
				_, _ = fmt.Fprintln(out)
				formatExtraction(out, *ev.Extraction)
			}
		case sse.KindTrials:
			_, _ = fmt.Fprintln(out)
			formatTrials(out, ev.Trials)
		}
	}
	_, _ = fmt.Fprintln(out)

	return sub.Err()
}

func loadHistory(conv *conversation.Conversation, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "open history")
	}
	defer f.Close() //nolint:errcheck
	return conv.Load(f)
}

func saveHistory(conv *conversation.Conversation, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create history")
	}
	if err := conv.Save(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func init() {
	chatCmd.Flags().String("server", "", "trial-chat server URL (default from config)")
	chatCmd.Flags().String("history", "", "JSON file to resume and save the transcript")
	rootCmd.AddCommand(chatCmd)
}
