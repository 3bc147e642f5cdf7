package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/receiptly/receiptly-go"
	"github.com/receiptly/receiptly-go/chat"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive chat with the assistant",
	Long: `Opens an interactive prompt connected to the chat socket.

Streamed assistant output is printed as it arrives. Commands:
  /sessions        list your sessions
  /open <id>       switch to a session and show its history
  /new             start a fresh conversation
  /quit            exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Resume an existing session")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	done := make(chan struct{})
	events := make(chan chat.Event, 64)
	errs := make(chan *chat.Error, 16)

	client, cleanup, err := newClient(cfg,
		receiptly.WithOnEvent(func(ev chat.Event) {
			select {
			case events <- ev:
			default:
			}
		}),
		receiptly.WithOnError(func(e *chat.Error) {
			select {
			case errs <- e:
			default:
			}
		}),
	)
	if err != nil {
		return err
	}
	defer cleanup()

	client.Connect()
	defer close(done)

	// Drain events onto the terminal.
	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-events:
				switch ev.Kind {
				case chat.EventResponseChunk:
					fmt.Print(ev.Text)
				case chat.EventResponseFinal:
					fmt.Println()
				case chat.EventSessionTitle:
					fmt.Printf("\n[session: %s]\n", ev.Title)
				}
			case e := <-errs:
				fmt.Fprintf(os.Stderr, "\n! %v\n", e)
				if e.Kind == chat.KindTerminal {
					fmt.Fprintln(os.Stderr, "connection lost; use /quit to exit")
				}
			}
		}
	}()

	ctx := cmd.Context()
	if chatSession != "" {
		if err := client.LoadSession(ctx, chatSession); err != nil {
			return err
		}
		printHistory(client.Snapshot())
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			quit, err := handleCommand(ctx, client, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "! %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		// An empty session id targets the active session, or starts a
		// fresh draft when nothing is open.
		if err := client.SendMessage(ctx, input, ""); err != nil {
			fmt.Fprintf(os.Stderr, "! %v\n", err)
		}
	}
}

func handleCommand(ctx context.Context, client *receiptly.Client, input string) (quit bool, err error) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		client.NewDraft()
		fmt.Println("(new conversation)")
		return false, nil
	case "/sessions":
		sessions, err := client.RefreshSessions(ctx)
		if err != nil {
			return false, err
		}
		for _, s := range sessions {
			fmt.Printf("  %s  %s\n", s.ID, s.Title)
		}
		return false, nil
	case "/open":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /open <session-id>")
		}
		if err := client.LoadSession(ctx, fields[1]); err != nil {
			return false, err
		}
		printHistory(client.Snapshot())
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func printHistory(state chat.State) {
	if state.Current != nil {
		fmt.Printf("[%s]\n", state.Current.Title)
	}
	for _, m := range state.Messages {
		prefix := "you"
		if m.Role == chat.RoleAssistant {
			prefix = "assistant"
		}
		fmt.Printf("%s: %s\n", prefix, m.Content)
	}
}
