package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/xaenox/finley/internal/models"
	"github.com/xaenox/finley/internal/observability"
)

var (
	chatUser   string
	chatDevice string
	chatEvents bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to Finley from the terminal",
	Long: `Reads one message per line from stdin and prints Finley's reply.

Commands:
  /clear  start a fresh conversation
  /sync   pull in conversations from the user's other devices
  /quit   exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "local", "User ID")
	chatCmd.Flags().StringVarP(&chatDevice, "device", "d", "", "Device ID (default: router.device_id)")
	chatCmd.Flags().BoolVar(&chatEvents, "events", false, "Print observability events to stderr")
}

// writerSink prints events one per line.
type writerSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *writerSink) Record(eventType string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, "event:", observability.String(eventType, payload))
}

func runChat(cmd *cobra.Command, args []string) error {
	var sink observability.Sink
	if chatEvents {
		sink = &writerSink{w: cmd.ErrOrStderr()}
	}

	a, err := newApp(cfg, sink, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	session, err := a.router.LoadOrCreateSession(ctx, chatUser, chatDevice)
	if err != nil {
		return err
	}
	profile, err := a.router.LoadProfile(ctx, chatUser)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Finley: Hi! Ask me anything about money. Type /quit to leave.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
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
			if session, err = a.router.ClearSession(ctx, session); err != nil {
				return err
			}
			fmt.Fprintln(out, "Finley: Fresh start! What would you like to learn?")
			continue
		case "/sync":
			result, err := a.router.SyncDevices(ctx, chatUser, chatDevice)
			if err != nil {
				return err
			}
			if result.Skipped {
				fmt.Fprintln(out, "Finley: Already up to date.")
				continue
			}
			session = result.Session
			if result.Profile != nil {
				profile = *result.Profile
			}
			fmt.Fprintf(out, "Finley: Synced %d device(s), %d messages.\n", result.DeviceCount, len(session.Messages))
			continue
		}

		result, err := a.router.ProcessTurn(ctx, session, line, profile)
		if err != nil {
			fmt.Fprintf(out, "Finley: Something went wrong (%v). Please try again.\n", err)
			continue
		}
		session = result.Session
		printReply(out, result.AssistantMessage)
	}
	return scanner.Err()
}

func printReply(w io.Writer, msg models.Message) {
	fmt.Fprintf(w, "Finley: %s\n", msg.Content)
}
