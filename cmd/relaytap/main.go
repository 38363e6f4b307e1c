package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/crewdesk/relay/client"
	"github.com/crewdesk/relay/protocol"
)

func main() {
	urlFlag := flag.String("url", "ws://localhost:8080/ws", "server websocket URL")
	tokenFlag := flag.String("token", "", "access token (falls back to RELAY_TOKEN)")
	jsonFlag := flag.Bool("json", false, "output events in JSON format")
	verboseFlag := flag.Bool("v", false, "log connection activity to stderr")
	flag.Parse()

	_ = godotenv.Load()

	token := *tokenFlag
	if token == "" {
		token = os.Getenv("RELAY_TOKEN")
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "error: no token (use --token or RELAY_TOKEN)")
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *verboseFlag {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}

	events := make(chan string, 64)
	terminal := make(chan error, 1)

	c := client.New(client.Options{
		URL:      *urlFlag,
		Token:    token,
		Handlers: printHandlers(events, *jsonFlag),
		OnTerminal: func(err error) {
			terminal <- err
		},
		Logger: logger,
	})

	if err := c.Connect(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer c.Disconnect()

	if err := waitConnected(c, terminal, 15*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "tail":
		cmdTail(c, events, terminal, args[1:])
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: relaytap send <conversationId> <text>")
			os.Exit(1)
		}
		cmdSend(c, events, args[1], args[2])
	case "open":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: relaytap open <peerId>")
			os.Exit(1)
		}
		cmdEmit(events, func() error { return c.OpenConversation(args[1]) })
	case "read":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: relaytap read <messageId> <conversationId>")
			os.Exit(1)
		}
		cmdEmit(events, func() error { return c.MarkRead(args[1], args[2]) })
	case "react":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: relaytap react <messageId> <emoji> [add|remove]")
			os.Exit(1)
		}
		action := "add"
		if len(args) >= 4 {
			action = args[3]
		}
		cmdEmit(events, func() error { return c.React(args[1], args[2], action) })
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: relaytap [--url <ws-url>] [--token <token>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  tail [conversationId...]          Join rooms and print events until interrupted")
	fmt.Fprintln(os.Stderr, "  send <conversationId> <text>      Send a text message")
	fmt.Fprintln(os.Stderr, "  open <peerId>                     Open (or create) a direct conversation")
	fmt.Fprintln(os.Stderr, "  read <messageId> <conversationId> Mark a message as read")
	fmt.Fprintln(os.Stderr, "  react <messageId> <emoji> [add|remove]")
}

// waitConnected blocks until the client reaches CONNECTED or gives up.
func waitConnected(c *client.Client, terminal <-chan error, timeout time.Duration) error {
	deadline := time.After(timeout)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-terminal:
			return err
		case <-deadline:
			return fmt.Errorf("timed out connecting (state %s)", c.State())
		case <-tick.C:
			if c.State() == client.StateConnected {
				return nil
			}
		}
	}
}

func cmdTail(c *client.Client, events <-chan string, terminal <-chan error, conversationIDs []string) {
	for _, id := range conversationIDs {
		if err := c.JoinConversation(id); err != nil {
			fmt.Fprintf(os.Stderr, "error: join %s: %v\n", id, err)
			os.Exit(1)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case line := <-events:
			fmt.Println(line)
		case err := <-terminal:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		case <-sig:
			return
		}
	}
}

func cmdSend(c *client.Client, events <-chan string, conversationID, text string) {
	queued, err := c.SendMessage(protocol.MessageSend{
		ConversationID: conversationID,
		Content:        text,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if queued > 0 {
		fmt.Fprintf(os.Stderr, "warning: queue full, dropped %d older message(s)\n", queued)
	}
	drainBriefly(events)
}

func cmdEmit(events <-chan string, emit func() error) {
	if err := emit(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	drainBriefly(events)
}

// drainBriefly prints any server responses that arrive in the settle
// window before a one-shot command exits.
func drainBriefly(events <-chan string) {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-events:
			fmt.Println(line)
		case <-deadline:
			return
		}
	}
}

// printHandlers formats every server event as a line on the events channel.
func printHandlers(events chan<- string, jsonOut bool) client.Handlers {
	emit := func(kind protocol.Kind, payload any) {
		if jsonOut {
			frame, err := protocol.Encode(kind, payload)
			if err != nil {
				return
			}
			events <- string(frame)
			return
		}
		data, _ := json.Marshal(payload)
		events <- fmt.Sprintf("%-22s %s", kind, data)
	}
	return client.Handlers{
		MessageNew:         func(p protocol.MessageNew) { emit(protocol.KindMessageNew, p) },
		MessageRead:        func(p protocol.ReadNotice) { emit(protocol.KindMessageRead, p) },
		MessageReaction:    func(p protocol.ReactionNotice) { emit(protocol.KindMessageReaction, p) },
		MessageDeleted:     func(p protocol.DeletedNotice) { emit(protocol.KindMessageDeleted, p) },
		TypingStart:        func(p protocol.Typing) { emit(protocol.KindTypingStart, p) },
		TypingStop:         func(p protocol.Typing) { emit(protocol.KindTypingStop, p) },
		UserOnline:         func(p protocol.Presence) { emit(protocol.KindUserOnline, p) },
		UserOffline:        func(p protocol.Presence) { emit(protocol.KindUserOffline, p) },
		ConversationJoined: func(p protocol.ConversationJoined) { emit(protocol.KindConversationJoined, p) },
		UploadProgress:     func(p protocol.UploadProgress) { emit(protocol.KindUploadProgress, p) },
		UploadComplete:     func(p protocol.UploadComplete) { emit(protocol.KindUploadComplete, p) },
		UploadError:        func(p protocol.UploadError) { emit(protocol.KindUploadError, p) },
		Error:              func(p protocol.ErrorEvent) { emit(protocol.KindError, p) },
	}
}
