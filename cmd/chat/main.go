// Package main is a minimal terminal chat client. It stands in for the
// view layer: it runs the synchronizers against a live gateway, prints
// their state on every update, and turns typed lines into sends and
// request decisions.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/teamup-labs/chat-platform/internal/chat"
	"github.com/teamup-labs/chat-platform/internal/feed"
	"github.com/teamup-labs/chat-platform/internal/gateway"
	"github.com/teamup-labs/chat-platform/internal/model"
	"github.com/teamup-labs/chat-platform/pkg/logger"
)

func main() {
	apiURL := envOr("API_URL", "http://localhost:8080")
	natsURL := envOr("NATS_URL", "nats://localhost:4222")
	token := os.Getenv("API_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "API_TOKEN is required")
		os.Exit(1)
	}

	log, err := logger.New(envOr("LOG_LEVEL", "error"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var feedClient *feed.Client
	feedClient, err = feed.Connect(feed.Config{URL: natsURL, Token: os.Getenv("NATS_TOKEN")}, log)
	if err != nil {
		fmt.Println("change feed unavailable, updates require reopening")
		feedClient = nil
	} else {
		defer feedClient.Close()
	}

	gw := gateway.New(apiURL, token, feedClient, log)

	me, err := gw.Me(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch profile: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("signed in as %s\n", me.FullName)

	list := chat.NewConversationList(gw, me, log)
	if err := list.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load chats: %v\n", err)
		os.Exit(1)
	}
	if err := list.Start(ctx); err != nil {
		fmt.Println("realtime updates unavailable:", err)
	}
	defer list.Close()

	printSummaries(list)

	var thread *chat.Thread
	defer func() {
		if thread != nil {
			thread.Close()
		}
	}()

	go func() {
		for range list.Updates() {
			printSummaries(list)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	printHelp()
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.SplitN(line, " ", 2)
		cmd := fields[0]
		arg := ""
		if len(fields) == 2 {
			arg = fields[1]
		}

		switch cmd {
		case "quit", "exit":
			return
		case "chats":
			printSummaries(list)
		case "open":
			idx, err := strconv.Atoi(arg)
			summaries := list.Summaries()
			if err != nil || idx < 1 || idx > len(summaries) {
				fmt.Println("usage: open <number>")
				continue
			}
			if thread != nil {
				thread.Close()
			}
			thread, err = openThread(ctx, gw, list, summaries[idx-1].ConversationID, log)
			if err != nil {
				fmt.Println("could not open conversation:", err)
				thread = nil
			}
		case "new":
			parts := strings.SplitN(arg, " ", 2)
			if parts[0] == "" {
				fmt.Println("usage: new <user-id> [first message]")
				continue
			}
			conv, err := gw.CreateConversation(ctx, parts[0])
			if err != nil {
				fmt.Println("could not start conversation:", err)
				continue
			}
			fmt.Println("request sent, waiting for the other side to accept")
			if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
				if err := gw.InsertMessage(ctx, model.Message{
					ConversationID: conv.ID,
					Content:        parts[1],
				}); err != nil {
					fmt.Println("first message failed:", err)
				}
			}
			if feedClient == nil {
				if err := list.Load(ctx); err != nil {
					fmt.Println("could not refresh chats:", err)
				}
				printSummaries(list)
			}
		case "team":
			if arg == "" {
				fmt.Println("usage: team <id>")
				continue
			}
			if thread != nil {
				thread.Close()
			}
			t, err := chat.OpenTeam(ctx, gw, me, arg, log)
			if err != nil {
				fmt.Println("could not open team:", err)
				thread = nil
				continue
			}
			thread = t
			startThread(ctx, thread)
		case "send":
			if thread == nil {
				fmt.Println("no open thread")
				continue
			}
			if !thread.Gate().CanSend() {
				fmt.Println("sending is not available:", thread.Gate())
				continue
			}
			if err := thread.Send(ctx, arg); err != nil {
				fmt.Println("send failed:", err)
			}
		case "accept":
			if thread == nil {
				fmt.Println("no open thread")
				continue
			}
			if err := thread.Accept(ctx); err != nil {
				fmt.Println("accept failed:", err)
			}
		case "decline":
			if thread == nil {
				fmt.Println("no open thread")
				continue
			}
			if err := thread.Decline(ctx); err != nil {
				fmt.Println("decline failed:", err)
			}
		default:
			printHelp()
		}
	}
}

func openThread(ctx context.Context, gw *gateway.Client, list *chat.ConversationList, conversationID string, log *logger.Logger) (*chat.Thread, error) {
	me, err := gw.Me(ctx)
	if err != nil {
		return nil, err
	}
	t, err := chat.OpenConversation(ctx, gw, me, conversationID, log)
	if err != nil {
		return nil, err
	}
	startThread(ctx, t)
	return t, nil
}

func startThread(ctx context.Context, t *chat.Thread) {
	if err := t.Start(ctx); err != nil {
		fmt.Println("realtime updates unavailable for this thread:", err)
	}
	printThread(t)
	go func() {
		for range t.Updates() {
			printThread(t)
		}
	}()
}

func printSummaries(list *chat.ConversationList) {
	summaries := list.Summaries()
	if len(summaries) == 0 {
		fmt.Println("no conversations yet")
		return
	}
	fmt.Println("--- chats ---")
	for i, s := range summaries {
		preview := "no messages yet"
		if s.LastMessage != nil {
			preview = s.LastMessage.Content
		}
		fmt.Printf("%2d. %s: %s\n", i+1, s.OtherParticipant.FullName, preview)
	}
}

func printThread(t *chat.Thread) {
	if team, ok := t.Team(); ok {
		fmt.Printf("--- #%s ---\n", team.Name)
	} else {
		fmt.Printf("--- %s (%s) ---\n", t.OtherParticipant().FullName, t.Gate())
	}
	for _, m := range t.Messages() {
		name := m.SenderID
		if m.Sender != nil {
			name = m.Sender.FullName
		}
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), name, m.Content)
	}
}

func printHelp() {
	fmt.Println("commands: chats | new <user-id> [message] | open <number> | team <id> | send <text> | accept | decline | quit")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
