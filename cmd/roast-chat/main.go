package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/labstack/gommon/log"
	"uk.co.dudmesh.roastlive/internal/boot"
	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/internal/service/chat"
	"uk.co.dudmesh.roastlive/internal/session"
	"uk.co.dudmesh.roastlive/pkg/feed"
)

func printMessages(messages []model.Message) {
	fmt.Print("\033[H\033[2J")
	for _, m := range messages {
		marker := " "
		if strings.HasPrefix(m.ID, "~") {
			marker = "…"
		} else if m.IsPinned {
			marker = "*"
		}
		fmt.Printf("%s %s %s: %s\n", marker, m.CreatedAt.Local().Format("15:04:05"), m.Username, m.Content)
	}
	fmt.Print("> ")
}

func printNotifications(notifications []model.Notification, unread int) {
	fmt.Print("\033[H\033[2J")
	fmt.Printf("%d unread\n", unread)
	for _, n := range notifications {
		marker := " "
		if !n.IsRead {
			marker = "•"
		}
		fmt.Printf("%s %s [%s] %s\n", marker, n.CreatedAt.Local().Format("Jan 2 15:04"), n.Type, n.Title)
	}
	fmt.Print("> ")
}

// redraw coalesces change callbacks so the screen is drawn on the main loop.
type redraw chan struct{}

func (r redraw) notify() {
	select {
	case r <- struct{}{}:
	default:
	}
}

// openChat opens a stream chat, honouring the host's chat settings, or a
// conversation.
func openChat(ctx context.Context, s *session.Session, stream string, conversation string, changed redraw) (*chat.Chat, error) {
	opts := chat.Options{
		OnChange: changed.notify,
		OnError: func(err error) {
			log.Warnf("chat: %v", err)
		},
	}
	if conversation != "" {
		return s.Chat.OpenConversation(ctx, conversation, opts)
	}

	host, err := s.Settings.Get(ctx, model.UserID(stream))
	if err != nil {
		log.Warnf("reading chat settings of %s: %v", stream, err)
	}
	// a stream id is its host's user id
	opts.IsHost = model.UserID(stream) == s.UserID
	opts = chat.HostOptions(opts, host, s.UserID)
	return s.Chat.OpenStream(ctx, stream, opts)
}

func runChat(ctx context.Context, c *chat.Chat, lines <-chan string, changed redraw) {
	printMessages(c.Messages())
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			printMessages(c.Messages())
		case line, ok := <-lines:
			if !ok {
				return
			}
			if id, found := strings.CutPrefix(line, "/delete "); found {
				if err := c.Delete(ctx, strings.TrimSpace(id)); err != nil {
					log.Errorf("delete: %v", err)
				}
				continue
			}
			if id, found := strings.CutPrefix(line, "/pin "); found {
				if err := c.Pin(ctx, strings.TrimSpace(id), true); err != nil {
					log.Errorf("pin: %v", err)
				}
				continue
			}
			err := c.Send(ctx, line)
			var sendErr *feed.SendError
			switch {
			case err == nil:
			case feed.IsValidation(err):
				fmt.Printf("not sent: %v\n> ", err)
			case errors.As(err, &sendErr):
				fmt.Printf("failed to send %q: %v\n> ", sendErr.Content, sendErr.Err)
			default:
				log.Errorf("send: %v", err)
			}
		}
	}
}

func runInbox(ctx context.Context, s *session.Session, lines <-chan string) error {
	changed := make(redraw, 1)
	inbox, err := s.Notifications.Open(ctx, changed.notify)
	if err != nil {
		return err
	}
	defer inbox.Close()

	if remote, err := inbox.RemoteUnreadCount(ctx); err == nil && remote > inbox.UnreadCount() {
		log.Infof("%d unread notifications are older than the loaded history", remote-inbox.UnreadCount())
	}
	printNotifications(inbox.Notifications(), inbox.UnreadCount())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			printNotifications(inbox.Notifications(), inbox.UnreadCount())
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch {
			case line == "/read-all":
				err = inbox.MarkAllRead(ctx)
			case strings.HasPrefix(line, "/read "):
				err = inbox.MarkRead(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/read ")))
			default:
				continue
			}
			if err != nil {
				log.Errorf("marking read: %v", err)
			}
		}
	}
}

func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func main() {
	stream := flag.String("stream", "", "stream id to chat on")
	conversation := flag.String("conversation", "", "conversation id to chat on")
	inbox := flag.Bool("notifications", false, "show the notification inbox")
	flag.Parse()

	config, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}
	if config.IsDevelopment() {
		log.SetLevel(log.DEBUG)
	} else {
		log.SetLevel(log.WARN)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := session.New(ctx, config)
	if err != nil {
		log.Fatalf("session: %+v", err)
	}
	defer s.Close()

	lines := readLines(ctx)
	if *inbox {
		if err := runInbox(ctx, s, lines); err != nil {
			log.Fatalf("notifications: %+v", err)
		}
		return
	}

	if *stream == "" && *conversation == "" {
		log.Fatal("one of -stream, -conversation or -notifications is required")
	}
	changed := make(redraw, 1)
	c, err := openChat(ctx, s, *stream, *conversation, changed)
	if err != nil {
		log.Fatalf("opening chat: %+v", err)
	}
	defer c.Close()
	runChat(ctx, c, lines, changed)
}
