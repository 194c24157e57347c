package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"
	"uk.co.dudmesh.roastlive/internal/model"
	"uk.co.dudmesh.roastlive/pkg/api"
	"uk.co.dudmesh.roastlive/pkg/feed"
	"uk.co.dudmesh.roastlive/pkg/moderation"
)

const HistorySize = 100

type API interface {
	feed.WriteService
	List(ctx context.Context, table string, q api.Query, out interface{}) error
}

type Moderator interface {
	ModerateMessage(ctx context.Context, message string) moderation.Result
}

type Options struct {
	// SlowMode is the minimum gap between two accepted sends. Zero disables it.
	SlowMode time.Duration
	// ChatDisabled rejects sends from viewers when the host turned live chat off.
	ChatDisabled bool
	// IsHost and IsModerator exempt the sender from slow mode and ChatDisabled.
	IsHost      bool
	IsModerator bool
	OnChange    func()
	OnError     func(error)
}

func (o Options) privileged() bool {
	return o.IsHost || o.IsModerator
}

// HostOptions applies a stream host's chat settings to opts for viewer. A nil
// host leaves chat open without slow mode.
func HostOptions(opts Options, host *model.Settings, viewer model.UserID) Options {
	if host == nil {
		return opts
	}
	opts.SlowMode = SlowMode(host)
	opts.ChatDisabled = !host.EnableLiveChat
	opts.IsHost = opts.IsHost || host.UserID == viewer
	return opts
}

// SlowMode returns the send cooldown a stream host's settings ask for.
func SlowMode(settings *model.Settings) time.Duration {
	if settings == nil || !settings.EnableSlowMode {
		return 0
	}
	return time.Duration(settings.SlowModeSeconds) * time.Second
}

type Service struct {
	userID      model.UserID
	username    string
	subscriber  feed.Subscriber
	api         API
	moderator   Moderator
	logger      feed.Logger
	SendTimeout time.Duration
}

func New(userID model.UserID, username string, subscriber feed.Subscriber, api API, moderator Moderator) *Service {
	return &Service{
		userID:      userID,
		username:    username,
		subscriber:  subscriber,
		api:         api,
		moderator:   moderator,
		logger:      log.New("chat"),
		SendTimeout: feed.DefaultSendTimeout,
	}
}

// Chat is the open feed of one livestream chat or one conversation.
type Chat struct {
	*feed.Feed[model.Message]
	key      model.ChannelKey
	table    string
	api      API
	logger   feed.Logger
	disabled bool
	limiter  *rate.Limiter
}

func (s *Service) OpenStream(ctx context.Context, streamID string, opts Options) (*Chat, error) {
	return s.open(ctx, model.StreamChannel(streamID), opts)
}

func (s *Service) OpenConversation(ctx context.Context, conversationID string, opts Options) (*Chat, error) {
	// DMs have no slow mode and no host
	opts.SlowMode = 0
	opts.ChatDisabled = false
	return s.open(ctx, model.ConversationChannel(conversationID), opts)
}

func (s *Service) open(ctx context.Context, key model.ChannelKey, opts Options) (*Chat, error) {
	filter, err := key.Filter()
	if err != nil {
		return nil, err
	}
	table := string(key.Table())

	c := &Chat{key: key, table: table, api: s.api, logger: s.logger}
	if !opts.privileged() {
		c.disabled = opts.ChatDisabled
	}
	if opts.SlowMode > 0 && !opts.privileged() {
		c.limiter = rate.NewLimiter(rate.Every(opts.SlowMode), 1)
	}

	template := model.Message{AuthorID: s.userID, Username: s.username, Type: model.MessageTypeMessage}
	if key.Table() == model.TableStreamMessages {
		template.StreamID = filter.MatchValue
	} else {
		template.ConversationID = filter.MatchValue
	}

	c.Feed = feed.New[model.Message](s.subscriber, s.api, feed.Options[model.Message]{
		Channel:     string(key),
		Filter:      filter,
		Table:       table,
		Decode:      Decode,
		MaxLength:   template.MaxLength(),
		SendTimeout: s.SendTimeout,
		Logger:      s.logger,
		OnChange:    opts.OnChange,
		OnError:     opts.OnError,
		Snapshot: func(ctx context.Context) ([]model.Message, error) {
			messages := []model.Message{}
			q := api.Query{Column: filter.MatchColumn, Value: filter.MatchValue, Limit: HistorySize}
			if err := s.api.List(ctx, table, q, &messages); err != nil {
				return nil, fmt.Errorf("loading %s history: %w", key, err)
			}
			return messages, nil
		},
		Compose: func(d feed.Draft) (model.Message, interface{}, error) {
			record := template
			record.Content = d.Content
			record.ClientToken = d.Token

			provisional := record
			provisional.ID = d.Key
			provisional.CreatedAt = d.CreatedAt
			return provisional, &record, nil
		},
		Guard: func(ctx context.Context, content string) error {
			if c.disabled {
				return &feed.ValidationError{Field: "content", Reason: "live chat is turned off by the host"}
			}
			if err := c.cooldown(time.Now()); err != nil {
				return err
			}
			return s.moderate(ctx, content)
		},
		OnSent: c.spend,
	})

	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func Decode(record json.RawMessage) (model.Message, error) {
	var m model.Message
	if err := json.Unmarshal(record, &m); err != nil {
		return model.Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return m, nil
}

// cooldown reports whether slow mode allows a send now without using the
// token up. The token is spent once the backend accepts the send.
func (c *Chat) cooldown(now time.Time) error {
	if c.limiter == nil {
		return nil
	}
	reservation := c.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	if delay == 0 {
		return nil
	}
	return &feed.ValidationError{
		Field:  "content",
		Reason: fmt.Sprintf("slow mode is on, wait %ds", int(math.Ceil(delay.Seconds()))),
	}
}

func (c *Chat) spend() {
	if c.limiter != nil {
		c.limiter.ReserveN(time.Now(), 1)
	}
}

func (s *Service) moderate(ctx context.Context, content string) error {
	if s.moderator == nil {
		return nil
	}
	result := s.moderator.ModerateMessage(ctx, content)
	if moderation.ShouldBlock(result) {
		return &feed.ValidationError{Field: "content", Reason: "message violates community guidelines"}
	}
	if result.Flagged {
		s.logger.Debugf("sending flagged message (%s, %.2f)", result.Action, result.Score)
	}
	return nil
}

func (c *Chat) Key() model.ChannelKey {
	return c.key
}

func (c *Chat) Messages() []model.Message {
	return c.ListOrdered()
}

// Pinned returns the pinned message. A stream has at most one; if another
// client raced a second one in, the newest wins.
func (c *Chat) Pinned() (model.Message, bool) {
	messages := c.ListOrdered()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsPinned {
			return messages[i], true
		}
	}
	return model.Message{}, false
}

// Pin pins or unpins a stream message. Pinning clears any other pinned
// message first. Local state is restored if a write fails.
func (c *Chat) Pin(ctx context.Context, id string, pinned bool) error {
	if c.key.Table() != model.TableStreamMessages {
		return &feed.ValidationError{Field: "is_pinned", Reason: "only stream messages can be pinned"}
	}
	if !pinned {
		return c.Update(ctx, id, map[string]interface{}{"is_pinned": false}, func(m model.Message) model.Message {
			m.IsPinned = false
			return m
		})
	}
	if _, ok := c.Get(id); !ok {
		return fmt.Errorf("pinning %s: message not found", id)
	}

	var others []string
	for _, m := range c.ListOrdered() {
		if m.IsPinned && m.ID != id {
			others = append(others, m.ID)
		}
	}
	match := func(m model.Message) bool {
		return m.ID == id || m.IsPinned
	}
	fn := func(m model.Message) model.Message {
		m.IsPinned = m.ID == id
		return m
	}
	return c.UpdateWhere(ctx, match, fn, func(ctx context.Context) error {
		var cleared []string
		for _, other := range others {
			if err := c.api.Update(ctx, c.table, other, map[string]interface{}{"is_pinned": false}); err != nil {
				c.repin(ctx, cleared)
				return fmt.Errorf("unpinning %s: %w", other, err)
			}
			cleared = append(cleared, other)
		}
		if err := c.api.Update(ctx, c.table, id, map[string]interface{}{"is_pinned": true}); err != nil {
			c.repin(ctx, cleared)
			return fmt.Errorf("pinning %s: %w", id, err)
		}
		return nil
	})
}

// repin puts back pins cleared by a Pin that failed half way.
func (c *Chat) repin(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := c.api.Update(ctx, c.table, id, map[string]interface{}{"is_pinned": true}); err != nil {
			c.logger.Warnf("restoring pin on %s: %v", id, err)
		}
	}
}

// Delete soft deletes a message. It disappears at once and comes back if
// the write fails.
func (c *Chat) Delete(ctx context.Context, id string) error {
	return c.Update(ctx, id, map[string]interface{}{"is_deleted": true}, func(m model.Message) model.Message {
		m.IsDeleted = true
		return m
	})
}
