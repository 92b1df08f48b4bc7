package realtime

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultRelayChannel is the Redis pub/sub channel shared by all instances.
const DefaultRelayChannel = "rootcart:realtime"

type envelope struct {
	Room  string                 `json:"room"`
	Event string                 `json:"event"`
	Data  sonic.NoCopyRawMessage `json:"data"`
}

// Relay fans room messages out across server instances through Redis pub/sub.
// Publish sends to Redis; Run delivers what arrives on the channel to the local hub.
type Relay struct {
	hub        *Hub
	rc         *redis.Client
	channel    string
	logger     *log.Logger
	retryDelay time.Duration
}

func NewRelay(hub *Hub, rc *redis.Client, channel string, logger *log.Logger) *Relay {
	if hub == nil || rc == nil {
		panic("realtime.NewRelay: hub and redis client are required")
	}
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Relay{hub: hub, rc: rc, channel: channel, logger: logger, retryDelay: time.Second}
}

// Publish sends msg for room to every instance. If Redis rejects the publish
// the message is still delivered to this instance's members.
func (r *Relay) Publish(ctx context.Context, room string, msg Message) error {
	payload, err := sonic.Marshal(envelope{Room: room, Event: msg.Event, Data: msg.Data})
	if err == nil {
		err = r.rc.Publish(ctx, r.channel, payload).Err()
		if err == nil {
			return nil
		}
	}
	r.logger.WithError(err).WithFields(log.Fields{"room": room, "event": msg.Event}).
		Warn("realtime relay publish failed, delivering locally")
	return r.hub.Publish(ctx, room, msg)
}

// SendTo delivers to a connection on this instance.
func (r *Relay) SendTo(connID string, msg Message) error {
	return r.hub.SendTo(connID, msg)
}

// Run subscribes to the relay channel until ctx is cancelled, reconnecting
// whenever the subscription drops.
func (r *Relay) Run(ctx context.Context) {
	for {
		sub := r.rc.Subscribe(ctx, r.channel)
		r.consume(ctx, sub.Channel())
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("realtime relay channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.retryDelay):
		}
	}
}

func (r *Relay) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := sonic.UnmarshalString(m.Payload, &env); err != nil {
				r.logger.WithError(err).Error("unable to parse relayed message")
				continue
			}
			msg := Message{Event: env.Event, Data: append([]byte(nil), env.Data...)}
			if err := r.hub.Publish(ctx, env.Room, msg); err != nil {
				r.logger.WithError(err).WithField("room", env.Room).Warn("relayed message not delivered to every member")
			}
		}
	}
}
