package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/choiseongjun/chat-with-stream/internal/domain"
	"github.com/choiseongjun/chat-with-stream/pkg/log"
	"github.com/choiseongjun/chat-with-stream/pkg/pubsub"
)

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
)

// Fanout delivers a payload to the local sessions of a room.
type Fanout interface {
	Fanout(roomID string, payload []byte) int
}

// Options tune the resubscribe loop.
type Options struct {
	Channel     string
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Broadcaster publishes envelopes to the shared channel and runs this node's
// single subscription, fanning received payloads out locally.
type Broadcaster struct {
	ps      pubsub.PubSub
	fanout  Fanout
	channel string
	base    time.Duration
	max     time.Duration
}

func New(ps pubsub.PubSub, fanout Fanout, opts Options) *Broadcaster {
	b := &Broadcaster{
		ps:      ps,
		fanout:  fanout,
		channel: opts.Channel,
		base:    opts.BackoffBase,
		max:     opts.BackoffMax,
	}
	if b.channel == "" {
		b.channel = pubsub.ChannelChat
	}
	if b.base <= 0 {
		b.base = defaultBackoffBase
	}
	if b.max < b.base {
		b.max = defaultBackoffMax
	}
	return b
}

// Publish sends msg to every node. Failures are logged, never returned.
func (b *Broadcaster) Publish(ctx context.Context, msg *domain.WireMessage) {
	l := log.Ctx(ctx)

	payload, err := msg.Encode()
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to encode broadcast message")
		return
	}

	err = b.ps.Publish(ctx, &pubsub.Message{
		Channel: b.channel,
		Key:     msg.RoomID,
		Payload: payload,
	})
	if err != nil {
		l.Error().
			Err(err).
			Str(log.FieldChannel, b.channel).
			Str(log.FieldRoomID, msg.RoomID).
			Msg("failed to publish message")
	}
}

// Run holds the node's subscription until ctx is cancelled. A failed or
// ended subscription is replaced after a capped exponential backoff; a new
// subscription does not replay what was missed.
func (b *Broadcaster) Run(ctx context.Context) error {
	l := log.Ctx(ctx).With().Str(log.FieldChannel, b.channel).Logger()
	backoff := b.base
	attempt := 0

	for {
		stream, err := b.ps.Subscribe(ctx, b.channel)
		if err == nil {
			l.Info().Msg("subscribed to broadcast channel")
			backoff = b.base
			attempt = 0
			b.consume(ctx, stream)
		}

		if ctx.Err() != nil {
			l.Info().Msg("broadcast subscriber stopped")
			return nil
		}

		attempt++
		l.Warn().
			Err(err).
			Int(log.FieldAttempt, attempt).
			Dur(log.FieldBackoff, backoff).
			Msg("broadcast subscription lost, resubscribing")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > b.max {
			backoff = b.max
		}
	}
}

type envelope struct {
	RoomID string `json:"roomId"`
}

func (b *Broadcaster) consume(ctx context.Context, stream <-chan *pubsub.Message) {
	l := log.Ctx(ctx)
	for msg := range stream {
		var env envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil || env.RoomID == "" {
			l.Warn().Err(err).Msg("dropping undecodable broadcast payload")
			continue
		}

		n := b.fanout.Fanout(env.RoomID, msg.Payload)
		l.Debug().Str(log.FieldRoomID, env.RoomID).Int(log.FieldCount, n).Msg("fanned out message")
	}
}
