package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	DefaultSubjectPrefix = "tournaments.notify"
	channelHeader        = "Channel"
)

// ConnectNATS opens a connection that keeps reconnecting for the lifetime of
// the process.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("tournament-orchestrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error("NATS disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS error", slog.Any("error", err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// SubjectFor maps a channel name to a NATS subject under prefix. Characters
// that have a meaning in subjects are replaced, so the original channel name
// travels in a message header.
func SubjectFor(prefix, channel string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ':', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, channel)
	return prefix + "." + token
}

// NATSPublisher fans notifications out over NATS so that every instance can
// reach the websocket clients connected to it.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	msg := &nats.Msg{
		Subject: SubjectFor(p.prefix, channel),
		Data:    payload,
		Header:  nats.Header{channelHeader: []string{channel}},
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to NATS subject %s: %w", msg.Subject, err)
	}
	return nil
}

// NATSRelay forwards notifications received from NATS to a local publisher,
// normally the websocket hub.
type NATSRelay struct {
	nc     *nats.Conn
	prefix string
	local  Publisher
	sub    *nats.Subscription
	logger *slog.Logger
}

func NewNATSRelay(nc *nats.Conn, prefix string, local Publisher, logger *slog.Logger) *NATSRelay {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSRelay{
		nc:     nc,
		prefix: prefix,
		local:  local,
		logger: logger.With(slog.String("component", "nats_relay")),
	}
}

func (r *NATSRelay) Start() error {
	sub, err := r.nc.Subscribe(r.prefix+".>", r.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s.>: %w", r.prefix, err)
	}
	r.sub = sub
	r.logger.Info("relaying notifications", slog.String("subject", r.prefix+".>"))
	return nil
}

func (r *NATSRelay) handle(msg *nats.Msg) {
	channel := msg.Header.Get(channelHeader)
	if channel == "" {
		r.logger.Warn("message without channel header", slog.String("subject", msg.Subject))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.local.Publish(ctx, channel, msg.Data); err != nil {
		r.logger.Warn("local delivery failed", slog.String("channel", channel), slog.Any("error", err))
	}
}

func (r *NATSRelay) Close() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}
