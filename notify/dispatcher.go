package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/tournament-orchestrator/models"
)

const (
	DefaultQueueSize = 1024
	publishTimeout   = 5 * time.Second
)

// Publisher delivers a payload to a named channel of the realtime transport.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// UserChannel maps a user id to its notification channel.
func UserChannel(userID string) string {
	return "user:" + userID
}

// Dispatcher delivers events produced by committed state transitions. It never
// blocks the caller and never returns delivery errors: they are logged per
// recipient.
type Dispatcher struct {
	publisher Publisher
	queue     chan []models.Event
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func NewDispatcher(publisher Publisher, queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		publisher: publisher,
		queue:     make(chan []models.Event, queueSize),
		done:      make(chan struct{}),
		logger:    logger.With(slog.String("component", "notify_dispatcher")),
	}
}

// Start runs the delivery worker until Stop is called.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case batch := <-d.queue:
				d.Deliver(context.Background(), batch)
			case <-d.done:
				d.drain()
				return
			}
		}
	}()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case batch := <-d.queue:
			d.Deliver(context.Background(), batch)
		default:
			return
		}
	}
}

// Stop delivers what is already queued and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}

// Enqueue schedules events for asynchronous delivery. When the queue is full
// or the dispatcher is stopped the batch is dropped.
func (d *Dispatcher) Enqueue(events []models.Event) {
	if len(events) == 0 {
		return
	}
	select {
	case <-d.done:
		d.logger.Warn("dispatcher stopped, notifications dropped", slog.Int("count", len(events)))
		return
	default:
	}
	select {
	case d.queue <- events:
	default:
		d.logger.Warn("notification queue full, notifications dropped", slog.Int("count", len(events)))
	}
}

// Deliver publishes each event to its recipient's channel. A failure for one
// recipient does not stop delivery to the others.
func (d *Dispatcher) Deliver(ctx context.Context, events []models.Event) {
	for _, ev := range events {
		d.deliverOne(ctx, ev)
	}
}

func (d *Dispatcher) deliverOne(ctx context.Context, ev models.Event) {
	if ev.RecipientID == "" {
		return
	}
	payload, err := json.Marshal(ev.Notification)
	if err != nil {
		d.logger.Error("failed to marshal notification",
			slog.String("kind", string(ev.Notification.Kind)),
			slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	channel := UserChannel(ev.RecipientID)
	if err := d.publisher.Publish(ctx, channel, payload); err != nil {
		d.logger.Warn("notification delivery failed",
			slog.String("channel", channel),
			slog.String("kind", string(ev.Notification.Kind)),
			slog.String("tournament_id", ev.Notification.TournamentID.String()),
			slog.Any("error", err))
	}
}
