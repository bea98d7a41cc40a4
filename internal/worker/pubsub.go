package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the worker subscription.
const (
	JobGeocodeSweep = "geocode.sweep"
	JobGeocodeTick  = "geocode.tick"
)

// JobMessage is the payload of a worker job message.
type JobMessage struct {
	JobType string `json:"jobType"`
}

// Dispatcher runs jobs decoded from message payloads. At most one sweep runs
// at a time; a sweep requested while another is running is skipped.
type Dispatcher struct {
	backfill Backfiller
	metrics  *Metrics
	logger   zerolog.Logger
	sweeping atomic.Bool
}

// NewDispatcher creates a Dispatcher. A nil metrics gets a fresh one.
func NewDispatcher(backfill Backfiller, metrics *Metrics, logger zerolog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Dispatcher{
		backfill: backfill,
		metrics:  metrics,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Handle runs the job in data and reports whether the message should be
// acknowledged. Malformed payloads and failed jobs are not acknowledged so
// they are redelivered; unknown job types are acknowledged and dropped.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) bool {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		d.logger.Error().Err(err).Msg("failed to parse message")
		return false
	}

	var err error
	switch msg.JobType {
	case JobGeocodeSweep:
		err = d.sweep(ctx)
	case JobGeocodeTick:
		var processed bool
		processed, err = d.backfill.Tick(ctx)
		d.metrics.recordTick(processed, err)
	default:
		d.logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return true
	}

	if err != nil {
		d.logger.Error().Err(err).Str("job_type", msg.JobType).Msg("job failed")
		return false
	}
	return true
}

// StartSweep runs a sweep on its own goroutine with ctx and reports whether
// it started. It returns false when a sweep is already running.
func (d *Dispatcher) StartSweep(ctx context.Context) bool {
	if !d.sweeping.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer d.sweeping.Store(false)
		if err := d.runSweep(ctx); err != nil {
			d.logger.Error().Err(err).Msg("background sweep failed")
		}
	}()
	return true
}

func (d *Dispatcher) sweep(ctx context.Context) error {
	if !d.sweeping.CompareAndSwap(false, true) {
		d.logger.Info().Msg("sweep already running, skipping")
		return nil
	}
	defer d.sweeping.Store(false)
	return d.runSweep(ctx)
}

func (d *Dispatcher) runSweep(ctx context.Context) error {
	stats, err := d.backfill.Sweep(ctx)
	d.metrics.recordSweep(stats, err)
	if err != nil {
		return fmt.Errorf("geocode sweep: %w", err)
	}

	d.logger.Info().
		Int("scanned", stats.Scanned).
		Int("succeeded", stats.Succeeded).
		Int("failed", stats.Failed).
		Int("flushes", stats.Flushes).
		Msg("geocode sweep completed")
	return nil
}

// PubSubHandler feeds Pub/Sub messages to a Dispatcher.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// A full sweep can run for minutes at the default pacing.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 30 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	if !h.dispatcher.Handle(logger.WithContext(ctx), msg.Data) {
		msg.Nack()
		return
	}

	logger.Debug().Dur("duration", time.Since(startTime)).Msg("message handled")
	msg.Ack()
}
