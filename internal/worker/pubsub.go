package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/metrics"
	"github.com/hrtlevels/hrtlevels/internal/resilience"
)

// ErrUnknownJob is returned for messages with an unrecognised job type.
var ErrUnknownJob = errors.New("unknown job type")

// errMalformed marks messages that can never be processed.
var errMalformed = errors.New("malformed job message")

// JobMessage is the payload of a job message.
type JobMessage struct {
	JobType string `json:"job_type"`
	UserID  string `json:"user_id,omitempty"`
}

// Dispatcher runs jobs described by job messages.
type Dispatcher struct {
	job     *RefreshJob
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher backed by a refresh job.
func NewDispatcher(job *RefreshJob, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, metrics: m, logger: logger}
}

// Dispatch runs the job named by msg.
func (d *Dispatcher) Dispatch(ctx context.Context, msg JobMessage) error {
	var err error
	switch msg.JobType {
	case JobSnapshotRefresh:
		if msg.UserID == "" {
			err = fmt.Errorf("%w: user_id is required", errMalformed)
			break
		}
		err = d.job.RefreshUser(ctx, msg.UserID)
	case JobSnapshotRefreshAll:
		var result *RefreshResult
		result, err = d.job.RunAll(ctx)
		if errors.Is(err, ErrRefreshInProgress) {
			d.logger.Info().Msg("full refresh already running, skipping")
			d.metrics.ObserveJob(msg.JobType, metrics.OutcomeSkipped)
			return nil
		}
		if err == nil && result.Failed > result.Successful {
			err = fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.TotalUsers)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	d.metrics.ObserveJob(msg.JobType, outcome)
	return err
}

// Send decodes and dispatches an encoded job message in process.
func (d *Dispatcher) Send(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return d.Dispatch(ctx, msg)
}

// permanent reports whether redelivering the message cannot help.
func permanent(err error) bool {
	return errors.Is(err, errMalformed) || errors.Is(err, ErrUnknownJob)
}

// PubSubHandler consumes job messages from a Pub/Sub subscription.
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
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if h.handle(ctx, msg.ID, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// handle processes one message and reports whether it should be acked.
func (h *PubSubHandler) handle(ctx context.Context, id string, data []byte) bool {
	startTime := time.Now()
	logger := h.logger.With().Str("message_id", id).Logger()

	err := h.dispatcher.Send(ctx, data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(startTime)).Msg("job completed")
		return true
	case permanent(err):
		logger.Warn().Err(err).Msg("dropping job message")
		return true
	default:
		logger.Error().Err(err).Msg("job failed")
		return false
	}
}

// Sender delivers an encoded job message.
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

type pubsubSender struct {
	publisher *pubsub.Publisher
}

func (s pubsubSender) Send(ctx context.Context, data []byte) error {
	_, err := s.publisher.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx)
	return err
}

// PublisherConfig holds configuration for a job publisher.
type PublisherConfig struct {
	Sender   Sender
	Executor *resilience.Executor
	Logger   zerolog.Logger
}

// Publisher enqueues snapshot refresh jobs when dose histories change.
type Publisher struct {
	sender   Sender
	executor *resilience.Executor
	logger   zerolog.Logger
	close    func() error
}

// NewPublisher creates a publisher over an arbitrary sender.
func NewPublisher(cfg PublisherConfig) *Publisher {
	return &Publisher{
		sender:   cfg.Sender,
		executor: cfg.Executor,
		logger:   cfg.Logger,
		close:    func() error { return nil },
	}
}

// NewPubSubPublisher creates a publisher for a Pub/Sub topic. cfg.Sender is
// ignored.
func NewPubSubPublisher(ctx context.Context, projectID, topic string, cfg PublisherConfig) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	publisher := client.Publisher(topic)

	p := NewPublisher(cfg)
	p.sender = pubsubSender{publisher: publisher}
	p.close = func() error {
		publisher.Stop()
		return client.Close()
	}
	return p, nil
}

// DosesChanged enqueues a snapshot refresh for the user.
func (p *Publisher) DosesChanged(ctx context.Context, userID string) error {
	return p.Publish(ctx, JobMessage{JobType: JobSnapshotRefresh, UserID: userID})
}

// Publish encodes and sends a job message.
func (p *Publisher) Publish(ctx context.Context, msg JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding job message: %w", err)
	}

	send := func(ctx context.Context) error {
		return p.sender.Send(ctx, data)
	}
	if p.executor != nil {
		err = p.executor.Do(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		return fmt.Errorf("publishing %s job: %w", msg.JobType, err)
	}

	p.logger.Debug().
		Str("job_type", msg.JobType).
		Str("user_id", msg.UserID).
		Msg("job published")
	return nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.close()
}
