// Package queue hands analysis jobs to the external inference worker over
// NATS JetStream. The subject and the stream share the configured queue name.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/logging"
	"github.com/dmitrijs2005/cellscope/internal/server/metrics"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	gobreaker "github.com/sony/gobreaker/v2"
)

// AnalysisJobMessage is the payload the worker consumes.
type AnalysisJobMessage struct {
	JobID        int64  `json:"job_id"`
	ImageID      int64  `json:"image_id"`
	S3Key        string `json:"s3_key"`
	ModelVersion string `json:"model_version"`
	CreatedAt    string `json:"created_at"`
}

// JetStream is the part of jetstream.JetStream the publisher uses.
type JetStream interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// BreakerConfig tunes the circuit breaker guarding publishes.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	Timeout:          30 * time.Second,
	MaxRequests:      1,
}

type JetStreamPublisher struct {
	js      JetStream
	subject string
	cb      *gobreaker.CircuitBreaker[*jetstream.PubAck]
	logger  logging.Logger
}

func NewJetStreamPublisher(js JetStream, subject string, bc BreakerConfig, logger logging.Logger) *JetStreamPublisher {
	p := &JetStreamPublisher{
		js:      js,
		subject: subject,
		logger:  logger.With("module", "queue"),
	}

	p.cb = gobreaker.NewCircuitBreaker[*jetstream.PubAck](gobreaker.Settings{
		Name:        "nats-" + subject,
		MaxRequests: bc.MaxRequests,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn(context.Background(), "circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return p
}

// EnsureStream creates the work-queue stream for the subject, or updates it
// to the expected settings.
func (p *JetStreamPublisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       p.subject,
		Subjects:   []string{p.subject},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
		MaxAge:     7 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", p.subject, err)
	}
	return nil
}

// PublishAnalysisJob publishes msg and waits for the stream ack. The job id is
// the message id, so a retried publish is deduplicated by the server. Any
// failure, an open breaker included, matches common.ErrorQueue.
func (p *JetStreamPublisher) PublishAnalysisJob(ctx context.Context, msg AnalysisJobMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		metrics.QueuePublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", common.ErrorQueue, err)
	}

	_, err = p.cb.Execute(func() (*jetstream.PubAck, error) {
		return p.js.Publish(ctx, p.subject, payload, jetstream.WithMsgID("job-"+strconv.FormatInt(msg.JobID, 10)))
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		metrics.QueuePublishTotal.WithLabelValues(outcome).Inc()
		return fmt.Errorf("%w: %v", common.ErrorQueue, err)
	}

	metrics.QueuePublishTotal.WithLabelValues("ok").Inc()
	p.logger.Debug(ctx, "published analysis job", "job_id", msg.JobID, "subject", p.subject)
	return nil
}

// BreakerState reports the breaker state ("closed", "open", "half-open").
func (p *JetStreamPublisher) BreakerState() string {
	return p.cb.State().String()
}

// Connect dials NATS, makes sure the stream exists and returns a publisher
// plus a close function that drains the connection.
func Connect(ctx context.Context, url, subject string, logger logging.Logger) (*JetStreamPublisher, func(), error) {
	nc, err := nats.Connect(url,
		nats.Name("cellscope-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	p := NewJetStreamPublisher(js, subject, DefaultBreakerConfig, logger)
	if err := p.EnsureStream(ctx); err != nil {
		nc.Close()
		return nil, nil, err
	}

	return p, func() { _ = nc.Drain() }, nil
}
