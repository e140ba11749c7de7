package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/convstreams/config"
	"github.com/c360/convstreams/engine"
	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/metric"
	"github.com/c360/convstreams/model"
	"github.com/c360/convstreams/pipeline"
	"github.com/c360/convstreams/pkg/worker"
	"github.com/c360/convstreams/store"
)

// CompletionSubject is the NATS subject for processed-conversation events.
const CompletionSubject = "convstreams.conversation.processed"

// Publisher publishes completion events. The NATS client satisfies it; a
// nil publisher disables events (embedded mode).
type Publisher interface {
	Publish(subject string, data []byte) error
}

// CompletionEvent announces a committed analysis.
type CompletionEvent struct {
	Conversation string    `json:"conversation"`
	Client       string    `json:"client,omitempty"`
	Date         time.Time `json:"date"`
	Tokens       int       `json:"tokens"`
	Templates    int       `json:"templates"`
}

// Task is one unit of analysis work. Expected is the conversation's
// lastModified observed by the triggering write; the final conditional
// store races against it.
type Task struct {
	ConversationID string
	Client         string
	CallbackURI    string
	Expected       time.Time
}

// Outcome classifies how a task ended.
type Outcome string

// Task outcomes
const (
	OutcomeCommitted      Outcome = "committed"
	OutcomeDiscardedStale Outcome = "discarded_stale"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeFailed         Outcome = "failed"
)

// Dispatcher coordinates asynchronous conversation processing: a worker
// pool runs the pipeline and engine over snapshots, commits results with
// optimistic concurrency and delivers callbacks.
type Dispatcher struct {
	store     store.Store
	pipeline  *pipeline.Pipeline
	engine    *engine.Engine
	cfg       *config.Config
	callback  *CallbackClient
	publisher Publisher
	logger    *slog.Logger

	pool     *worker.Pool[Task]
	poolOpts []worker.Option[Task]

	outcomes *prometheus.CounterVec
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher) error

// WithDispatchLogger sets the logger.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) error {
		if logger != nil {
			d.logger = logger
		}
		return nil
	}
}

// WithPublisher enables completion event publication.
func WithPublisher(p Publisher) DispatcherOption {
	return func(d *Dispatcher) error {
		d.publisher = p
		return nil
	}
}

// WithDispatchMetrics registers outcome counters and worker pool metrics.
func WithDispatchMetrics(registry metric.Registrar) DispatcherOption {
	return func(d *Dispatcher) error {
		d.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_tasks_total",
			Help: "Processed analysis tasks by outcome",
		}, []string{"outcome"})
		if err := registry.Register("dispatch", "dispatch_tasks_total", d.outcomes); err != nil {
			return err
		}
		d.poolOpts = append(d.poolOpts, worker.WithMetrics[Task](registry, "dispatch_pool"))
		return nil
	}
}

// NewDispatcher wires the dispatcher. The worker pool is sized from the
// processing configuration (default 2 workers).
func NewDispatcher(st store.Store, pl *pipeline.Pipeline, eng *engine.Engine, cfg *config.Config, callback *CallbackClient, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		store:    st,
		pipeline: pl,
		engine:   eng,
		cfg:      cfg,
		callback: callback,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	pool, err := worker.NewPool(
		cfg.Processing.Workers,
		cfg.Processing.QueueSize,
		d.process,
		d.poolOpts...,
	)
	if err != nil {
		return nil, err
	}
	d.pool = pool
	return d, nil
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.pool.Start(ctx)
}

// Stop drains queued tasks and waits up to timeout.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	return d.pool.Stop(timeout)
}

// Submit enqueues a task without blocking.
func (d *Dispatcher) Submit(task Task) error {
	if err := d.pool.Submit(task); err != nil {
		d.logger.Error("task submission failed", "conversation", task.ConversationID, "error", err)
		return err
	}
	d.logger.Debug("task submitted",
		"conversation", task.ConversationID,
		"expected", task.Expected,
		"callback", task.CallbackURI != "")
	return nil
}

// Stats exposes worker pool statistics for health reporting.
func (d *Dispatcher) Stats() worker.Stats {
	return d.pool.Stats()
}

// process runs one task end to end. Errors never propagate out of the
// pool beyond accounting; every failure path is logged here.
func (d *Dispatcher) process(ctx context.Context, task Task) error {
	analysis, outcome, err := d.analyze(ctx, task)
	d.count(outcome)

	switch outcome {
	case OutcomeDiscardedStale:
		// expected: a newer write superseded this snapshot
		d.logger.Debug("analysis discarded, snapshot superseded",
			"conversation", task.ConversationID,
			"expected", task.Expected)
		return nil

	case OutcomeFailed:
		d.logger.Error("analysis failed",
			"conversation", task.ConversationID,
			"error", err)
		if task.CallbackURI != "" {
			d.deliver(ctx, task, ErrorPayload(http.StatusInternalServerError, err.Error()))
		}
		return err
	}

	if task.CallbackURI == "" {
		// synchronous callers poll the store; nothing to deliver
		return nil
	}
	d.deliver(ctx, task, OKPayload(analysis))
	return nil
}

// ProcessSync runs a task inline and returns the committed analysis. Used
// by the synchronous request path; a lost store race surfaces as
// ErrConcurrentModification so the caller can re-read the fresher state.
func (d *Dispatcher) ProcessSync(ctx context.Context, task Task) (*model.Analysis, error) {
	analysis, outcome, err := d.analyze(ctx, task)
	d.count(outcome)
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// analyze executes pipeline, engine and conditional store for one task.
func (d *Dispatcher) analyze(ctx context.Context, task Task) (*model.Analysis, Outcome, error) {
	conv, err := d.store.Get(ctx, task.ConversationID)
	if err != nil {
		return nil, OutcomeFailed, err
	}

	buf := pipeline.NewBuffer(conv, task.Client)
	if err := d.pipeline.Process(ctx, buf); err != nil {
		return nil, OutcomeFailed, err
	}

	d.engine.BuildTemplates(ctx, buf.Conversation, buf.Analysis, buf.Offset)
	d.engine.RebuildQueries(ctx, buf.Conversation, buf.Analysis, d.cfg.ClientConfig(task.Client))

	stored, err := d.store.StoreIfUnmodifiedSince(ctx, buf.Conversation, task.Expected)
	if err != nil {
		if errors.IsConcurrentModification(err) {
			return nil, OutcomeDiscardedStale, err
		}
		return nil, OutcomeFailed, err
	}

	// the analysis is keyed by the committed lastModified
	buf.Analysis.Date = stored.LastModified
	if err := d.store.PutAnalysis(ctx, buf.Analysis); err != nil {
		return nil, OutcomeFailed, err
	}

	d.publishCompletion(task, buf.Analysis)

	d.logger.Info("analysis committed",
		"conversation", task.ConversationID,
		"date", buf.Analysis.Date,
		"tokens", len(buf.Analysis.Tokens),
		"templates", len(buf.Analysis.Templates))
	return buf.Analysis, OutcomeCommitted, nil
}

func (d *Dispatcher) publishCompletion(task Task, analysis *model.Analysis) {
	if d.publisher == nil {
		return
	}
	event := CompletionEvent{
		Conversation: analysis.Conversation,
		Client:       task.Client,
		Date:         analysis.Date,
		Tokens:       len(analysis.Tokens),
		Templates:    len(analysis.Templates),
	}
	data, err := json.Marshal(event)
	if err != nil {
		d.logger.Warn("completion event marshal failed", "error", err)
		return
	}
	if err := d.publisher.Publish(CompletionSubject, data); err != nil {
		d.logger.Warn("completion event publish failed",
			"conversation", analysis.Conversation, "error", err)
	}
}

// deliver sends exactly one callback for the task. Delivery failure is
// terminal: logged at error level, counted, never escalated.
func (d *Dispatcher) deliver(ctx context.Context, task Task, payload *CallbackPayload) {
	if err := d.callback.Deliver(ctx, task.CallbackURI, payload); err != nil {
		d.count(OutcomeDeliveryFailed)
		d.logger.Error("callback delivery failed",
			"conversation", task.ConversationID,
			"uri", task.CallbackURI,
			"error", err)
	}
}

func (d *Dispatcher) count(outcome Outcome) {
	if d.outcomes != nil {
		d.outcomes.WithLabelValues(string(outcome)).Inc()
	}
}
