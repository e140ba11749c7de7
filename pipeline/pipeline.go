package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/convstreams/errors"
	"github.com/c360/convstreams/metric"
	"github.com/c360/convstreams/model"
)

// Wildcard in the optional list admits every non-blacklisted stage.
const Wildcard = "*"

// blacklistPrefix marks an optional-list entry as excluded.
const blacklistPrefix = "!"

// Config selects which installed stages participate in analysis.
//
// Required stages must be present among the installed stages or Resolve
// fails. Optional entries name stages to include when installed; a "!"
// prefix excludes the stage instead, and "*" admits all remaining
// non-excluded stages.
type Config struct {
	Required []string `json:"required"`
	Optional []string `json:"optional"`
}

// Pipeline is a frozen, priority-ordered stage list. It is immutable after
// Resolve and safe for concurrent Process calls (each run works on its own
// Buffer).
type Pipeline struct {
	stages []Stage
	logger *slog.Logger

	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
}

// PipelineOption configures a Pipeline during Resolve
type PipelineOption func(*Pipeline) error

// WithLogger sets the logger used for stage failures.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// WithMetrics registers per-stage duration and failure metrics.
func WithMetrics(registry metric.Registrar) PipelineOption {
	return func(p *Pipeline) error {
		p.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Time spent per analysis stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"stage"})
		p.stageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_failures_total",
			Help: "Analysis stage errors (stage skipped, run continued)",
		}, []string{"stage"})

		for name, c := range map[string]prometheus.Collector{
			"pipeline_stage_duration_seconds": p.stageDuration,
			"pipeline_stage_failures_total":   p.stageFailures,
		} {
			if err := registry.Register("pipeline", name, c); err != nil {
				return err
			}
		}
		return nil
	}
}

// Resolve selects the active stages from the installed set. It runs once
// at startup; the result is frozen. Missing required stages are a fatal
// configuration error.
func Resolve(available []Stage, cfg Config, opts ...PipelineOption) (*Pipeline, error) {
	pending := make(map[string]bool, len(cfg.Required))
	for _, key := range cfg.Required {
		if key = strings.TrimSpace(key); key != "" {
			pending[key] = true
		}
	}

	optional := make(map[string]bool)
	blacklist := make(map[string]bool)
	wildcard := false
	for _, entry := range cfg.Optional {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
		case entry == Wildcard:
			wildcard = true
		case strings.HasPrefix(entry, blacklistPrefix):
			if key := entry[len(blacklistPrefix):]; key != "" {
				blacklist[key] = true
			}
		default:
			optional[entry] = true
		}
	}

	var selected []Stage
	for _, stage := range available {
		key := stage.Key()
		switch {
		case pending[key]:
			// required wins over a blacklist entry
			selected = append(selected, stage)
			delete(pending, key)
		case blacklist[key]:
		case wildcard || optional[key]:
			selected = append(selected, stage)
		}
	}

	if len(pending) > 0 {
		missing := make([]string, 0, len(pending))
		for key := range pending {
			missing = append(missing, key)
		}
		sort.Strings(missing)
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrMissingRequiredStage, strings.Join(missing, ", ")),
			"pipeline", "Resolve", "stage resolution")
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority() < selected[j].Priority()
	})

	p := &Pipeline{
		stages: selected,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Stages returns the keys of the active stages in execution order.
func (p *Pipeline) Stages() []string {
	keys := make([]string, len(p.stages))
	for i, s := range p.stages {
		keys[i] = s.Key()
	}
	return keys
}

// Process runs all stages over the buffer in frozen order. A stage error
// is logged and the stage skipped; the remaining stages still run. After
// the last stage the collected tokens are sorted into their canonical
// order and the conversation's analysis watermark advances.
func (p *Pipeline) Process(ctx context.Context, buf *Buffer) error {
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return errors.WrapTransient(err, "Pipeline", "Process", "context cancelled")
		}

		start := time.Now()
		err := stage.Process(ctx, buf)
		elapsed := time.Since(start)

		if p.stageDuration != nil {
			p.stageDuration.WithLabelValues(stage.Key()).Observe(elapsed.Seconds())
		}

		if err != nil {
			if p.stageFailures != nil {
				p.stageFailures.WithLabelValues(stage.Key()).Inc()
			}
			p.logger.Warn("analysis stage failed, skipping",
				"stage", stage.Key(),
				"conversation", buf.Conversation.ID,
				"error", err)
			continue
		}

		p.logger.Debug("analysis stage complete",
			"stage", stage.Key(),
			"conversation", buf.Conversation.ID,
			"duration", elapsed,
			"tokens", len(buf.Analysis.Tokens))
	}

	model.SortTokens(buf.Analysis.Tokens)

	if n := len(buf.Conversation.Messages); n > 0 {
		buf.Conversation.Meta.LastMessageAnalyzed = n - 1
	}
	return nil
}
