package cli

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/me/fetchq/internal/config"
	"github.com/me/fetchq/internal/journal"
	"github.com/me/fetchq/pkg/metrics"
	"github.com/me/fetchq/pkg/queue"
	"github.com/me/fetchq/pkg/transport"
)

// runner owns the plumbing shared by queue-driving commands: the HTTP
// transport, the queue, and the optional journal recorder and metrics
// exporter configured on it.
type runner struct {
	queue    *queue.Queue
	journal  *journal.Journal
	recorder *journal.Recorder
	runID    string
	metrics  *http.Server
	logger   *slog.Logger
}

// newRunner builds a queue wired per cfg. command names the invoking
// subcommand in the journal's run row.
func newRunner(command string, cfg config.ClientConfig, logger *slog.Logger, hooks ...queue.Hook) (*runner, error) {
	r := &runner{logger: logger}

	opts := []transport.ClientOption{
		transport.WithLogger(logger),
		transport.WithUserAgent(cfg.UserAgent),
	}
	if cfg.Timeout.Std() > 0 {
		opts = append(opts, transport.WithTimeout(cfg.Timeout.Std()))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, transport.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	client := transport.NewHTTPClient(opts...)

	var queueOpts []queue.Option
	for _, h := range hooks {
		queueOpts = append(queueOpts, queue.WithHook(h))
	}

	if cfg.JournalPath != "" {
		ctx := context.Background()
		jnl, err := journal.Open(cfg.JournalPath, logger)
		if err != nil {
			return nil, err
		}
		if err := jnl.Migrate(ctx); err != nil {
			jnl.Close()
			return nil, err
		}
		r.journal = jnl
		r.runID = "run_" + uuid.New().String()[:8]
		run := &journal.Run{
			ID:          r.runID,
			Command:     command,
			Concurrency: cfg.Concurrency,
			Retries:     cfg.Retries,
			StartedAt:   time.Now().UTC(),
		}
		if err := jnl.BeginRun(ctx, run); err != nil {
			jnl.Close()
			return nil, err
		}
		r.recorder = journal.NewRecorder(jnl, r.runID)
		queueOpts = append(queueOpts, queue.WithHook(r.recorder))
	}

	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector(nil)
		queueOpts = append(queueOpts, queue.WithHook(collector))

		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		r.metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := r.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	q, err := queue.New(client, queue.Config{Concurrency: cfg.Concurrency, Retries: cfg.Retries}, logger, queueOpts...)
	if err != nil {
		if r.journal != nil {
			r.journal.Close()
		}
		return nil, err
	}
	r.queue = q
	return r, nil
}

// close tears the runner down. The queue goes first so every outstanding
// settlement reaches the recorder before the flush.
func (r *runner) close() {
	r.queue.Close()

	if r.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.recorder.Flush(ctx); err != nil {
			r.logger.Error("journal flush failed", "error", err)
		}
		if err := r.journal.FinishRun(ctx, r.runID, time.Now().UTC()); err != nil {
			r.logger.Error("journal finish failed", "error", err)
		}
		if err := r.journal.Close(); err != nil {
			r.logger.Error("journal close failed", "error", err)
		}
	}

	if r.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := r.metrics.Shutdown(ctx); err != nil {
			r.logger.Error("metrics shutdown failed", "error", err)
		}
	}
}
