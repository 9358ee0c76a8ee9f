package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/me/fetchq/internal/config"
	"github.com/me/fetchq/internal/logging"
	"github.com/me/fetchq/internal/origin"
	"github.com/me/fetchq/pkg/model"
	"github.com/me/fetchq/pkg/queue"
)

func newBenchCmd() *cobra.Command {
	var (
		originURL   string
		requests    int
		concurrency int
		low         int
		medium      int
		high        int
		highest     int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive a mixed-priority workload and report queue activity",
		Long:  "Bench floods the queue with a mixed-priority workload against a demo origin (embedded unless --origin is given) and reports dispatch, retry, and preemption counts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = concurrency
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			// Explicit per-priority counts win; otherwise --requests is
			// split 4/3/2/1 across low, medium, high, highest.
			if low+medium+high+highest == 0 {
				low = requests * 4 / 10
				medium = requests * 3 / 10
				high = requests * 2 / 10
				highest = requests - low - medium - high
			}
			total := low + medium + high + highest
			if total == 0 {
				return fmt.Errorf("empty workload: set --requests or a priority mix")
			}

			base := originURL
			if base == "" {
				ln, err := net.Listen("tcp", "127.0.0.1:0")
				if err != nil {
					return fmt.Errorf("start embedded origin: %w", err)
				}
				srv := &http.Server{Handler: origin.New(config.DefaultOriginConfig(), logging.NewNop()).Handler()}
				go func() {
					if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
						logger.Error("embedded origin failed", "error", err)
					}
				}()
				defer srv.Close()
				base = "http://" + ln.Addr().String()
				logger.Info("embedded origin listening", "addr", base)
			}

			stats := newStatsHook()
			r, err := newRunner("bench", cfg, logger, stats)
			if err != nil {
				return err
			}
			defer r.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			start := time.Now()
			futures := submitWorkload(r.queue, base, low, medium, high, highest)

			var failed int
			for i, f := range futures {
				if _, err := f.Wait(ctx); err != nil {
					if ctx.Err() != nil {
						return fmt.Errorf("interrupted with %d of %d requests outstanding", len(futures)-i, len(futures))
					}
					failed++
				}
			}
			elapsed := time.Since(start).Round(time.Millisecond)

			s := stats.snapshot()
			fmt.Printf("Bench: %d requests against %s\n", total, base)
			fmt.Printf("  Mix:            %d low, %d medium, %d high, %d highest\n", low, medium, high, highest)
			fmt.Printf("  Concurrency:    %d\n", cfg.Concurrency)
			fmt.Printf("  Wall time:      %s\n", elapsed)
			fmt.Printf("  Succeeded:      %d\n", total-failed)
			fmt.Printf("  Failed:         %d\n", failed)
			fmt.Printf("  Dispatches:     %d\n", s.dispatches)
			fmt.Printf("  Retries:        %d\n", s.retries)
			fmt.Printf("  Preemptions:    %d\n", s.preempts)
			fmt.Printf("  Peak in-flight: %d\n", s.peak)
			fmt.Printf("  Received:       %s\n", humanize.Bytes(uint64(s.bytes)))
			if r.runID != "" {
				fmt.Printf("  Journal run:    %s\n", r.runID)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d requests failed", failed, total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&originURL, "origin", "", "Origin base URL (empty starts an embedded origin)")
	cmd.Flags().IntVar(&requests, "requests", 30, "Total requests when no explicit mix is given")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Dispatch window size (overrides config)")
	cmd.Flags().IntVar(&low, "low", 0, "LOW priority requests in the mix")
	cmd.Flags().IntVar(&medium, "medium", 0, "MEDIUM priority requests in the mix")
	cmd.Flags().IntVar(&high, "high", 0, "HIGH priority requests in the mix")
	cmd.Flags().IntVar(&highest, "highest", 0, "HIGHEST priority requests in the mix")

	return cmd
}

// submitWorkload enqueues the mix lowest priority first, so the later high
// priority submissions have a standing queue to jump over. Low requests hit
// the slow endpoint to hold dispatch slots, and every fifth one hits the
// flaky endpoint to exercise the retry path.
func submitWorkload(q *queue.Queue, base string, low, medium, high, highest int) []*queue.Future {
	runKey := uuid.New().String()[:8]
	futures := make([]*queue.Future, 0, low+medium+high+highest)

	for i := 0; i < low; i++ {
		url := fmt.Sprintf("%s/slow?ms=40", base)
		if i%5 == 4 {
			url = fmt.Sprintf("%s/flaky?fails=1&key=%s-%d", base, runKey, i)
		}
		futures = append(futures, q.Do(model.MethodGet, url, queue.Options{
			Priority:     model.PriorityLow,
			ResponseType: model.ResponseTypeText,
		}))
	}
	for i := 0; i < medium; i++ {
		futures = append(futures, q.Do(model.MethodGet, base+"/bytes?n=4096", queue.Options{
			Priority:     model.PriorityMedium,
			ResponseType: model.ResponseTypeBuffer,
		}))
	}
	for i := 0; i < high; i++ {
		futures = append(futures, q.Do(model.MethodGet, base+"/json", queue.Options{
			Priority:     model.PriorityHigh,
			ResponseType: model.ResponseTypeJSON,
		}))
	}
	for i := 0; i < highest; i++ {
		futures = append(futures, q.Do(model.MethodGet, base+"/text", queue.Options{
			Priority:     model.PriorityHighest,
			ResponseType: model.ResponseTypeText,
		}))
	}
	return futures
}

// benchStats is a snapshot of queue activity counters.
type benchStats struct {
	dispatches int
	retries    int
	preempts   int
	bytes      int64
	peak       int
}

// statsHook tallies lifecycle events for the bench summary.
type statsHook struct {
	mu       sync.Mutex
	counts   benchStats
	inFlight map[string]struct{}
}

func newStatsHook() *statsHook {
	return &statsHook{inFlight: make(map[string]struct{})}
}

func (s *statsHook) OnEnqueue(queue.RequestInfo) {}

func (s *statsHook) OnDispatch(info queue.RequestInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.dispatches++
	s.inFlight[info.ID] = struct{}{}
	if len(s.inFlight) > s.counts.peak {
		s.counts.peak = len(s.inFlight)
	}
}

func (s *statsHook) OnRetry(info queue.RequestInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.retries++
	delete(s.inFlight, info.ID)
}

func (s *statsHook) OnPreempt(info queue.RequestInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.preempts++
	delete(s.inFlight, info.ID)
}

func (s *statsHook) OnSettle(info queue.RequestInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, info.ID)
	s.counts.bytes += int64(info.Bytes)
}

func (s *statsHook) snapshot() benchStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}
