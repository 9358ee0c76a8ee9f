package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/fetchq/internal/config"
	"github.com/me/fetchq/pkg/model"
	"github.com/me/fetchq/pkg/queue"
)

func newFetchCmd() *cobra.Command {
	var (
		manifestPath string
		method       string
		priority     string
		responseType string
		headerPairs  []string
		auth         string
		body         string
		outDir       string
		withCreds    bool
		concurrency  int
		retries      int
		timeout      time.Duration
		journalPath  string
	)

	cmd := &cobra.Command{
		Use:   "fetch [URL...]",
		Short: "Fetch URLs through the priority queue",
		Long:  "Fetch submits one request per URL (or per manifest entry) and waits for all of them to settle.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = concurrency
			}
			if cmd.Flags().Changed("retries") {
				cfg.Retries = retries
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Timeout = config.Duration(timeout)
			}
			if cmd.Flags().Changed("journal") {
				cfg.JournalPath = journalPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			specs, err := gatherSpecs(args, manifestPath, method, priority, responseType, headerPairs, auth, body, withCreds)
			if err != nil {
				return err
			}
			for i := range specs {
				name := specs[i].Name
				specs[i].Options.OnProgress = func(loaded, total int64) {
					logger.Debug("progress", "request", name, "loaded", loaded, "total", total)
				}
			}

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("create output dir: %w", err)
				}
			}

			r, err := newRunner("fetch", cfg, logger)
			if err != nil {
				return err
			}
			defer r.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			type pending struct {
				spec   config.RequestSpec
				future *queue.Future
				at     time.Time
			}
			start := time.Now()
			submitted := make([]pending, 0, len(specs))
			for _, spec := range specs {
				submitted = append(submitted, pending{
					spec:   spec,
					future: r.queue.Do(spec.Method, spec.URL, spec.Options),
					at:     time.Now(),
				})
			}
			logger.Info("requests submitted", "count", len(submitted), "concurrency", cfg.Concurrency)

			var failed int
			var totalBytes int64
			for i, p := range submitted {
				resp, err := p.future.Wait(ctx)
				if err != nil && ctx.Err() != nil {
					return fmt.Errorf("interrupted with %d of %d requests outstanding", len(submitted)-i, len(submitted))
				}
				elapsed := time.Since(p.at).Round(time.Millisecond)
				if err != nil {
					failed++
					fmt.Printf("FAIL %-6s %s: %v\n", p.spec.Method, p.spec.URL, err)
					continue
				}
				totalBytes += int64(len(resp.Body))
				fmt.Printf("ok   %-6s %s %d %s (%s)\n",
					p.spec.Method, p.spec.URL, resp.StatusCode,
					humanize.Bytes(uint64(len(resp.Body))), elapsed)
				if outDir != "" {
					name := outputName(p.spec.Name, i, resp.ContentType())
					if werr := os.WriteFile(filepath.Join(outDir, name), resp.Body, 0o644); werr != nil {
						return fmt.Errorf("write %s: %w", name, werr)
					}
					logger.Debug("response written", "file", name, "bytes", len(resp.Body))
				}
			}

			fmt.Printf("\n%d requests: %d ok, %d failed, %s in %s\n",
				len(submitted), len(submitted)-failed, failed,
				humanize.Bytes(uint64(totalBytes)), time.Since(start).Round(time.Millisecond))
			if r.runID != "" {
				fmt.Printf("journaled as %s in %s\n", r.runID, cfg.JournalPath)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d requests failed", failed, len(submitted))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "YAML manifest of requests to submit instead of URL arguments")
	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVar(&priority, "priority", "medium", "Queue priority (low, medium, high, highest)")
	cmd.Flags().StringVar(&responseType, "type", "text", "Response decoding (none, text, json, buffer, blob, image)")
	cmd.Flags().StringArrayVarP(&headerPairs, "header", "H", nil, "Request header as key=value (repeatable)")
	cmd.Flags().StringVar(&auth, "auth", "", "Authorization token (bare tokens are sent as Bearer)")
	cmd.Flags().StringVar(&body, "body", "", "Request body, or @file to read one")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to write response bodies into")
	cmd.Flags().BoolVar(&withCreds, "with-credentials", false, "Send stored cookies with every attempt")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Dispatch window size (overrides config)")
	cmd.Flags().IntVar(&retries, "retries", 0, "Default attempt budget (overrides config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-attempt timeout (overrides config)")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite journal path (overrides config)")

	return cmd
}

// gatherSpecs turns the command line into request specs. URL arguments and
// --manifest are mutually exclusive.
func gatherSpecs(urls []string, manifestPath, method, priority, responseType string, headerPairs []string, auth, body string, withCreds bool) ([]config.RequestSpec, error) {
	if manifestPath != "" {
		if len(urls) > 0 {
			return nil, fmt.Errorf("cannot combine --manifest with URL arguments")
		}
		return config.LoadManifest(manifestPath)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("nothing to fetch: pass URLs or --manifest")
	}

	m, err := model.ParseMethod(method)
	if err != nil {
		return nil, err
	}
	prio, err := model.ParsePriority(priority)
	if err != nil {
		return nil, err
	}
	rt, err := model.ParseResponseType(responseType)
	if err != nil {
		return nil, err
	}
	hdr, err := parseHeaders(headerPairs)
	if err != nil {
		return nil, err
	}
	payload, err := resolveBody(body)
	if err != nil {
		return nil, err
	}

	specs := make([]config.RequestSpec, 0, len(urls))
	for _, u := range urls {
		if _, err := url.ParseRequestURI(u); err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", u, err)
		}
		specs = append(specs, config.RequestSpec{
			Name:   u,
			Method: m,
			URL:    u,
			Options: queue.Options{
				Priority:        prio,
				ResponseType:    rt,
				Headers:         hdr,
				Auth:            auth,
				Body:            payload,
				WithCredentials: withCreds,
			},
		})
	}
	return specs, nil
}

// parseHeaders turns repeated key=value flags into an http.Header.
func parseHeaders(pairs []string) (http.Header, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	h := make(http.Header, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed header %q, want key=value", p)
		}
		h.Set(k, strings.TrimSpace(v))
	}
	return h, nil
}

// resolveBody returns the payload for a --body value. An @ prefix reads the
// payload from a file.
func resolveBody(v string) (any, error) {
	if v == "" {
		return nil, nil
	}
	if after, ok := strings.CutPrefix(v, "@"); ok {
		data, err := os.ReadFile(after)
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		return data, nil
	}
	return v, nil
}

// outputName derives a filesystem-safe file name for a saved response. The
// sequence number keeps names unique when the same URL is fetched twice.
func outputName(name string, seq int, contentType string) string {
	if u, err := url.Parse(name); err == nil && u.Scheme != "" {
		name = strings.Trim(u.Path, "/")
		if name == "" {
			name = u.Hostname()
		}
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	safe := b.String()
	if safe == "" {
		safe = "response"
	}
	return fmt.Sprintf("%03d-%s%s", seq+1, safe, extensionFor(contentType))
}

// extensionFor picks a file extension from a response content type.
func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "json"):
		return ".json"
	case strings.HasPrefix(contentType, "text/html"):
		return ".html"
	case strings.HasPrefix(contentType, "text/"):
		return ".txt"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	default:
		return ".bin"
	}
}
