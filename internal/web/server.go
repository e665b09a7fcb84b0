// Package web serves a read-only dashboard for one pipeline: its build order,
// the generated Makefile, the dependency graph and recorded compile history.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucasnoah/pipeconfig/internal/history"
	"github.com/lucasnoah/pipeconfig/internal/metrics"
)

//go:embed templates
var templateFS embed.FS

var funcMap = template.FuncMap{
	"outcomeClass": func(outcome string) string {
		return "badge badge-" + outcome
	},
	"passClass": func(passed bool) string {
		if passed {
			return "result-pass"
		}
		return "result-fail"
	},
	"short": func(s string) string {
		if len(s) > 12 {
			return s[:12]
		}
		return s
	},
	"join":     strings.Join,
	"relTime":  relTime,
	"markdown": renderMarkdown,
}

// Server is the read-only web UI server.
type Server struct {
	configPath string
	strict     bool
	db         *history.DB
	metrics    *metrics.Metrics
	logger     *slog.Logger

	dashboardTmpl *template.Template
}

// Options configures a Server.
type Options struct {
	ConfigPath string
	Strict     bool
	// DB is optional; without it the history panels are empty.
	DB      *history.DB
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewServer creates a Server with parsed templates.
func NewServer(opts Options) *Server {
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		configPath:    opts.ConfigPath,
		strict:        opts.Strict,
		db:            opts.DB,
		metrics:       m,
		logger:        logger,
		dashboardTmpl: mustParseTmpl("base.html", "dashboard.html"),
	}
}

func mustParseTmpl(names ...string) *template.Template {
	patterns := make([]string, len(names))
	for i, n := range names {
		patterns[i] = "templates/" + n
	}
	return template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, patterns...))
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /makefile", s.handleMakefile)
	mux.HandleFunc("GET /graph.dot", s.handleDOT)
	mux.HandleFunc("GET /api/compiles", s.handleCompiles)
	mux.HandleFunc("GET /api/builds", s.handleBuilds)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving dashboard", "url", fmt.Sprintf("http://localhost%s", displayAddr(addr)), "config", s.configPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return addr
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return addr
}

func relTime(ts string) string {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	var t time.Time
	for _, f := range formats {
		if parsed, err := time.Parse(f, ts); err == nil {
			t = parsed
			break
		}
	}
	if t.IsZero() {
		return ts
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
