package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/advices/remote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxExecBody = 1 << 20

var errOutsideRoot = errors.New("path is outside of the agent root")

// Agent serves file transfer and execution for one root directory.
type Agent struct {
	root     string
	env      []string
	logger   *slog.Logger
	registry *prometheus.Registry

	executions *prometheus.CounterVec
	transfers  *prometheus.CounterVec
	duration   prometheus.Histogram
}

// Option configures the Agent.
type Option func(*Agent)

// WithLogger configures a logger for the Agent.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithRegistry exposes reg on /metrics and registers the agent's collectors
// with it. Defaults to a new registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *Agent) {
		a.registry = reg
	}
}

// WithEnv appends variables to the environment of executed programs.
func WithEnv(env ...string) Option {
	return func(a *Agent) {
		a.env = append(a.env, env...)
	}
}

// New creates an agent for root, which is created if missing.
func New(root string, opts ...Option) (*Agent, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create agent root: %w", err)
	}
	a := &Agent{root: abs, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}

	a.executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bandsaw",
		Subsystem: "agent",
		Name:      "executions_total",
		Help:      "Programs executed by the agent, labelled by exit code.",
	}, []string{"exit_code"})
	a.transfers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bandsaw",
		Subsystem: "agent",
		Name:      "file_transfers_total",
		Help:      "Files uploaded to or downloaded from the agent.",
	}, []string{"direction"})
	a.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bandsaw",
		Subsystem: "agent",
		Name:      "execution_duration_seconds",
		Help:      "Wall time of executed programs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
	})
	for _, c := range []prometheus.Collector{a.executions, a.transfers, a.duration} {
		if err := a.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register agent metrics: %w", err)
		}
	}
	return a, nil
}

// Root is the absolute directory the agent serves.
func (a *Agent) Root() string { return a.root }

// NewHandler creates the agent for root and returns its HTTP handler.
func NewHandler(root string, opts ...Option) (http.Handler, error) {
	a, err := New(root, opts...)
	if err != nil {
		return nil, err
	}
	return a.Handler(), nil
}

func (a *Agent) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	r.Put("/files/*", a.upload)
	r.Get("/files/*", a.download)
	r.Post("/exec", a.exec)
	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *Agent) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		a.logger.Info("request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

// resolve maps p, relative to the root or absolute, to a path inside the root.
func (a *Agent) resolve(p string) (string, error) {
	if p == "" {
		return "", errOutsideRoot
	}
	full := filepath.Clean(filepath.FromSlash(p))
	if !filepath.IsAbs(full) {
		full = filepath.Join(a.root, full)
	}
	rel, err := filepath.Rel(a.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return full, nil
}

func (a *Agent) upload(w http.ResponseWriter, r *http.Request) {
	target, err := a.resolve(chi.URLParam(r, "*"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	mode := os.FileMode(0644)
	if m := r.Header.Get("X-File-Mode"); m != "" {
		parsed, err := strconv.ParseUint(m, 8, 32)
		if err != nil {
			http.Error(w, "invalid X-File-Mode", http.StatusBadRequest)
			return
		}
		mode = os.FileMode(parsed).Perm()
	}

	if err := writeFile(target, r.Body, mode); err != nil {
		a.logger.Error("upload failed", "path", target, "error", err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	a.transfers.WithLabelValues("upload").Inc()
	w.WriteHeader(http.StatusCreated)
}

// writeFile replaces target atomically.
func writeFile(target string, body io.Reader, mode os.FileMode) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (a *Agent) download(w http.ResponseWriter, r *http.Request) {
	source, err := a.resolve(chi.URLParam(r, "*"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	f, err := os.Open(source)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "download failed", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "not a file", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("X-File-Mode", strconv.FormatUint(uint64(info.Mode().Perm()), 8))
	if _, err := io.Copy(w, f); err != nil {
		a.logger.Warn("download interrupted", "path", source, "error", err)
		return
	}
	a.transfers.WithLabelValues("download").Inc()
}

func (a *Agent) exec(w http.ResponseWriter, r *http.Request) {
	var req remote.ExecRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExecBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	executable, err := a.resolve(req.Executable)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if _, err := os.Stat(executable); err != nil {
		http.Error(w, "executable not found", http.StatusNotFound)
		return
	}

	cmd := exec.CommandContext(r.Context(), executable, req.Args...)
	cmd.Dir = a.root
	cmd.Env = append(cmd.Environ(), a.env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	a.logger.Info("executing", "request_id", middleware.GetReqID(r.Context()), "executable", executable)
	start := time.Now()
	resp := remote.ExecResponse{}
	err = cmd.Run()
	a.duration.Observe(time.Since(start).Seconds())
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		resp.ExitCode = exitErr.ExitCode()
		resp.Stderr = stderr.String()
	case err != nil:
		a.logger.Error("execution failed", "executable", executable, "error", err)
		http.Error(w, fmt.Sprintf("execution failed: %v", err), http.StatusInternalServerError)
		return
	}
	a.executions.WithLabelValues(strconv.Itoa(resp.ExitCode)).Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Error("exec response encode failed", "error", err)
	}
}
