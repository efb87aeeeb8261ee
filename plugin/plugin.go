package plugin

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/attestkit/harvester/attest"
	"github.com/attestkit/harvester/config"
	"github.com/attestkit/harvester/harvest"
	"github.com/attestkit/harvester/logger"
	"github.com/attestkit/harvester/queue"
)

// Plugin identity returned by Metadata.
const (
	Name            = "harvester"
	Version         = "0.2.0"
	ProtocolVersion = ">=0.1.0"
	Description     = "Web harvesting plugin for extracting page facts and creating attestations"
	Author          = "AttestKit"
	License         = "MIT"
)

// Metadata describes the plugin to its host.
type Metadata struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocol_version"`
	Description     string `json:"description"`
	Author          string `json:"author"`
	License         string `json:"license"`
}

// Health reports plugin liveness and dependency state.
type Health struct {
	Healthy bool              `json:"healthy"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

// Response is the wire shape HandleHTTP hands back to the host.
type Response struct {
	StatusCode int
	Headers    map[string][]string
	Body       []byte
}

// Service is the plugin entry point. It is created idle; workflows answer
// 503 until Initialize wires the engine, sink and queue.
type Service struct {
	logger logger.Logger
	router *chi.Mux

	mu        sync.RWMutex
	harvester *harvest.Harvester
	sink      attest.Sink
	queue     queue.Queue
}

// New creates an uninitialized Service.
func New(log logger.Logger) *Service {
	if log == nil {
		log = logger.Noop()
	}
	s := &Service{logger: log}
	s.router = s.routes()
	return s
}

// Metadata returns the plugin identity.
func (s *Service) Metadata() Metadata {
	return Metadata{
		Name:            Name,
		Version:         Version,
		ProtocolVersion: ProtocolVersion,
		Description:     Description,
		Author:          Author,
		License:         License,
	}
}

// Initialize builds the engine from the config map and connects the sink
// and queue clients. Empty endpoints fall back to in-process
// implementations, which keeps the standalone daemon self-contained.
func (s *Service) Initialize(sinkEndpoint, queueEndpoint, authToken string, cfgMap map[string]string) error {
	engineCfg, err := config.EngineFromMap(cfgMap)
	if err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}

	var sink attest.Sink
	if sinkEndpoint != "" {
		sink = attest.NewClient(sinkEndpoint, authToken)
	} else {
		sink = attest.NewMemorySink()
	}

	var jobs queue.Queue
	if queueEndpoint != "" {
		jobs = queue.NewClient(queueEndpoint, authToken)
	} else {
		jobs = queue.NewMemoryQueue()
	}

	s.mu.Lock()
	s.sink = sink
	s.queue = jobs
	s.harvester = harvest.New(engineCfg, sink, s.logger)
	s.mu.Unlock()

	s.logger.Info("plugin initialized",
		"sink_endpoint", sinkEndpoint,
		"queue_endpoint", queueEndpoint,
		"user_agent", engineCfg.UserAgent,
	)
	return nil
}

// Shutdown closes the sink and queue clients and returns the service to
// the uninitialized state.
func (s *Service) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			firstErr = err
		}
		s.sink = nil
	}
	if s.queue != nil {
		if err := s.queue.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.queue = nil
	}
	s.harvester = nil

	s.logger.Info("plugin shut down")
	return firstErr
}

// Health reports whether the service can serve workflows.
func (s *Service) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	details := map[string]string{
		"sink":  "not connected",
		"queue": "not connected",
	}
	if s.sink != nil {
		details["sink"] = "connected"
	}
	if s.queue != nil {
		details["queue"] = "connected"
	}

	healthy := s.harvester != nil
	message := "OK"
	if !healthy {
		message = "Not initialized"
	}
	return Health{Healthy: healthy, Message: message, Details: details}
}

// Router exposes the workflow routes for mounting into an HTTP server.
func (s *Service) Router() http.Handler {
	return s.router
}

// HandleHTTP dispatches one framed request through the router and captures
// the response. Path may carry a query string.
func (s *Service) HandleHTTP(method, path string, headers map[string][]string, body []byte) *Response {
	target, err := url.ParseRequestURI(path)
	if err != nil || !strings.HasPrefix(path, "/") {
		return errorResponse(http.StatusBadRequest, fmt.Sprintf("invalid path: %q", path))
	}

	req, err := http.NewRequest(method, target.String(), strings.NewReader(string(body)))
	if err != nil {
		return errorResponse(http.StatusBadRequest, err.Error())
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	rec := newRecorder()
	s.router.ServeHTTP(rec, req)

	return &Response{
		StatusCode: rec.status,
		Headers:    rec.header,
		Body:       rec.body,
	}
}

// engine returns the current harvester and queue, or false when the
// service has not been initialized.
func (s *Service) engine() (*harvest.Harvester, queue.Queue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.harvester, s.queue, s.harvester != nil
}

// recorder is a minimal in-memory http.ResponseWriter for routing framed
// plugin requests through the chi mux.
type recorder struct {
	status int
	header http.Header
	body   []byte
}

func newRecorder() *recorder {
	return &recorder{status: http.StatusOK, header: make(http.Header)}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) { r.status = status }

func (r *recorder) Write(p []byte) (int, error) {
	r.body = append(r.body, p...)
	return len(p), nil
}
