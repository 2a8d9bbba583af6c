package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum-optimism/fitgate/reporting"
	"github.com/ethereum-optimism/fitgate/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// StatusSource exposes the latest outcome of each suite.
type StatusSource interface {
	LatestOutcomes() []types.BuildOutcome
}

// suiteStatus is the JSON shape served for one suite.
type suiteStatus struct {
	Suite          string        `json:"suite"`
	RunID          string        `json:"run_id"`
	Verdict        types.Verdict `json:"verdict"`
	Statistics     types.Counts  `json:"statistics"`
	Summary        string        `json:"summary"`
	Artifact       string        `json:"artifact,omitempty"`
	DurationMillis int64         `json:"duration_ms"`
	Diagnostic     string        `json:"diagnostic,omitempty"`
}

func newSuiteStatus(o types.BuildOutcome) suiteStatus {
	return suiteStatus{
		Suite:          o.Suite,
		RunID:          o.RunID,
		Verdict:        o.Verdict,
		Statistics:     o.Statistics,
		Summary:        reporting.Summary(o),
		Artifact:       o.ReportArtifactPath,
		DurationMillis: o.DurationMillis,
		Diagnostic:     o.Diagnostic,
	}
}

type HealthzServer struct {
	log    log.Logger
	status StatusSource

	mu     sync.Mutex
	ctx    context.Context
	server *http.Server
}

func NewHealthzServer(logger log.Logger, status StatusSource) *HealthzServer {
	if logger == nil {
		logger = log.New()
	}
	return &HealthzServer{log: logger, status: status}
}

// Handler routes /healthz and the per-suite status endpoints.
func (h *HealthzServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	r.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/status/{suite}", h.handleSuiteStatus).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.mu.Lock()
	h.server = server
	h.ctx = ctx
	h.mu.Unlock()
	return server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	h.mu.Lock()
	server, ctx := h.server, h.ctx
	h.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := []suiteStatus{}
	if h.status != nil {
		for _, o := range h.status.LatestOutcomes() {
			statuses = append(statuses, newSuiteStatus(o))
		}
	}
	writeJSON(w, h.log, http.StatusOK, statuses)
}

func (h *HealthzServer) handleSuiteStatus(w http.ResponseWriter, r *http.Request) {
	suite := mux.Vars(r)["suite"]
	if h.status != nil {
		for _, o := range h.status.LatestOutcomes() {
			if o.Suite == suite {
				writeJSON(w, h.log, http.StatusOK, newSuiteStatus(o))
				return
			}
		}
	}
	writeJSON(w, h.log, http.StatusNotFound, map[string]string{"error": "suite has not run yet"})
}

func writeJSON(w http.ResponseWriter, logger log.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write status response", "err", err)
	}
}
