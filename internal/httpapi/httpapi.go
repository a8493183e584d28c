// Package httpapi is a small operator-facing admin surface: trigger a
// mission saga over HTTP instead of needing a bus-side producer, inspect
// queue depth, and a health check. This is domain-stack enrichment (not
// named by spec.md), grounded in other_examples' ai-cv-evaluator branch's
// go-chi/chi + go-chi/cors + go-chi/httprate stack — the same shape that
// repo uses for its own HTTP surface.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/hyzhak/sagabus"
)

// Server wires the admin HTTP surface to a bus client.
type Server struct {
	bus    *sagabus.BusClient
	prefix string
	logger *sagabus.Logger
}

// New constructs the admin HTTP surface over bus. prefix is the mission
// topic stream that POST /sagas/mission appends to; GET /queues reports
// the fixed queueSpec streams and does not use it.
func New(bus *sagabus.BusClient, prefix string) *Server {
	return &Server{bus: bus, prefix: prefix, logger: sagabus.NewLogger("httpapi")}
}

// Router builds the chi router. CORS is permissive by default (an ops
// console is assumed to run behind its own auth layer — authentication
// itself is a named Non-goal of this system, per spec.md ) and the
// mutating endpoint is rate-limited to guard against accidental mission
// floods from a misbehaving client.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/queues", s.handleQueues)

	r.With(httprate.LimitByIP(5, time.Minute)).Post("/sagas/mission", s.handleStartMission)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.bus.WaitForBus(ctx, 2*time.Second); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unreachable"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// queueSpec names the streams whose depth the /queues endpoint reports —
// the mission topic and the four step topics the mission saga drives.
var queueSpec = []string{
	sagabus.MissionStream,
	sagabus.ResourcesStream,
	sagabus.RoutingStream,
	sagabus.ExplorationStream,
	sagabus.MapStream,
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	depths := make(map[string]int64, len(queueSpec))
	for _, stream := range queueSpec {
		n, err := s.bus.StreamLen(ctx, stream)
		if err != nil {
			continue
		}
		depths[stream] = n
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(depths)
}

// startMissionRequest is the body of POST /sagas/mission.
type startMissionRequest struct {
	CorrelationID string `json:"correlation_id"`
	RobotCount    int    `json:"robot_count"`
	Area          string `json:"area"`
}

// handleStartMission appends a mission:start command to the mission
// topic, mirroring what a real producer would do — it does not itself
// run the saga (that's the dispatcher's mission trigger handler's job).
func (s *Server) handleStartMission(w http.ResponseWriter, r *http.Request) {
	var req startMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CorrelationID == "" {
		http.Error(w, "correlation_id is required", http.StatusBadRequest)
		return
	}

	payload := sagabus.MissionStartPayload{RobotCount: req.RobotCount, Area: req.Area}
	fields, err := sagabus.BuildCommand(req.CorrelationID, "", sagabus.MissionEventType, payload, "", "", "")
	if err != nil {
		http.Error(w, "failed to build command", http.StatusInternalServerError)
		return
	}

	entryID, err := s.bus.Append(r.Context(), s.prefix, fields, 0, 0)
	if err != nil {
		s.logger.Error("failed to append mission:start", "error", err)
		http.Error(w, "failed to append command", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"entry_id": entryID})
}
