package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"sphere-field/internal/physics"
)

// maxSpawnBody bounds the POST /api/spawn request body.
const maxSpawnBody = 4 << 10

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Step          uint64                `json:"step"`
	Bodies        int                   `json:"bodies"`
	Intersections int                   `json:"intersections"`
	Running       bool                  `json:"running"`
	TickRate      int                   `json:"tickRate"`
	SnapshotAge   time.Duration         `json:"snapshotAge"`
	LastStep      physics.StepStats     `json:"lastStep"`
	Grid          physics.GridStats     `json:"grid"`
	LastSpawn     physics.SpawnReport   `json:"lastSpawn"`
	EventLog      physics.EventLogStats `json:"eventLog"`
	RateLimit     RateLimitStats        `json:"rateLimit"`
	SpawnLimit    RateLimitStats        `json:"spawnLimit"`
}

// SpawnRequest is the body of POST /api/spawn. Omitted fields take the
// server defaults.
type SpawnRequest struct {
	Count  *int           `json:"count"`
	Radius *physics.Range `json:"radius"`
	Speed  *physics.Range `json:"speed"`
	Policy string         `json:"policy"`
}

// SpawnResponse wraps the placement report.
type SpawnResponse struct {
	physics.SpawnReport
	Capped bool `json:"capped,omitempty"`
}

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Snapshot())
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	// The snapshot is lock-free; grid stats take the simulation read lock.
	snap := h.engine.Snapshot()
	resp := StatsResponse{
		Step:          snap.Step,
		Bodies:        len(snap.Bodies),
		Intersections: snap.Intersections,
		Running:       h.engine.Running(),
		TickRate:      h.engine.TickRate(),
		LastStep:      snap.Stats,
		Grid:          h.engine.GridStats(),
		LastSpawn:     h.engine.LastSpawn(),
		EventLog:      h.engine.EventLogStats(),
	}
	if !snap.Timestamp.IsZero() {
		resp.SnapshotAge = time.Since(snap.Timestamp)
	}
	resp.RateLimit = h.rateLimiter.Stats()
	resp.SpawnLimit = h.spawnLimiter.Stats()
	writeJSON(w, resp)
}

func (h *routerHandlers) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, "Rendering disabled", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	var buf bytes.Buffer
	if err := h.renderer.WritePNG(&buf, h.engine.Snapshot()); err != nil {
		log.Printf("⚠️ Frame render failed: %v", err)
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	RecordRender(time.Since(start))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.Write(buf.Bytes())
}

// errBadSpawn marks request validation failures.
var errBadSpawn = errors.New("invalid spawn request")

// resolve applies defaults and validates the request against a width x
// height domain. Zero bounds skip the fit check.
func (req SpawnRequest) resolve(d SpawnDefaults, width, height float32) (count int, radius, speed physics.Range, policy physics.PlacementPolicy, capped bool, err error) {
	count, radius, speed, policy = d.Count, d.Radius, d.Speed, d.Policy
	if req.Count != nil {
		count = *req.Count
	}
	if req.Radius != nil {
		radius = *req.Radius
	}
	if req.Speed != nil {
		speed = *req.Speed
	}
	if req.Policy != "" {
		if policy, err = physics.ParsePlacementPolicy(req.Policy); err != nil {
			return 0, radius, speed, policy, false, fmt.Errorf("%w: %v", errBadSpawn, err)
		}
	}

	switch {
	case count < 0:
		return 0, radius, speed, policy, false, fmt.Errorf("%w: count must not be negative", errBadSpawn)
	case radius.Min <= 0 || radius.Max < radius.Min:
		return 0, radius, speed, policy, false, fmt.Errorf("%w: radius needs 0 < min <= max", errBadSpawn)
	case speed.Min < 0 || speed.Max < speed.Min:
		return 0, radius, speed, policy, false, fmt.Errorf("%w: speed needs 0 <= min <= max", errBadSpawn)
	case width > 0 && height > 0 && 2*radius.Max > min(width, height):
		return 0, radius, speed, policy, false, fmt.Errorf("%w: radius %g does not fit a %gx%g domain",
			errBadSpawn, radius.Max, width, height)
	}

	if d.MaxCount > 0 && count > d.MaxCount {
		count, capped = d.MaxCount, true
	}
	return count, radius, speed, policy, capped, nil
}

func (h *routerHandlers) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req SpawnRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSpawnBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var width, height float32
	if snap := h.engine.Snapshot(); snap != nil {
		width, height = snap.Width, snap.Height
	}
	count, radius, speed, policy, capped, err := req.resolve(h.spawn, width, height)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("🗺️ Respawn requested via API: %d bodies, radius %.2f-%.2f, %s",
		count, radius.Min, radius.Max, policy)
	report := h.engine.Respawn(count, radius, speed, policy)
	writeJSON(w, SpawnResponse{SpawnReport: report, Capped: capped})
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
