// Package statusserver exposes a running session over HTTP: Prometheus
// metrics, a JSON status document and recent chunks.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/user/screenrec/pkg/metrics"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
	"github.com/user/screenrec/pkg/segment"
	"github.com/user/screenrec/pkg/session"
)

const shutdownTimeout = 10 * time.Second

// Reporter is the read side of a session. *session.Session implements it.
type Reporter interface {
	Stats() session.Stats
	Chunks() []pipeline.CompressedChunk
}

// Server serves the status endpoints.
type Server struct {
	reporter Reporter
	metrics  *metrics.Metrics
	logger   ports.Logger
}

// New creates a server. m may be nil, in which case /metrics is not served.
func New(reporter Reporter, m *metrics.Metrics, logger ports.Logger) *Server {
	return &Server{reporter: reporter, metrics: m, logger: logger.WithComponent("http")}
}

// Router returns the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(metrics.RequestMiddleware(s.metrics))
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			s.metrics.Handler(func() {
				s.metrics.SetStorage(s.reporter.Stats().Storage)
			}).ServeHTTP(w, r)
		})
	}
	r.Get("/healthz", s.Healthz)
	r.Get("/status", s.Status)
	r.Get("/chunks", s.Chunks)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("Status server listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Healthz handles GET /healthz. It fails while no segment can be opened.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	st := s.reporter.Stats()
	if st.Segments.State == segment.StateIdle && !st.StartedAt.IsZero() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	SessionID     string          `json:"session_id"`
	Codec         string          `json:"codec"`
	Encoder       string          `json:"encoder"`
	Backend       string          `json:"backend"`
	FallbackUsed  bool            `json:"fallback_used"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	State         string          `json:"state"`
	Accepting     bool            `json:"accepting"`
	Seq           uint64          `json:"seq"`
	Multiplier    float64         `json:"quality_multiplier"`
	TargetBytes   int64           `json:"target_bytes"`
	BitrateKbps   int             `json:"bitrate_kbps"`
	Frames        frameCounts     `json:"frames"`
	Chunks        chunkCounts     `json:"chunks"`
	PersistErrors int             `json:"persist_failures"`
	Storage       storageResponse `json:"storage"`
}

type frameCounts struct {
	Submitted int64 `json:"submitted"`
	Encoded   int64 `json:"encoded"`
	Dropped   int64 `json:"dropped"`
	Rejected  int64 `json:"rejected"`
}

type chunkCounts struct {
	Finalized int `json:"finalized"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type storageResponse struct {
	Chunks         int     `json:"chunks"`
	TotalBytes     int64   `json:"total_bytes"`
	DailyAverage   float64 `json:"daily_average"`
	TrendSlope     float64 `json:"trend_slope"`
	ProjectedBytes float64 `json:"projected_bytes"`
	BudgetBytes    int64   `json:"budget_bytes"`
	Alert          bool    `json:"alert"`
}

// Status handles GET /status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	st := s.reporter.Stats()
	resp := statusResponse{
		SessionID:     st.ID,
		Codec:         string(st.Codec.Codec),
		Encoder:       st.Codec.Name,
		Backend:       string(st.Codec.Backend),
		FallbackUsed:  st.Codec.FallbackUsed,
		State:         st.Segments.State.String(),
		Accepting:     st.Accepting,
		Seq:           st.Segments.Seq,
		Multiplier:    st.Multiplier,
		TargetBytes:   st.Settings.TargetBytes,
		BitrateKbps:   st.Settings.BitrateKbps(),
		PersistErrors: st.Segments.PersistFailures,
		Frames: frameCounts{
			Submitted: st.Engine.Submitted,
			Encoded:   st.Engine.Encoded,
			Dropped:   st.Engine.Dropped,
			Rejected:  st.Engine.Rejected,
		},
		Chunks: chunkCounts{
			Finalized: st.Segments.Finalized,
			Failed:    st.Segments.Failed,
			Skipped:   st.Segments.Skipped,
		},
		Storage: storageResponse{
			Chunks:         st.Storage.Chunks,
			TotalBytes:     st.Storage.TotalBytes,
			DailyAverage:   st.Storage.DailyAverage,
			TrendSlope:     st.Storage.TrendSlope,
			ProjectedBytes: st.Storage.ProjectedBytes,
			BudgetBytes:    st.Storage.BudgetBytes,
			Alert:          st.Storage.Alert,
		},
	}
	if !st.StartedAt.IsZero() {
		resp.StartedAt = &st.StartedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type chunkResponse struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Path       string    `json:"path,omitempty"`
	Bytes      int64     `json:"bytes"`
	Frames     int       `json:"frames"`
	Dropped    int       `json:"dropped_frames"`
	Multiplier float64   `json:"quality_multiplier"`
	Target     int64     `json:"target_bytes"`
	Ratio      float64   `json:"compression_ratio"`
	EndedAt    time.Time `json:"ended_at"`
	Failure    string    `json:"failure_reason,omitempty"`
}

// Chunks handles GET /chunks?limit=N, newest last.
func (s *Server) Chunks(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	chunks := s.reporter.Chunks()
	if len(chunks) > limit {
		chunks = chunks[len(chunks)-limit:]
	}
	out := make([]chunkResponse, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, chunkResponse{
			ID:         c.ID(),
			Status:     string(c.Status),
			Path:       playable(c),
			Bytes:      c.Bytes,
			Frames:     c.Frames,
			Dropped:    c.DroppedFrames,
			Multiplier: c.QualityMultiplier,
			Target:     c.TargetBytes,
			Ratio:      c.CompressionRatio(),
			EndedAt:    c.EndedAt,
			Failure:    c.FailureReason,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func playable(c pipeline.CompressedChunk) string {
	if !c.Usable() {
		return ""
	}
	return c.Path
}
