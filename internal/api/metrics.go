package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camerapipe/internal/api/models"
)

const defaultStatsInterval = time.Second

// registerStatsRoutes registers the periodic pipeline stats stream.
func (s *Server) registerStatsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "stats-stream",
		Method:      http.MethodGet,
		Path:        "/api/camera/stats",
		Summary:     "Pipeline Stats Stream",
		Description: "Buffer ownership and pipeline counters, sent once per interval",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"stats": models.CameraStatsData{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		interval := s.options.StatsInterval
		if interval <= 0 {
			interval = defaultStatsInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := send.Data(toStatsData(s.camera.Stats())); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	})
}
