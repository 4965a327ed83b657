package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camerapipe/internal/api/models"
	"github.com/smazurov/camerapipe/internal/led"
)

// registerLEDRoutes registers manual LED control. The LED manager keeps
// driving its own LED from camera events, so a manual setting there only
// lasts until the next state change.
func (s *Server) registerLEDRoutes() {
	ctrl := s.options.LEDController
	if ctrl == nil {
		s.logger.Debug("LED controller not available, skipping LED routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "control-led",
		Method:      http.MethodPost,
		Path:        "/api/leds",
		Summary:     "Control LED",
		Description: "Show a camera status pattern on an LED. Disabled turns it off; no pattern means solid.",
		Tags:        []string{"leds"},
		Errors:      []int{400, 401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.LEDRequest) (*struct{}, error) {
		if !slices.Contains(ctrl.LEDs(), input.Body.Type) {
			return nil, huma.Error404NotFound("Unknown LED " + input.Body.Type)
		}
		ind := led.Off
		if input.Body.Enabled {
			pattern := ""
			if input.Body.Pattern != nil {
				pattern = *input.Body.Pattern
			}
			var err error
			if ind, err = led.ParseIndicator(pattern); err != nil {
				return nil, huma.Error400BadRequest("Invalid LED pattern", err)
			}
		}
		if err := ctrl.Show(input.Body.Type, ind); err != nil {
			return nil, huma.Error400BadRequest("Failed to control LED", err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/leds/capabilities",
		Summary:     "Get LED Capabilities",
		Description: "Get the list of available LED types and patterns for this board",
		Tags:        []string{"leds"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.LEDCapabilitiesResponse, error) {
		patterns := make([]string, 0, len(led.Indicators()))
		for _, ind := range led.Indicators() {
			patterns = append(patterns, string(ind))
		}
		return &models.LEDCapabilitiesResponse{
			Body: models.LEDCapabilitiesData{
				AvailableTypes:    ctrl.LEDs(),
				AvailablePatterns: patterns,
			},
		}, nil
	})
}
