package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camerapipe/internal/api/models"
	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/camera"
	"github.com/smazurov/camerapipe/internal/capture"
	"github.com/smazurov/camerapipe/internal/config"
	"github.com/smazurov/camerapipe/internal/imaging"
)

const defaultPictureTimeout = 10 * time.Second

// registerCameraRoutes registers preview, picture, focus and parameter
// endpoints.
func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/camera",
		Summary:     "Camera Status",
		Description: "Get preview state, parameters and pipeline counters",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.CameraStatusResponse, error) {
		return &models.CameraStatusResponse{Body: s.cameraStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-preview",
		Method:      http.MethodPost,
		Path:        "/api/camera/preview",
		Summary:     "Start Preview",
		Description: "Configure the device with the current preview parameters and start streaming",
		Tags:        []string{"preview"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422, 503},
	}, func(ctx context.Context, input *struct{}) (*models.PreviewResponse, error) {
		if err := s.camera.StartPreview(ctx); err != nil {
			return nil, cameraError("Failed to start preview", err)
		}
		return &models.PreviewResponse{Body: models.PreviewData{
			State:   s.camera.State().String(),
			Message: "Preview started",
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-preview",
		Method:      http.MethodDelete,
		Path:        "/api/camera/preview",
		Summary:     "Stop Preview",
		Description: "Stop streaming and free the preview buffers",
		Tags:        []string{"preview"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 503},
	}, func(ctx context.Context, input *struct{}) (*models.PreviewResponse, error) {
		if err := s.camera.StopPreview(ctx); err != nil {
			return nil, cameraError("Failed to stop preview", err)
		}
		return &models.PreviewResponse{Body: models.PreviewData{
			State:   s.camera.State().String(),
			Message: "Preview stopped",
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-preview-frame",
		Method:      http.MethodGet,
		Path:        "/api/camera/preview/frame",
		Summary:     "Preview Frame",
		Description: "Get the frame currently on the display as JPEG",
		Tags:        []string{"preview"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(ctx context.Context, input *struct{}) (*models.PreviewFrameResponse, error) {
		if s.options.Display == nil {
			return nil, huma.Error404NotFound("No display attached")
		}
		frame, ok := s.options.Display.LastFrame()
		if !ok {
			return nil, huma.Error404NotFound("No frame displayed yet")
		}
		data, err := frameJPEG(frame.Format, frame.Data, s.camera.Parameters().Quality)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to encode preview frame", err)
		}
		return &models.PreviewFrameResponse{
			ContentType: "image/jpeg",
			Sequence:    strconv.FormatUint(frame.Sequence, 10),
			Body:        data,
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "take-picture",
		Method:      http.MethodPost,
		Path:        "/api/camera/picture",
		Summary:     "Take Picture",
		Description: "Capture a still picture at the current picture parameters. Requests made while a capture is running wait their turn.",
		Tags:        []string{"picture"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500, 503, 504},
	}, s.takePicture)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancel-picture",
		Method:      http.MethodDelete,
		Path:        "/api/camera/picture",
		Summary:     "Cancel Pictures",
		Description: "Drop every queued picture request. A capture already running still completes.",
		Tags:        []string{"picture"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, input *struct{}) (*models.CancelPictureResponse, error) {
		dropped, err := s.camera.CancelPicture(ctx)
		if err != nil {
			return nil, cameraError("Failed to cancel pictures", err)
		}
		return &models.CancelPictureResponse{Body: models.CancelPictureData{Dropped: dropped}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-focus",
		Method:      http.MethodPost,
		Path:        "/api/camera/focus",
		Summary:     "Autofocus",
		Description: "Run one autofocus pass and wait for the result, or switch to continuous autofocus",
		Tags:        []string{"focus"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 503, 504},
	}, s.startFocus)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancel-focus",
		Method:      http.MethodDelete,
		Path:        "/api/camera/focus",
		Summary:     "Cancel Autofocus",
		Description: "Cancel a running autofocus pass and leave continuous autofocus",
		Tags:        []string{"focus"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 503},
	}, func(ctx context.Context, input *struct{}) (*models.FocusResponse, error) {
		if err := s.camera.CancelAutoFocus(ctx); err != nil {
			return nil, cameraError("Failed to cancel autofocus", err)
		}
		if err := s.camera.StopContinuousFocus(ctx); err != nil {
			return nil, cameraError("Failed to stop continuous autofocus", err)
		}
		return &models.FocusResponse{Body: models.FocusData{Message: "Autofocus cancelled"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-parameters",
		Method:      http.MethodGet,
		Path:        "/api/camera/parameters",
		Summary:     "Get Parameters",
		Tags:        []string{"parameters"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.ParametersResponse, error) {
		return &models.ParametersResponse{Body: toParametersData(s.camera.Parameters())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-parameters",
		Method:      http.MethodPut,
		Path:        "/api/camera/parameters",
		Summary:     "Set Parameters",
		Description: "Replace the camera parameters. Preview changes apply at the next preview start, picture changes at the next picture.",
		Tags:        []string{"parameters"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422, 500},
	}, func(ctx context.Context, input *models.ParametersRequest) (*models.ParametersResponse, error) {
		if err := s.camera.SetParameters(fromParametersData(input.Body)); err != nil {
			return nil, cameraError("Invalid parameters", err)
		}
		params := s.camera.Parameters()
		if s.options.ConfigPath != "" {
			if err := config.SaveCamera(s.options.ConfigPath, config.CameraConfigFrom(params)); err != nil {
				s.logger.Error("Failed to persist camera parameters", "path", s.options.ConfigPath, "error", err)
				return nil, huma.Error500InternalServerError("Parameters applied but not saved", err)
			}
		}
		return &models.ParametersResponse{Body: toParametersData(params)}, nil
	})
}

func (s *Server) takePicture(ctx context.Context, input *models.PictureRequest) (*models.PictureResponse, error) {
	encoded := make(chan []byte, 1)
	cb := capture.Callbacks{}
	if !input.Body.Async {
		cb.Encoded = func(data []byte, _ any) { encoded <- data }
	}

	req, err := s.camera.TakePicture(ctx, cb, nil)
	if err != nil {
		return nil, cameraError("Failed to take picture", err)
	}
	id := req.ID.String()
	width, height := req.Settings.Transform().OutputSize()

	if input.Body.Async {
		return &models.PictureResponse{
			Status: http.StatusAccepted,
			Body:   models.PictureData{RequestID: id, Status: "queued"},
		}, nil
	}

	timeout := s.options.PictureTimeout
	if timeout <= 0 {
		timeout = defaultPictureTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Encoded always runs before the request is marked done.
	select {
	case data := <-encoded:
		return captured(id, data, width, height), nil
	case <-req.Done():
		select {
		case data := <-encoded:
			return captured(id, data, width, height), nil
		default:
		}
		if err := req.Err(); err != nil {
			return nil, cameraError("Picture capture failed", err)
		}
		return nil, huma.Error500InternalServerError("Picture capture produced no image")
	case <-timer.C:
		return nil, huma.Error504GatewayTimeout(fmt.Sprintf("Picture %s not ready after %s", id, timeout))
	case <-ctx.Done():
		return nil, huma.Error504GatewayTimeout("Request cancelled", ctx.Err())
	}
}

func captured(id string, data []byte, width, height int) *models.PictureResponse {
	return &models.PictureResponse{
		Status: http.StatusOK,
		Body: models.PictureData{
			RequestID: id,
			Status:    "captured",
			ImageData: base64.StdEncoding.EncodeToString(data),
			Width:     width,
			Height:    height,
		},
	}
}

func (s *Server) startFocus(ctx context.Context, input *models.FocusRequest) (*models.FocusResponse, error) {
	if input.Body.Continuous {
		if err := s.camera.StartContinuousFocus(ctx); err != nil {
			return nil, cameraError("Failed to start continuous autofocus", err)
		}
		return &models.FocusResponse{Body: models.FocusData{
			Continuous: true,
			Message:    "Continuous autofocus started",
		}}, nil
	}

	result := make(chan bool, 1)
	if err := s.camera.AutoFocus(ctx, func(success bool, _ any) { result <- success }, nil); err != nil {
		return nil, cameraError("Failed to start autofocus", err)
	}

	timeout := s.options.PictureTimeout
	if timeout <= 0 {
		timeout = defaultPictureTimeout
	}
	select {
	case ok := <-result:
		msg := "Focus achieved"
		if !ok {
			msg = "Focus not achieved"
		}
		return &models.FocusResponse{Body: models.FocusData{Success: ok, Message: msg}}, nil
	case <-time.After(timeout):
		return nil, huma.Error504GatewayTimeout("Autofocus did not complete")
	case <-ctx.Done():
		return nil, huma.Error504GatewayTimeout("Request cancelled", ctx.Err())
	}
}

func (s *Server) cameraStatus() models.CameraStatusData {
	st := s.camera.Stats()
	return models.CameraStatusData{
		Device:     s.camera.Name(),
		State:      s.camera.State().String(),
		Preview:    s.camera.PreviewEnabled(),
		Parameters: toParametersData(s.camera.Parameters()),
		Stats:      toStatsData(st),
	}
}

// cameraError maps handle errors onto HTTP statuses.
func cameraError(msg string, err error) error {
	switch {
	case errors.Is(err, camera.ErrInvalidState), errors.Is(err, camera.ErrPreviewNotRunning):
		return huma.Error409Conflict(msg, err)
	case errors.Is(err, camera.ErrConfigRejected):
		return huma.Error422UnprocessableEntity(msg, err)
	case errors.Is(err, camera.ErrAllocationFailed),
		errors.Is(err, camera.ErrReleased),
		errors.Is(err, camera.ErrNotInitialized),
		errors.Is(err, camera.ErrWorkerDead):
		return huma.Error503ServiceUnavailable(msg, err)
	case errors.Is(err, camera.ErrPictureCancelled):
		return huma.Error409Conflict(msg, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return huma.Error504GatewayTimeout(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

// frameJPEG encodes a displayed frame. MJPEG frames are passed through.
func frameJPEG(format buffers.Format, data []byte, quality int) ([]byte, error) {
	switch format.PixelFormat {
	case buffers.PixelFormatMJPEG:
		return data, nil
	case buffers.PixelFormatYUYV:
		img, err := imaging.FromYUYV(data, format.Width, format.Height)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := (imaging.JPEG{}).Encode(&buf, img, quality); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported preview format %s", buffers.FourCC(format.PixelFormat))
	}
}

func toParametersData(p camera.Parameters) models.ParametersData {
	return models.ParametersData{
		PreviewWidth:    p.PreviewWidth,
		PreviewHeight:   p.PreviewHeight,
		PreviewFormat:   p.PreviewFormat,
		PreviewFPS:      p.PreviewFPS,
		PictureWidth:    p.PictureWidth,
		PictureHeight:   p.PictureHeight,
		PictureFormat:   p.PictureFormat,
		Quality:         p.Quality,
		Zoom:            p.Zoom,
		Rotation:        p.Rotation,
		SnapshotPreview: p.SnapshotPreview,
		Filter: models.FilterData{
			Mode:          string(p.Filter.Mode),
			EdgeStrength:  p.Filter.EdgeStrength,
			EdgeThreshold: p.Filter.EdgeThreshold,
			NoiseRadius:   p.Filter.NoiseRadius,
		},
	}
}

func fromParametersData(d models.ParametersData) camera.Parameters {
	return camera.Parameters{
		PreviewWidth:    d.PreviewWidth,
		PreviewHeight:   d.PreviewHeight,
		PreviewFormat:   d.PreviewFormat,
		PreviewFPS:      d.PreviewFPS,
		PictureWidth:    d.PictureWidth,
		PictureHeight:   d.PictureHeight,
		PictureFormat:   d.PictureFormat,
		Quality:         d.Quality,
		Zoom:            d.Zoom,
		Rotation:        d.Rotation,
		SnapshotPreview: d.SnapshotPreview,
		Filter: imaging.FilterParams{
			Mode:          imaging.FilterMode(d.Filter.Mode),
			EdgeStrength:  d.Filter.EdgeStrength,
			EdgeThreshold: d.Filter.EdgeThreshold,
			NoiseRadius:   d.Filter.NoiseRadius,
		},
	}
}

func toStatsData(st camera.Stats) models.CameraStatsData {
	c := st.Preview.Circulation
	return models.CameraStatsData{
		Buffers: models.BufferCountsData{
			Free:   st.Preview.Buffers.Free,
			Device: st.Preview.Buffers.Device,
			Sink:   st.Preview.Buffers.Sink,
			Client: st.Preview.Buffers.Client,
		},
		Frames:          c.Frames,
		SinkBusy:        c.SinkBusy,
		DeviceErrors:    c.DeviceErrors,
		RecordingFrames: c.RecordingFrames,
		RecordingDrops:  c.RecordingDrops,
		Captures:        st.Preview.Captures,
		CaptureFailures: st.Preview.CaptureFailures,
		Encoded:         st.Staging.Encoded,
		StageFailures:   st.Staging.Failures,
		QueuedPictures:  st.QueuedPictures,
		Recording:       st.Recording,
	}
}
