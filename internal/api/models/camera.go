package models

// FilterData configures the capture enhancement filter.
type FilterData struct {
	Mode          string `json:"mode" enum:"off,noise,edge,noise+edge" example:"off" doc:"Filter stages to run"`
	EdgeStrength  int    `json:"edge_strength,omitempty" minimum:"0" maximum:"200" example:"100" doc:"Unsharp mask gain in percent"`
	EdgeThreshold int    `json:"edge_threshold,omitempty" minimum:"0" maximum:"255" example:"4" doc:"Differences at or below this level are left alone"`
	NoiseRadius   int    `json:"noise_radius,omitempty" minimum:"0" maximum:"8" example:"1" doc:"Box blur radius for noise reduction"`
}

// ParametersData is the camera configuration.
type ParametersData struct {
	PreviewWidth  int    `json:"preview_width" example:"640" doc:"Preview width in pixels"`
	PreviewHeight int    `json:"preview_height" example:"480" doc:"Preview height in pixels"`
	PreviewFormat string `json:"preview_format" example:"yuyv" doc:"Preview pixel format"`
	PreviewFPS    int    `json:"preview_fps" example:"30" doc:"Preview frame rate"`

	PictureWidth  int    `json:"picture_width" example:"1280" doc:"Picture width in pixels"`
	PictureHeight int    `json:"picture_height" example:"960" doc:"Picture height in pixels"`
	PictureFormat string `json:"picture_format" example:"jpeg" doc:"Picture encoding"`
	Quality       int    `json:"quality" example:"90" doc:"JPEG quality; values outside 1..100 mean 100"`

	Zoom            int        `json:"zoom" example:"1" doc:"Digital zoom factor"`
	Rotation        int        `json:"rotation" enum:"0,90,180,270" example:"0" doc:"Picture rotation in degrees"`
	Filter          FilterData `json:"filter" doc:"Enhancement filter"`
	SnapshotPreview bool       `json:"snapshot_preview" example:"false" doc:"Keep a downscaled picture on the display after capture"`
}

type ParametersResponse struct {
	Body ParametersData
}

type ParametersRequest struct {
	Body ParametersData
}

// BufferCountsData is buffer ownership by owner.
type BufferCountsData struct {
	Free   int `json:"free" doc:"Buffers owned by nobody"`
	Device int `json:"device" doc:"Buffers queued to the capture device"`
	Sink   int `json:"sink" doc:"Buffers queued to the display"`
	Client int `json:"client" doc:"Buffers held by the recording client"`
}

// CameraStatsData is a pipeline snapshot.
type CameraStatsData struct {
	Buffers         BufferCountsData `json:"buffers" doc:"Preview buffer ownership"`
	Frames          uint64           `json:"frames" doc:"Frames circulated since preview start"`
	SinkBusy        uint64           `json:"sink_busy" doc:"Frames the display refused"`
	DeviceErrors    uint64           `json:"device_errors" doc:"Failed device operations"`
	RecordingFrames uint64           `json:"recording_frames" doc:"Frames delivered to the recording callback"`
	RecordingDrops  uint64           `json:"recording_drops" doc:"Frames not delivered to the recording callback"`
	Captures        uint64           `json:"captures" doc:"Completed still captures"`
	CaptureFailures uint64           `json:"capture_failures" doc:"Failed still captures"`
	Encoded         uint64           `json:"encoded" doc:"Pictures encoded by the staging pipeline"`
	StageFailures   uint64           `json:"stage_failures" doc:"Staging pipeline failures"`
	QueuedPictures  int              `json:"queued_pictures" doc:"Picture requests waiting for the running capture"`
	Recording       bool             `json:"recording" doc:"Whether a recording callback is registered"`
}

// CameraStatusData describes the camera.
type CameraStatusData struct {
	Device     string          `json:"device" example:"/dev/video0" doc:"Capture device"`
	State      string          `json:"state" enum:"idle,streaming,dead" example:"streaming" doc:"Preview worker state"`
	Preview    bool            `json:"preview" doc:"Whether the preview is running"`
	Parameters ParametersData  `json:"parameters" doc:"Parameters in effect"`
	Stats      CameraStatsData `json:"stats" doc:"Pipeline counters"`
}

type CameraStatusResponse struct {
	Body CameraStatusData
}

// PreviewData reports the preview state after a start or stop.
type PreviewData struct {
	State   string `json:"state" example:"streaming" doc:"Preview worker state"`
	Message string `json:"message" example:"Preview started" doc:"Status message"`
}

type PreviewResponse struct {
	Body PreviewData
}

// PreviewFrameResponse is the last displayed preview frame as JPEG.
type PreviewFrameResponse struct {
	ContentType string `header:"Content-Type"`
	Sequence    string `header:"X-Frame-Sequence"`
	Body        []byte
}

// PictureRequest asks for one still capture.
type PictureRequest struct {
	Body struct {
		Async bool `json:"async,omitempty" example:"false" doc:"Return immediately; the picture arrives as a capture-success event"`
	} `required:"false"`
}

type PictureData struct {
	RequestID string `json:"request_id" example:"5f0c6f1e-8d2b-4b8e-9a43-1b7f3d2e9c10" doc:"Picture request identifier"`
	Status    string `json:"status" enum:"queued,captured" example:"captured" doc:"Request status"`
	ImageData string `json:"image_data,omitempty" doc:"Base64-encoded JPEG"`
	Width     int    `json:"width,omitempty" example:"1280" doc:"Picture width"`
	Height    int    `json:"height,omitempty" example:"960" doc:"Picture height"`
}

type PictureResponse struct {
	Status int
	Body   PictureData
}

type CancelPictureData struct {
	Dropped int `json:"dropped" example:"2" doc:"Queued requests dropped"`
}

type CancelPictureResponse struct {
	Body CancelPictureData
}

// FocusRequest starts autofocus.
type FocusRequest struct {
	Body struct {
		Continuous bool `json:"continuous,omitempty" example:"false" doc:"Switch to continuous autofocus instead of a single run"`
	} `required:"false"`
}

type FocusData struct {
	Success    bool   `json:"success" example:"true" doc:"Whether focus was achieved"`
	Continuous bool   `json:"continuous" example:"false" doc:"Whether continuous autofocus is active"`
	Message    string `json:"message" example:"Focus achieved" doc:"Status message"`
}

type FocusResponse struct {
	Body FocusData
}
