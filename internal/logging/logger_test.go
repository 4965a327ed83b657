package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestModuleLevelOverride(t *testing.T) {
	// Reset state
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	isInitialized = false
	mutex.Unlock()

	// Initialize with global info level, but preview module at debug
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"preview": "debug",
			"api":     "warn",
		},
	})

	tests := []struct {
		module      string
		wantDebug   bool
		wantInfo    bool
		wantWarn    bool
		description string
	}{
		{"preview", true, true, true, "preview module should log debug (override to debug)"},
		{"api", false, false, true, "api module should only log warn (override to warn)"},
		{"other", false, true, true, "other module should log info (global default)"},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			logger := GetLogger(tt.module)

			// Get the handler from the logger to test Enabled
			// We need to check if the handler accepts different levels
			handler := logger.Handler()

			gotDebug := handler.Enabled(context.Background(), slog.LevelDebug)
			gotInfo := handler.Enabled(context.Background(), slog.LevelInfo)
			gotWarn := handler.Enabled(context.Background(), slog.LevelWarn)

			if gotDebug != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, gotInfo, tt.wantInfo)
			}
			if gotWarn != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, gotWarn, tt.wantWarn)
			}
		})
	}
}

func TestModuleLevelWithMultiHandler(t *testing.T) {
	// Reset state
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	isInitialized = false
	mutex.Unlock()

	// Initialize with debug level for staging module
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"staging": "debug",
		},
	})

	logger := GetLogger("staging")
	handler := logger.Handler()

	// Verify the handler accepts debug level
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("staging module handler should accept Debug level")
	}

	// Regardless of handler type, debug should be enabled
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Errorf("Debug should be enabled for staging module, handler type: %T", handler)
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	// Create two handlers - one with debug, one with info
	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	multi := NewMultiHandler(debugHandler, infoHandler)
	logger := slog.New(multi).With("module", "test")

	// Write debug log - should appear once (from debugHandler)
	logger.Debug("debug only message")

	output := buf.String()
	if !strings.Contains(output, "debug only message") {
		t.Errorf("Debug message not written via MultiHandler. Output: %s", output)
	}

	// Count occurrences - should be 1 (only debugHandler writes it)
	count := strings.Count(output, "debug only message")
	if count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, output)
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	// Reset state completely
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	mutex.Unlock()

	// Get logger BEFORE Initialize - should default to info level
	loggerBefore := GetLogger("staging")
	handlerBefore := loggerBefore.Handler()

	// Should NOT have debug enabled (defaults to info)
	if handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger created before Initialize should NOT have debug enabled")
	}

	// Now Initialize with debug level for staging
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"staging": "debug",
		},
	})

	// Get logger AFTER Initialize - should be SAME logger (cached) with updated level
	loggerAfter := GetLogger("staging")

	// With LevelVar fix, logger should be cached (same pointer) but level updated dynamically
	if loggerBefore != loggerAfter {
		t.Error("Logger should be cached - same pointer before and after Initialize")
	}

	// The cached logger should now have debug enabled (LevelVar was updated)
	if !handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Cached logger should have debug enabled after Initialize updates LevelVar")
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
				}
			} else {
				if got == nil {
					t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
				} else if *got != tt.want {
					t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
				}
			}
		})
	}
}

func TestBufferHandlerWritesAfterInitialize(t *testing.T) {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	mutex.Unlock()

	Initialize(Config{Level: "info", Format: "text"})

	received := make(chan LogEntry, 1)
	SetLogCallback(func(entry LogEntry) {
		select {
		case received <- entry:
		default:
		}
	})
	defer SetLogCallback(nil)

	GetLogger("camera").Info("picture queued", "request_id", "abc")

	entry := <-received
	if entry.Module != "camera" {
		t.Errorf("Expected module camera, got %q", entry.Module)
	}
	if entry.Attributes["request_id"] != "abc" {
		t.Errorf("Expected request_id attribute, got %v", entry.Attributes)
	}
	if entry.Seq == 0 {
		t.Error("Expected a sequence number")
	}

	entries := GetBuffer().ReadSince(entry.Seq - 1)
	if len(entries) == 0 || entries[0].Message != "picture queued" {
		t.Errorf("ReadSince returned %v", entries)
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := range 5 {
		rb.Write(LogEntry{Message: string(rune('a' + i))})
	}

	all := rb.ReadAll()
	if len(all) != 3 || all[0].Message != "c" || all[2].Message != "e" {
		t.Fatalf("Unexpected entries %v", all)
	}
	if got := rb.ReadSince(4); len(got) != 1 || got[0].Seq != 5 {
		t.Errorf("ReadSince(4) = %v", got)
	}
	if got := rb.ReadSince(5); got != nil {
		t.Errorf("ReadSince(5) = %v, want nil", got)
	}
}

func TestRepeatLimiter(t *testing.T) {
	l := newRepeatLimiter(2, time.Second)
	start := time.Now()

	for i, want := range []bool{true, true, false, false} {
		if pass, _ := l.allow("circulation\x00Sink rejected frame", start.Add(time.Duration(i)*time.Millisecond)); pass != want {
			t.Errorf("record %d pass = %v, want %v", i, pass, want)
		}
	}
	if pass, _ := l.allow("circulation\x00Enqueue retry failed", start); !pass {
		t.Error("a different message should not share the limit")
	}

	pass, suppressed := l.allow("circulation\x00Sink rejected frame", start.Add(time.Second))
	if !pass || suppressed != 2 {
		t.Errorf("next window = %v, %d suppressed, want true, 2", pass, suppressed)
	}
}

func TestLimitedHandlerSuppressesPerModule(t *testing.T) {
	var buf bytes.Buffer
	text := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := newLimitedHandler(3, text)

	device := slog.New(handler).With("module", "device")
	sinkLog := slog.New(handler).With("module", "circulation")
	for range 10 {
		device.Warn("Dequeue failed")
		sinkLog.Warn("Dequeue failed")
	}

	if got := strings.Count(buf.String(), "module=device"); got != 3 {
		t.Errorf("device records written = %d, want 3", got)
	}
	if got := strings.Count(buf.String(), "module=circulation"); got != 3 {
		t.Errorf("circulation records written = %d, want 3", got)
	}
}

func TestNewMultiHandlerDoesNotLimit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMultiHandler(slog.NewTextHandler(&buf, nil)))
	for range 20 {
		logger.Info("frame")
	}
	if got := strings.Count(buf.String(), "msg=frame"); got != 20 {
		t.Errorf("records written = %d, want 20", got)
	}
}

func TestJournalFieldNames(t *testing.T) {
	fields := map[string]string{}
	addField(fields, "", slog.String("device", "/dev/video0"))
	addField(fields, "", slog.String("request_id", "abc"))
	addField(fields, "", slog.Int("sink-buffers", 3))
	addField(fields, "", slog.Group("format", slog.Int("width", 640)))
	addField(fields, "", slog.Bool("_private", true))
	addField(fields, "", slog.Float64("3a", 1.5))

	want := map[string]string{
		"CAMERA_DEVICE":      "/dev/video0",
		"CAPTURE_REQUEST_ID": "abc",
		"SINK_BUFFERS":       "3",
		"FORMAT_WIDTH":       "640",
		"PRIVATE":            "true",
		"F_3A":               "1.5",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %q, want %q (all: %v)", k, fields[k], v, fields)
		}
	}
	if len(fields) != len(want) {
		t.Errorf("fields = %v", fields)
	}
}

func TestJournalHandlerGroupsPrefixFields(t *testing.T) {
	h := NewJournalHandler(slog.LevelInfo).WithGroup("capture").WithAttrs([]slog.Attr{slog.String("request_id", "r1")})
	jh := h.(*JournalHandler)
	if got := jh.fields["CAPTURE_REQUEST_ID"]; got != "r1" {
		t.Errorf("grouped field = %q, fields %v", got, jh.fields)
	}
	if jh.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at info level")
	}
}
