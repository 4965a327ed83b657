package led

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLEDs creates a sysfs-like LED directory per name under a temp root.
func fakeLEDs(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func readAttr(t *testing.T, root, name, attr string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name, attr))
	if err != nil {
		t.Fatalf("read %s/%s: %v", name, attr, err)
	}
	return string(data)
}

func TestSysfs_ShowIndicators(t *testing.T) {
	root := fakeLEDs(t, "sys_led")
	if err := os.WriteFile(filepath.Join(root, "sys_led", "max_brightness"), []byte("255\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctrl := newSysfs(root, map[string]string{"system": "sys_led"})

	tests := []struct {
		ind   Indicator
		attrs map[string]string
	}{
		{Solid, map[string]string{"trigger": "none", "brightness": "255"}},
		{Blink, map[string]string{"trigger": "timer", "delay_on": "500", "delay_off": "500"}},
		{Heartbeat, map[string]string{"trigger": "heartbeat"}},
		{Off, map[string]string{"trigger": "none", "brightness": "0"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.ind), func(t *testing.T) {
			if err := ctrl.Show("system", tt.ind); err != nil {
				t.Fatalf("Show(%s) error = %v", tt.ind, err)
			}
			for attr, want := range tt.attrs {
				if got := readAttr(t, root, "sys_led", attr); got != want {
					t.Errorf("%s = %q, want %q", attr, got, want)
				}
			}
		})
	}
}

func TestSysfs_SolidDefaultsToBrightnessOne(t *testing.T) {
	root := fakeLEDs(t, "ACT")
	ctrl := newSysfs(root, map[string]string{"act": "ACT"})

	if err := ctrl.Show("act", Solid); err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if got := readAttr(t, root, "ACT", "brightness"); got != "1" {
		t.Errorf("brightness = %q, want 1", got)
	}
}

func TestSysfs_Errors(t *testing.T) {
	root := fakeLEDs(t)
	ctrl := newSysfs(root, map[string]string{"user": "usr_led"})

	if err := ctrl.Show("power", Solid); !errors.Is(err, ErrUnknownLED) {
		t.Errorf("Show(power) error = %v, want ErrUnknownLED", err)
	}
	if err := ctrl.Show("user", Solid); err == nil {
		t.Error("Show() for a missing LED directory should fail")
	}
}

func TestSysfs_LEDsSorted(t *testing.T) {
	ctrl := newSysfs("", map[string]string{"user": "usr_led", "system": "sys_led"})
	got := ctrl.LEDs()
	if len(got) != 2 || got[0] != "system" || got[1] != "user" {
		t.Errorf("LEDs() = %v, want [system user]", got)
	}
}

func TestParseIndicator(t *testing.T) {
	tests := []struct {
		name    string
		want    Indicator
		wantErr bool
	}{
		{"", Solid, false},
		{"blink", Blink, false},
		{"heartbeat", Heartbeat, false},
		{"off", Off, false},
		{"strobe", "", true},
	}
	for _, tt := range tests {
		got, err := ParseIndicator(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseIndicator(%q) = %q, %v", tt.name, got, err)
		}
	}
}
