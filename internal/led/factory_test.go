package led

import (
	"os"
	"path/filepath"
	"testing"
)

func TestForModel(t *testing.T) {
	tests := []struct {
		model string
		want  []string
	}{
		{"FriendlyElec NanoPC-T6\x00", []string{"system", "user"}},
		{"Raspberry Pi 4 Model B Rev 1.4", []string{"act", "pwr"}},
		{"Orange Pi 5", []string{"blue", "green"}},
		{"unknown", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			ctrl := forModel(tt.model, t.TempDir(), testLogger())
			got := ctrl.LEDs()
			if len(got) != len(tt.want) {
				t.Fatalf("LEDs() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("LEDs() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestNoopShowsNothing(t *testing.T) {
	ctrl := forModel("x86 desktop", t.TempDir(), testLogger())
	if err := ctrl.Show("system", Heartbeat); err != nil {
		t.Errorf("Show() on no-op controller error = %v", err)
	}
}

func TestReadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model")
	if err := os.WriteFile(path, []byte("Radxa ROCK 5B\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readModel(path); got != "Radxa ROCK 5B" {
		t.Errorf("readModel() = %q", got)
	}
	if got := readModel(filepath.Join(t.TempDir(), "missing")); got != "unknown" {
		t.Errorf("readModel(missing) = %q, want unknown", got)
	}
}
