package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = origVersion, origCommit })

	Version, GitCommit = "1.2.0", "unknown"
	if got := String(); got != "camerapipe 1.2.0" {
		t.Errorf("String() = %q", got)
	}

	GitCommit = "abc1234"
	if got := String(); got != "camerapipe 1.2.0 (abc1234)" {
		t.Errorf("String() = %q", got)
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Name != Name {
		t.Errorf("Name = %q", info.Name)
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("Platform = %q", info.Platform)
	}
}
