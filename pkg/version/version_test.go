package version

import (
	"regexp"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Fatal("Version is empty")
	}
	if !regexp.MustCompile(`^v\d+\.\d+\.\d+`).MatchString(Version) {
		t.Errorf("Version = %q, want a v-prefixed semantic version", Version)
	}
}
