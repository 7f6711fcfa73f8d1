package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldVersion, oldSHA, oldTime })

	if got, want := String(), "gnsslink dev (unknown, built unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	Version, GitSHA, BuildTime = "0.4.1", "3f9c2e1d8a7b", "2026-03-01T12:00:00Z"
	if got, want := String(), "gnsslink 0.4.1 (3f9c2e1, built 2026-03-01T12:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
