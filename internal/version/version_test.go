package version

import (
	"strings"
	"testing"
	"time"
)

func TestBuildAge(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		date   string
		want   string
		wantOK bool
	}{
		{name: "minutes", date: "2025-05-10T11:30:00Z", want: "30 minutes ago", wantOK: true},
		{name: "hours", date: "2025-05-10T07:00:00Z", want: "5 hours ago", wantOK: true},
		{name: "days", date: "2025-05-01T12:00:00Z", want: "9 days ago", wantOK: true},
		{name: "unknown", date: "unknown", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := buildAge(tt.date, now)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("buildAge(%q) = %q, %v; want %q, %v", tt.date, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "v1.2.0", Commit: "abc123", BuildDate: "unknown", GoVersion: "go1.24.4", Platform: "linux/amd64"}
	got := info.String()
	if !strings.HasPrefix(got, "navconsole v1.2.0 (commit abc123, built unknown,") {
		t.Errorf("unexpected summary %q", got)
	}
}
