package timespec

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC)

func TestParseNowAndKeywords(t *testing.T) {
	tests := []struct {
		expr string
		want time.Time
	}{
		{"now", fixedNow},
		{"noon", time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)},
		{"midnight", time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)},
		{"teatime", time.Date(2024, time.June, 15, 17, 30, 0, 0, time.UTC)},
		{"yesterday", time.Date(2024, time.June, 14, 0, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2024, time.June, 16, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ts, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.expr, err)
			}
			got, err := ts.GetTimestamp(fixedNow, nil)
			if err != nil {
				t.Fatalf("GetTimestamp: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) resolved to %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParseAbsoluteForms(t *testing.T) {
	tests := []struct {
		expr string
		want time.Time
	}{
		{"12/25/2024", time.Date(2024, time.December, 25, 0, 0, 0, 0, time.UTC)},
		{"25.12.2024", time.Date(2024, time.December, 25, 0, 0, 0, 0, time.UTC)},
		{"20241225", time.Date(2024, time.December, 25, 0, 0, 0, 0, time.UTC)},
		{"14:30", time.Date(2024, time.June, 15, 14, 30, 0, 0, time.UTC)},
		{"2pm", time.Date(2024, time.June, 15, 14, 0, 0, 0, time.UTC)},
		{"12am", time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)},
		{"january 1", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{"january 1 2023", time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ts, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.expr, err)
			}
			got, err := ts.GetTimestamp(fixedNow, nil)
			if err != nil {
				t.Fatalf("GetTimestamp: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) resolved to %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParseOffsets(t *testing.T) {
	tests := []struct {
		expr string
		want time.Time
	}{
		{"now-1day", fixedNow.Add(-24 * time.Hour)},
		{"now+1hour", fixedNow.Add(time.Hour)},
		{"now-1week", fixedNow.Add(-7 * 24 * time.Hour)},
		{"now+90min", fixedNow.Add(90 * time.Minute)},
		{"now-1month", fixedNow.AddDate(0, -1, 0)},
		{"now+1year", fixedNow.AddDate(1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ts, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.expr, err)
			}
			got, err := ts.GetTimestamp(fixedNow, nil)
			if err != nil {
				t.Fatalf("GetTimestamp: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) resolved to %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestMTokenIsContextSensitive(t *testing.T) {
	// After a relative "now" base (no absolute date), a bare offset of "m"
	// means minutes.
	minSpec, err := Parse("now+5m")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := minSpec.GetTimestamp(fixedNow, nil)
	if err != nil {
		t.Fatalf("GetTimestamp: %v", err)
	}
	if want := fixedNow.Add(5 * time.Minute); !got.Equal(want) {
		t.Errorf("now+5m resolved to %v, want %v (minutes)", got, want)
	}

	// After an absolute date base, a bare offset of "m" means months.
	monthSpec, err := Parse("january 1 2024+2m")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err = monthSpec.GetTimestamp(fixedNow, nil)
	if err != nil {
		t.Fatalf("GetTimestamp: %v", err)
	}
	if want := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("january 1 2024+2m resolved to %v, want %v (months)", got, want)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := []string{"", "bogus keyword", "now extra junk", "now+", "14:30 am pm"}
	for _, expr := range tests {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", expr)
		}
	}
}

func TestResolvePairAnchoring(t *testing.T) {
	start, end, err := ResolvePair("end-1day", "now", fixedNow)
	if err != nil {
		t.Fatalf("ResolvePair: %v", err)
	}
	if !end.Equal(fixedNow) {
		t.Errorf("end = %v, want %v", end, fixedNow)
	}
	if want := fixedNow.Add(-24 * time.Hour); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestResolvePairRejectsMutualAnchor(t *testing.T) {
	if _, _, err := ResolvePair("end", "start", fixedNow); err == nil {
		t.Error("expected error when start and end both anchor to each other")
	}
}

func TestResolvePairEndAnchorsToStart(t *testing.T) {
	start, end, err := ResolvePair("now-2hour", "start+1hour", fixedNow)
	if err != nil {
		t.Fatalf("ResolvePair: %v", err)
	}
	wantStart := fixedNow.Add(-2 * time.Hour)
	if !start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", start, wantStart)
	}
	if want := wantStart.Add(time.Hour); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
}
