package proactive

import (
	"testing"
	"time"
)

func TestStageFor(t *testing.T) {
	tests := []struct {
		interactions int
		want         Stage
	}{
		{0, StageNew},
		{5, StageNew},
		{6, StageDeveloping},
		{20, StageDeveloping},
		{21, StageFamiliar},
		{50, StageFamiliar},
		{51, StageClose},
		{500, StageClose},
	}
	for _, tt := range tests {
		if got := StageFor(tt.interactions); got != tt.want {
			t.Errorf("StageFor(%d) = %s, want %s", tt.interactions, got, tt.want)
		}
	}
}

func TestCapFor(t *testing.T) {
	caps := []int{1, 3, 5, 8}
	tests := []struct {
		stage Stage
		want  int
	}{
		{StageNew, 1},
		{StageDeveloping, 3},
		{StageFamiliar, 5},
		{StageClose, 8},
	}
	for _, tt := range tests {
		if got := capFor(tt.stage, caps); got != tt.want {
			t.Errorf("capFor(%s) = %d, want %d", tt.stage, got, tt.want)
		}
	}
	if got := capFor(StageNew, []int{7}); got != 1 {
		t.Errorf("capFor() with a short slice = %d, want the default 1", got)
	}
}

func TestQuietWindow(t *testing.T) {
	wrap := Settings{QuietStart: 23, QuietEnd: 7}
	tests := []struct {
		hour int
		want bool
	}{
		{23, true},
		{2, true},
		{6, true},
		{7, false},
		{12, false},
		{22, false},
	}
	for _, tt := range tests {
		if got := wrap.inQuietWindow(tt.hour); got != tt.want {
			t.Errorf("inQuietWindow(%d) = %v, want %v", tt.hour, got, tt.want)
		}
	}
	none := Settings{QuietStart: 0, QuietEnd: 0}
	if none.inQuietWindow(0) {
		t.Error("inQuietWindow() = true for an empty window")
	}
}

func TestDecide(t *testing.T) {
	caps := []int{1, 3, 5, 8}
	minQuiet := 15 * time.Minute
	enabled := Settings{Enabled: true}

	tests := []struct {
		name     string
		sig      Signals
		settings Settings
		want     ExpressionType
		wantOK   bool
	}{
		{
			name:     "greeting in the morning window",
			sig:      Signals{Silence: time.Hour, LocalHour: 8, Stage: StageNew},
			settings: enabled,
			want:     TypeGreeting,
			wantOK:   true,
		},
		{
			name:     "farewell in the evening window",
			sig:      Signals{Silence: time.Hour, LocalHour: 21, Stage: StageNew},
			settings: enabled,
			want:     TypeFarewell,
			wantOK:   true,
		},
		{
			name:     "care beats greeting after long silence",
			sig:      Signals{Silence: 80 * time.Hour, LocalHour: 8, Stage: StageDeveloping},
			settings: enabled,
			want:     TypeCare,
			wantOK:   true,
		},
		{
			name:     "care gated out for brand-new users",
			sig:      Signals{Silence: 80 * time.Hour, LocalHour: 8, Stage: StageNew},
			settings: enabled,
			want:     TypeGreeting,
			wantOK:   true,
		},
		{
			name:     "no care outside a greeting window for new users",
			sig:      Signals{Silence: 80 * time.Hour, LocalHour: 14, Stage: StageNew},
			settings: enabled,
		},
		{
			name:     "topic share outside greeting windows",
			sig:      Signals{Silence: 7 * time.Hour, LocalHour: 14, Stage: StageNew, LastTopic: "the marathon"},
			settings: enabled,
			want:     TypeShare,
			wantOK:   true,
		},
		{
			name:     "quiet period suppresses",
			sig:      Signals{Silence: 10 * time.Minute, LocalHour: 8, Stage: StageNew},
			settings: enabled,
		},
		{
			name:     "daily cap suppresses",
			sig:      Signals{Silence: time.Hour, LocalHour: 8, Stage: StageNew, FiredToday: 1},
			settings: enabled,
		},
		{
			name:     "do-not-disturb window suppresses",
			sig:      Signals{Silence: time.Hour, LocalHour: 3, Stage: StageNew},
			settings: Settings{Enabled: true, QuietStart: 23, QuietEnd: 7},
		},
		{
			name:     "globally disabled",
			sig:      Signals{Silence: time.Hour, LocalHour: 8, Stage: StageNew},
			settings: Settings{Enabled: false},
		},
		{
			name:     "opted-out type falls through to next candidate",
			sig:      Signals{Silence: 7 * time.Hour, LocalHour: 8, Stage: StageNew, LastTopic: "gardening"},
			settings: Settings{Enabled: true, Disabled: []ExpressionType{TypeGreeting}},
			want:     TypeShare,
			wantOK:   true,
		},
		{
			name:     "reflection needs a closer stage",
			sig:      Signals{Silence: time.Hour, LocalHour: 14, Stage: StageNew},
			settings: enabled,
		},
		{
			name:     "reflection for familiar users midday",
			sig:      Signals{Silence: time.Hour, LocalHour: 14, Stage: StageFamiliar},
			settings: enabled,
			want:     TypeReflection,
			wantOK:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decide(tt.sig, tt.settings, caps, minQuiet)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("decide() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
