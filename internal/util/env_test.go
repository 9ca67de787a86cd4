package util

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("SEARCHPIPE_TEST_STR", "  value ")
	if got := GetEnv("SEARCHPIPE_TEST_STR", "def"); got != "value" {
		t.Errorf("GetEnv = %q, want %q", got, "value")
	}
	t.Setenv("SEARCHPIPE_TEST_STR", "   ")
	if got := GetEnv("SEARCHPIPE_TEST_STR", "def"); got != "def" {
		t.Errorf("GetEnv blank = %q, want default", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("SEARCHPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("SEARCHPIPE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 4},
		{"8", 8},
		{" 12 ", 12},
		{"-1", -1},
		{"four", 4},
	}
	for _, tt := range tests {
		t.Setenv("SEARCHPIPE_TEST_INT", tt.value)
		if got := ParseIntEnv("SEARCHPIPE_TEST_INT", 4); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	def := 24 * time.Hour
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", def},
		{"30m", 30 * time.Minute},
		{"90", 90 * time.Second},
		{"0", 0},
		{"-5m", def},
		{"soon", def},
	}
	for _, tt := range tests {
		t.Setenv("SEARCHPIPE_TEST_DUR", tt.value)
		if got := ParseDurationEnv("SEARCHPIPE_TEST_DUR", def); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
