package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My Video", "My Video"},
		{"Café del Mar", "Cafe del Mar"},
		{"a/b\\c:d*e?f", "abcdef"},
		{"  spaced  ", "spaced"},
		{"日本語", "download"},
		{"..", "download"},
		{"clip-01_final.mp4", "clip-01_final.mp4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), "input %q", tt.in)
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "512.0 B/s", FormatSpeed(512))
	assert.Equal(t, "1.5 KB/s", FormatSpeed(1536))
	assert.Equal(t, "2.0 MB/s", FormatSpeed(2*1024*1024))
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "--:--", FormatETA(-1))
	assert.Equal(t, "00:05", FormatETA(5))
	assert.Equal(t, "02:05", FormatETA(125))
	assert.Equal(t, "01:00:01", FormatETA(3601))
}
