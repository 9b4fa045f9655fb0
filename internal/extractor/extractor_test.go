package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandTemplate(t *testing.T) {
	assert.Equal(t, "/tmp/job_1/Clip.mp4", ExpandTemplate("/tmp/job_1/%(title)s.%(ext)s", "Clip", "mp4"))
	assert.Equal(t, "fixed.bin", ExpandTemplate("fixed.bin", "Clip", "mp4"))
}
