package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9-_. ]`)

// SanitizeName folds accents to ASCII and drops characters that are unsafe in
// file names. It never returns an empty string.
func SanitizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	clean := strings.TrimSpace(unsafeName.ReplaceAllString(folded, ""))
	clean = strings.Trim(clean, ".")
	if clean == "" {
		return "download"
	}
	return clean
}

func FormatSpeed(bps float64) string {
	switch {
	case bps >= 1024*1024:
		return fmt.Sprintf("%.1f MB/s", bps/(1024*1024))
	case bps >= 1024:
		return fmt.Sprintf("%.1f KB/s", bps/1024)
	default:
		return fmt.Sprintf("%.1f B/s", bps)
	}
}

func FormatETA(seconds int64) string {
	if seconds < 0 {
		return "--:--"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
