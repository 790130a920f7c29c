package media

import (
	"fmt"
	"strings"
)

// FormatMillis renders a playback position in milliseconds as a clock
// string, e.g. "7:04" or "1:02:33".
func FormatMillis(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	total := ms / 1000
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatStreamLabel builds a display label for a subtitle stream from its
// metadata, e.g. "English (SRT, Forced)". Used when the server supplies no
// DisplayTitle of its own.
func FormatStreamLabel(language, codec string, forced, hearingImpaired bool) string {
	lang := language
	if lang == "" {
		lang = "Unknown"
	}

	var tags []string
	if c := formatSubtitleCodec(codec); c != "" {
		tags = append(tags, c)
	}
	if forced {
		tags = append(tags, "Forced")
	}
	if hearingImpaired {
		tags = append(tags, "SDH")
	}

	if len(tags) == 0 {
		return lang
	}
	return fmt.Sprintf("%s (%s)", lang, strings.Join(tags, ", "))
}

// formatSubtitleCodec normalizes codec identifiers to their common display
// names.
func formatSubtitleCodec(codec string) string {
	switch strings.ToLower(codec) {
	case "":
		return ""
	case "srt", "subrip":
		return "SRT"
	case "ass", "ssa":
		return "ASS"
	case "pgs", "hdmv_pgs_subtitle":
		return "PGS"
	case "vobsub", "dvd_subtitle":
		return "VobSub"
	case "webvtt", "vtt":
		return "WebVTT"
	case "mov_text", "tx3g":
		return "MOV Text"
	case "dvb_subtitle":
		return "DVB"
	case "eia_608", "eia608":
		return "EIA-608"
	default:
		return strings.ToUpper(codec)
	}
}
