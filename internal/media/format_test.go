package media

import "testing"

func TestFormatMillis(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "0:00"},
		{999, "0:00"},
		{1000, "0:01"},
		{59000, "0:59"},
		{60000, "1:00"},
		{424000, "7:04"},
		{3599000, "59:59"},
		{3600000, "1:00:00"},
		{3753000, "1:02:33"},
		{-500, "0:00"},
	}

	for _, c := range cases {
		if got := FormatMillis(c.ms); got != c.want {
			t.Errorf("FormatMillis(%d) = %q, want %q", c.ms, got, c.want)
		}
	}
}

func TestFormatStreamLabel(t *testing.T) {
	cases := []struct {
		language        string
		codec           string
		forced          bool
		hearingImpaired bool
		want            string
	}{
		{"English", "srt", false, false, "English (SRT)"},
		{"English", "subrip", true, false, "English (SRT, Forced)"},
		{"German", "ass", false, true, "German (ASS, SDH)"},
		{"French", "hdmv_pgs_subtitle", true, true, "French (PGS, Forced, SDH)"},
		{"English", "", false, false, "English"},
		{"", "vobsub", false, false, "Unknown (VobSub)"},
		{"", "", false, false, "Unknown"},
		{"Japanese", "mov_text", false, false, "Japanese (MOV Text)"},
		{"Spanish", "somecodec", false, false, "Spanish (SOMECODEC)"},
	}

	for _, c := range cases {
		got := FormatStreamLabel(c.language, c.codec, c.forced, c.hearingImpaired)
		if got != c.want {
			t.Errorf("FormatStreamLabel(%q, %q, %v, %v) = %q, want %q",
				c.language, c.codec, c.forced, c.hearingImpaired, got, c.want)
		}
	}
}
