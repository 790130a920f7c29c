package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/logging"
)

// maxLogTailBytes bounds how much of the log file is read for display.
const maxLogTailBytes = 512 * 1024

// levelTokens maps the level filter to the zerolog console token
var levelTokens = map[string]string{
	"trace": "TRC",
	"debug": "DBG",
	"info":  "INF",
	"warn":  "WRN",
	"error": "ERR",
}

// LogsPage renders the tail of the application log file
func (h *Handlers) LogsPage(w http.ResponseWriter, r *http.Request) {
	lineLimit := 200
	if n, err := strconv.Atoi(r.URL.Query().Get("lines")); err == nil && n > 0 && n <= 2000 {
		lineLimit = n
	}

	level := r.URL.Query().Get("level")
	if _, ok := levelTokens[level]; !ok {
		level = ""
	}

	path := logging.FilePathForDB(h.db.Path())
	lines, size, err := tailLogFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Failed to read log file")
	}

	if level != "" {
		token := " " + levelTokens[level] + " "
		filtered := lines[:0]
		for _, line := range lines {
			if strings.Contains(line, token) {
				filtered = append(filtered, line)
			}
		}
		lines = filtered
	}

	if len(lines) > lineLimit {
		lines = lines[len(lines)-lineLimit:]
	}
	// Newest first
	slices.Reverse(lines)

	h.render(w, r, "logs.html", map[string]any{
		"Lines":     lines,
		"Path":      path,
		"Size":      fmt.Sprintf("%.1f MB", float64(size)/(1<<20)),
		"Level":     level,
		"LineLimit": lineLimit,
	})
}

// tailLogFile returns the last lines of the file, bounded by maxLogTailBytes,
// along with the full file size.
func tailLogFile(path string) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}

	size := info.Size()
	if size > maxLogTailBytes {
		if _, err := f.Seek(size-maxLogTailBytes, io.SeekStart); err != nil {
			return nil, size, err
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, size, err
	}

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, size, nil
	}

	lines := strings.Split(text, "\n")
	// Drop the partial first line when we started mid-file
	if size > maxLogTailBytes && len(lines) > 0 {
		lines = lines[1:]
	}

	return lines, size, nil
}
