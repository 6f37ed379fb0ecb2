package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LineDispatcher executes one host command line.
type LineDispatcher interface {
	DispatchLine(line string) (any, error)
}

// serveCommands reads host commands line by line from r and answers each on
// w with "OK[ result]" or "ERR message". Blank lines and lines starting with
// '#' are ignored. It returns when r is exhausted or ctx is done.
func serveCommands(ctx context.Context, r io.Reader, w io.Writer, d LineDispatcher, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		result, err := d.DispatchLine(line)
		switch {
		case err != nil:
			fmt.Fprintf(w, "ERR %v\n", err)
		case result == nil:
			fmt.Fprintln(w, "OK")
		default:
			fmt.Fprintf(w, "OK %v\n", result)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("Command input failed", "error", err)
		return
	}
	logger.Debug("Command input closed")
}
