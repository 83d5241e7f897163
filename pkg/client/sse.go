package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// doneSentinel terminates an SSE stream.
const doneSentinel = "[DONE]"

// maxSSELine bounds a single SSE frame; updateBlock frames carry the full
// accumulated answer text.
const maxSSELine = 4 * 1024 * 1024

// ParseSSE reads an SSE stream, invoking fn for each data payload. Comment
// lines (leading ':') are keep-alives and are skipped; the [DONE] sentinel
// or EOF ends parsing. A non-nil error from fn aborts the stream.
func ParseSSE(r io.Reader, fn func(data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "", strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "data: "):
			payload := strings.TrimPrefix(line, "data: ")
			if payload == doneSentinel {
				return nil
			}
			if err := fn([]byte(payload)); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read SSE stream: %w", err)
	}
	return nil
}
