package claudeagent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// Envelope carries one decoded upstream message or a failure.
// An envelope with a non-nil Err is always the last one on its channel.
type Envelope struct {
	Message Message
	Err     error
}

// maxLineSize bounds a single NDJSON line (large tool results can be several MB).
const maxLineSize = 16 * 1024 * 1024

// Decode reads newline-delimited JSON messages from r and sends them on the
// returned channel in order. Blank lines are skipped. A read or parse failure
// is sent as a final Err envelope. The channel is closed when r is exhausted,
// on failure, or when ctx is cancelled.
func Decode(ctx context.Context, r io.Reader) <-chan Envelope {
	out := make(chan Envelope, 16)

	go func() {
		defer close(out)

		send := func(env Envelope) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- env:
				return true
			}
		}

		reader := bufio.NewReaderSize(r, 64*1024)
		lineNum := 0
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				lineNum++
				if len(line) > maxLineSize {
					send(Envelope{Err: fmt.Errorf("line %d: exceeds %d bytes", lineNum, maxLineSize)})
					return
				}
				trimmed := bytes.TrimSpace(line)
				if len(trimmed) > 0 {
					msg, perr := ParseMessage(trimmed)
					if perr != nil {
						send(Envelope{Err: fmt.Errorf("line %d: %w", lineNum, perr)})
						return
					}
					if !send(Envelope{Message: msg}) {
						return
					}
				}
			}

			if err != nil {
				if !errors.Is(err, io.EOF) {
					send(Envelope{Err: fmt.Errorf("read upstream: %w", err)})
				}
				return
			}
		}
	}()

	return out
}
