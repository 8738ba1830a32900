package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// maxLineSize is the longest wire line accepted by ReadMessages
const maxLineSize = 4 * 1024 * 1024

// ReadMessages decodes wire lines from r and passes each message to fn until
// r is exhausted, ctx is cancelled or fn returns an error.  Malformed lines
// are handed to onBad, when set, and skipped.
func ReadMessages(ctx context.Context, r io.Reader, fn func(Message) error,
	onBad func(line []byte, err error)) error {

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {

		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()

		if len(line) == 0 {
			continue
		}

		msg, err := Decode(line)

		if err != nil {
			if onBad != nil {
				onBad(line, err)
			}
			continue
		}

		if err := fn(msg); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stream: %w", err)
	}

	return nil
}
