package sse

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/xiaot623/viper/internal/domain"
)

const readBufferSize = 4096

// DeltaFunc receives each decoded text fragment in stream order.
// Returning an error stops decoding.
type DeltaFunc func(delta string) error

// Stats describes one decoding pass.
type Stats struct {
	Deltas    int
	Malformed int
	Done      bool // the [DONE] sentinel was seen
}

// Decode consumes body and calls fn for every delta. Streaming bodies are
// decoded as SSE; anything else is treated as one complete JSON response.
func Decode(ctx context.Context, body io.Reader, streaming bool, fn DeltaFunc) (Stats, error) {
	if streaming {
		return Stream(ctx, body, fn)
	}
	return ReadJSON(ctx, body, fn)
}

// Stream reads r chunk by chunk until the [DONE] sentinel or the end of r.
// The context is checked before every read and before every delta; once it
// is cancelled Stream returns an Aborted error and drops buffered input.
func Stream(ctx context.Context, r io.Reader, fn DeltaFunc) (Stats, error) {
	var (
		dec   Decoder
		stats Stats
		buf   = make([]byte, readBufferSize)
	)

	emit := func(deltas []string) error {
		for _, delta := range deltas {
			if ctx.Err() != nil {
				return domain.AbortFromContext(ctx)
			}
			if err := fn(delta); err != nil {
				return err
			}
			stats.Deltas++
		}
		return nil
	}

	for {
		if ctx.Err() != nil {
			stats.Malformed = dec.Malformed()
			return stats, domain.AbortFromContext(ctx)
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			deltas, done := dec.Feed(buf[:n])
			if err := emit(deltas); err != nil {
				stats.Malformed = dec.Malformed()
				return stats, err
			}
			if done {
				stats.Malformed = dec.Malformed()
				stats.Done = true
				return stats, nil
			}
		}

		if errors.Is(readErr, io.EOF) {
			err := emit(dec.Flush())
			stats.Malformed = dec.Malformed()
			return stats, err
		}
		if readErr != nil {
			stats.Malformed = dec.Malformed()
			if ctx.Err() != nil {
				return stats, domain.AbortFromContext(ctx)
			}
			return stats, domain.NewNetworkError("read stream", readErr)
		}
	}
}

// ReadJSON handles a non-streaming response: the whole body is one
// chat.completion object whose content is emitted as a single fragment.
func ReadJSON(ctx context.Context, r io.Reader, fn DeltaFunc) (Stats, error) {
	var stats Stats
	if ctx.Err() != nil {
		return stats, domain.AbortFromContext(ctx)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		if ctx.Err() != nil {
			return stats, domain.AbortFromContext(ctx)
		}
		return stats, domain.NewNetworkError("read response", err)
	}

	var chunk Chunk
	if err := json.Unmarshal(body, &chunk); err != nil {
		stats.Malformed = 1
		return stats, domain.NewProtocolError(err)
	}

	stats.Done = true
	content := chunk.Content()
	if content == "" {
		return stats, nil
	}
	if ctx.Err() != nil {
		return stats, domain.AbortFromContext(ctx)
	}
	if err := fn(content); err != nil {
		return stats, err
	}
	stats.Deltas = 1
	return stats, nil
}
