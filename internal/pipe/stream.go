// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipe

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of a streamed run body.
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	chunkCount  int
}

// NewStreamReader creates a stream reader over an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Process reads the stream and calls the callback for each chunk.
// Blocks until the stream completes or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			chunk, err := s.readChunk()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			if chunk != nil {
				if callback != nil {
					callback(*chunk)
				}
				if chunk.Done {
					return nil
				}
			}
		}
	}
}

// readChunk reads and parses a single line from the stream.
func (s *StreamReader) readChunk() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		// Process the last unterminated line on EOF.
		if len(line) == 0 {
			return nil, err
		}
	}

	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(trimmed), &chunk); err != nil {
		// Skip malformed lines
		return nil, nil
	}

	if chunk.Content != "" {
		s.accumulator.WriteString(chunk.Content)
		s.chunkCount++
	}

	return &chunk, nil
}

// Accumulated returns all content received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// ChunkCount returns the number of non-empty chunks received.
func (s *StreamReader) ChunkCount() int {
	return s.chunkCount
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// Accumulator collects streamed chunks for callers that only need the final
// text. Safe for use from a single goroutine.
type Accumulator struct {
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	content strings.Builder
	done    bool
	err     error
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add processes a new chunk.
func (a *Accumulator) Add(chunk StreamChunk) {
	if chunk.Error != nil {
		a.err = chunk.Error
		a.done = true
		return
	}
	a.content.WriteString(chunk.Content)
	if chunk.Done {
		a.done = true
	}
}

// Content returns the accumulated content.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// IsDone returns whether streaming completed.
func (a *Accumulator) IsDone() bool {
	return a.done
}

// Err returns any error recorded during streaming.
func (a *Accumulator) Err() error {
	return a.err
}
