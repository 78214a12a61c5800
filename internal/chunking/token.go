// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunking

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/northbound/hiverag/internal/errs"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

// getEncoding returns the tokenizer used to measure token-strategy chunk
// boundaries. It always loads cl100k_base; splitToken offers no way to
// supply a different tokenizer or token counter.
func getEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoding, encodingErr
}

// splitToken splits text into fixed-size windows measured in model
// tokens rather than characters, for callers that need precise control
// over prompt/embedding budget (§4.6 — the token strategy).
func splitToken(text string, plan Plan) ([]Piece, error) {
	size := plan.Size
	if size <= 0 {
		size = 256
	}
	overlap := plan.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 32
	}

	enc, err := getEncoding()
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "chunking.token", err, "load tokenizer")
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	var pieces []Piece
	start := 0
	for start < len(tokens) {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		piece := enc.Decode(tokens[start:end])
		if piece != "" {
			pieces = append(pieces, Piece{Index: len(pieces), Text: piece})
		}
		if end >= len(tokens) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return pieces, nil
}
