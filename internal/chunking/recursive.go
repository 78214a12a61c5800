// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunking

import "strings"

// splitRecursive splits text into overlapping chunks, preferring sentence
// or paragraph boundaries over a hard character cutoff. This is the
// teacher's original chunker, generalized to take its size and overlap
// from the caller's Plan instead of fixed defaults.
func splitRecursive(text string, plan Plan) ([]Piece, error) {
	size := plan.Size
	if size <= 0 {
		size = 1000
	}
	overlap := plan.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 100
	}

	var chunks []string
	start := 0
	textLen := len(text)

	for start < textLen {
		end := start + size
		if end > textLen {
			end = textLen
		}

		if end < textLen {
			searchStart := end - 200
			if searchStart < start {
				searchStart = start
			}

			bestBreak := end
			for i := end - 1; i >= searchStart; i-- {
				char := text[i]
				if (char == '.' || char == '!' || char == '?') && i+1 < len(text) {
					next := text[i+1]
					if next == ' ' || next == '\n' || next == '\r' {
						bestBreak = i + 1
						break
					}
				}
				if i+1 < len(text) && char == '\n' && text[i+1] == '\n' {
					bestBreak = i + 2
					break
				}
			}
			if bestBreak > start {
				end = bestBreak
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if len(chunk) > 0 {
			chunks = append(chunks, chunk)
		}

		if end >= textLen {
			break
		}

		start = end - overlap
		if start < 0 {
			start = 0
		}
		if start >= end {
			start = end
		}
	}

	return dense(chunks), nil
}
