// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import (
	"fmt"
	"os"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// parseDOCX extracts text from DOCX bytes. The docx library only reads
// from a path, so the bytes are staged to a temp file first.
func parseDOCX(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "hiverag-*.docx")
	if err != nil {
		return "", fmt.Errorf("failed to stage DOCX: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return "", fmt.Errorf("failed to write staged DOCX: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close staged DOCX: %w", err)
	}

	doc, err := docx.ReadDocxFile(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX file: %w", err)
	}
	defer doc.Close()

	text := strings.TrimSpace(doc.Editable().GetContent())
	if text == "" {
		return "", fmt.Errorf("no text extracted from DOCX")
	}
	return text, nil
}
