// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package parsing is the ingestion pipeline's text-extraction boundary: it
// turns the raw bytes blobstore hands back into plain text, dispatching by
// file extension the way the teacher's internal/parser package did for a
// fixed local-disk layout.
package parsing

import (
	"path/filepath"
	"strings"

	"github.com/northbound/hiverag/internal/errs"
)

// Extract routes filename's bytes to the parser for its extension and
// returns the plain text an ingestion job will chunk. filename is used
// only to resolve the extension; data is the document's full content as
// retrieved from blob storage.
func Extract(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var text string
	var err error
	switch ext {
	case ".pdf":
		text, err = parsePDF(data)
	case ".docx":
		text, err = parseDOCX(data)
	case ".txt", ".md":
		text, err = parseText(data)
	case ".xlsx", ".xls":
		text, err = parseExcel(data)
	case ".html", ".htm":
		text, err = parseHTML(data)
	case ".eml":
		text, err = parseEmail(data)
	default:
		return "", errs.New(errs.Validation, "parsing", "unsupported file type: %s", ext)
	}
	if err != nil {
		return "", errs.Wrap(errs.Validation, "parsing", err, "extract %s", filename)
	}
	return text, nil
}

// IsSupported reports whether filename's extension has a registered parser.
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf", ".docx", ".txt", ".md", ".xlsx", ".xls", ".html", ".htm", ".eml":
		return true
	default:
		return false
	}
}

// IsTemporaryFile flags editor/OS lockfiles (~$doc.docx, ._doc, *.tmp) that
// a folder-watching ingestion source should silently skip.
func IsTemporaryFile(filename string) bool {
	base := filepath.Base(filename)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, "._") {
		return true
	}
	return strings.HasSuffix(base, ".tmp")
}
