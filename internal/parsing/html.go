// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// parseHTML extracts text from HTML bytes, removing script/style/noscript
// tags before collecting text content.
func parseHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Text()
	if text == "" {
		return "", fmt.Errorf("no text extracted from HTML")
	}
	return text, nil
}
