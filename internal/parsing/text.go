// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package parsing

import "fmt"

func parseText(data []byte) (string, error) {
	text := string(data)
	if text == "" {
		return "", fmt.Errorf("no content in text file")
	}
	return text, nil
}
