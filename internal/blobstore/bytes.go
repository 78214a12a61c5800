// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package blobstore

import "bytes"

func bytesReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}
