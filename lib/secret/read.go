// Copyright 2026 The Davinto Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// ReadFromPath loads a secret from a file, or from stdin when path is
// "-". Surrounding whitespace is trimmed and every unprotected copy of
// the bytes is zeroed before returning. The caller must Close the
// returned buffer.
func ReadFromPath(path string) (*Buffer, error) {
	var raw []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			return nil, fmt.Errorf("stdin is empty")
		}
		raw = scanner.Bytes()
	} else {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		Zero(raw)
		return nil, fmt.Errorf("secret is empty")
	}

	// NewFromBytes zeros trimmed; the surrounding whitespace bytes in
	// raw still need zeroing separately.
	buffer, err := NewFromBytes(trimmed)
	Zero(raw)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
