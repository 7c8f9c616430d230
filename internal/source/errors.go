// SPDX-License-Identifier: MIT
package source

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNotWAV            = errors.New("not a WAV file")
	ErrUnsupportedWAV    = errors.New("only integer PCM WAV is supported")
)
