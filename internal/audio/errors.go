// SPDX-License-Identifier: MIT
package audio

import "errors"

var (
	ErrAlreadyRecording    = errors.New("already recording")
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	ErrInvalidDevice       = errors.New("invalid device ID")
	ErrNoInput             = errors.New("device does not support input")
)
