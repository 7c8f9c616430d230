// SPDX-License-Identifier: MIT
package transport

import "errors"

var (
	ErrClosed    = errors.New("transport closed")
	ErrMalformed = errors.New("malformed frame")
)
