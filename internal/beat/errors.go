// SPDX-License-Identifier: MIT
package beat

import "errors"

var (
	// ErrInvalidConfig is returned (wrapped) by Config.Validate and every
	// constructor in this package when a parameter cannot produce a working
	// pipeline.
	ErrInvalidConfig = errors.New("invalid beat configuration")
)
