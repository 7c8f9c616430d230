// SPDX-License-Identifier: MIT
package analysis

// AudioProcessor is run by the engine on every capture buffer. Process is
// called from the real-time audio callback, so implementations must not
// block and should not allocate.
type AudioProcessor interface {
	// Process analyses one buffer of interleaved int32 samples.
	Process(inputBuffer []int32)
}

// ClosableProcessor combines AudioProcessor with a Close method for resource cleanup.
type ClosableProcessor interface {
	AudioProcessor
	Close() error
}
