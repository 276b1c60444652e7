// Package output_device talks to real sound hardware, it needs cgo on most platforms.
package output_device

import (
	"io"
	"sync"
)

// AudioOutputDevice satisfies audioio.OutputDevice.
type AudioOutputDevice interface {
	Play(pcm io.Reader) (*sync.WaitGroup, error)
	Stop() error
}
