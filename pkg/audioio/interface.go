package audioio

import (
	"io"
	"sync"
)

// OutputDevice plays interleaved signed 16-bit little-endian pcm, see output_device.NewSpeakers.
type OutputDevice interface {
	Play(pcm io.Reader) (*sync.WaitGroup, error)
	Stop() error
}
