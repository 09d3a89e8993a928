package port_reader

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Size of the channel between the serial reader goroutine and the decoder.
// Large enough to hold a few complete telegrams.
const queueSize = 8192

var ErrNoData = errors.New("no data available")

// SerialSource turns a blocking serial port into a polled byte source.
// A goroutine reads the port and queues bytes, Available and ReadByte never block.
type SerialSource struct {
	port   io.ReadCloser
	queue  chan byte
	done   chan struct{}
	stop   chan struct{}
	logger *zap.Logger

	mu      sync.Mutex
	readErr error
	once    sync.Once
}

// MemorySource serves bytes from memory. Used for replays and tests.
type MemorySource struct {
	data []byte
}
