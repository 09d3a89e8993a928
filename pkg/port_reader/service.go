package port_reader

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
)

// OpenPort opens a serial device with the 8N1 settings used by P1 ports.
func OpenPort(device string, baudrate uint) (io.ReadWriteCloser, error) {
	options := serial.OpenOptions{
		PortName:        device,
		BaudRate:        baudrate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	return port, nil
}

// Open connects to the P1 port and starts reading it.
func Open(device string, baudrate uint, logger *zap.Logger) (*SerialSource, error) {
	port, err := OpenPort(device, baudrate)
	if err != nil {
		return nil, err
	}
	s := NewSerialSource(port, logger)
	s.logger.Info("Connected to P1 port", zap.String("device", device), zap.Uint("baudrate", baudrate))
	return s, nil
}

// NewSerialSource starts the reader goroutine on an already open port.
func NewSerialSource(port io.ReadCloser, logger *zap.Logger) *SerialSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SerialSource{
		port:   port,
		queue:  make(chan byte, queueSize),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		logger: logger.Named("port_reader"),
	}
	go s.readLoop()
	return s
}

func (s *SerialSource) readLoop() {
	defer close(s.done)
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		for _, b := range buf[:n] {
			select {
			case s.queue <- b:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			select {
			case <-s.stop:
				// Closed by us
				return
			default:
			}
			if err == io.EOF {
				s.logger.Info("EOF from serial device")
			} else {
				s.logger.Error("Error reading serial device", zap.Error(err))
			}
			return
		}
	}
}

func (s *SerialSource) Available() bool {
	return len(s.queue) > 0
}

func (s *SerialSource) ReadByte() (byte, error) {
	select {
	case b := <-s.queue:
		return b, nil
	default:
		return 0, ErrNoData
	}
}

// Done is closed once the port can no longer be read.
func (s *SerialSource) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped the reader, if any.
func (s *SerialSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

func (s *SerialSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.port.Close()
		s.logger.Info("Disconnected from P1 port")
	})
	return err
}

func NewMemorySource(data []byte) *MemorySource {
	return &MemorySource{data: append([]byte(nil), data...)}
}

// Feed queues more bytes behind the pending ones.
func (m *MemorySource) Feed(data []byte) {
	m.data = append(m.data, data...)
}

func (m *MemorySource) Available() bool {
	return len(m.data) > 0
}

func (m *MemorySource) ReadByte() (byte, error) {
	if len(m.data) == 0 {
		return 0, io.EOF
	}
	b := m.data[0]
	m.data = m.data[1:]
	return b, nil
}

// Len is the number of bytes not yet read.
func (m *MemorySource) Len() int {
	return len(m.data)
}
