package telegram

import (
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// Source is the transport the decoder polls for bytes. Implementations must
// never block: Available reports whether ReadByte can return immediately.
type Source interface {
	Available() bool
	ReadByte() (byte, error)
}

// Sensor receives decoded measurement values for one OBIS code.
type Sensor interface {
	Deliver(value float64)
}

// SensorFunc adapts a plain function to the Sensor interface.
type SensorFunc func(value float64)

func (f SensorFunc) Deliver(value float64) { f(value) }

// Config is fixed at construction, there is no runtime reconfiguration.
type Config struct {
	// MinPeriod is the minimum time between the start of two telegram cycles.
	MinPeriod time.Duration
	// BufferSize is the receive buffer capacity in bytes. Zero selects DefaultBufferSize.
	BufferSize int
	// Passthrough receives every byte read from the source when non-nil
	// (the "secondary P1" repeater).
	Passthrough io.Writer
	Logger      *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

const (
	DefaultBufferSize = 2048
	MinBufferSize     = 16
	MaxBufferSize     = 1 << 20
)

const (
	identifyTimeout  = 60 * time.Second
	messageTimeout   = 10 * time.Second
	quietPeriod      = 500 * time.Millisecond
	processingBudget = 25 * time.Millisecond

	maxDiscardPerTick = 200

	asciiStart  byte = '/'
	asciiCRC    byte = '!'
	binaryFlag  byte = 0x7e
	controlByte byte = 0x13

	// Top three bits of the second frame byte (HDLC frame format type 3)
	frameFormatMask byte = 0xe0
	frameFormat     byte = 0xa0
	// Remaining five bits are the high bits of the frame length
	frameLengthMask byte = 0x1f

	// 0x7e, format/length (2)
	binaryFrameHeader = 3
	// control byte, HCS (2), LLC (3)
	binaryControlSkip = 6

	hexDumpBytesPerLine = 40
)

var (
	ErrNoSource   = errors.New("no byte source")
	ErrBufferSize = errors.New("invalid buffer size")
	ErrMinPeriod  = errors.New("negative minimum period")
)

// State of the frame acquisition state machine.
type State int

const (
	StateIdentifyingMessage State = iota
	StateReadingMessage
	StateVerifyingCRC
	StateProcessingASCII
	StateProcessingBinary
	StateWaiting
	StateErrorRecovery
)

func (s State) String() string {
	switch s {
	case StateIdentifyingMessage:
		return "IDENTIFYING_MESSAGE"
	case StateReadingMessage:
		return "READING_MESSAGE"
	case StateVerifyingCRC:
		return "VERIFYING_CRC"
	case StateProcessingASCII:
		return "PROCESSING_ASCII"
	case StateProcessingBinary:
		return "PROCESSING_BINARY"
	case StateWaiting:
		return "WAITING"
	case StateErrorRecovery:
		return "ERROR_RECOVERY"
	}
	return "UNKNOWN"
}

// Format is the wire format detected from the first byte of a telegram.
type Format int

const (
	FormatUnknown Format = iota
	FormatASCII
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatASCII:
		return "ASCII"
	case FormatBinary:
		return "BINARY"
	}
	return "UNKNOWN"
}

// RecoveryCause tells why the decoder entered ERROR_RECOVERY.
type RecoveryCause int

const (
	CauseNone RecoveryCause = iota
	CauseTransportStall
	CauseReadError
	CauseUnknownFormat
	CauseFrameHeader
	CauseUnexpectedEnd
	CauseOverrun
	CauseIncomplete
	CauseCRCMismatch
	CauseControlByteMissing
	CauseUnsupportedTag
	CauseTruncatedField

	causeCount
)

func (c RecoveryCause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseTransportStall:
		return "transport stall"
	case CauseReadError:
		return "read error"
	case CauseUnknownFormat:
		return "unknown data format"
	case CauseFrameHeader:
		return "unknown frame format"
	case CauseUnexpectedEnd:
		return "unexpected frame end"
	case CauseOverrun:
		return "buffer overrun"
	case CauseIncomplete:
		return "incomplete telegram"
	case CauseCRCMismatch:
		return "crc mismatch"
	case CauseControlByteMissing:
		return "control byte missing"
	case CauseUnsupportedTag:
		return "unsupported data type"
	case CauseTruncatedField:
		return "truncated field"
	}
	return "unknown"
}

// HDLC/COSEM data type tags understood by the binary decoder.
const (
	tagNull        byte = 0x00
	tagArray       byte = 0x01
	tagStruct      byte = 0x02
	tagUint32      byte = 0x06
	tagOctetString byte = 0x09
	tagString      byte = 0x0a
	tagDateTime    byte = 0x0c
	tagScalarUnit  byte = 0x0f
	tagUint16      byte = 0x10
	tagInt16       byte = 0x12
	tagEnum        byte = 0x16
)
