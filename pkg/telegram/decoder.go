// Package telegram acquires and decodes P1 telegrams from a smart meter.
//
// The Decoder is a cooperative state machine: the host calls Tick repeatedly
// and every call returns promptly. Bytes are polled from a Source, assembled
// into a CRC verified frame (ASCII/DSMR or binary/HDLC) and the measurement
// values found in the frame are delivered to the sensors registered for their
// OBIS codes.
//
// A Decoder is not safe for concurrent use. Sensors and lifecycle observers are
// invoked synchronously from Tick.
package telegram

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/NotCoffee418/p1_mini/pkg/checksum"
	"github.com/NotCoffee418/p1_mini/pkg/obis"
	"go.uber.org/zap"
)

const statsLogInterval = time.Hour

// Decoder owns the receive buffer and drives all decoding.
type Decoder struct {
	cfg    Config
	src    Source
	logger *zap.Logger
	now    func() time.Time

	state  State
	format Format

	// Fixed capacity, allocated once. pos is the number of bytes received in
	// the current cycle, crcPos the offset of the trailing checksum (0 = unknown).
	buf    []byte
	pos    int
	crcPos int

	// Saved cursors of the processing states
	line   int
	binary binaryCursor

	sensors *Registry

	readyToReceive     []func()
	updateReceived     []func()
	communicationError []func()

	discard *discardLog
	stats   Statistics
	cycle   cycleTimes

	scratch [1]byte
}

type cycleTimes struct {
	identifying   time.Time
	reading       time.Time
	verifying     time.Time
	processing    time.Time
	waiting       time.Time
	errorRecovery time.Time
	lastDiscard   time.Time

	messageLoops    int
	processingLoops int
	show            bool
}

// NewDecoder validates cfg and allocates the receive buffer.
// The decoder starts in ERROR_RECOVERY to force a clean resynchronization.
func NewDecoder(cfg Config, src Source) (*Decoder, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.BufferSize < MinBufferSize || cfg.BufferSize > MaxBufferSize {
		return nil, fmt.Errorf("%w: %d (allowed %d-%d)", ErrBufferSize, cfg.BufferSize, MinBufferSize, MaxBufferSize)
	}
	if cfg.MinPeriod < 0 {
		return nil, fmt.Errorf("%w: %v", ErrMinPeriod, cfg.MinPeriod)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	logger := cfg.Logger.Named("p1")
	d := &Decoder{
		cfg:     cfg,
		src:     src,
		logger:  logger,
		now:     cfg.Clock,
		state:   StateErrorRecovery,
		buf:     make([]byte, cfg.BufferSize),
		sensors: newRegistry(logger),
		discard: newDiscardLog(logger),
	}
	d.cycle.errorRecovery = d.now()
	return d, nil
}

// RegisterSensor binds s to the textual "major.minor.micro" OBIS code.
// A malformed code is reported and yields obis.Invalid, which never matches.
func (d *Decoder) RegisterSensor(code string, s Sensor) obis.Code {
	return d.sensors.Register(code, s)
}

func (d *Decoder) OnReadyToReceive(f func()) { d.readyToReceive = append(d.readyToReceive, f) }
func (d *Decoder) OnUpdateReceived(f func()) { d.updateReceived = append(d.updateReceived, f) }
func (d *Decoder) OnCommunicationError(f func()) { d.communicationError = append(d.communicationError, f) }

func (d *Decoder) State() State { return d.state }
func (d *Decoder) Format() Format { return d.format }
func (d *Decoder) Stats() Statistics { return d.stats }
func (d *Decoder) Sensors() *Registry { return d.sensors }
func (d *Decoder) BufferCapacity() int { return len(d.buf) }

func (d *Decoder) DumpConfig() {
	d.logger.Info("P1 Mini component",
		zap.Duration("minimum_period", d.cfg.MinPeriod),
		zap.Int("buffer_size", len(d.buf)),
		zap.Bool("secondary_p1", d.cfg.Passthrough != nil),
		zap.Int("sensors", d.sensors.Len()),
	)
}

// Run ticks the decoder every interval until ctx is done.
func (d *Decoder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	stats := time.NewTicker(statsLogInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick()
		case <-stats.C:
			d.logger.Info("statistics", zap.Stringer("stats", d.stats))
		}
	}
}

// Tick performs one bounded step of the state machine.
func (d *Decoder) Tick() {
	start := d.now()
	switch d.state {
	case StateIdentifyingMessage:
		// Identification and the first read are one step: yielding in between
		// lets the transport buffer overflow on fast lines.
		if d.identify(start) {
			d.readMessage(start)
		}
	case StateReadingMessage:
		d.readMessage(start)
	case StateVerifyingCRC:
		d.verifyCRC()
	case StateProcessingASCII:
		d.processASCII(start)
	case StateProcessingBinary:
		d.processBinary(start)
	case StateWaiting:
		d.wait(start)
	case StateErrorRecovery:
		d.recover(start)
	}
}

func (d *Decoder) getByte() (byte, error) {
	b, err := d.src.ReadByte()
	if err != nil {
		return 0, err
	}
	if d.cfg.Passthrough != nil {
		d.scratch[0] = b
		if _, err := d.cfg.Passthrough.Write(d.scratch[:]); err != nil {
			d.logger.Debug("passthrough write failed", zap.Error(err))
		}
	}
	return b, nil
}

func (d *Decoder) identify(start time.Time) bool {
	if !d.src.Available() {
		if start.Sub(d.cycle.identifying) > identifyTimeout {
			d.fail(CauseTransportStall, "No data received", zap.Duration("timeout", identifyTimeout))
		}
		return false
	}
	b, err := d.getByte()
	if err != nil {
		d.fail(CauseReadError, "Read failed", zap.Error(err))
		return false
	}
	switch b {
	case asciiStart:
		d.logger.Debug("ASCII data format")
		d.format = FormatASCII
	case binaryFlag:
		d.logger.Debug("BINARY data format")
		d.format = FormatBinary
	default:
		d.fail(CauseUnknownFormat, "Unknown data format", zap.String("byte", fmt.Sprintf("0x%02X", b)))
		return false
	}
	d.buf[0] = b
	d.pos = 1
	d.changeState(StateReadingMessage)
	return true
}

func (d *Decoder) readMessage(start time.Time) {
	d.cycle.messageLoops++
	for d.src.Available() {
		b, err := d.getByte()
		if err != nil {
			d.fail(CauseReadError, "Read failed", zap.Error(err))
			return
		}
		// pos < len(buf) holds here: reaching capacity below always leaves this state.
		d.buf[d.pos] = b
		d.pos++

		switch d.format {
		case FormatASCII:
			// Main message is complete, the CRC comes next
			if b == asciiCRC {
				d.crcPos = d.pos
			}
		case FormatBinary:
			if d.pos == binaryFrameHeader {
				if d.buf[1]&frameFormatMask != frameFormat {
					d.fail(CauseFrameHeader, "Unknown frame format", zap.String("byte", fmt.Sprintf("0x%02X", d.buf[1])))
					return
				}
				d.crcPos = (int(d.buf[1]&frameLengthMask)<<8 | int(d.buf[2])) - 1
				if d.crcPos < binaryFrameHeader {
					d.fail(CauseFrameHeader, "Frame length too short", zap.Int("crc_position", d.crcPos))
					return
				}
				if d.crcPos+3 > len(d.buf) {
					d.fail(CauseOverrun, "Frame does not fit in message buffer",
						zap.Int("frame_bytes", d.crcPos+3), zap.Int("buffer_size", len(d.buf)))
					return
				}
			}
		}

		if d.crcPos > 0 && d.pos > d.crcPos {
			if d.format == FormatASCII && b == '\n' {
				d.logger.Debug("Telegram received", zap.Int("bytes", d.pos), zap.Int("crc_position", d.crcPos))
				d.changeState(StateVerifyingCRC)
				return
			}
			if d.format == FormatBinary && d.pos == d.crcPos+3 {
				if b != binaryFlag {
					d.fail(CauseUnexpectedEnd, "Unexpected end", zap.String("byte", fmt.Sprintf("0x%02X", b)))
					return
				}
				d.changeState(StateVerifyingCRC)
				return
			}
		}
		if d.pos == len(d.buf) {
			d.fail(CauseOverrun, "Message buffer overrun", zap.Int("buffer_size", len(d.buf)))
			return
		}
		if d.now().Sub(start) >= processingBudget {
			break
		}
	}
	if start.Sub(d.cycle.reading) > messageTimeout {
		d.fail(CauseIncomplete, "Complete message not received", zap.Duration("timeout", messageTimeout))
	}
}

func (d *Decoder) verifyCRC() {
	var expected, computed int
	switch d.format {
	case FormatASCII:
		expected = parseHexCRC(d.buf[d.crcPos:d.pos])
		computed = int(checksum.CCITTFalse(d.buf[:d.crcPos]))
	case FormatBinary:
		expected = int(d.buf[d.crcPos+1])<<8 | int(d.buf[d.crcPos])
		computed = int(checksum.X25(d.buf[1:d.crcPos]))
	default:
		d.fail(CauseUnknownFormat, "Unknown data format")
		return
	}

	if expected == computed {
		d.logger.Debug("CRC verification OK")
		d.stats.Telegrams++
		if d.format == FormatASCII {
			d.stats.ASCIITelegrams++
			d.changeState(StateProcessingASCII)
		} else {
			d.stats.BinaryTelegrams++
			d.changeState(StateProcessingBinary)
		}
		return
	}

	d.logger.Warn("CRC mismatch, message ignored",
		zap.String("calculated", fmt.Sprintf("%04X", computed)),
		zap.String("received", fmt.Sprintf("%04X", expected)))
	if d.format == FormatASCII {
		d.logger.Debug(fmt.Sprintf("Buffer:\n%s (%d)", d.buf[:d.pos], d.pos))
	} else {
		d.logger.Debug("Buffer:")
		for i := 0; i < d.pos; i += hexDumpBytesPerLine {
			d.logger.Debug(hex.EncodeToString(d.buf[i:min(i+hexDumpBytesPerLine, d.pos)]))
		}
	}
	d.stats.CRCErrors++
	d.fail(CauseCRCMismatch, "Resetting after CRC mismatch")
}

// parseHexCRC reads the hex digits following the '!' marker.
// Returns -1 when there are none or they do not fit 16 bits, which never
// equals a computed checksum.
func parseHexCRC(b []byte) int {
	crc := 0
	n := 0
	for _, c := range b {
		v, ok := hexValue(c)
		if !ok {
			break
		}
		crc = crc<<4 | v
		if crc > 0xffff {
			return -1
		}
		n++
	}
	if n == 0 {
		return -1
	}
	return crc
}

func hexValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	}
	return 0, false
}

func (d *Decoder) wait(start time.Time) {
	if d.cycle.show {
		d.cycle.show = false
		d.logger.Debug("Cycle times",
			zap.Duration("identifying", d.cycle.reading.Sub(d.cycle.identifying)),
			zap.Duration("message", d.cycle.processing.Sub(d.cycle.reading)),
			zap.Int("message_loops", d.cycle.messageLoops),
			zap.Duration("processing", d.cycle.waiting.Sub(d.cycle.processing)),
			zap.Int("processing_loops", d.cycle.processingLoops),
			zap.Duration("total", d.cycle.waiting.Sub(d.cycle.identifying)),
			zap.Int("bytes", d.pos),
		)
	}
	if start.Sub(d.cycle.identifying) >= d.cfg.MinPeriod {
		d.changeState(StateIdentifyingMessage)
	}
}

func (d *Decoder) recover(start time.Time) {
	if d.src.Available() {
		for n := 0; n < maxDiscardPerTick && d.src.Available(); n++ {
			b, err := d.getByte()
			if err != nil {
				d.logger.Debug("Read failed while discarding", zap.Error(err))
				break
			}
			d.discard.add(b)
			d.stats.BytesDiscarded++
		}
		d.cycle.lastDiscard = start
		return
	}
	quietSince := d.cycle.errorRecovery
	if d.cycle.lastDiscard.After(quietSince) {
		quietSince = d.cycle.lastDiscard
	}
	if start.Sub(quietSince) > quietPeriod {
		d.changeState(StateWaiting)
		d.discard.flush()
	}
}

// fail logs the cause and resynchronizes through ERROR_RECOVERY.
func (d *Decoder) fail(cause RecoveryCause, msg string, fields ...zap.Field) {
	fields = append(fields, zap.Stringer("state", d.state), zap.Stringer("cause", cause))
	d.logger.Warn(msg+". Resetting.", fields...)
	d.stats.Recoveries[cause]++
	d.changeState(StateErrorRecovery)
}

func (d *Decoder) changeState(next State) {
	now := d.now()
	prev := d.state
	d.state = next

	switch next {
	case StateIdentifyingMessage:
		d.cycle.identifying = now
		d.pos, d.crcPos = 0, 0
		d.cycle.messageLoops, d.cycle.processingLoops = 0, 0
		d.format = FormatUnknown
		d.binary = binaryCursor{}
		notify(d.readyToReceive)
	case StateReadingMessage:
		d.cycle.reading = now
	case StateVerifyingCRC:
		d.cycle.verifying = now
		notify(d.updateReceived)
	case StateProcessingASCII, StateProcessingBinary:
		d.cycle.processing = now
		d.line = 0
		d.binary = binaryCursor{}
	case StateWaiting:
		if prev != StateErrorRecovery {
			d.cycle.show = true
		}
		d.cycle.waiting = now
	case StateErrorRecovery:
		d.cycle.errorRecovery = now
		notify(d.communicationError)
	}
}

func notify(observers []func()) {
	for _, f := range observers {
		f()
	}
}
