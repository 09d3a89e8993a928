package telegram

import (
	"regexp"
	"strconv"
	"time"

	"github.com/NotCoffee418/p1_mini/pkg/obis"
	"go.uber.org/zap"
)

// Electricity value lines: 1-0:<major>.<minor>.<micro>(<value>...
var valueLinePattern = regexp.MustCompile(`^1-0:([-+]?\d+)\.([-+]?\d+)\.([-+]?\d+)\(\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)`)

func (d *Decoder) processASCII(start time.Time) {
	d.cycle.processingLoops++
	for {
		if d.asciiLine() {
			d.changeState(StateWaiting)
			return
		}
		if d.now().Sub(start) >= processingBudget {
			return
		}
	}
}

// asciiLine handles the line at the saved cursor and advances it.
// Returns true once the end of the telegram ('!') is reached.
func (d *Decoder) asciiLine() bool {
	i := d.line
	for i < d.pos && (d.buf[i] == '\n' || d.buf[i] == '\r') {
		i++
	}
	end := i
	for end < d.pos && !isLineEnd(d.buf[end]) {
		end++
	}
	if end > i {
		d.parseLine(d.buf[i:end])
	}
	if end >= d.pos || d.buf[end] == 0 || d.buf[end] == asciiCRC {
		return true
	}
	d.line = end + 1
	return false
}

func isLineEnd(c byte) bool {
	return c == '\n' || c == '\r' || c == 0 || c == asciiCRC
}

func (d *Decoder) parseLine(line []byte) {
	m := valueLinePattern.FindSubmatch(line)
	if m == nil {
		d.stats.UnparsedLines++
		d.logger.Debug("Could not parse value from line", zap.ByteString("line", line))
		return
	}
	var parts [3]int64
	for n := range parts {
		v, err := strconv.ParseInt(string(m[n+1]), 10, 64)
		if err != nil {
			d.stats.UnparsedLines++
			d.logger.Debug("Could not parse OBIS code from line", zap.ByteString("line", line), zap.Error(err))
			return
		}
		parts[n] = v
	}
	value, err := strconv.ParseFloat(string(m[4]), 64)
	if err != nil {
		d.stats.UnparsedLines++
		d.logger.Debug("Could not parse value from line", zap.ByteString("line", line), zap.Error(err))
		return
	}
	d.deliver(obis.New(uint32(parts[0]), uint32(parts[1]), uint32(parts[2])), value)
}

// deliver hands value to the sensors registered for code.
func (d *Decoder) deliver(code obis.Code, value float64) {
	if n := d.sensors.dispatch(code, value); n > 0 {
		d.stats.ValuesDispatched += uint64(n)
		return
	}
	d.stats.UnknownCodes++
	d.logger.Debug("No sensor matching", zap.Stringer("obis", code), zap.String("packed", "0x"+strconv.FormatUint(uint64(code), 16)))
}
