package telegram

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/NotCoffee418/p1_mini/pkg/obis"
)

// binaryCursor is the resumable walk position inside one binary telegram.
// code is the OBIS code of the last octet string seen, it applies to the
// next value tag.
type binaryCursor struct {
	started bool
	pos     int
	code    obis.Code
}

func (d *Decoder) processBinary(start time.Time) {
	d.cycle.processingLoops++
	if !d.binary.started {
		c := binaryFrameHeader
		for c <= d.crcPos && d.buf[c] != controlByte {
			c++
		}
		if c > d.crcPos {
			d.fail(CauseControlByteMissing, "Could not find control byte")
			return
		}
		d.binary = binaryCursor{started: true, pos: c + binaryControlSkip, code: obis.Invalid}
	}

	for n := 0; ; n++ {
		if d.binary.pos >= d.crcPos {
			d.changeState(StateWaiting)
			return
		}
		if n > 0 && d.now().Sub(start) >= processingBudget {
			return
		}
		if cause, msg := d.binaryTag(); cause != CauseNone {
			d.fail(cause, msg)
			return
		}
	}
}

// binaryTag consumes one tagged field at the cursor.
func (d *Decoder) binaryTag() (RecoveryCause, string) {
	p := d.binary.pos
	data := d.buf[:d.crcPos]
	tag := data[p]

	// Every field must end before the checksum
	fits := func(n int) bool { return p+n <= len(data) }

	size := 0
	switch tag {
	case tagNull:
		size = 1
	case tagArray, tagStruct, tagScalarUnit, tagEnum:
		size = 2
	case tagUint32:
		size = 5
		if fits(size) {
			v := binary.BigEndian.Uint32(data[p+1 : p+5])
			d.deliver(d.binary.code, float64(v)/1000)
		}
	case tagOctetString, tagString:
		if !fits(2) {
			return CauseTruncatedField, fmt.Sprintf("Truncated data type 0x%02x", tag)
		}
		size = 2 + int(data[p+1])
		if tag == tagOctetString && data[p+1] == 6 && fits(size) {
			// A-B:C.D.E.F, only C.D.E identify the value
			d.binary.code = obis.New(uint32(data[p+4]), uint32(data[p+5]), uint32(data[p+6]))
		}
	case tagDateTime:
		size = 13
	case tagUint16:
		size = 3
		if fits(size) {
			v := binary.BigEndian.Uint16(data[p+1 : p+3])
			d.deliver(d.binary.code, float64(v)/10)
		}
	case tagInt16:
		size = 3
		if fits(size) {
			v := int16(binary.BigEndian.Uint16(data[p+1 : p+3]))
			d.deliver(d.binary.code, float64(v)/10)
		}
	default:
		return CauseUnsupportedTag, fmt.Sprintf("Unsupported data type 0x%02x", tag)
	}
	if !fits(size) {
		return CauseTruncatedField, fmt.Sprintf("Truncated data type 0x%02x", tag)
	}
	d.binary.pos += size
	return CauseNone, ""
}
