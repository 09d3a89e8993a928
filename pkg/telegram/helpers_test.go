package telegram

import (
	"fmt"
	"testing"
	"time"

	"github.com/NotCoffee418/p1_mini/pkg/checksum"
	"github.com/NotCoffee418/p1_mini/pkg/obis"
	"github.com/NotCoffee418/p1_mini/pkg/port_reader"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	t    time.Time
	step time.Duration // added on every reading
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type dispatch struct {
	code  obis.Code
	value float64
}

type harness struct {
	t      *testing.T
	clock  *fakeClock
	src    *port_reader.MemorySource
	dec    *Decoder
	calls  []dispatch
	events []string
}

func newHarness(t *testing.T, cfg Config, codes ...string) *harness {
	t.Helper()
	h := &harness{t: t, clock: newFakeClock(), src: port_reader.NewMemorySource(nil)}
	cfg.Clock = h.clock.Now
	cfg.Logger = zaptest.NewLogger(t)
	dec, err := NewDecoder(cfg, h.src)
	require.NoError(t, err)
	h.dec = dec
	for _, code := range codes {
		c := obis.Parse(code)
		dec.RegisterSensor(code, SensorFunc(func(v float64) {
			h.calls = append(h.calls, dispatch{c, v})
		}))
	}
	dec.OnReadyToReceive(func() { h.events = append(h.events, "ready") })
	dec.OnUpdateReceived(func() { h.events = append(h.events, "update") })
	dec.OnCommunicationError(func() { h.events = append(h.events, "error") })
	return h
}

// tickUntil ticks (advancing the clock by step before each tick) until the
// decoder is in want. Fails after max ticks.
func (h *harness) tickUntil(want State, step time.Duration, max int) {
	h.t.Helper()
	for i := 0; i < max; i++ {
		if h.dec.State() == want {
			return
		}
		h.clock.Advance(step)
		h.dec.Tick()
	}
	require.Equal(h.t, want, h.dec.State(), "state not reached after %d ticks", max)
}

// ready brings a fresh decoder from the initial ERROR_RECOVERY to IDENTIFYING_MESSAGE.
func (h *harness) ready() {
	h.t.Helper()
	h.tickUntil(StateIdentifyingMessage, 100*time.Millisecond, 20)
	h.events = nil
}

func asciiTelegram(body string) []byte {
	return []byte(fmt.Sprintf("%s%04X\r\n", body, checksum.CCITTFalse([]byte(body))))
}

const sampleBody = "/ISk5\\2MT382-1000\r\n\r\n1-0:1.8.0(001234.567*kWh)\r\n!"

// binaryFrame wraps payload (the bytes following the LLC header) in an HDLC
// frame with correct length and frame check sequence.
func binaryFrame(payload []byte) []byte {
	body := []byte{
		0xa0, 0x00, // format + length, filled in below
		0x41, 0x08, // addresses
		0x13,       // control
		0x00, 0x00, // HCS
		0xe6, 0xe7, 0x00, // LLC
	}
	body = append(body, payload...)
	length := len(body) + 2
	body[0] = 0xa0 | byte(length>>8)&0x1f
	body[1] = byte(length)
	crc := checksum.X25(body)

	frame := []byte{0x7e}
	frame = append(frame, body...)
	frame = append(frame, byte(crc), byte(crc>>8), 0x7e)
	return frame
}

func obisOctets(a, b, c, d, e, f byte) []byte {
	return []byte{0x09, 0x06, a, b, c, d, e, f}
}

// A notification APDU with three registers and a few ignored fields.
func samplePayload() []byte {
	p := []byte{
		0x0f, 0x40, 0x00, 0x00, 0x00, // data notification + invoke id
		0x0c, 0x07, 0xe8, 0x01, 0x01, 0x01, 0x00, 0x00, 0x00, 0xff, 0x80, 0x00, 0x00, // date-time
		0x01, 0x03, // array of 3
		0x02, 0x02, // struct
	}
	p = append(p, obisOctets(1, 0, 1, 8, 0, 255)...)
	p = append(p, 0x06, 0x00, 0x12, 0xd6, 0x87) // 1234567 -> 1234.567
	p = append(p, 0x02, 0x03)
	p = append(p, obisOctets(1, 0, 32, 7, 0, 255)...)
	p = append(p, 0x10, 0x09, 0x0a) // 2314 -> 231.4
	p = append(p, 0x0f, 0xff, 0x16, 0x23) // scalar, enum
	p = append(p, 0x02, 0x02)
	p = append(p, obisOctets(1, 0, 31, 7, 0, 255)...)
	p = append(p, 0x12, 0xff, 0x38) // -200 -> -20.0
	p = append(p, 0x0a, 0x03, 'a', 'b', 'c')
	p = append(p, 0x09, 0x03, 0x01, 0x02, 0x03)
	return p
}

func checksumX25(b []byte) uint16 { return checksum.X25(b) }
