package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/NotCoffee418/p1_mini/pkg/config"
	"github.com/NotCoffee418/p1_mini/pkg/port_reader"
	"github.com/NotCoffee418/p1_mini/pkg/telegram"
	"go.uber.org/zap"
)

const (
	tickInterval = 10 * time.Millisecond
	// Enough ticks for a pending telegram to time out and recover
	maxDrainTicks = 2000
)

type replayOptions struct {
	codes  []string
	chunk  int
	logger *zap.Logger
}

// syntheticClock advances only when the replay ticks.
type syntheticClock struct {
	t time.Time
}

func (c *syntheticClock) Now() time.Time { return c.t }

func replay(w io.Writer, data []byte, opts replayOptions) (telegram.Statistics, error) {
	if opts.chunk <= 0 {
		return telegram.Statistics{}, fmt.Errorf("chunk size must be positive, got %d", opts.chunk)
	}
	codes := opts.codes
	if len(codes) == 0 {
		for _, s := range config.DefaultInterpreterAPIConfig().Sensors {
			codes = append(codes, s.ObisCode)
		}
	}

	clock := &syntheticClock{t: time.Unix(0, 0)}
	src := port_reader.NewMemorySource(nil)
	decoder, err := telegram.NewDecoder(telegram.Config{Logger: opts.logger, Clock: clock.Now}, src)
	if err != nil {
		return telegram.Statistics{}, err
	}
	telegrams := 0
	decoder.OnUpdateReceived(func() { telegrams++ })
	for _, code := range codes {
		code := code
		decoder.RegisterSensor(code, telegram.SensorFunc(func(v float64) {
			fmt.Fprintf(w, "telegram %d: %s = %g\n", telegrams, code, v)
		}))
	}

	tick := func() {
		clock.t = clock.t.Add(tickInterval)
		decoder.Tick()
	}
	for len(data) > 0 {
		n := min(opts.chunk, len(data))
		if decoder.State() == telegram.StateErrorRecovery {
			// A capture has no idle gaps between telegrams. Hold back the next
			// frame start until the decoder has seen a quiet line.
			if src.Len() > 0 || isFrameStart(data[0]) {
				tick()
				continue
			}
			if i := indexFrameStart(data[1:n]); i >= 0 {
				n = i + 1
			}
		}
		src.Feed(data[:n])
		data = data[n:]
		tick()
	}
	for i := 0; i < maxDrainTicks; i++ {
		if src.Len() == 0 && decoder.State() == telegram.StateIdentifyingMessage {
			break
		}
		tick()
	}
	return decoder.Stats(), nil
}

func isFrameStart(b byte) bool {
	return b == '/' || b == 0x7e
}

func indexFrameStart(data []byte) int {
	for i, b := range data {
		if isFrameStart(b) {
			return i
		}
	}
	return -1
}

func decodeHex(text []byte) ([]byte, error) {
	return hex.DecodeString(string(bytes.Join(bytes.Fields(text), nil)))
}
