package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/NotCoffee418/p1_mini/pkg/checksum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func asciiTelegram(body string) []byte {
	return []byte(fmt.Sprintf("%s%04X\r\n", body, checksum.CCITTFalse([]byte(body))))
}

const capture = "/ISk5\\2MT382-1000\r\n\r\n" +
	"1-0:1.8.0(001234.567*kWh)\r\n" +
	"1-0:32.7.0(231.4*V)\r\n" +
	"!"

func TestReplay(t *testing.T) {
	data := append([]byte("noise"), asciiTelegram(capture)...)
	data = append(data, asciiTelegram(capture)...)

	for _, chunk := range []int{1, 7, 4096} {
		var out bytes.Buffer
		stats, err := replay(&out, data, replayOptions{codes: []string{"1.8.0", "32.7.0"}, chunk: chunk, logger: zaptest.NewLogger(t)})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), stats.ASCIITelegrams, "chunk %d", chunk)
		assert.Equal(t, uint64(4), stats.ValuesDispatched, "chunk %d", chunk)
		assert.Contains(t, out.String(), "telegram 1: 1.8.0 = 1234.567\n")
		assert.Contains(t, out.String(), "telegram 2: 32.7.0 = 231.4\n")
	}
}

func TestReplay_DefaultCodes(t *testing.T) {
	var out bytes.Buffer
	stats, err := replay(&out, asciiTelegram(capture), replayOptions{chunk: 64})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.ValuesDispatched)
}

func TestReplay_InvalidChunk(t *testing.T) {
	_, err := replay(&bytes.Buffer{}, nil, replayOptions{chunk: 0})
	assert.Error(t, err)
}

func TestDecodeHex(t *testing.T) {
	b, err := decodeHex([]byte("7e a0\n 1f\t00"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7e, 0xa0, 0x1f, 0x00}, b)

	_, err = decodeHex([]byte("7g"))
	assert.Error(t, err)
}

func TestRootCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, asciiTelegram(capture), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{path, "--obis", "1.8.0", "--chunk", "16"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "telegram 1: 1.8.0 = 1234.567")
	assert.Contains(t, out.String(), "telegrams=1")
}
