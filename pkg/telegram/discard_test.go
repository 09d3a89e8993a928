package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDiscardLog(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := newDiscardLog(zap.New(core))

	l.flush()
	assert.Equal(t, 0, logs.Len())

	for i := 0; i < discardLogBytes+3; i++ {
		l.add(0x0f)
	}
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, strings.Repeat("0f", discardLogBytes), entries[0].ContextMap()["bytes"])
	assert.Equal(t, "0f0f0f", l.pending())

	l.flush()
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "0f0f0f", logs.All()[1].ContextMap()["bytes"])
	assert.Empty(t, l.pending())
}
