package telegram

import "go.uber.org/zap"

const discardLogBytes = 32

const hexChars = "0123456789abcdef"

// discardLog collects bytes thrown away during error recovery as hex text
// and logs them in fixed size lines.
type discardLog struct {
	buf    []byte
	logger *zap.Logger
}

func newDiscardLog(logger *zap.Logger) *discardLog {
	return &discardLog{
		buf:    make([]byte, 0, discardLogBytes*2),
		logger: logger,
	}
}

func (l *discardLog) add(b byte) {
	l.buf = append(l.buf, hexChars[b>>4], hexChars[b&0xf])
	if len(l.buf) == cap(l.buf) {
		l.flush()
	}
}

func (l *discardLog) flush() {
	if len(l.buf) == 0 {
		return
	}
	l.logger.Warn("Discarding", zap.String("bytes", string(l.buf)))
	l.buf = l.buf[:0]
}

func (l *discardLog) pending() string {
	return string(l.buf)
}
