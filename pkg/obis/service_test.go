package obis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Layout(t *testing.T) {
	assert.Equal(t, Code(0x00010800), New(1, 8, 0))
	assert.Equal(t, Code(0x00200700), New(32, 7, 0))
}

func TestNew_MasksComponents(t *testing.T) {
	c := New(0x1234, 0x1ff, 0x2ab)
	assert.Equal(t, uint32(0x234), c.Major())
	assert.Equal(t, uint32(0xff), c.Minor())
	assert.Equal(t, uint32(0xab), c.Micro())
	assert.True(t, c.Valid())
}

func TestUnpack_RoundTrip(t *testing.T) {
	for _, tc := range [][3]uint32{{0, 0, 0}, {1, 8, 0}, {4095, 255, 255}, {96, 14, 0}} {
		c := New(tc[0], tc[1], tc[2])
		assert.Equal(t, tc, [3]uint32{c.Major(), c.Minor(), c.Micro()})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Code
	}{
		{"1.8.0", New(1, 8, 0)},
		{"21.7.0", New(21, 7, 0)},
		{"96.14.0", New(96, 14, 0)},
		{"1.8", New(1, 8, 0)},
		{"bad", Invalid},
		{"", Invalid},
		{"1", Invalid},
		{"1.", Invalid},
		{"1.8.0x", Invalid},
		{"1.8.0.1", Invalid},
		{"1-0:1.8.0", Invalid},
		{".8.0", Invalid},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.in))
		})
	}
}

func TestParse_MatchesNew(t *testing.T) {
	assert.Equal(t, New(1, 8, 0), Parse("1.8.0"))
	assert.Equal(t, New(1, 8, 0).String(), "1.8.0")
}

func TestParseStrict(t *testing.T) {
	c, err := ParseStrict("2.8.1")
	require.NoError(t, err)
	assert.Equal(t, New(2, 8, 1), c)

	c, err = ParseStrict("nope")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, Invalid, c)
	assert.Equal(t, "invalid", c.String())
}
