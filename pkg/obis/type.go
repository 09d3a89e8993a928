package obis

import "errors"

// Code packs the three identifying parts of an OBIS code (C.D.E in the
// A-B:C.D.E.F notation) into one comparable value.
//
// Layout: bits 16-27 major, bits 8-15 minor, bits 0-7 micro.
type Code uint32

// Invalid is returned for codes that could not be parsed.
// It can never be produced by New since the top four bits are always zero there.
const Invalid Code = 0xffffffff

const (
	majorMask = 0xfff
	minorMask = 0xff
	microMask = 0xff
)

var ErrInvalidCode = errors.New("not a valid OBIS code")
