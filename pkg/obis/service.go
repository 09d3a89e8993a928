package obis

import "fmt"

// New combines the three values defining a measurement into a single Code.
// Out of range values are truncated to their field width, not rejected.
func New(major, minor, micro uint32) Code {
	return Code((major&majorMask)<<16 | (minor&minorMask)<<8 | (micro & microMask))
}

// Parse reads the textual "major.minor.micro" notation.
// "major.minor" is accepted as well and leaves micro at zero.
// Anything else yields Invalid.
func Parse(s string) Code {
	var parts [3]uint32
	n := 0
	i := 0
	for {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			parts[n] = parts[n]*10 + uint32(s[i]-'0')
			i++
		}
		if i == start {
			return Invalid
		}
		n++
		if i == len(s) {
			break
		}
		if s[i] != '.' || n == len(parts) {
			return Invalid
		}
		i++
	}
	if n < 2 {
		return Invalid
	}
	return New(parts[0], parts[1], parts[2])
}

// ParseStrict is Parse with an error instead of the sentinel.
func ParseStrict(s string) (Code, error) {
	c := Parse(s)
	if c == Invalid {
		return Invalid, fmt.Errorf("%w: '%s'", ErrInvalidCode, s)
	}
	return c, nil
}

func (c Code) Major() uint32 { return uint32(c>>16) & majorMask }
func (c Code) Minor() uint32 { return uint32(c>>8) & minorMask }
func (c Code) Micro() uint32 { return uint32(c) & microMask }

func (c Code) Valid() bool { return c != Invalid }

func (c Code) String() string {
	if !c.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d.%d.%d", c.Major(), c.Minor(), c.Micro())
}
