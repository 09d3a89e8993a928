package telegram

import "fmt"

// Statistics counts what the decoder has seen since construction.
type Statistics struct {
	Telegrams       uint64
	ASCIITelegrams  uint64
	BinaryTelegrams uint64
	CRCErrors       uint64

	ValuesDispatched uint64
	UnknownCodes     uint64
	UnparsedLines    uint64
	BytesDiscarded   uint64

	Recoveries [causeCount]uint64
}

// Recovery returns how often cause led to ERROR_RECOVERY.
func (s Statistics) Recovery(cause RecoveryCause) uint64 {
	if cause < 0 || cause >= causeCount {
		return 0
	}
	return s.Recoveries[cause]
}

func (s Statistics) TotalRecoveries() uint64 {
	var n uint64
	for _, c := range s.Recoveries {
		n += c
	}
	return n
}

func (s Statistics) String() string {
	result := fmt.Sprintf("telegrams=%d (ascii=%d binary=%d) crc_errors=%d values=%d unknown_codes=%d unparsed_lines=%d discarded=%d",
		s.Telegrams, s.ASCIITelegrams, s.BinaryTelegrams, s.CRCErrors,
		s.ValuesDispatched, s.UnknownCodes, s.UnparsedLines, s.BytesDiscarded)
	for cause, n := range s.Recoveries {
		if n > 0 {
			result += fmt.Sprintf(" [%s]=%d", RecoveryCause(cause), n)
		}
	}
	return result
}
