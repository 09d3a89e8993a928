// Package checksum holds the two CRC-16 variants used to frame P1 telegrams.
package checksum

import "github.com/sigurn/crc16"

var (
	// Reflected polynomial 0xA001, seed 0, no output XOR.
	// The DSMR documents call this CRC16-CCITT-FALSE, the catalogue name is CRC-16/ARC.
	asciiTable = crc16.MakeTable(crc16.CRC16_ARC)

	// Reflected polynomial 0x8408, seed 0xFFFF, output XORed with 0xFFFF.
	binaryTable = crc16.MakeTable(crc16.CRC16_X_25)
)

// CCITTFalse is the checksum trailing ASCII telegrams.
func CCITTFalse(data []byte) uint16 {
	return crc16.Checksum(data, asciiTable)
}

// X25 is the HDLC frame check sequence of binary telegrams.
func X25(data []byte) uint16 {
	return crc16.Checksum(data, binaryTable)
}
