package crc

// Data16 polynomial parameters: x^16 + x^15 + x^2 + 1, seed all-ones,
// residual 0x800D, covering DATA0/DATA1/DATA2/MDATA payloads.
const (
	Data16Width    = 16
	Data16Poly     = 0x8005
	Data16Seed     = 0xFFFF
	Data16Residual = 0x800D
)

// NewData16 returns a CRC configured for the 16-bit data payload check.
func NewData16() *CRC {
	return newCRC(Data16Width, Data16Poly, Data16Seed, Data16Residual)
}

// GenerateData16 computes the CRC16 bits for a complete payload, each
// byte shifted LSB first in wire order.
func GenerateData16(payload []byte) []byte {
	c := NewData16()
	for _, b := range payload {
		c.ShiftByte(b)
	}
	return c.Generate()
}
