package crc

// Token5 polynomial parameters: x^5 + x^2 + 1, seed all-ones, residual
// 0x0C, covering the 11-bit ADDR+ENDP field of token packets.
const (
	Token5Width     = 5
	Token5Poly      = 0x05
	Token5Seed      = 0x1F
	Token5Residual  = 0x0C
	token5FieldBits = 11
)

// NewToken5 returns a CRC configured for the 5-bit token check.
func NewToken5() *CRC {
	return newCRC(Token5Width, Token5Poly, Token5Seed, Token5Residual)
}

// TokenField shifts a token's 7-bit address and 4-bit endpoint through c,
// least-significant bit of each field first, as they appear concatenated
// on the wire.
func TokenField(c *CRC, addr uint8, endp uint8) {
	for i := 0; i < 7; i++ {
		c.Shift((addr >> uint(i)) & 1)
	}
	for i := 0; i < 4; i++ {
		c.Shift((endp >> uint(i)) & 1)
	}
}

// GenerateToken5 computes the CRC5 bits for a token's address and
// endpoint fields.
func GenerateToken5(addr uint8, endp uint8) []byte {
	c := NewToken5()
	TokenField(c, addr, endp)
	return c.Generate()
}
