package console

// upperTable is a lookup table for ASCII uppercase conversion.
// Non-ASCII bytes are passed through unchanged.
var upperTable [256]byte

func init() {
	for i := 0; i < 256; i++ {
		if i >= 'a' && i <= 'z' {
			upperTable[i] = byte(i - 32)
		} else {
			upperTable[i] = byte(i)
		}
	}
}

// ToUpperInPlace converts ASCII lowercase letters to uppercase in place.
// This is safe to call on command name bytes from the RESP parser.
func ToUpperInPlace(b []byte) {
	for i := range b {
		b[i] = upperTable[b[i]]
	}
}
