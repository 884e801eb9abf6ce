package tokenizer

// byteEncoder maps every byte to a visible rune; byteDecoder is its inverse.
// baseOrder lists bytes in the order their tokens are assigned ids.
var (
	byteEncoder [256]rune
	byteDecoder map[rune]byte
	baseOrder   [256]byte
)

func init() {
	byteEncoder, baseOrder = buildByteTable()
	byteDecoder = make(map[rune]byte, 256)
	for b, r := range byteEncoder {
		byteDecoder[r] = byte(b)
	}
}

// BytesToUnicode returns the invertible byte-to-rune table used by the vocabulary.
// Printable Latin-1 bytes ('!'..'~', '¡'..'¬', '®'..'ÿ') map to themselves; the other
// 68 bytes (controls, space, soft hyphen, ...) map to 256+n in increasing byte order.
func BytesToUnicode() [256]rune {
	return byteEncoder
}

func buildByteTable() ([256]rune, [256]byte) {
	var enc [256]rune
	var order [256]byte
	visible := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	pos := 0
	for b := 0; b < 256; b++ {
		if visible(b) {
			enc[b] = rune(b)
			order[pos] = byte(b)
			pos++
		}
	}
	n := 0
	for b := 0; b < 256; b++ {
		if !visible(b) {
			enc[b] = rune(256 + n)
			order[pos] = byte(b)
			pos++
			n++
		}
	}
	return enc, order
}

// encodeBytes maps the UTF-8 bytes of s to their visible runes.
func encodeBytes(s string) []rune {
	out := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = byteEncoder[s[i]]
	}
	return out
}

// decodeRunes maps visible runes back to raw bytes. Runes outside the table
// contribute their own UTF-8 encoding.
func decodeRunes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := byteDecoder[r]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, string(r)...)
	}
	return out
}
