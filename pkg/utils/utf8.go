package utils

import "unicode/utf8"

// SplitValidUTF8 returns the longest prefix of b that does not end inside a multi-byte rune,
// and a copy of the incomplete tail to prepend to the next read.
func SplitValidUTF8(b []byte) (string, []byte) {
	end := len(b)
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				end = i
			}
			break
		}
	}
	rest := append([]byte(nil), b[end:]...)
	return string(b[:end]), rest
}
