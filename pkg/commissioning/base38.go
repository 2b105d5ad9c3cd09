package commissioning

import (
	"errors"
	"strings"
)

const base38Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-."

// Characters emitted for a chunk of 1, 2 or 3 bytes.
var base38ChunkChars = [4]int{0, 2, 4, 5}

var errBase38 = errors.New("commissioning: invalid base38 string")

func base38Encode(data []byte) string {
	var sb strings.Builder
	for len(data) > 0 {
		n := min(3, len(data))
		var v uint32
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint32(data[i])
		}
		for range base38ChunkChars[n] {
			sb.WriteByte(base38Alphabet[v%38])
			v /= 38
		}
		data = data[n:]
	}
	return sb.String()
}

func base38Decode(s string) ([]byte, error) {
	var out []byte
	for len(s) > 0 {
		chars := min(5, len(s))
		n := 3
		switch chars {
		case 5:
		case 4:
			n = 2
		case 2:
			n = 1
		default:
			return nil, errBase38
		}
		var v uint32
		for i := chars - 1; i >= 0; i-- {
			d := strings.IndexByte(base38Alphabet, s[i])
			if d < 0 {
				return nil, errBase38
			}
			v = v*38 + uint32(d)
		}
		if v >= 1<<(8*n) {
			return nil, errBase38
		}
		for range n {
			out = append(out, byte(v))
			v >>= 8
		}
		s = s[chars:]
	}
	return out, nil
}
