// Package textenc normalizes uploaded bytes to UTF-8 before parsing.
//
// Windows tooling routinely exports logs and CSVs as UTF-16 with a BOM;
// feeding those bytes straight to encoding/csv or encoding/json produces
// garbage rows rather than errors. DecodeUTF8 recognizes UTF-16 BOMs and
// transcodes, and strips a leading UTF-8 BOM so headers match verbatim.
// Bytes without a BOM are passed through untouched.
package textenc

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeUTF8 returns data as UTF-8 text.
func DecodeUTF8(data []byte) ([]byte, error) {
	if len(data) >= 2 {
		switch {
		case data[0] == 0xFF && data[1] == 0xFE, data[0] == 0xFE && data[1] == 0xFF:
			dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
			out, _, err := transform.Bytes(dec, data)
			if err != nil {
				return nil, fmt.Errorf("decode utf-16: %w", err)
			}
			return out, nil
		}
	}
	return bytes.TrimPrefix(data, utf8BOM), nil
}
