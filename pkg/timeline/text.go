package timeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
)

// TextEncoding selects how meta text payloads are decoded.
type TextEncoding string

const (
	// TextAuto keeps valid UTF-8 and decodes anything else as Shift_JIS,
	// the encoding most non-UTF-8 files in the wild use for lyrics.
	TextAuto     TextEncoding = "auto"
	TextUTF8     TextEncoding = "utf-8"
	TextShiftJIS TextEncoding = "shift_jis"
	TextLatin1   TextEncoding = "latin1"
)

// ParseTextEncoding validates an encoding name.
func ParseTextEncoding(name string) (TextEncoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "", "auto":
		return TextAuto, nil
	case "utf_8", "utf8":
		return TextUTF8, nil
	case "shift_jis", "sjis", "shiftjis":
		return TextShiftJIS, nil
	case "latin1", "iso_8859_1":
		return TextLatin1, nil
	default:
		return TextAuto, fmt.Errorf("unknown text encoding: %s", name)
	}
}

func (e TextEncoding) decoder() *encoding.Decoder {
	switch e {
	case TextShiftJIS, TextAuto:
		return japanese.ShiftJIS.NewDecoder()
	case TextLatin1:
		return charmap.ISO8859_1.NewDecoder()
	default:
		return nil
	}
}

// DecodeText converts a meta text payload to UTF-8. Undecodable bytes are
// replaced rather than failing the load.
func DecodeText(data []byte, enc TextEncoding) string {
	if len(data) == 0 {
		return ""
	}
	if enc == TextUTF8 || (enc == TextAuto && utf8.Valid(data)) {
		return strings.ToValidUTF8(string(data), "�")
	}
	dec := enc.decoder()
	if dec == nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	out, err := dec.Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(out)
}
