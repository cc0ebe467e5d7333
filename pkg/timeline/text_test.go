package timeline

import "testing"

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		enc  TextEncoding
		want string
	}{
		{"empty", nil, TextAuto, ""},
		{"ascii auto", []byte("Piano"), TextAuto, "Piano"},
		{"utf-8 auto", []byte("日本"), TextAuto, "日本"},
		{"shift_jis auto", []byte{0x93, 0xFA, 0x96, 0x7B}, TextAuto, "日本"},
		{"shift_jis explicit", []byte{0x93, 0xFA, 0x96, 0x7B}, TextShiftJIS, "日本"},
		{"latin1", []byte{'C', 'a', 'f', 0xE9}, TextLatin1, "Café"},
		{"invalid utf-8 forced", []byte{'a', 0xFF}, TextUTF8, "a�"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeText(tt.data, tt.enc); got != tt.want {
				t.Errorf("DecodeText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTextEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    TextEncoding
		wantErr bool
	}{
		{"", TextAuto, false},
		{"UTF-8", TextUTF8, false},
		{"sjis", TextShiftJIS, false},
		{"Shift_JIS", TextShiftJIS, false},
		{"iso-8859-1", TextLatin1, false},
		{"ebcdic", TextAuto, true},
	}
	for _, tt := range tests {
		got, err := ParseTextEncoding(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTextEncoding(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTextEncoding(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
