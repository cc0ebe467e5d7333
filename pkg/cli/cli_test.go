package cli

import (
	"testing"
	"time"
)

func TestParseArgs_ValidArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected Config
	}{
		{
			name: "デフォルト設定",
			args: []string{},
			expected: Config{
				LogLevel:    "info",
				KeepNoteOff: true,
				Speed:       1,
				Tolerance:   300 * time.Millisecond,
				Lead:        time.Second,
				LowKey:      21,
				HighKey:     108,
			},
		},
		{
			name: "MIDIファイル指定",
			args: []string{"song.mid"},
			expected: Config{
				MidiPath:    "song.mid",
				LogLevel:    "info",
				KeepNoteOff: true,
				Speed:       1,
				Tolerance:   300 * time.Millisecond,
				Lead:        time.Second,
				LowKey:      21,
				HighKey:     108,
			},
		},
		{
			name: "タイムアウト指定（短縮形）",
			args: []string{"-t", "5"},
			expected: Config{
				Timeout:     5 * time.Second,
				LogLevel:    "info",
				KeepNoteOff: true,
				Speed:       1,
				Tolerance:   300 * time.Millisecond,
				Lead:        time.Second,
				LowKey:      21,
				HighKey:     108,
			},
		},
		{
			name: "再生オプション",
			args: []string{"-s", "0.5", "-q", "2", "--tolerance", "0.15", "--lead", "2", "--user-channel", "1", "song.mid"},
			expected: Config{
				MidiPath:    "song.mid",
				LogLevel:    "info",
				KeepNoteOff: true,
				Quantize:    2,
				Speed:       0.5,
				Tolerance:   150 * time.Millisecond,
				Lead:        2 * time.Second,
				UserChannel: 1,
				LowKey:      21,
				HighKey:     108,
			},
		},
		{
			name: "ブール型フラグの後の位置引数",
			args: []string{"--loop", "song.mid", "--skip-silence", "--play-user-part", "--mute"},
			expected: Config{
				MidiPath:     "song.mid",
				LogLevel:     "info",
				KeepNoteOff:  true,
				Speed:        1,
				Tolerance:    300 * time.Millisecond,
				Lead:         time.Second,
				LowKey:       21,
				HighKey:      108,
				Loop:         true,
				SkipSilence:  true,
				PlayUserPart: true,
				Mute:         true,
			},
		},
		{
			name: "読み込みオプション",
			args: []string{"--keep-note-off=false", "--keep-end-track", "--no-tempo-changes", "--dump", "song.mid"},
			expected: Config{
				MidiPath:       "song.mid",
				LogLevel:       "info",
				KeepEndTrack:   true,
				NoTempoChanges: true,
				Dump:           true,
				Speed:          1,
				Tolerance:      300 * time.Millisecond,
				Lead:           time.Second,
				LowKey:         21,
				HighKey:        108,
			},
		},
		{
			name: "位置引数が最初（順序に関係なく動作）",
			args: []string{"song.mid", "--soundfont", "gm.sf2", "--input", "Roland", "--headless", "-l", "debug"},
			expected: Config{
				MidiPath:    "song.mid",
				SoundFont:   "gm.sf2",
				InputPort:   "Roland",
				Headless:    true,
				LogLevel:    "debug",
				KeepNoteOff: true,
				Speed:       1,
				Tolerance:   300 * time.Millisecond,
				Lead:        time.Second,
				LowKey:      21,
				HighKey:     108,
			},
		},
		{
			name: "鍵盤の範囲",
			args: []string{"--low-key", "36", "--high-key", "96", "-h"},
			expected: Config{
				LogLevel:    "info",
				KeepNoteOff: true,
				Speed:       1,
				Tolerance:   300 * time.Millisecond,
				Lead:        time.Second,
				LowKey:      36,
				HighKey:     96,
				ShowHelp:    true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HEADLESS", "")
			t.Setenv("TIMEOUT", "")
			t.Setenv("LOG_LEVEL", "")
			t.Setenv("HOLOKEYS_SOUNDFONT", "")
			t.Setenv("HOLOKEYS_INPUT", "")
			t.Setenv("HOLOKEYS_USER_CHANNEL", "")

			config, err := ParseArgs(tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *config != tt.expected {
				t.Errorf("config = %+v\nwant     %+v", *config, tt.expected)
			}
		})
	}
}

func TestParseArgs_Environment(t *testing.T) {
	t.Setenv("HEADLESS", "true")
	t.Setenv("TIMEOUT", "7")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("HOLOKEYS_SOUNDFONT", "/sf/gm.sf2")
	t.Setenv("HOLOKEYS_INPUT", "FP-30")
	t.Setenv("HOLOKEYS_USER_CHANNEL", "2")

	config, err := ParseArgs([]string{"song.mid"})
	if err != nil {
		t.Fatal(err)
	}
	if !config.Headless || config.Timeout != 7*time.Second || config.LogLevel != "warn" {
		t.Errorf("headless/timeout/log = %v %v %q", config.Headless, config.Timeout, config.LogLevel)
	}
	if config.SoundFont != "/sf/gm.sf2" || config.InputPort != "FP-30" || config.UserChannel != 2 {
		t.Errorf("soundfont/input/channel = %q %q %d", config.SoundFont, config.InputPort, config.UserChannel)
	}

	// コマンドラインフラグが優先
	config, err = ParseArgs([]string{"--user-channel", "3", "-t", "1", "song.mid"})
	if err != nil {
		t.Fatal(err)
	}
	if config.UserChannel != 3 || config.Timeout != time.Second {
		t.Errorf("flags did not override env: channel=%d timeout=%v", config.UserChannel, config.Timeout)
	}
}

func TestParseArgs_InvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{
			name: "負のタイムアウト",
			args: []string{"--timeout", "-10"},
		},
		{
			name: "無効なログレベル",
			args: []string{"--log-level", "invalid"},
		},
		{
			name: "無効なログレベル（短縮形）",
			args: []string{"-l", "trace"},
		},
		{
			name: "クオンタイズ範囲外",
			args: []string{"-q", "7"},
		},
		{
			name: "速度範囲外",
			args: []string{"--speed", "20"},
		},
		{
			name: "許容幅ゼロ",
			args: []string{"--tolerance", "0"},
		},
		{
			name: "チャンネル範囲外",
			args: []string{"--user-channel", "17"},
		},
		{
			name: "鍵盤範囲の逆転",
			args: []string{"--low-key", "90", "--high-key", "40"},
		},
		{
			name: "未知のフラグ",
			args: []string{"--bogus"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", "")
			t.Setenv("HOLOKEYS_USER_CHANNEL", "")
			_, err := ParseArgs(tt.args)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
