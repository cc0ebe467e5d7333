package cli

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	MidiPath  string        // 演奏するMIDIファイルのパス
	SoundFont string        // SoundFontファイルのパス（空の場合は自動検索）
	InputPort string        // MIDI入力ポート名の部分一致（空の場合は自動選択）
	Timeout   time.Duration // タイムアウト時間（0は無制限）
	LogLevel  string        // ログレベル（debug, info, warn, error）
	Headless  bool          // ヘッドレスモード（TUIなし）
	ShowHelp  bool          // ヘルプ表示フラグ

	// 読み込みオプション
	KeepNoteOff    bool // NoteOffイベントを保持する
	KeepEndTrack   bool // End of Trackイベントを保持する
	NoTempoChanges bool // 最初のテンポ以外を無視する

	// 再生オプション
	Quantize     int           // クオンタイズレベル（0..6、0は無効）
	Speed        float64       // 再生速度倍率（0.1..10.0）
	Tolerance    time.Duration // 判定の許容幅
	Lead         time.Duration // ノートを先読みする時間
	UserChannel  int           // 演奏者が弾くチャンネル（1..16、0は判定なし）
	LowKey       int           // 鍵盤の最低音
	HighKey      int           // 鍵盤の最高音
	PlayUserPart bool          // 演奏者のパートも再生する
	SkipSilence  bool          // 最初のノートまで飛ばす
	Loop         bool          // 最後まで再生したら先頭に戻る
	Mute         bool          // 音声出力を無効化
	Dump         bool          // タイムラインを出力して終了
}

const (
	defaultTolerance = 0.3
	defaultLead      = 1.0
	defaultLowKey    = 21
	defaultHighKey   = 108
)

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	fs := flag.NewFlagSet("holokeys", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	config := &Config{}

	var timeoutSec int
	var toleranceSec, leadSec float64
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	fs.StringVar(&config.SoundFont, "soundfont", "", "SoundFontファイル")
	fs.StringVar(&config.InputPort, "input", "", "MIDI入力ポート名")

	fs.BoolVar(&config.KeepNoteOff, "keep-note-off", true, "NoteOffイベントを保持")
	fs.BoolVar(&config.KeepEndTrack, "keep-end-track", false, "End of Trackイベントを保持")
	fs.BoolVar(&config.NoTempoChanges, "no-tempo-changes", false, "テンポ変更を無視")

	fs.IntVar(&config.Quantize, "quantize", 0, "クオンタイズレベル（0..6）")
	fs.IntVar(&config.Quantize, "q", 0, "クオンタイズレベル（短縮形）")
	fs.Float64Var(&config.Speed, "speed", 1, "再生速度倍率")
	fs.Float64Var(&config.Speed, "s", 1, "再生速度倍率（短縮形）")
	fs.Float64Var(&toleranceSec, "tolerance", defaultTolerance, "判定の許容幅（秒）")
	fs.Float64Var(&leadSec, "lead", defaultLead, "先読み時間（秒）")
	fs.IntVar(&config.UserChannel, "user-channel", 0, "演奏者のチャンネル（1..16）")
	fs.IntVar(&config.LowKey, "low-key", defaultLowKey, "鍵盤の最低音")
	fs.IntVar(&config.HighKey, "high-key", defaultHighKey, "鍵盤の最高音")
	fs.BoolVar(&config.PlayUserPart, "play-user-part", false, "演奏者のパートも再生")
	fs.BoolVar(&config.SkipSilence, "skip-silence", false, "最初のノートから再生")
	fs.BoolVar(&config.Loop, "loop", false, "ループ再生")
	fs.BoolVar(&config.Mute, "mute", false, "音声出力なし")
	fs.BoolVar(&config.Dump, "dump", false, "タイムラインを出力して終了")

	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !config.Headless {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	// 環境変数からタイムアウトを取得（コマンドラインフラグが優先）
	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	if config.SoundFont == "" {
		config.SoundFont = os.Getenv("HOLOKEYS_SOUNDFONT")
	}
	if config.InputPort == "" {
		config.InputPort = os.Getenv("HOLOKEYS_INPUT")
	}
	if config.UserChannel == 0 {
		if chEnv := os.Getenv("HOLOKEYS_USER_CHANNEL"); chEnv != "" {
			ch, err := strconv.Atoi(chEnv)
			if err != nil {
				return nil, fmt.Errorf("invalid HOLOKEYS_USER_CHANNEL: %q", chEnv)
			}
			config.UserChannel = ch
		}
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// ログレベルの検証
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}

	// 再生オプションの検証
	if config.Quantize < 0 || config.Quantize > 6 {
		return nil, fmt.Errorf("quantize must be between 0 and 6, got %d", config.Quantize)
	}
	if config.Speed < 0.1 || config.Speed > 10 {
		return nil, fmt.Errorf("speed must be between 0.1 and 10.0, got %v", config.Speed)
	}
	if toleranceSec <= 0 {
		return nil, fmt.Errorf("tolerance must be positive, got %v", toleranceSec)
	}
	config.Tolerance = time.Duration(math.Round(toleranceSec * float64(time.Second)))
	if leadSec < 0 {
		return nil, fmt.Errorf("lead must be non-negative, got %v", leadSec)
	}
	config.Lead = time.Duration(math.Round(leadSec * float64(time.Second)))
	if config.UserChannel < 0 || config.UserChannel > 16 {
		return nil, fmt.Errorf("user channel must be between 1 and 16, got %d", config.UserChannel)
	}
	if config.LowKey < 0 || config.HighKey > 127 || config.LowKey > config.HighKey {
		return nil, fmt.Errorf("invalid key range %d..%d", config.LowKey, config.HighKey)
	}

	// 位置引数（MIDIファイルのパス）
	if fs.NArg() > 0 {
		config.MidiPath = fs.Arg(0)
	}

	return config, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(fs *flag.FlagSet, args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			// 値を取るフラグの場合は次の引数も追加（-t 5 のような場合）
			if strings.Contains(arg, "=") || isBoolFlag(fs, arg) {
				continue
			}
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				i++
				flags = append(flags, args[i])
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	return append(flags, positional...)
}

// isBoolFlag フラグがブール型かどうかを返す
func isBoolFlag(fs *flag.FlagSet, arg string) bool {
	name := strings.TrimLeft(arg, "-")
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	bf, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && bf.IsBoolFlag()
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `holokeys - MIDI practice player

Usage:
  holokeys [options] <midi-file>

Arguments:
  midi-file     演奏するStandard MIDI File（フォーマット0/1）

Options:
  --soundfont <path>          SoundFontファイル（省略時は GeneralUser-GS.sf2 を検索）
  --input <name>              MIDI入力ポート名の部分一致（省略時は自動選択）
  -t, --timeout <seconds>     指定秒数後にプログラムを終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --headless                  ヘッドレスモード（TUIなし）

  --keep-note-off=false       NoteOffイベントを破棄（ノート長で消音）
  --keep-end-track            End of Trackイベントを保持
  --no-tempo-changes          最初のテンポのみ使用

  -q, --quantize <level>      クオンタイズ: 0=なし, 1..6=四分音符/2^level
  -s, --speed <multiplier>    再生速度倍率: 0.1..10.0（デフォルト: 1.0）
  --tolerance <seconds>       判定の許容幅（デフォルト: 0.3）
  --lead <seconds>            ノートの先読み時間（デフォルト: 1.0）
  --user-channel <1..16>      演奏者のチャンネル（省略時は判定なし）
  --low-key <note>            鍵盤の最低音（デフォルト: 21）
  --high-key <note>           鍵盤の最高音（デフォルト: 108）
  --play-user-part            演奏者のパートも再生
  --skip-silence              最初のノートから再生
  --loop                      ループ再生
  --mute                      音声出力なし
  --dump                      タイムラインを出力して終了
  -h, --help                  このヘルプを表示

Environment Variables:
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル
  HOLOKEYS_SOUNDFONT=<path>   SoundFontファイル
  HOLOKEYS_INPUT=<name>       MIDI入力ポート名
  HOLOKEYS_USER_CHANNEL=<n>   演奏者のチャンネル

Examples:
  holokeys song.mid                        TUIで再生
  holokeys --user-channel 1 song.mid       チャンネル1を演奏して判定
  holokeys -s 0.5 -q 2 song.mid            半分の速度、八分音符グリッド
  holokeys --dump song.mid                 タイムラインを表示
  HEADLESS=1 holokeys --timeout 10 song.mid  10秒間ヘッドレスで再生
`)
}
