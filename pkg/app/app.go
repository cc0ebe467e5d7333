package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/zurustar/holokeys/pkg/cli"
	"github.com/zurustar/holokeys/pkg/fileutil"
	"github.com/zurustar/holokeys/pkg/input"
	"github.com/zurustar/holokeys/pkg/library"
	"github.com/zurustar/holokeys/pkg/logger"
	"github.com/zurustar/holokeys/pkg/match"
	"github.com/zurustar/holokeys/pkg/sequencer"
	"github.com/zurustar/holokeys/pkg/session"
	"github.com/zurustar/holokeys/pkg/synth"
	"github.com/zurustar/holokeys/pkg/timeline"
	"github.com/zurustar/holokeys/pkg/tui"
)

// ErrNoMidiFile はMIDIファイルが指定されていない場合のエラー
var ErrNoMidiFile = errors.New("MIDI file path is required")

// ErrAmbiguousSong はTUIなしで複数の曲から選べない場合のエラー
var ErrAmbiguousSong = errors.New("directory contains several songs, pass a file")

// frameInterval はヘッドレスモードのフレーム間隔
const frameInterval = time.Second / 60

// logFileName はTUIモードでのログ出力先
const logFileName = "holokeys.log"

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config *cli.Config
	log    *slog.Logger
	fsys   fileutil.FileSystem
	driver drivers.Driver
	stdout io.Writer

	// セッションクロック（フレームと入力イベントで共有）
	start time.Time

	renderer *synth.Renderer
	output   *synth.Output
	score    *match.Recorder
	board    *tui.Board
}

// New Applicationを作成
// drv が nil の場合はMIDI入力なしで動作する
func New(drv drivers.Driver) *Application {
	return &Application{
		fsys:   fileutil.NewRealFS(""),
		driver: drv,
		stdout: os.Stdout,
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp {
		cli.PrintHelp()
		return nil
	}

	// 2. ロガーの初期化
	closeLog, err := app.initLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	app.log.Info("Application started")

	if app.config.MidiPath == "" {
		return ErrNoMidiFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if app.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.config.Timeout)
		defer cancel()
	}

	// 3. 曲の決定（ディレクトリが指定された場合は選択）
	path, err := app.resolveSong(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		app.log.Info("No song selected")
		return nil
	}
	app.config.MidiPath = path

	// 4. タイムラインのダンプ（指定されている場合）
	if app.config.Dump {
		return app.dump()
	}

	// 5. 出力先の準備
	app.score = match.NewRecorder(32)
	app.board = tui.NewBoard()
	if err := app.initAudio(); err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer app.closeAudio()

	// 6. セッションの作成とMIDIファイルの読み込み
	sess, err := app.newSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer sess.Close()

	if err := sess.LoadFile(app.fsys, app.config.MidiPath); err != nil {
		return fmt.Errorf("failed to load MIDI file: %w", err)
	}

	// 7. MIDI入力の監視
	app.startInput(ctx, sess.Inbox())

	// 8. 再生
	if app.config.Headless {
		err = app.runHeadless(ctx, sess)
	} else {
		err = app.runTUI(ctx, sess)
	}
	if err != nil {
		return err
	}

	app.log.Info("Application terminated normally", "score", app.score.Score().String())
	return nil
}

// resolveSong 演奏する曲のパスを返す
// ディレクトリの場合は曲を列挙し、複数あればTUIで選択する（空文字列は選択なし）
func (app *Application) resolveSong(ctx context.Context) (string, error) {
	if app.fsys.IsEmbedded() {
		return app.config.MidiPath, nil
	}
	dir := app.config.MidiPath
	if base := app.fsys.BasePath(); base != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(base, dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return app.config.MidiPath, nil
	}

	registry, err := library.Scan(os.DirFS(dir), ".")
	if err != nil {
		return "", err
	}
	song, needPicker, err := registry.Select()
	if err != nil {
		return "", fmt.Errorf("%w in %s", err, app.config.MidiPath)
	}
	if needPicker {
		if app.config.Headless || app.config.Dump {
			return "", fmt.Errorf("%w: %d songs in %s", ErrAmbiguousSong, len(registry.Songs()), app.config.MidiPath)
		}
		song, err = tui.PickSong(ctx, registry.Songs())
		if err != nil {
			return "", fmt.Errorf("failed to run song picker: %w", err)
		}
		if song == nil {
			return "", nil
		}
	}
	app.log.Info("Song selected", "name", song.DisplayName(), "path", song.Path)
	return filepath.Join(app.config.MidiPath, song.Path), nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// initLogger ロガーを初期化
// TUIモードでは画面を乱さないようにログをファイルへ出力する
func (app *Application) initLogger() (func(), error) {
	if app.config.Headless || app.config.Dump {
		if err := logger.InitLogger(app.config.LogLevel); err != nil {
			return nil, err
		}
		app.log = logger.GetLogger()
		return func() {}, nil
	}

	f, err := tea.LogToFile(logFileName, "holokeys")
	if err != nil {
		return nil, err
	}
	if err := logger.InitLoggerWithWriter(app.config.LogLevel, f); err != nil {
		f.Close()
		return nil, err
	}
	app.log = logger.GetLogger()
	return func() { f.Close() }, nil
}

// loadOptions 読み込みオプションを作成
func (app *Application) loadOptions() timeline.LoadOptions {
	opts := timeline.DefaultLoadOptions()
	opts.KeepNoteOff = app.config.KeepNoteOff
	opts.KeepEndTrack = app.config.KeepEndTrack
	opts.EnableTempoChanges = !app.config.NoTempoChanges
	opts.Quantization = app.config.Quantize
	return opts
}

// sessionOptions セッションオプションを作成
func (app *Application) sessionOptions() session.Options {
	opts := session.DefaultOptions()
	opts.Load = app.loadOptions()
	opts.Speed = app.config.Speed
	opts.Quantization = app.config.Quantize
	opts.UserChannel = session.NoUserChannel
	if app.config.UserChannel > 0 {
		opts.UserChannel = app.config.UserChannel - 1
	}
	opts.PlayUserPart = app.config.PlayUserPart
	opts.Match = match.Config{
		LowKey:    app.config.LowKey,
		HighKey:   app.config.HighKey,
		Tolerance: app.config.Tolerance,
	}
	opts.Lead = app.config.Lead
	opts.SkipSilence = app.config.SkipSilence
	opts.Loop = app.config.Loop
	return opts
}

// newSession 出力先を接続したセッションを作成
func (app *Application) newSession() (*session.Session, error) {
	playback := sequencer.MultiSink{sequencer.LogSink{Logger: app.log}}
	feedback := match.MultiFeedback{app.score, match.LogFeedback{Logger: app.log}}

	var sinks session.Sinks
	// 画面表示用の状態はTUIモードのみ
	if !app.config.Headless {
		feedback = append(feedback, app.board)
		sinks.Tracker = app.board
	}
	sinks.Feedback = feedback
	if app.renderer != nil {
		playback = append(playback, app.renderer)
		sinks.Live = app.renderer
	}
	sinks.Playback = playback
	return session.New(app.sessionOptions(), sinks, app.log)
}

// clock セッションクロックを返す
func (app *Application) clock() time.Duration {
	return time.Since(app.start)
}

// initAudio SoundFontを読み込んで音声出力を準備する
// SoundFontが見つからない場合は音声なしで続行する
func (app *Application) initAudio() error {
	if app.config.Mute {
		app.log.Info("Audio muted")
		return nil
	}

	path, err := synth.FindSoundFont(app.fsys, app.config.SoundFont, app.config.MidiPath)
	if err != nil {
		if errors.Is(err, synth.ErrNoSoundFont) {
			app.log.Warn("SoundFont not found, audio disabled", "name", synth.DefaultSoundFontName)
			return nil
		}
		return err
	}

	sf, err := synth.LoadSoundFont(app.fsys, path)
	if err != nil {
		return err
	}
	s, err := synth.NewSynthesizer(sf)
	if err != nil {
		return err
	}
	app.renderer = synth.NewRenderer(s, synth.RendererOptions{ReleaseByDuration: !app.config.KeepNoteOff})
	app.renderer.SetSpeed(app.config.Speed)

	out, err := synth.NewOutput(nil, app.renderer)
	if err != nil {
		return err
	}
	out.Start()
	app.output = out
	app.log.Info("Audio initialized", "soundfont", path, "sample_rate", synth.SampleRate)
	return nil
}

// closeAudio 音声出力を停止
func (app *Application) closeAudio() {
	if app.renderer != nil {
		app.renderer.Stop()
	}
	if app.output != nil {
		if err := app.output.Close(); err != nil {
			app.log.Warn("Failed to close audio output", "error", err)
		}
	}
}

// startInput MIDI入力の監視を開始
func (app *Application) startInput(ctx context.Context, inbox *input.Inbox) {
	app.start = time.Now()
	if app.driver == nil {
		app.log.Info("No MIDI input driver, live input disabled")
		return
	}
	w := input.NewWatcher(app.driver, inbox, input.WatcherOptions{
		Port:   app.config.InputPort,
		Clock:  app.clock,
		Logger: app.log,
		OnDisconnect: func() {
			app.log.Warn("MIDI input disconnected, waiting for reconnection")
		},
	})
	go w.Run(ctx)
}

// runHeadless TUIなしでフレームを回す
// 再生終了後は判定待ちのノートがなくなるまで続け、タイムアウトか割り込みでも終了する
func (app *Application) runHeadless(ctx context.Context, sess *session.Session) error {
	app.log.Info("Headless mode: starting playback")
	if err := sess.Play(); err != nil {
		return err
	}

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			app.log.Info("Playback interrupted", "reason", context.Cause(ctx))
			return nil
		case <-ticker.C:
			sess.Frame(app.clock())
			if sess.State() == sequencer.Finished && sess.Engine().PendingTotal() == 0 {
				app.log.Info("Playback finished")
				return nil
			}
		}
	}
}

// runTUI TUIを表示して再生する
func (app *Application) runTUI(ctx context.Context, sess *session.Session) error {
	cfg := tui.Config{
		Session: sess,
		Board:   app.board,
		Score:   app.score,
		Clock:   app.clock,
		Title:   filepath.Base(app.config.MidiPath),
	}
	// nilの*synth.Outputをインターフェースに入れない
	if app.output != nil {
		cfg.Audio = app.output
	}
	err := tui.Run(ctx, cfg)
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

// dump タイムラインを表形式で出力
func (app *Application) dump() error {
	tl, err := timeline.LoadFile(app.fsys, app.config.MidiPath, app.loadOptions())
	if err != nil {
		return fmt.Errorf("failed to load MIDI file: %w", err)
	}

	ts := tl.TimeSignature()
	fmt.Fprintf(app.stdout, "%s: format %d, %d tracks, %d ticks/quarter, %d/%d, %.0f bpm, %d notes, %.1f s\n",
		filepath.Base(app.config.MidiPath), tl.Format(), tl.TrackCount(), tl.TicksPerQuarter(),
		ts.Numerator, ts.Denominator, tl.TempoMap().InitialBPM(), tl.NoteOnCount(), tl.DurationMs()/1000)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "TRACK", "TICK", "QTICK", "MS", "EVENT", "CH", "DATA")
	for _, ev := range tl.Events() {
		t.Row(
			strconv.Itoa(ev.Index),
			strconv.Itoa(ev.Track),
			strconv.FormatInt(ev.Tick, 10),
			strconv.FormatInt(ev.QuantizedTick, 10),
			strconv.FormatFloat(ev.RealTimeMs, 'f', 2, 64),
			eventName(ev),
			channelOf(ev),
			eventData(ev),
		)
	}
	fmt.Fprintln(app.stdout, t.Render())
	return nil
}

func eventName(ev timeline.TimedEvent) string {
	if ev.Command == timeline.CommandMeta {
		return ev.Meta.String()
	}
	return ev.Command.String()
}

func channelOf(ev timeline.TimedEvent) string {
	if ev.Command == timeline.CommandMeta {
		return ""
	}
	return strconv.Itoa(int(ev.Channel) + 1)
}

func eventData(ev timeline.TimedEvent) string {
	switch ev.Command {
	case timeline.CommandNoteOn:
		return fmt.Sprintf("%s vel=%d len=%.0fms", tui.NoteName(int(ev.Key)), ev.Velocity, ev.DurationMs)
	case timeline.CommandNoteOff:
		return fmt.Sprintf("%s vel=%d", tui.NoteName(int(ev.Key)), ev.Velocity)
	case timeline.CommandControlChange:
		return fmt.Sprintf("cc%d=%d", ev.Key, ev.Value)
	case timeline.CommandPatchChange:
		return fmt.Sprintf("program=%d", ev.Key)
	case timeline.CommandPitchBend:
		return fmt.Sprintf("bend=%d", int(ev.Value)-8192)
	}
	if us, ok := ev.TempoMicros(); ok {
		return fmt.Sprintf("%d us/quarter", us)
	}
	return ev.Text
}
