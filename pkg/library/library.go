// Package library は練習曲（MIDIファイル）の一覧と選択を扱う
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/zurustar/holokeys/pkg/timeline"
)

// ErrNoSongs はディレクトリにMIDIファイルがない場合のエラー
var ErrNoSongs = errors.New("no MIDI files found")

// Song はMIDIファイル1曲を表す
type Song struct {
	Name     string    // ファイル名（拡張子なし）
	Path     string    // ファイルシステム内のパス
	Metadata *Metadata // MIDIファイルから抽出したメタデータ（読めない場合はnil）
}

// Metadata はMIDIファイルのメタイベントから抽出した情報
type Metadata struct {
	TrackName  string   // 最初のトラック名
	Copyright  string   // 著作権情報
	Text       []string // テキストイベント（複数可）
	Notes      int      // NoteOnの数
	DurationMs float64  // 曲の長さ
}

// Registry は曲の一覧を管理する
type Registry struct {
	songs []Song
}

// Scan はfsys内のdirにあるMIDIファイルを列挙する
// サブディレクトリは対象外
func Scan(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	r := &Registry{}
	for _, entry := range entries {
		if entry.IsDir() || !IsMidiFile(entry.Name()) {
			continue
		}
		p := path.Join(dir, entry.Name())
		song := Song{
			Name: strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())),
			Path: p,
		}
		// メタデータの抽出（失敗しても一覧には残す）
		if data, err := fs.ReadFile(fsys, p); err == nil {
			if tl, err := timeline.Load(data, timeline.DefaultLoadOptions()); err == nil {
				song.Metadata = ExtractMetadata(tl)
			}
		}
		r.songs = append(r.songs, song)
	}
	return r, nil
}

// IsMidiFile はファイル名がMIDIファイルの拡張子を持つかを返す
func IsMidiFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".mid", ".midi", ".smf":
		return true
	}
	return false
}

// ExtractMetadata はタイムラインのメタイベントから情報を集める
func ExtractMetadata(tl *timeline.Timeline) *Metadata {
	meta := &Metadata{
		Text:       []string{},
		Notes:      tl.NoteOnCount(),
		DurationMs: tl.DurationMs(),
	}
	for _, ev := range tl.Events() {
		if ev.Command != timeline.CommandMeta || ev.Text == "" {
			continue
		}
		switch ev.Meta {
		case timeline.MetaTrackName:
			if meta.TrackName == "" {
				meta.TrackName = ev.Text
			}
		case timeline.MetaCopyright:
			if meta.Copyright == "" {
				meta.Copyright = ev.Text
			}
		case timeline.MetaText:
			meta.Text = append(meta.Text, ev.Text)
		}
	}
	return meta
}

// Songs は曲の一覧を返す
func (r *Registry) Songs() []Song {
	return r.songs
}

// Select は曲を選択する
// 戻り値: (選択された曲, 選択画面が必要か, エラー)
func (r *Registry) Select() (*Song, bool, error) {
	if len(r.songs) == 0 {
		return nil, false, ErrNoSongs
	}

	if len(r.songs) == 1 {
		// 1曲の場合は自動選択
		return &r.songs[0], false, nil
	}

	// 複数の曲がある場合は選択画面が必要
	return nil, true, nil
}

// DisplayName は曲の表示名を返す
// トラック名があればそれを、なければファイル名を返す
func (s *Song) DisplayName() string {
	if s.Metadata != nil && s.Metadata.TrackName != "" {
		return s.Metadata.TrackName
	}
	return s.Name
}
