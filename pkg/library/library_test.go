package library

import (
	"errors"
	"testing"
	"testing/fstest"

	tt "github.com/zurustar/holokeys/pkg/timeline/timelinetest"
)

func songWithMeta(t *testing.T) []byte {
	t.Helper()
	events := []tt.Event{
		tt.Tempo(0, 500000),
		tt.TrackName(0, []byte("Minuet in G")),
		tt.Meta(0, 0x02, []byte("(c) 1725")),
		tt.Meta(0, 0x01, []byte("right hand")),
		tt.Meta(0, 0x01, []byte("andante")),
	}
	events = append(events, tt.Note(0, 240, 0, 67, 100)...)
	events = append(events, tt.Note(480, 240, 0, 60, 100)...)
	return tt.Build(t, 480, tt.Track{Events: events})
}

func TestScan(t *testing.T) {
	fsys := fstest.MapFS{
		"songs/minuet.mid":      {Data: songWithMeta(t)},
		"songs/scale.MIDI":      {Data: tt.Simple(t, 60, 62, 64)},
		"songs/broken.mid":      {Data: []byte("not midi")},
		"songs/readme.txt":      {Data: []byte("hello")},
		"songs/sub/ignored.mid": {Data: tt.Simple(t, 60)},
		"songs/soundfont.sf2":   {Data: []byte{0}},
	}

	r, err := Scan(fsys, "songs")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	songs := r.Songs()
	if len(songs) != 3 {
		t.Fatalf("len(songs) = %d, want 3: %+v", len(songs), songs)
	}

	tests := []struct {
		name     string
		path     string
		display  string
		notes    int
		metadata bool
	}{
		{"broken", "songs/broken.mid", "broken", 0, false},
		{"minuet", "songs/minuet.mid", "Minuet in G", 2, true},
		{"scale", "songs/scale.MIDI", "scale", 3, true},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := songs[i]
			if s.Name != tc.name || s.Path != tc.path {
				t.Errorf("song = %q %q, want %q %q", s.Name, s.Path, tc.name, tc.path)
			}
			if got := s.DisplayName(); got != tc.display {
				t.Errorf("DisplayName = %q, want %q", got, tc.display)
			}
			if (s.Metadata != nil) != tc.metadata {
				t.Fatalf("Metadata = %+v, want present=%v", s.Metadata, tc.metadata)
			}
			if s.Metadata != nil && s.Metadata.Notes != tc.notes {
				t.Errorf("Notes = %d, want %d", s.Metadata.Notes, tc.notes)
			}
		})
	}

	meta := songs[1].Metadata
	if meta.Copyright != "(c) 1725" {
		t.Errorf("Copyright = %q", meta.Copyright)
	}
	if len(meta.Text) != 2 || meta.Text[0] != "right hand" || meta.Text[1] != "andante" {
		t.Errorf("Text = %q", meta.Text)
	}
	if meta.DurationMs != 750 {
		t.Errorf("DurationMs = %v, want 750", meta.DurationMs)
	}
}

func TestScan_MissingDirectory(t *testing.T) {
	if _, err := Scan(fstest.MapFS{}, "nope"); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		songs      []Song
		wantSong   string
		wantPicker bool
		wantErr    error
	}{
		{"曲なし", nil, "", false, ErrNoSongs},
		{"1曲は自動選択", []Song{{Name: "a"}}, "a", false, nil},
		{"複数曲は選択画面", []Song{{Name: "a"}, {Name: "b"}}, "", true, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &Registry{songs: tc.songs}
			song, picker, err := r.Select()
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if picker != tc.wantPicker {
				t.Errorf("picker = %v, want %v", picker, tc.wantPicker)
			}
			if tc.wantSong != "" && (song == nil || song.Name != tc.wantSong) {
				t.Errorf("song = %+v, want %s", song, tc.wantSong)
			}
		})
	}
}

func TestIsMidiFile(t *testing.T) {
	for name, want := range map[string]bool{
		"a.mid": true, "A.MID": true, "b.midi": true, "c.smf": true,
		"d.sf2": false, "mid": false, "e.mid.txt": false,
	} {
		if got := IsMidiFile(name); got != want {
			t.Errorf("IsMidiFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestScan_SMPTEFileKeptWithoutMetadata(t *testing.T) {
	smpte := tt.RawFile(0, 0xE728, []byte{0x00, 0x90, 0x3C, 0x40, 0x00, 0xFF, 0x2F, 0x00})
	r, err := Scan(fstest.MapFS{"timecode.mid": {Data: smpte}}, ".")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	songs := r.Songs()
	if len(songs) != 1 || songs[0].Metadata != nil {
		t.Errorf("songs = %+v, want one song without metadata", songs)
	}
}
