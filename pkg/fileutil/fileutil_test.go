package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestFindFileCaseInsensitive(t *testing.T) {
	tmpDir := t.TempDir()

	for _, filename := range []string{"Etude.MID", "GeneralUser-GS.sf2", "lowercase.mid"} {
		if err := os.WriteFile(filepath.Join(tmpDir, filename), []byte("test"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}

	tests := []struct {
		name          string
		searchName    string
		shouldFind    bool
		expectedMatch string
	}{
		{"exact match", "Etude.MID", true, "Etude.MID"},
		{"lowercase search", "etude.mid", true, "Etude.MID"},
		{"uppercase search", "GENERALUSER-GS.SF2", true, "GeneralUser-GS.sf2"},
		{"missing file", "nocturne.mid", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindFileCaseInsensitive(tmpDir, tt.searchName)
			if !tt.shouldFind {
				if !errors.Is(err, ErrFileNotFound) {
					t.Errorf("expected ErrFileNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if filepath.Base(got) != tt.expectedMatch {
				t.Errorf("expected %s, got %s", tt.expectedMatch, filepath.Base(got))
			}
		})
	}
}

func TestRealFS_ReadFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "Song.mid"), []byte("MThd"), 0644); err != nil {
		t.Fatal(err)
	}

	fsys := NewRealFS(tmpDir)
	data, err := fsys.ReadFile("song.MID")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "MThd" {
		t.Errorf("unexpected content %q", data)
	}
	if !fsys.Exists("SONG.mid") {
		t.Error("Exists should ignore case")
	}
	if fsys.Exists("other.mid") {
		t.Error("Exists reported a missing file")
	}
	if fsys.IsEmbedded() {
		t.Error("RealFS must not report embedded")
	}
}

func TestMountFS_ReadFile(t *testing.T) {
	mapFS := fstest.MapFS{
		"assets/songs/Minuet.mid": {Data: []byte("minuet")},
		"assets/GeneralUser.sf2":  {Data: []byte("sf2")},
	}
	fsys := NewMountFS(mapFS, "assets")

	data, err := fsys.ReadFile("songs/minuet.MID")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "minuet" {
		t.Errorf("unexpected content %q", data)
	}
	if !fsys.Exists("/generaluser.sf2") {
		t.Error("leading slash and case should be ignored")
	}
	if !fsys.IsEmbedded() {
		t.Error("MountFS must report embedded")
	}
}

func TestLocate(t *testing.T) {
	fsys := NewMountFS(fstest.MapFS{"b.sf2": {Data: []byte("x")}}, "")

	got, err := Locate(fsys, "", "a.sf2", "B.SF2")
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if got != "B.SF2" {
		t.Errorf("expected B.SF2, got %s", got)
	}

	if _, err := Locate(fsys, "c.sf2"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}
