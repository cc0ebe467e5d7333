// Package synth renders playback events to audio with a SoundFont
// synthesizer and plays them through Ebitengine's audio context.
package synth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/zurustar/holokeys/pkg/fileutil"
)

// ErrNoSoundFont is returned when no SoundFont path was given or found.
var ErrNoSoundFont = errors.New("SoundFont file is required for audio playback")

// ErrSoundFontNotFound is returned when the SoundFont file cannot be found.
var ErrSoundFontNotFound = errors.New("SoundFont file not found")

// DefaultSoundFontName is searched for when no path is given.
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// ReadSoundFont reads a SoundFont through fsys, or the real file system
// when fsys is nil.
func ReadSoundFont(fsys fileutil.FileSystem, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrNoSoundFont
	}
	if fsys == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
			}
			return nil, fmt.Errorf("failed to read SoundFont file: %w", err)
		}
		return data, nil
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
	}
	return data, nil
}

// LoadSoundFont reads and parses a SoundFont.
func LoadSoundFont(fsys fileutil.FileSystem, path string) (*meltysynth.SoundFont, error) {
	data, err := ReadSoundFont(fsys, path)
	if err != nil {
		return nil, err
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SoundFont: %w", err)
	}
	return sf, nil
}

// FindSoundFont returns explicit when set, otherwise the first existing
// DefaultSoundFontName in the current directory, next to the MIDI file, or
// in a soundfonts directory beside it.
func FindSoundFont(fsys fileutil.FileSystem, explicit, midiPath string) (string, error) {
	if explicit != "" {
		if !fsys.Exists(explicit) {
			return "", fmt.Errorf("%w: %s", ErrSoundFontNotFound, explicit)
		}
		return explicit, nil
	}
	dir := filepath.Dir(midiPath)
	found, err := fileutil.Locate(fsys,
		DefaultSoundFontName,
		filepath.Join(dir, DefaultSoundFontName),
		filepath.Join(dir, "soundfonts", DefaultSoundFontName),
	)
	if err != nil {
		return "", ErrNoSoundFont
	}
	return found, nil
}
