package fileutil

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileSystem は実ファイルシステムと fs.FS を統一的に扱うインターフェース
type FileSystem interface {
	// ReadFile はファイルの内容を読み込む（大文字小文字を無視）
	ReadFile(name string) ([]byte, error)
	// Exists はファイルが存在するかどうかを返す（大文字小文字を無視）
	Exists(name string) bool
	// BasePath はベースパスを返す
	BasePath() string
	// IsEmbedded は fs.FS ベースかどうかを返す
	IsEmbedded() bool
}

// RealFS は実ファイルシステムへのアクセスを提供する
type RealFS struct {
	basePath string
}

// NewRealFS は実ファイルシステム用のFileSystemを作成する
// basePath が空の場合、相対パスはカレントディレクトリ基準になる
func NewRealFS(basePath string) *RealFS {
	return &RealFS{basePath: basePath}
}

func (r *RealFS) ReadFile(name string) ([]byte, error) {
	actualPath, err := r.find(r.resolvePath(name))
	if err != nil {
		return nil, err
	}
	return os.ReadFile(actualPath)
}

func (r *RealFS) Exists(name string) bool {
	_, err := r.find(r.resolvePath(name))
	return err == nil
}

func (r *RealFS) BasePath() string {
	return r.basePath
}

func (r *RealFS) IsEmbedded() bool {
	return false
}

func (r *RealFS) resolvePath(name string) string {
	if filepath.IsAbs(name) || r.basePath == "" {
		return name
	}
	return filepath.Join(r.basePath, name)
}

func (r *RealFS) find(p string) (string, error) {
	// まず直接アクセスを試みる
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		return p, nil
	}
	// 大文字小文字を無視して検索
	return FindFileCaseInsensitive(filepath.Dir(p), filepath.Base(p))
}

// MountFS は fs.FS（embed.FS, fstest.MapFS など）へのアクセスを提供する
type MountFS struct {
	fsys     fs.FS
	basePath string
}

// NewMountFS は fs.FS 用のFileSystemを作成する
func NewMountFS(fsys fs.FS, basePath string) *MountFS {
	return &MountFS{fsys: fsys, basePath: basePath}
}

func (m *MountFS) ReadFile(name string) ([]byte, error) {
	actualPath, err := m.find(m.resolvePath(name))
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(m.fsys, actualPath)
}

func (m *MountFS) Exists(name string) bool {
	_, err := m.find(m.resolvePath(name))
	return err == nil
}

func (m *MountFS) BasePath() string {
	return m.basePath
}

func (m *MountFS) IsEmbedded() bool {
	return true
}

func (m *MountFS) resolvePath(name string) string {
	// 先頭の "/" や "\" を除去、fs.FS では "/" を使用
	clean := strings.ReplaceAll(name, "\\", "/")
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		if m.basePath != "" {
			return m.basePath
		}
		return "."
	}
	if m.basePath != "" {
		return path.Join(m.basePath, clean)
	}
	return clean
}

func (m *MountFS) find(p string) (string, error) {
	if info, err := fs.Stat(m.fsys, p); err == nil && !info.IsDir() {
		return p, nil
	}
	return FindFileCaseInsensitiveFS(m.fsys, path.Dir(p), path.Base(p))
}
