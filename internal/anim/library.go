package anim

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/phoneme"
)

var clipExtensions = []string{".yaml", ".yml", ".json"}

// ClipInfo summarises a stored clip.
type ClipInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Keyframes int       `json:"keyframes"`
	Duration  float64   `json:"duration"`
	Loop      bool      `json:"loop"`
	Modified  time.Time `json:"modified"`
}

// Library stores clips as files in a directory.
type Library struct {
	dir    string
	table  *phoneme.Table
	fps    int
	logger zerolog.Logger
}

// NewLibrary opens dir, creating it if needed. Vowel-frame files are resampled
// with table at fps when loaded.
func NewLibrary(dir string, table *phoneme.Table, fps int, logger zerolog.Logger) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create clip directory: %w", err)
	}
	if table == nil {
		table = phoneme.DefaultTable()
	}
	return &Library{
		dir:    dir,
		table:  table,
		fps:    fps,
		logger: logger.With().Str("component", "clip_library").Logger(),
	}, nil
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

// List returns every readable clip, sorted by name. Unreadable files are
// skipped with a warning.
func (l *Library) List() ([]ClipInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip directory: %w", err)
	}

	var infos []ClipInfo
	for _, e := range entries {
		if e.IsDir() || !hasClipExtension(e.Name()) {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		clip, err := l.loadFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable clip")
			continue
		}
		info := ClipInfo{
			Name:      strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Path:      path,
			Keyframes: len(clip.Keyframes),
			Duration:  clip.Duration,
			Loop:      clip.Loop,
		}
		if fi, err := e.Info(); err == nil {
			info.Modified = fi.ModTime()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Load reads the clip stored under name.
func (l *Library) Load(name string) (*Clip, error) {
	path, err := l.find(name)
	if err != nil {
		return nil, err
	}
	clip, err := l.loadFile(path)
	if err != nil {
		return nil, err
	}
	if clip.Name == "" {
		clip.Name = name
	}
	return clip, nil
}

// Save validates c and writes it as name.yaml, replacing any file of that name.
func (l *Library) Save(name string, c *Clip) error {
	if err := validName(name); err != nil {
		return err
	}
	data, err := Encode(c)
	if err != nil {
		return err
	}
	if old, err := l.find(name); err == nil && filepath.Ext(old) != ".yaml" {
		if err := os.Remove(old); err != nil {
			return fmt.Errorf("failed to replace clip: %w", err)
		}
	}
	path := filepath.Join(l.dir, name+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write clip: %w", err)
	}
	l.logger.Info().Str("clip", name).Int("keyframes", len(c.Keyframes)).Msg("Clip saved")
	return nil
}

// Delete removes the clip stored under name.
func (l *Library) Delete(name string) error {
	path, err := l.find(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete clip: %w", err)
	}
	l.logger.Info().Str("clip", name).Msg("Clip deleted")
	return nil
}

func (l *Library) find(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	for _, ext := range clipExtensions {
		path := filepath.Join(l.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrClipNotFound, name)
}

func (l *Library) loadFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data, l.table, l.fps)
}

func hasClipExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range clipExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid clip name %q", ErrMalformedClip, name)
	}
	return nil
}
