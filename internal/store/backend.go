package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("component", "store")

// Backend persists whole JSON documents addressed by a slash-separated
// path relative to the output directory.
type Backend interface {
	Load(name string, v any) error
	Save(name string, v any) error
}

// JSONDir stores documents as indented UTF-8 JSON files under Root.
type JSONDir struct {
	Root string
}

func NewJSONDir(root string) (*JSONDir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", root, err)
	}
	return &JSONDir{Root: root}, nil
}

func (d *JSONDir) path(name string) string {
	return filepath.Join(d.Root, filepath.FromSlash(name))
}

// Load decodes the named document into v. A missing document leaves v untouched.
// An unreadable document is renamed aside so a later Save cannot shrink it.
func (d *JSONDir) Load(name string, v any) error {
	p := d.path(name)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", p, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", p, time.Now().Unix())
		if rerr := os.Rename(p, aside); rerr != nil {
			return fmt.Errorf("failed to decode %s (%v) and to move it aside: %w", p, err, rerr)
		}
		logger.WithFields(log.Fields{"file": p, "moved_to": aside}).Warnf("Could not decode existing data: %v", err)
		return nil
	}
	return nil
}

// Read decodes the named document for consumers that must not touch the
// directory. A missing document leaves v untouched; a corrupt one is an error.
func (d *JSONDir) Read(name string, v any) error {
	p := d.path(name)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", p, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", p, err)
	}
	return nil
}

// Exists reports whether the named document is present.
func (d *JSONDir) Exists(name string) bool {
	_, err := os.Stat(d.path(name))
	return err == nil
}

// Path is the filesystem location of the named document.
func (d *JSONDir) Path(name string) string {
	return d.path(name)
}

// Save writes v atomically: a temp file in the same directory is renamed over the target.
func (d *JSONDir) Save(name string, v any) error {
	p := d.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", p, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to replace %s: %w", p, err)
	}
	logger.WithField("file", p).Debug("Data saved")
	return nil
}

var unsafeChars = strings.NewReplacer(
	" ", "_", "/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_", ".", "_",
)

// SafeName makes a single path component safe for any filesystem.
func SafeName(name string) string {
	return unsafeChars.Replace(name)
}
