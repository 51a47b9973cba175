package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/miradorstack/model-graveyard/internal/models"
)

var (
	// ErrInvalidID is returned for ids not shaped "<agent|category>:<name>".
	ErrInvalidID = errors.New("invalid roster id")
	// ErrEntryNotFound is returned when the id names no roster entry.
	ErrEntryNotFound = errors.New("roster entry not found")
	// ErrInvalidEntry is returned when the entry exists but is not an object.
	ErrInvalidEntry = errors.New("invalid roster entry")
)

// ParseID splits "<kind>:<name>".
func ParseID(id string) (models.Kind, string, error) {
	kind, name, ok := strings.Cut(id, ":")
	if !ok || !models.Kind(kind).Valid() {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	return models.Kind(kind), name, nil
}

// BackupPath is where ReplaceModel keeps the previous roster.
func BackupPath(path string) string {
	return path + ".bak"
}

// ReplaceModel rewrites the model of one roster entry and returns the model it
// replaced. Every other key in the file is preserved. The previous file is
// copied to BackupPath first and restored if the write fails.
func ReplaceModel(path, id, newModel string) (string, error) {
	kind, name, err := ParseID(id)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read roster %s: %w", path, err)
	}
	root, err := parseObject(data)
	if err != nil {
		return "", fmt.Errorf("parse roster: %w", err)
	}

	sectionKey := kind.Section()
	rawSection, _ := root.get(sectionKey)
	section, err := parseObject(rawSection)
	if err != nil {
		return "", fmt.Errorf("%w: '%s' not found in config[%s]", ErrEntryNotFound, name, sectionKey)
	}
	rawEntry, ok := section.get(name)
	if !ok {
		return "", fmt.Errorf("%w: '%s' not found in config[%s]", ErrEntryNotFound, name, sectionKey)
	}
	entry, err := parseObject(rawEntry)
	if err != nil {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidEntry, name)
	}

	oldModel := modelOf(rawEntry)
	encodedModel, err := json.Marshal(newModel)
	if err != nil {
		return "", err
	}
	entry.set("model", encodedModel)
	if err := setMarshalled(&section, name, entry); err != nil {
		return "", err
	}
	if err := setMarshalled(&root, sectionKey, section); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return "", err
	}

	if err := copyFile(path, BackupPath(path)); err != nil {
		return "", fmt.Errorf("backup roster: %w", err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		if restoreErr := copyFile(BackupPath(path), path); restoreErr != nil {
			return "", errors.Join(fmt.Errorf("write roster: %w", err), fmt.Errorf("restore backup: %w", restoreErr))
		}
		return "", fmt.Errorf("write roster: %w", err)
	}
	return oldModel, nil
}

func setMarshalled(o *object, key string, value object) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	o.set(key, raw)
	return nil
}

// Sync copies source over dest when dest is missing or older than source.
// It reports whether a copy happened. A missing source is not an error.
func Sync(source, dest string) (bool, error) {
	if source == "" {
		return false, nil
	}
	srcInfo, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat roster source: %w", err)
	}
	dstInfo, err := os.Stat(dest)
	switch {
	case err == nil && !srcInfo.ModTime().After(dstInfo.ModTime()):
		return false, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("stat roster: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, fmt.Errorf("create roster dir: %w", err)
	}
	if err := copyFile(source, dest); err != nil {
		return false, err
	}
	if err := os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return true, fmt.Errorf("preserve roster mtime: %w", err)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
