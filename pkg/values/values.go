// Package values turns a literal or file-backed string into an ordered list of candidate values.
//
// Inputs starting with "@" are file references: "@path" reads path from the loader's
// filesystem and "@builtin:name" reads a bundled wordlist. File content is split on
// newlines, literals on commas. Every part is trimmed and empty parts are dropped.
package values

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/funnyzak/retweak/pkg/wordlists"
	"github.com/spf13/afero"
)

const (
	// FilePrefix marks a file-backed input.
	FilePrefix = "@"
	// BuiltinPrefix follows FilePrefix to select a bundled wordlist.
	BuiltinPrefix = "builtin:"
)

// ErrIO indicates a referenced file could not be read.
var ErrIO = errors.New("read failed")

// Loader resolves value sources against a filesystem.
type Loader struct {
	fs      afero.Fs
	builtin fs.FS
}

// NewLoader creates a loader reading files from fsys and bundled lists from the wordlists package.
// A nil fsys reads from the OS filesystem.
func NewLoader(fsys afero.Fs) *Loader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Loader{fs: fsys, builtin: wordlists.FS}
}

// IsFileRef reports whether input refers to a file.
func IsFileRef(input string) bool {
	return strings.HasPrefix(input, FilePrefix)
}

// SplitOn returns the separator used for input: newline for files, comma for literals.
func SplitOn(input string) string {
	if IsFileRef(input) {
		return "\n"
	}
	return ","
}

// Split splits s on sep, trims every part and drops the empty ones.
func Split(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		result = append(result, part)
	}
	return result
}

// Read returns the text behind input: the file content for references, input itself otherwise.
func (l *Loader) Read(input string) (string, error) {
	if !IsFileRef(input) {
		return input, nil
	}

	path := strings.TrimPrefix(input, FilePrefix)
	if name, ok := strings.CutPrefix(path, BuiltinPrefix); ok {
		data, err := fs.ReadFile(l.builtin, name+".txt")
		if err != nil {
			return "", fmt.Errorf("%w: unknown wordlist %q (available: %s)", ErrIO, name, strings.Join(wordlists.Names(), ", "))
		}
		return string(data), nil
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	return string(data), nil
}

// Load reads input and splits it into values.
func (l *Loader) Load(input string) ([]string, error) {
	text, err := l.Read(input)
	if err != nil {
		return nil, err
	}
	return Split(text, SplitOn(input)), nil
}
