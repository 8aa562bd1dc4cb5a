// Package device reads the address book that stands in for the phone's
// contact provider.
package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
)

// Contact is one address book entry.
type Contact struct {
	ID    string `toml:"id"`
	Name  string `toml:"name"`
	Phone string `toml:"phone"`
}

// Source produces the device's contacts.
type Source interface {
	Contacts(ctx context.Context) ([]Contact, error)
}

// FileSource reads [[contact]] tables from a TOML file.
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource for path. An empty path yields a
// source with no contacts.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Contacts reads the file. A missing file is an empty address book.
// Entries without a phone are skipped and phones lose all whitespace.
func (s *FileSource) Contacts(ctx context.Context) ([]Contact, error) {
	if s == nil || s.Path == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc struct {
		Contact []Contact `toml:"contact"`
	}
	if _, err := toml.DecodeFile(s.Path, &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read device contacts: %w", err)
	}

	out := make([]Contact, 0, len(doc.Contact))
	for _, c := range doc.Contact {
		c.Phone = stripSpace(c.Phone)
		c.Name = strings.TrimSpace(c.Name)
		if c.Phone == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
