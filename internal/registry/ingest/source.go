package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Kind distinguishes the configured file from an uploaded one.
type Kind string

const (
	KindFile   Kind = "file"
	KindUpload Kind = "upload"
)

// Source describes where a registry table is read from.
type Source struct {
	Kind Kind
	Name string
	Path string
	Data []byte
}

// FileSource reads the table from a path on disk.
func FileSource(path string) Source {
	return Source{Kind: KindFile, Name: filepath.Base(path), Path: path}
}

// UploadSource reads the table from an uploaded payload.
func UploadSource(name string, data []byte) Source {
	return Source{Kind: KindUpload, Name: name, Data: data}
}

// Format is the lower-cased file extension without the dot.
func (s Source) Format() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(s.Name)), ".")
}

// String identifies the source in logs.
func (s Source) String() string {
	if s.Kind == KindFile {
		return s.Path
	}
	return fmt.Sprintf("upload:%s", s.Name)
}

func (s Source) open() (io.ReadCloser, error) {
	if s.Kind == KindUpload {
		return io.NopCloser(bytes.NewReader(s.Data)), nil
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", s.Path, err)
	}
	return f, nil
}
