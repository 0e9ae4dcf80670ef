// Package documents loads the reference corpus from disk and ships a small
// set of example documents.
package documents

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
	log "github.com/sirupsen/logrus"

	"mhassist/internal/domain"
)

// FileInfo describes a corpus file without reading its content.
type FileInfo struct {
	Path string
	Name string
	Size int64
}

// Loader reads every supported file under a directory tree.
type Loader struct {
	formats []string
}

// NewLoader accepts extensions such as ".md"; matching is case-insensitive.
func NewLoader(formats []string) *Loader {
	norm := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		norm = append(norm, f)
	}
	return &Loader{formats: norm}
}

func (l *Loader) supported(path string) bool {
	return slices.Contains(l.formats, strings.ToLower(filepath.Ext(path)))
}

// List returns the supported files under dir in lexical order. A missing
// directory yields an empty list.
func (l *Loader) List(dir string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !l.supported(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: path, Name: d.Name(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return files, nil
}

// Load reads every supported, non-blank file under dir. Files that fail to
// read or parse are logged and skipped.
func (l *Loader) Load(dir string) ([]domain.Document, error) {
	files, err := l.List(dir)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(files))
	for _, f := range files {
		content, err := readText(f.Path)
		if err != nil {
			log.WithError(err).WithField("file", f.Path).Warn("skipping unreadable document")
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, domain.Document{
			Content:    content,
			Source:     f.Path,
			SourceFile: f.Name,
			FileType:   strings.ToLower(filepath.Ext(f.Path)),
		})
	}
	return docs, nil
}

func readText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readPDF(path string) (text string, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := rdr.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", err
	}
	return buf.String(), nil
}
