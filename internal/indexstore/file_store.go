// Package indexstore persists the vector index together with the chunk texts
// and metadata it is positionally aligned with.
package indexstore

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"mhassist/internal/domain"
	"mhassist/internal/vectorstore/flat"
)

const (
	IndexFile    = "index.bin"
	ChunksFile   = "chunks.gob"
	MetadataFile = "metadata.gob"

	generationLen = 36
	backupSuffix  = ".prev"
)

// Artifact is the persisted triple. Position i of Index, Texts and Metadata
// describe the same chunk.
type Artifact struct {
	Index      *flat.Index
	Texts      []string
	Metadata   []domain.ChunkMetadata
	Generation string
}

type chunksFile struct {
	Generation string
	Texts      []string
}

type metadataFile struct {
	Generation string
	Metadata   []domain.ChunkMetadata
}

// FileStore reads and writes an Artifact as three files in one directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore { return &FileStore{dir: dir} }

func (s *FileStore) Dir() string { return s.dir }

// Save writes all three files under a fresh generation stamp. Each file is
// written to a temp file and renamed into place; on failure the temp files
// are removed and the previous files are put back.
func (s *FileStore) Save(a *Artifact) (string, error) {
	if a == nil || a.Index == nil {
		return "", fmt.Errorf("%w: nil artifact", domain.ErrPersistence)
	}
	if a.Index.Len() != len(a.Texts) || len(a.Texts) != len(a.Metadata) {
		return "", fmt.Errorf("%w: misaligned artifact (%d vectors, %d texts, %d metadata)",
			domain.ErrPersistence, a.Index.Len(), len(a.Texts), len(a.Metadata))
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	gen := uuid.NewString()

	vecs, err := a.Index.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("%w: encode index: %v", domain.ErrPersistence, err)
	}
	indexData := append([]byte(gen), vecs...)
	chunksData, err := encodeGob(chunksFile{Generation: gen, Texts: a.Texts})
	if err != nil {
		return "", fmt.Errorf("%w: encode chunks: %v", domain.ErrPersistence, err)
	}
	metaData, err := encodeGob(metadataFile{Generation: gen, Metadata: a.Metadata})
	if err != nil {
		return "", fmt.Errorf("%w: encode metadata: %v", domain.ErrPersistence, err)
	}

	names := []string{IndexFile, ChunksFile, MetadataFile}
	payloads := [][]byte{indexData, chunksData, metaData}
	temps := make([]string, 0, len(names))
	cleanup := func() {
		for _, t := range temps {
			_ = os.Remove(t)
		}
	}
	for i, name := range names {
		tmp, err := writeTemp(s.dir, name, payloads[i])
		if err != nil {
			cleanup()
			return "", fmt.Errorf("%w: write %s: %v", domain.ErrPersistence, name, err)
		}
		temps = append(temps, tmp)
	}
	if err := s.replace(names, temps); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	a.Generation = gen
	return gen, nil
}

// replace moves temps over names. Existing files are first set aside as
// backups and restored if any later step fails.
func (s *FileStore) replace(names, temps []string) error {
	var backedUp, placed []string
	restore := func() {
		for _, name := range placed {
			_ = os.Remove(filepath.Join(s.dir, name))
		}
		for _, name := range backedUp {
			path := filepath.Join(s.dir, name)
			_ = os.Rename(path+backupSuffix, path)
		}
	}
	for _, name := range names {
		path := filepath.Join(s.dir, name)
		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := os.Rename(path, path+backupSuffix); err != nil {
			restore()
			return fmt.Errorf("back up %s: %w", name, err)
		}
		backedUp = append(backedUp, name)
	}
	for i, name := range names {
		if err := os.Rename(temps[i], filepath.Join(s.dir, name)); err != nil {
			restore()
			return fmt.Errorf("rename %s: %w", name, err)
		}
		placed = append(placed, name)
	}
	for _, name := range backedUp {
		_ = os.Remove(filepath.Join(s.dir, name) + backupSuffix)
	}
	return nil
}

// Load reads the artifact. Any missing, corrupt or mismatched file yields an
// error wrapping domain.ErrIndexAbsent.
func (s *FileStore) Load() (*Artifact, error) {
	indexData, err := os.ReadFile(filepath.Join(s.dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexAbsent, err)
	}
	if len(indexData) < generationLen {
		return nil, fmt.Errorf("%w: %s truncated", domain.ErrIndexAbsent, IndexFile)
	}
	gen := string(indexData[:generationLen])
	idx := &flat.Index{}
	if err := idx.UnmarshalBinary(indexData[generationLen:]); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexAbsent, IndexFile, err)
	}

	var chunks chunksFile
	if err := decodeGobFile(filepath.Join(s.dir, ChunksFile), &chunks); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexAbsent, ChunksFile, err)
	}
	var meta metadataFile
	if err := decodeGobFile(filepath.Join(s.dir, MetadataFile), &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrIndexAbsent, MetadataFile, err)
	}
	if chunks.Generation != gen || meta.Generation != gen {
		return nil, fmt.Errorf("%w: files belong to different saves", domain.ErrIndexAbsent)
	}
	if idx.Len() != len(chunks.Texts) || len(chunks.Texts) != len(meta.Metadata) {
		return nil, fmt.Errorf("%w: length mismatch (%d vectors, %d texts, %d metadata)",
			domain.ErrIndexAbsent, idx.Len(), len(chunks.Texts), len(meta.Metadata))
	}
	return &Artifact{Index: idx, Texts: chunks.Texts, Metadata: meta.Metadata, Generation: gen}, nil
}

// Exists reports whether all three files are present. It does not validate them.
func (s *FileStore) Exists() bool {
	for _, name := range []string{IndexFile, ChunksFile, MetadataFile} {
		if _, err := os.Stat(filepath.Join(s.dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Remove deletes the artifact files. Missing files are not an error.
func (s *FileStore) Remove() error {
	for _, name := range []string{IndexFile, ChunksFile, MetadataFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGobFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}
