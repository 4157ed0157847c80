package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

var indexMagic = [8]byte{'K', 'O', 'A', 'V', 'E', 'C', '0', '1'}

type indexHeader struct {
	Magic      [8]byte
	Dims       uint32
	ChunkWords uint32
	Count      uint32
}

// Save writes the vector file and the metadata array, each through a temp file and rename.
func (x *FileIndex) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var buf bytes.Buffer
	header := indexHeader{
		Magic:      indexMagic,
		Dims:       uint32(x.dims),
		ChunkWords: uint32(x.chunkWords),
		Count:      uint32(len(x.vectors)),
	}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to encode index header: %w", err)
	}
	for _, vec := range x.vectors {
		buf.Write(float32SliceToBytes(vec))
	}

	metadata := x.metadata
	if metadata == nil {
		metadata = []string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := writeFileAtomic(x.config.IndexPath, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := writeFileAtomic(x.config.MetadataPath, meta); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// Load replaces the in-memory index with the persisted one. A missing artifact
// leaves the index empty; an unreadable or inconsistent pair is discarded.
func (x *FileIndex) Load() {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.reset()

	indexData, indexErr := os.ReadFile(x.config.IndexPath)
	metaData, metaErr := os.ReadFile(x.config.MetadataPath)
	if errors.Is(indexErr, os.ErrNotExist) && errors.Is(metaErr, os.ErrNotExist) {
		x.logger.Info("no persisted index found, starting empty", zap.String("path", x.config.IndexPath))
		return
	}
	if err := errors.Join(indexErr, metaErr); err != nil {
		x.logger.Warn("index corrupted, reinitializing empty", zap.Error(err))
		return
	}

	header, vectors, err := decodeIndex(indexData)
	if err == nil {
		var metadata []string
		if err = json.Unmarshal(metaData, &metadata); err == nil && len(metadata) != len(vectors) {
			err = fmt.Errorf("metadata has %d entries, index has %d vectors", len(metadata), len(vectors))
		}
		if err == nil {
			x.dims = int(header.Dims)
			x.chunkWords = int(header.ChunkWords)
			x.vectors = vectors
			x.metadata = metadata
			x.logger.Info("loaded index",
				zap.Int("vectors", len(vectors)),
				zap.Int("dims", x.dims),
				zap.Int("chunk_words", x.chunkWords))
			return
		}
	}

	x.logger.Warn("index corrupted, reinitializing empty", zap.Error(err))
}

func (x *FileIndex) reset() {
	x.dims = 0
	x.chunkWords = x.config.ChunkWords
	x.vectors = nil
	x.metadata = nil
}

func decodeIndex(data []byte) (indexHeader, [][]float32, error) {
	var header indexHeader
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return header, nil, fmt.Errorf("read header: %w", err)
	}
	if header.Magic != indexMagic {
		return header, nil, fmt.Errorf("bad magic %q", header.Magic[:])
	}

	want := int64(header.Count) * int64(header.Dims) * 4
	if int64(r.Len()) != want {
		return header, nil, fmt.Errorf("expected %d vector bytes, found %d", want, r.Len())
	}
	if header.Count > 0 && header.Dims == 0 {
		return header, nil, fmt.Errorf("zero dimensions for %d vectors", header.Count)
	}

	vectors := make([][]float32, 0, header.Count)
	buf := make([]byte, int(header.Dims)*4)
	for i := uint32(0); i < header.Count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return header, nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}

	return header, vectors, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func float32SliceToBytes(s []float32) []byte {
	b := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func bytesToFloat32Slice(b []byte) []float32 {
	s := make([]float32, len(b)/4)
	for i := range s {
		s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return s
}
