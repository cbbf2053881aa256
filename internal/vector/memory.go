package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	snapshotMagic   = "KOTAEVEC"
	snapshotVersion = uint32(1)
)

// ErrBadSnapshot is returned when a snapshot file is not readable by this version.
var ErrBadSnapshot = errors.New("invalid index snapshot")

// MemoryIndex is an in-memory passage index using brute-force inner product search.
// Vectors are stored L2-normalized so inner product equals cosine similarity.
type MemoryIndex struct {
	dimensions int
	passages   []*models.Passage
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		passages:   make([]*models.Passage, 0),
	}, nil
}

// Dimensions returns the vector dimension of the index.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends passages. Each passage must carry an embedding of the index dimension.
// The stored passage is a copy with a normalized embedding.
func (m *MemoryIndex) Add(ctx context.Context, passages []*models.Passage) error {
	added := make([]*models.Passage, 0, len(passages))
	for _, p := range passages {
		if len(p.Embedding) != m.dimensions {
			return fmt.Errorf("%w: passage %s has %d, expected %d", ErrDimensionMismatch, p.ID, len(p.Embedding), m.dimensions)
		}
		cp := *p
		cp.Embedding = Normalized(p.Embedding)
		added = append(added, &cp)
	}
	m.mu.Lock()
	m.passages = append(m.passages, added...)
	m.mu.Unlock()
	return nil
}

// Search returns up to k passages by descending cosine similarity.
// Equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	q := Normalized(query)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.passages) == 0 {
		return nil, nil
	}
	hits := make([]models.Hit, len(m.passages))
	for i, p := range m.passages {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[i] = models.Hit{Passage: p, Score: InnerProduct(q, p.Embedding)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Remove drops every passage belonging to filename.
func (m *MemoryIndex) Remove(ctx context.Context, filename string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]*models.Passage, 0, len(m.passages))
	for _, p := range m.passages {
		if p.Filename != filename {
			kept = append(kept, p)
		}
	}
	removed := len(m.passages) - len(kept)
	m.passages = kept
	return removed, nil
}

// Filenames returns the distinct filenames present in the index, sorted.
func (m *MemoryIndex) Filenames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range m.passages {
		seen[p.Filename] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Passages returns the indexed passages in insertion order.
func (m *MemoryIndex) Passages() []*models.Passage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Passage, len(m.passages))
	copy(out, m.passages)
	return out
}

// Save writes the index to path atomically (temp file then rename).
//
// Layout, little endian: magic, version, dimensions, model, trained-at (unix nanos, 0 if unset),
// count, then per passage: id, filename, page, ordinal, text, vector.
func (m *MemoryIndex) Save(path string, meta Meta) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vectors-*.tmp")
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := m.writeTo(w, meta); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

func (m *MemoryIndex) writeTo(w io.Writer, meta Meta) error {
	var trainedAt int64
	if !meta.TrainedAt.IsZero() {
		trainedAt = meta.TrainedAt.UnixNano()
	}
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, v := range []any{snapshotVersion, uint32(m.dimensions)} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := writeString(w, meta.Model); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, trainedAt); err != nil {
		return fmt.Errorf("write trained at: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.passages))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, p := range m.passages {
		if err := writeString(w, p.ID); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := writeString(w, p.Filename); err != nil {
			return fmt.Errorf("write filename: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(p.Page), uint32(p.Ordinal)}); err != nil {
			return fmt.Errorf("write position: %w", err)
		}
		if err := writeString(w, p.Text); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(p.Embedding)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load replaces the index contents with the snapshot at path and returns its metadata.
// A missing file is not an error: the index is left unchanged and Meta is zero.
func (m *MemoryIndex) Load(path string) (Meta, error) {
	if path == "" {
		return Meta{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, nil
		}
		return Meta{}, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != snapshotMagic {
		return Meta{}, fmt.Errorf("%w: bad header", ErrBadSnapshot)
	}
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return Meta{}, fmt.Errorf("%w: read header: %v", ErrBadSnapshot, err)
	}
	if header[0] != snapshotVersion {
		return Meta{}, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, header[0])
	}
	meta := Meta{Dimensions: int(header[1])}
	if meta.Dimensions != m.dimensions {
		return meta, fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, meta.Dimensions, m.dimensions)
	}
	if meta.Model, err = readString(r); err != nil {
		return meta, fmt.Errorf("%w: read model: %v", ErrBadSnapshot, err)
	}
	var trainedAt int64
	if err := binary.Read(r, binary.LittleEndian, &trainedAt); err != nil {
		return meta, fmt.Errorf("%w: read trained at: %v", ErrBadSnapshot, err)
	}
	if trainedAt != 0 {
		meta.TrainedAt = time.Unix(0, trainedAt).UTC()
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return meta, fmt.Errorf("%w: read count: %v", ErrBadSnapshot, err)
	}

	passages := make([]*models.Passage, 0, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		p := &models.Passage{}
		if p.ID, err = readString(r); err != nil {
			return meta, fmt.Errorf("%w: read id: %v", ErrBadSnapshot, err)
		}
		if p.Filename, err = readString(r); err != nil {
			return meta, fmt.Errorf("%w: read filename: %v", ErrBadSnapshot, err)
		}
		var pos [2]uint32
		if err := binary.Read(r, binary.LittleEndian, &pos); err != nil {
			return meta, fmt.Errorf("%w: read position: %v", ErrBadSnapshot, err)
		}
		p.Page, p.Ordinal = int(pos[0]), int(pos[1])
		if p.Text, err = readString(r); err != nil {
			return meta, fmt.Errorf("%w: read text: %v", ErrBadSnapshot, err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return meta, fmt.Errorf("%w: read vector: %v", ErrBadSnapshot, err)
		}
		p.Embedding = bytesToFloat32Slice(buf)
		passages = append(passages, p)
	}

	m.mu.Lock()
	m.passages = passages
	m.mu.Unlock()
	return meta, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of passages in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.passages)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

var _ VectorIndex = (*MemoryIndex)(nil)
