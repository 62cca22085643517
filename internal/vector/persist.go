package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Snapshot format, little endian: magic "SHVX", version (4), dimension (4), n (4),
// then per entry: idLen (4), id, docLen (4), doc id, text checksum (8),
// vector (dimension*4 bytes).
const (
	snapshotMagic   = "SHVX"
	snapshotVersion = uint32(2)
)

// ErrSnapshotMismatch means a snapshot exists but cannot be used by this index.
var ErrSnapshotMismatch = errors.New("vector snapshot mismatch")

func writeSnapshot(path string, dimensions int, entries []entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	werr := func() error {
		if _, err := w.WriteString(snapshotMagic); err != nil {
			return err
		}
		for _, v := range []uint32{snapshotVersion, uint32(dimensions), uint32(len(entries))} {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := writeString(w, e.id); err != nil {
				return err
			}
			if err := writeString(w, e.docID); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, e.sum); err != nil {
				return err
			}
			if _, err := w.Write(float32SliceToBytes(e.vec)); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write index file: %w", werr)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

// readSnapshot returns (nil, nil) when path does not exist.
func readSnapshot(path string, dimensions int) ([]entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != snapshotMagic {
		return nil, fmt.Errorf("%w: not a vector snapshot", ErrSnapshotMismatch)
	}
	var version, dim, n uint32
	for _, p := range []*uint32{&version, &dim, &n} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrSnapshotMismatch, version)
	}
	if int(dim) != dimensions {
		return nil, fmt.Errorf("%w: file has dimension %d, index expects %d", ErrSnapshotMismatch, dim, dimensions)
	}
	entries := make([]entry, 0, n)
	buf := make([]byte, dimensions*4)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		docID, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read doc id: %w", err)
		}
		var sum uint64
		if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
			return nil, fmt.Errorf("read checksum: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		entries = append(entries, entry{id: id, docID: docID, sum: sum, vec: bytesToFloat32Slice(buf)})
	}
	return entries, nil
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
	if n > 1<<20 {
		return "", fmt.Errorf("%w: string length %d", ErrSnapshotMismatch, n)
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
