package graph

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	"osmgraph/pkg/metric"
)

const (
	magicBytes = "OSMGRAPH"
	version    = uint32(1)
	maxNodes   = 10_000_000
	maxEdges   = 50_000_000
)

// fileHeader is the binary header.
type fileHeader struct {
	Magic    [8]byte
	Version  uint32
	NumNodes uint32
	NumEdges uint32
	NumCols  uint32
	HasCH    uint32
}

// WriteBinary serializes g to a binary file, writing atomically via a
// temp file plus rename so a crash mid-write never corrupts the target.
func WriteBinary(path string, g *Graph) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	hasCH := uint32(0)
	if g.HasCH() {
		hasCH = 1
	}

	hdr := fileHeader{
		Version:  version,
		NumNodes: g.NumNodes,
		NumEdges: g.NumEdges,
		NumCols:  uint32(len(g.Metrics)),
		HasCH:    hasCH,
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if err := writeUint32Slice(w, g.OffF); err != nil {
		return fmt.Errorf("write OffF: %w", err)
	}
	if err := writeUint32Slice(w, g.AdjF); err != nil {
		return fmt.Errorf("write AdjF: %w", err)
	}
	if err := writeUint32Slice(w, g.OffB); err != nil {
		return fmt.Errorf("write OffB: %w", err)
	}
	if err := writeUint32Slice(w, g.AdjB); err != nil {
		return fmt.Errorf("write AdjB: %w", err)
	}
	if err := writeUint32Slice(w, g.FwdToBwd); err != nil {
		return fmt.Errorf("write FwdToBwd: %w", err)
	}
	if err := writeUint32Slice(w, g.Src); err != nil {
		return fmt.Errorf("write Src: %w", err)
	}
	if err := writeUint32Slice(w, g.Dst); err != nil {
		return fmt.Errorf("write Dst: %w", err)
	}
	if err := writeInt64Slice(w, g.ExtEdgeID); err != nil {
		return fmt.Errorf("write ExtEdgeID: %w", err)
	}

	if err := writeRegistry(w, g.Registry); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	for _, col := range g.Metrics {
		if err := writeFloat64Slice(w, col); err != nil {
			return fmt.Errorf("write metric column: %w", err)
		}
	}

	if err := writeInt64Slice(w, g.NodeExtID); err != nil {
		return fmt.Errorf("write NodeExtID: %w", err)
	}
	if err := writeFloat64Slice(w, g.NodeLat); err != nil {
		return fmt.Errorf("write NodeLat: %w", err)
	}
	if err := writeFloat64Slice(w, g.NodeLon); err != nil {
		return fmt.Errorf("write NodeLon: %w", err)
	}

	if g.HasCH() {
		if err := writeUint32Slice(w, g.Levels); err != nil {
			return fmt.Errorf("write Levels: %w", err)
		}
		if err := writeInt32Slice(w, g.ShortcutA); err != nil {
			return fmt.Errorf("write ShortcutA: %w", err)
		}
		if err := writeInt32Slice(w, g.ShortcutB); err != nil {
			return fmt.Errorf("write ShortcutB: %w", err)
		}
	}

	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadBinary deserializes a Graph from a binary file, validating the CRC32
// trailer and the CSR invariants before returning.
func ReadBinary(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumNodes > maxNodes {
		return nil, fmt.Errorf("NumNodes %d exceeds limit %d", hdr.NumNodes, maxNodes)
	}
	if hdr.NumEdges > maxEdges {
		return nil, fmt.Errorf("NumEdges %d exceeds limit %d", hdr.NumEdges, maxEdges)
	}

	g := &Graph{NumNodes: hdr.NumNodes, NumEdges: hdr.NumEdges}

	if g.OffF, err = readUint32Slice(r, int(hdr.NumNodes+1)); err != nil {
		return nil, fmt.Errorf("read OffF: %w", err)
	}
	if g.AdjF, err = readUint32Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read AdjF: %w", err)
	}
	if g.OffB, err = readUint32Slice(r, int(hdr.NumNodes+1)); err != nil {
		return nil, fmt.Errorf("read OffB: %w", err)
	}
	if g.AdjB, err = readUint32Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read AdjB: %w", err)
	}
	if g.FwdToBwd, err = readUint32Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read FwdToBwd: %w", err)
	}
	if g.Src, err = readUint32Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read Src: %w", err)
	}
	if g.Dst, err = readUint32Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read Dst: %w", err)
	}
	if g.ExtEdgeID, err = readInt64Slice(r, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read ExtEdgeID: %w", err)
	}

	reg, err := readRegistry(r)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	g.Registry = reg

	g.Metrics = make([][]float64, hdr.NumCols)
	for c := range g.Metrics {
		if g.Metrics[c], err = readFloat64Slice(r, int(hdr.NumEdges)); err != nil {
			return nil, fmt.Errorf("read metric column %d: %w", c, err)
		}
	}

	if g.NodeExtID, err = readInt64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeExtID: %w", err)
	}
	if g.NodeLat, err = readFloat64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeLat: %w", err)
	}
	if g.NodeLon, err = readFloat64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeLon: %w", err)
	}

	if hdr.HasCH != 0 {
		if g.Levels, err = readUint32Slice(r, int(hdr.NumNodes)); err != nil {
			return nil, fmt.Errorf("read Levels: %w", err)
		}
		if g.ShortcutA, err = readInt32Slice(r, int(hdr.NumEdges)); err != nil {
			return nil, fmt.Errorf("read ShortcutA: %w", err)
		}
		if g.ShortcutB, err = readInt32Slice(r, int(hdr.NumEdges)); err != nil {
			return nil, fmt.Errorf("read ShortcutB: %w", err)
		}
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	if err := validateCSR(g.OffF, g.Dst, g.AdjF, hdr.NumNodes); err != nil {
		return nil, fmt.Errorf("forward CSR invalid: %w", err)
	}
	if err := validateCSR(g.OffB, g.Src, g.AdjB, hdr.NumNodes); err != nil {
		return nil, fmt.Errorf("backward CSR invalid: %w", err)
	}

	return g, nil
}

// validateCSR checks that off is monotonic, bounds the adj array, and that
// every node referenced through adj is in range.
func validateCSR(off, endpoint []uint32, adj []uint32, numNodes uint32) error {
	if uint32(len(off)) != numNodes+1 {
		return fmt.Errorf("offset length %d != NumNodes+1 %d", len(off), numNodes+1)
	}
	numEdges := off[numNodes]
	if uint32(len(adj)) != numEdges {
		return fmt.Errorf("adjacency length %d != offset[NumNodes] %d", len(adj), numEdges)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if off[i] < off[i-1] {
			return fmt.Errorf("offset not monotonic at %d: %d < %d", i, off[i], off[i-1])
		}
	}
	for _, e := range adj {
		if endpoint[e] >= numNodes {
			return fmt.Errorf("endpoint[%d]=%d >= NumNodes=%d", e, endpoint[e], numNodes)
		}
	}
	return nil
}

// writeRegistry persists the registry's id/unit/normalization table so
// ReadBinary can reconstruct an identical Registry.
func writeRegistry(w io.Writer, reg *metric.Registry) error {
	ids := reg.IDs()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := writeString(w, id); err != nil {
			return err
		}
		u, _ := reg.Unit(id)
		if err := binary.Write(w, binary.LittleEndian, int32(u)); err != nil {
			return err
		}
		mean, normalized := reg.Mean(id)
		flag := uint8(0)
		if normalized {
			flag = 1
		}
		if err := binary.Write(w, binary.LittleEndian, flag); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, mean); err != nil {
			return err
		}
	}
	return nil
}

func readRegistry(r io.Reader) (*metric.Registry, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	reg := metric.NewRegistry()
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		var unitVal int32
		if err := binary.Read(r, binary.LittleEndian, &unitVal); err != nil {
			return nil, err
		}
		var flag uint8
		if err := binary.Read(r, binary.LittleEndian, &flag); err != nil {
			return nil, err
		}
		var mean float64
		if err := binary.Read(r, binary.LittleEndian, &mean); err != nil {
			return nil, err
		}
		if _, err := reg.RegisterInput(id, metric.Unit(unitVal)); err != nil {
			return nil, err
		}
		if flag == 1 {
			reg.SetNormalized(id, mean)
		}
	}
	return reg, nil
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
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt32Slice(w io.Writer, s []int32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt64Slice(w io.Writer, s []int64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt32Slice(r io.Reader, n int) ([]int32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt64Slice(r io.Reader, n int) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
