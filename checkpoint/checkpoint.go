// Package checkpoint is the archive-side persistent-load collaborator: it
// opens the ZIP container the target framework writes checkpoints as,
// extracts /data.pkl and per-tensor /data/<key> entries, and wires a
// pickle.PersistentLoader that the core VM calls back into while decoding.
//
// None of this is part of the opcode VM itself — it is the "external
// collaborator" the core spec treats as an interface, implemented here so
// the module has something runnable end to end.
package checkpoint

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/edsrzf/mmap-go"

	ptpickle "github.com/goptorch/ptpickle"
	"github.com/goptorch/ptpickle/ndarray"
)

// Checkpoint is an opened checkpoint archive: a ZIP reader plus the
// bookkeeping the persistent-load callback needs (storage cache,
// byteorder).
type Checkpoint struct {
	zr     *zip.Reader
	closer io.Closer // non-nil only when Open (not OpenReader) was used

	byteorder        string // "little", "big", or "" (native)
	formatVersion    int
	storageAlignment int

	cache map[string]cachedStorage
}

type cachedStorage struct {
	data      []byte
	className string
}

// Open opens the checkpoint archive at path, mmapping it for random-access
// byte-range reads — the same access pattern ProbeChain's trie package
// uses mmap-go for.
func Open(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	region, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("checkpoint: mmap %s: %w", path, err)
	}
	zr, err := zip.NewReader(&mmapReaderAt{region}, fi.Size())
	if err != nil {
		region.Unmap()
		f.Close()
		return nil, fmt.Errorf("checkpoint: zip: %w", err)
	}
	c, err := newCheckpoint(zr)
	if err != nil {
		region.Unmap()
		f.Close()
		return nil, err
	}
	c.closer = closerFunc(func() error {
		if err := region.Unmap(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	return c, nil
}

// OpenReader wraps an already-opened zip.Reader (e.g. over an
// io.ReaderAt already resident in memory) as a Checkpoint.
func OpenReader(zr *zip.Reader) (*Checkpoint, error) {
	return newCheckpoint(zr)
}

func newCheckpoint(zr *zip.Reader) (*Checkpoint, error) {
	c := &Checkpoint{
		zr:    zr,
		cache: map[string]cachedStorage{},
	}
	if raw, err := c.readEntrySuffix("/byteorder"); err == nil {
		c.byteorder = strings.TrimSpace(string(raw))
	}
	if raw, err := c.readEntrySuffix("/.format_version"); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil {
			c.formatVersion = n
		}
	}
	if raw, err := c.readEntrySuffix("/.storage_alignment"); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil {
			c.storageAlignment = n
		}
	}
	return c, nil
}

// Close releases resources Open acquired (mmap region, file handle). A
// Checkpoint obtained via OpenReader has nothing to release.
func (c *Checkpoint) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// FormatVersion returns /.format_version, or 0 if the entry was absent.
func (c *Checkpoint) FormatVersion() int { return c.formatVersion }

// StorageAlignment returns /.storage_alignment, or 0 if the entry was absent.
func (c *Checkpoint) StorageAlignment() int { return c.storageAlignment }

// Byteorder returns /byteorder's declared value, or "" if absent (assume native).
func (c *Checkpoint) Byteorder() string { return c.byteorder }

// Load decodes /data.pkl through registry, wiring a PersistentLoader that
// serves tensor-storage bytes out of this archive. Extra opts (e.g.
// ptpickle.WithLogger) are appended after the persistent-loader/registry
// wiring, so callers can still override either.
func (c *Checkpoint) Load(registry *ptpickle.Registry, opts ...ptpickle.Option) (ptpickle.Value, error) {
	data, err := c.readEntrySuffix("/data.pkl")
	if err != nil {
		return ptpickle.Value{}, fmt.Errorf("checkpoint: /data.pkl: %w", err)
	}
	all := []ptpickle.Option{
		ptpickle.WithPersistentLoader(c.persistentLoad),
	}
	if registry != nil {
		all = append(all, ptpickle.WithRegistry(registry))
	}
	all = append(all, opts...)
	return ptpickle.UnpickleBytes(data, all...)
}

// persistentLoad implements §4.4's archive-side persistent-load contract.
func (c *Checkpoint) persistentLoad(pid ptpickle.Value) (ptpickle.Value, error) {
	items, ok := pid.Tuple()
	if !ok || len(items) < 3 {
		return ptpickle.Value{}, fmt.Errorf("checkpoint: persistent id is not a (storage, type, key, ...) tuple")
	}
	marker, ok := items[0].Str()
	if !ok || marker != "storage" {
		return ptpickle.Value{}, fmt.Errorf("checkpoint: persistent id's first element is not \"storage\"")
	}
	storageType, ok := items[1].AsObject()
	if !ok {
		return ptpickle.Value{}, fmt.Errorf("checkpoint: persistent id's type element is not an Object")
	}
	key, ok := items[2].Str()
	if !ok {
		return ptpickle.Value{}, fmt.Errorf("checkpoint: persistent id's key element is not a String")
	}

	if cached, ok := c.cache[key]; ok {
		return ptpickle.FromObject(cached.data, cached.className), nil
	}

	raw, err := c.readEntrySuffix("/data/" + key)
	if err != nil {
		return ptpickle.Value{}, fmt.Errorf("checkpoint: storage %q: %w", key, err)
	}
	raw = c.maybeSwapByteorder(raw, storageType.Tag)
	c.cache[key] = cachedStorage{data: raw, className: storageType.Tag}
	return ptpickle.FromObject(raw, storageType.Tag), nil
}

// maybeSwapByteorder returns a byte-swapped copy of raw if the archive
// declared an endianness opposite the host's, and raw itself otherwise, per
// §4.4: "Byte-order swapping ... is performed at this layer before caching."
// Complex64 elements are swapped per 4-byte component.
func (c *Checkpoint) maybeSwapByteorder(raw []byte, className string) []byte {
	if c.byteorder == "" {
		return raw
	}
	declaredLittle := c.byteorder == "little"
	hostLittle := binary.NativeEndian.Uint16([]byte{1, 0}) == 1
	if declaredLittle == hostLittle {
		return raw
	}
	dtype, ok := ptpickle.StorageElementType(className)
	if !ok {
		return raw
	}
	sz := dtype.Size()
	if dtype == ndarray.Complex64 {
		sz = 4 // real and imaginary f32 parts are swapped separately
	}
	if sz <= 1 {
		return raw
	}
	swapped := make([]byte, len(raw))
	for off := 0; off+sz <= len(raw); off += sz {
		for i := 0; i < sz; i++ {
			swapped[off+i] = raw[off+sz-1-i]
		}
	}
	return swapped
}

// readEntrySuffix extracts the single archive entry whose path ends with
// suffix (e.g. "/data.pkl", "/data/3").
func (c *Checkpoint) readEntrySuffix(suffix string) ([]byte, error) {
	for _, f := range c.zr.File {
		if strings.HasSuffix(f.Name, suffix) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("checkpoint: no entry ending in %q", suffix)
}

// mmapReaderAt adapts an mmap.MMap region to io.ReaderAt for zip.NewReader.
type mmapReaderAt struct {
	data mmap.MMap
}

func (m *mmapReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
