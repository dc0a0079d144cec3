// Package pipecache stores compiled pipeline blobs keyed by pipeline cache
// key, and persists them in a file guarded by a GPU identity header.
package pipecache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/maps"
	"golang.org/x/sync/singleflight"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

const (
	fileMagic   = "BSPC"
	fileVersion = 1
)

// ErrCorrupt is returned by Decode when the data is not a cache file.
var ErrCorrupt = errors.New("pipecache: corrupt cache file")

// Header identifies the backend and GPU that produced a cache file.
type Header struct {
	Backend     rhi.Backend
	VendorID    uint32
	DeviceID    uint32
	SubsystemID uint32
	Revision    uint32
}

// HeaderFor builds the header of a device.
func HeaderFor(backend rhi.Backend, id rhi.AdapterIdentity) Header {
	return Header{
		Backend:     backend,
		VendorID:    id.VendorID,
		DeviceID:    id.DeviceID,
		SubsystemID: id.SubsystemID,
		Revision:    id.Revision,
	}
}

// Cache maps pipeline cache keys to compiled blobs.
//
// Cache is safe for concurrent use. Lookups take a read lock; misses are
// deduplicated so concurrent requests for one key compile once.
type Cache struct {
	header Header
	fsys   rhi.FileSystem
	log    *slog.Logger

	mu      sync.RWMutex
	entries map[string][]byte
	path    string

	group singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns an empty cache for the GPU described by header. fsys may be
// nil, in which case Load and Save are no-ops.
func New(header Header, fsys rhi.FileSystem, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		header:  header,
		fsys:    fsys,
		log:     logger,
		entries: make(map[string][]byte),
	}
}

// GetOrCompile returns the blob cached under key, calling compile on a miss.
func (c *Cache) GetOrCompile(key rhi.PipelineCacheKey, compile func() ([]byte, error)) ([]byte, error) {
	k := key.String()

	c.mu.RLock()
	if blob, ok := c.entries[k]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return blob, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(k, func() (any, error) {
		c.mu.RLock()
		blob, ok := c.entries[k]
		c.mu.RUnlock()
		if ok {
			c.hits.Add(1)
			return blob, nil
		}

		blob, err := compile()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[k] = blob
		c.mu.Unlock()
		c.misses.Add(1)
		c.log.Debug("pipecache: miss", "key", k, "bytes", len(blob))
		return blob, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Lookup returns the blob cached under key without compiling.
func (c *Cache) Lookup(key rhi.PipelineCacheKey) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	blob, ok := c.entries[key.String()]
	return blob, ok
}

// Stats returns the entry count and hit/miss counters.
func (c *Cache) Stats() rhi.PipelineCacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return rhi.PipelineCacheStats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// =============================================================================
// Persistence
// =============================================================================

// Load reads the cache file at path and remembers path for Save. A missing
// file, a file from another GPU or a corrupt file leaves the cache empty.
func (c *Cache) Load(path string) error {
	c.mu.Lock()
	c.path = path
	c.mu.Unlock()
	if c.fsys == nil {
		return nil
	}

	data, err := c.fsys.ReadFile(path)
	if err != nil {
		if rhi.IsNotExist(err) {
			c.log.Debug("pipecache: no cache file", "path", path)
			return nil
		}
		return fmt.Errorf("pipecache: read %s: %w", path, err)
	}

	header, entries, err := Decode(data)
	if err != nil {
		c.log.Warn("pipecache: discarding unreadable cache", "path", path, "err", err)
		return nil
	}
	if header != c.header {
		c.log.Warn("pipecache: discarding cache from another GPU", "path", path,
			"file_vendor", header.VendorID, "file_device", header.DeviceID,
			"vendor", c.header.VendorID, "device", c.header.DeviceID)
		return nil
	}

	c.mu.Lock()
	for k, v := range entries {
		if _, ok := c.entries[k]; !ok {
			c.entries[k] = v
		}
	}
	c.mu.Unlock()
	c.log.Info("pipecache: loaded", "path", path, "entries", len(entries))
	return nil
}

// Save writes the cache back to the path given to Load. Without a path
// it does nothing.
func (c *Cache) Save() error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()
	if path == "" || c.fsys == nil {
		return nil
	}
	if err := c.fsys.WriteFile(path, c.Encode()); err != nil {
		return fmt.Errorf("pipecache: write %s: %w", path, err)
	}
	return nil
}

// Encode serializes the cache. Entries are sorted by key, so equal caches
// encode to equal bytes.
func (c *Cache) Encode() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := maps.Keys(c.entries)
	slices.Sort(keys)

	var buf bytes.Buffer
	buf.WriteString(fileMagic)
	writeUint32(&buf, fileVersion)
	writeUint32(&buf, uint32(c.header.Backend))
	writeUint32(&buf, c.header.VendorID)
	writeUint32(&buf, c.header.DeviceID)
	writeUint32(&buf, c.header.SubsystemID)
	writeUint32(&buf, c.header.Revision)
	writeUint32(&buf, uint32(len(keys)))
	for _, k := range keys {
		writeBytes(&buf, []byte(k))
		writeBytes(&buf, c.entries[k])
	}
	return buf.Bytes()
}

// Decode parses a cache file.
func Decode(data []byte) (Header, map[string][]byte, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return Header{}, nil, ErrCorrupt
	}

	var fields [7]uint32
	for i := range fields {
		if err := binary.Read(r, binary.LittleEndian, &fields[i]); err != nil {
			return Header{}, nil, ErrCorrupt
		}
	}
	if fields[0] != fileVersion {
		return Header{}, nil, fmt.Errorf("%w: version %d", ErrCorrupt, fields[0])
	}
	h := Header{
		Backend:     rhi.Backend(fields[1]),
		VendorID:    fields[2],
		DeviceID:    fields[3],
		SubsystemID: fields[4],
		Revision:    fields[5],
	}

	// Each record carries two 4-byte length prefixes.
	count := fields[6]
	if uint64(count)*8 > uint64(r.Len()) {
		return Header{}, nil, fmt.Errorf("%w: %d records in %d bytes", ErrCorrupt, count, r.Len())
	}
	entries := make(map[string][]byte, count)
	for range count {
		k, err := readBytes(r)
		if err != nil {
			return Header{}, nil, err
		}
		v, err := readBytes(r)
		if err != nil {
			return Header{}, nil, err
		}
		entries[string(k)] = v
	}
	return h, entries, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, p []byte) {
	writeUint32(buf, uint32(len(p)))
	buf.Write(p)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, ErrCorrupt
	}
	if int64(n) > int64(r.Len()) {
		return nil, ErrCorrupt
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		return nil, ErrCorrupt
	}
	return p, nil
}
