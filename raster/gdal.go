package raster

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/airbusgeo/godal"
)

// vsiPrefix is the GDAL virtual file system prefix under which in-process
// readers are exposed.
const vsiPrefix = "/vsigeoclassify/"

var (
	setupOnce sync.Once
	setupErr  error

	readers = &readerTable{files: make(map[string]readerFile)}
	nextKey atomic.Uint64
)

// setup registers the GDAL drivers and the reader handler once per process.
func setup() error {
	setupOnce.Do(func() {
		godal.RegisterAll()
		if err := godal.RegisterVSIHandler(vsiPrefix, readers); err != nil {
			setupErr = fmt.Errorf("raster: register vsi handler: %w", err)
		}
	})
	return setupErr
}

type readerFile struct {
	r    io.ReaderAt
	size int64
}

// readerTable serves registered io.ReaderAt values to GDAL by key.
type readerTable struct {
	mu    sync.RWMutex
	files map[string]readerFile
}

func (t *readerTable) add(r io.ReaderAt, size int64) string {
	key := strconv.FormatUint(nextKey.Add(1), 10) + ".tif"
	t.mu.Lock()
	t.files[key] = readerFile{r: r, size: size}
	t.mu.Unlock()
	return key
}

func (t *readerTable) remove(key string) {
	t.mu.Lock()
	delete(t.files, key)
	t.mu.Unlock()
}

func (t *readerTable) lookup(key string) (readerFile, error) {
	key = strings.TrimPrefix(key, vsiPrefix)
	t.mu.RLock()
	f, ok := t.files[key]
	t.mu.RUnlock()
	if !ok {
		return readerFile{}, fmt.Errorf("raster: no reader registered for %q", key)
	}
	return f, nil
}

func (t *readerTable) Size(key string) (int64, error) {
	f, err := t.lookup(key)
	if err != nil {
		return 0, err
	}
	return f.size, nil
}

func (t *readerTable) ReadAt(key string, buf []byte, off int64) (int, error) {
	f, err := t.lookup(key)
	if err != nil {
		return 0, err
	}
	if off >= f.size {
		return 0, io.EOF
	}
	return f.r.ReadAt(buf, off)
}
