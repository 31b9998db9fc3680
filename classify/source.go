package classify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"geoclassify/raster"
	"geoclassify/storage"
)

type SourceKind int

const (
	// SourceKey names an object in the store; it is spooled to a temp file.
	SourceKey SourceKind = iota
	// SourceVirtual names an object in the store read fully into memory.
	SourceVirtual
	// SourceURL is an http(s) address read with range requests when possible.
	SourceURL
)

func (k SourceKind) String() string {
	switch k {
	case SourceKey:
		return "key"
	case SourceVirtual:
		return "virtual"
	case SourceURL:
		return "url"
	default:
		return "unknown"
	}
}

type Source struct {
	Kind SourceKind
	Ref  string
}

// Name is the file name the output key is derived from.
func (s Source) Name() string {
	if s.Kind == SourceURL {
		if u, err := url.Parse(s.Ref); err == nil {
			return u.Path
		}
	}
	return s.Ref
}

// opened is a source ready for random access: a local file at path, or r
// holding size bytes. release frees whatever backs it.
type opened struct {
	path    string
	r       io.ReaderAt
	size    int64
	release func()
}

func (o *opened) dataset() (*raster.Dataset, error) {
	if o.path != "" {
		return raster.OpenFile(o.path)
	}
	return raster.Open(o.r, o.size)
}

func (s *Service) openSource(ctx context.Context, src Source) (*opened, error) {
	if strings.TrimSpace(src.Ref) == "" {
		return nil, newError(KindInputMalformed, "open source", errors.New("source reference is empty"))
	}
	switch src.Kind {
	case SourceKey:
		return s.spool(ctx, src.Ref)
	case SourceVirtual:
		return s.inMemory(ctx, src.Ref)
	case SourceURL:
		return s.remote(ctx, src.Ref)
	default:
		return nil, newError(KindInputMalformed, "open source", fmt.Errorf("unknown source kind %d", src.Kind))
	}
}

func (s *Service) get(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, newError(KindSourceNotFound, "fetch source", err)
		}
		return nil, newError(KindTransfer, "fetch source", err)
	}
	return body, nil
}

func (s *Service) spool(ctx context.Context, key string) (*opened, error) {
	body, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	f, err := os.CreateTemp(s.opts.TempDir, "source-*.tif")
	if err != nil {
		return nil, newError(KindProcessing, "spool source", err)
	}
	name := f.Name()
	_, err = io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name)
		return nil, newError(KindTransfer, "spool source", err)
	}
	return &opened{path: name, release: func() { os.Remove(name) }}, nil
}

func (s *Service) inMemory(ctx context.Context, key string) (*opened, error) {
	body, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := readLimited(body, s.opts.MaxVirtualBytes)
	if err != nil {
		return nil, newError(KindTransfer, "read source", err)
	}
	return &opened{r: bytes.NewReader(data), size: int64(len(data)), release: func() {}}, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("source larger than %d bytes", limit)
	}
	return data, nil
}

func (s *Service) remote(ctx context.Context, raw string) (*opened, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, newError(KindInputMalformed, "open source", fmt.Errorf("invalid raster url %q", raw))
	}

	head, err := http.NewRequestWithContext(ctx, http.MethodHead, raw, nil)
	if err != nil {
		return nil, newError(KindInputMalformed, "open source", err)
	}
	resp, err := s.opts.HTTPClient.Do(head)
	if err != nil {
		return nil, newError(KindTransfer, "fetch source", err)
	}
	resp.Body.Close()
	// Only a missing object ends the request here; any other HEAD failure
	// (signed GET URLs answer HEAD with 403) falls through to a plain GET.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, statusError(resp)
	}

	if resp.StatusCode < 300 && resp.Header.Get("Accept-Ranges") == "bytes" && resp.ContentLength > 0 {
		rr, err := newRangeReader(ctx, s.opts.HTTPClient, raw, resp.ContentLength)
		if err != nil {
			return nil, newError(KindProcessing, "open source", err)
		}
		return &opened{r: rr, size: resp.ContentLength, release: func() {}}, nil
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, newError(KindInputMalformed, "open source", err)
	}
	resp, err = s.opts.HTTPClient.Do(get)
	if err != nil {
		return nil, newError(KindTransfer, "fetch source", err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return nil, err
	}
	data, err := readLimited(resp.Body, s.opts.MaxVirtualBytes)
	if err != nil {
		return nil, newError(KindTransfer, "read source", err)
	}
	return &opened{r: bytes.NewReader(data), size: int64(len(data)), release: func() {}}, nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return newError(KindSourceNotFound, "fetch source", fmt.Errorf("%s: %s", resp.Request.URL, resp.Status))
	case resp.StatusCode >= 400:
		return newError(KindTransfer, "fetch source", fmt.Errorf("%s: %s", resp.Request.URL, resp.Status))
	}
	return nil
}

const (
	rangeBlockSize = 64 << 10
	rangeCacheSize = 64
)

// rangeReader reads a remote object in fixed-size blocks fetched with HTTP
// range requests. Recently used blocks are cached.
type rangeReader struct {
	ctx    context.Context
	client *http.Client
	url    string
	size   int64
	blocks *lru.Cache[int64, []byte]
}

func newRangeReader(ctx context.Context, client *http.Client, url string, size int64) (*rangeReader, error) {
	blocks, err := lru.New[int64, []byte](rangeCacheSize)
	if err != nil {
		return nil, err
	}
	return &rangeReader{ctx: ctx, client: client, url: url, size: size, blocks: blocks}, nil
}

func (r *rangeReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= r.size {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && off < r.size {
		idx := off / rangeBlockSize
		block, err := r.block(idx)
		if err != nil {
			return n, err
		}
		c := copy(p[n:], block[off-idx*rangeBlockSize:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *rangeReader) block(idx int64) ([]byte, error) {
	if b, ok := r.blocks.Get(idx); ok {
		return b, nil
	}
	start := idx * rangeBlockSize
	end := min(start+rangeBlockSize, r.size) - 1

	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10))
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("range request %d-%d: %s", start, end, resp.Status)
	}
	b := make([]byte, end-start+1)
	if _, err := io.ReadFull(resp.Body, b); err != nil {
		return nil, fmt.Errorf("range request %d-%d: %w", start, end, err)
	}
	r.blocks.Add(idx, b)
	return b, nil
}
