// Copyright 2021 The reqcache Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package reqcache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gogama/reqcache/cache"
	"github.com/gogama/reqcache/request"
)

const resumeSuffix = ".resume"

// resumeState is the sidecar written next to a partial download.
type resumeState struct {
	URL          string `json:"url"`
	Offset       int64  `json:"offset"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
}

// A download streams one response body into a partial file which is
// renamed to its destination once complete.
type download struct {
	dest    string
	partial string
	url     string

	offset  int64
	written atomic.Int64

	lock         sync.Mutex
	etag         string
	lastModified string
}

func (d *Dispatcher) tempDir() string {
	if d.TempDir != "" {
		return d.TempDir
	}
	return filepath.Join(os.TempDir(), "reqcache", "downloads")
}

// PartialPath returns where the partial download of the destination
// path dest is kept. The name is the hex MD5 of dest.
func (d *Dispatcher) PartialPath(dest string) string {
	sum := md5.Sum([]byte(dest))
	return filepath.Join(d.tempDir(), hex.EncodeToString(sum[:]))
}

// DownloadSize returns the number of bytes used by partial downloads.
func (d *Dispatcher) DownloadSize() (int64, error) {
	return cache.DirSize(d.tempDir())
}

// RemoveDownloads removes every partial download and its resume state.
func (d *Dispatcher) RemoveDownloads() error {
	return cache.RemoveAll(d.tempDir())
}

// RemoveAll removes the response cache and every partial download.
func (d *Dispatcher) RemoveAll() error {
	return errors.Join(d.RemoveCache(nil), d.RemoveDownloads())
}

func (d *Dispatcher) newDownload(c *request.Config, u *url.URL) (*download, error) {
	dest := c.DownloadPath
	if !filepath.IsAbs(dest) && d.DownloadDir != "" {
		dest = filepath.Join(d.DownloadDir, dest)
	}
	if strings.HasSuffix(c.DownloadPath, "/") || isDir(dest) {
		name := path.Base(u.Path)
		if name == "/" || name == "." {
			return nil, fmt.Errorf("reqcache: no file name in %s for download directory %s", u, dest)
		}
		dest = filepath.Join(dest, name)
	}
	return &download{
		dest:    dest,
		partial: d.PartialPath(dest),
		url:     u.String(),
	}, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// prepare asks the server to resume from the saved offset when a
// partial download of the same URL exists with a validator.
func (dl *download) prepare(r *http.Request) {
	st, err := loadResumeState(dl.partial + resumeSuffix)
	if err != nil || st.URL != dl.url || st.Offset <= 0 {
		return
	}
	validator := st.ETag
	if validator == "" {
		validator = st.LastModified
	}
	if validator == "" {
		return
	}
	info, err := os.Stat(dl.partial)
	if err != nil || info.Size() < st.Offset {
		return
	}
	if info.Size() > st.Offset {
		if err = os.Truncate(dl.partial, st.Offset); err != nil {
			return
		}
	}
	dl.offset = st.Offset
	dl.etag = st.ETag
	dl.lastModified = st.LastModified
	r.Header.Set("Range", "bytes="+strconv.FormatInt(st.Offset, 10)+"-")
	r.Header.Set("If-Range", validator)
}

// receive validates the response and streams its body to the partial
// file. A 206 response appends to the partial file, any other
// acceptable response replaces it. On success the partial file is
// moved to the destination.
func (d *Dispatcher) receive(t *task, dl *download) error {
	resp := t.exec.Response
	defer func() {
		_ = resp.Body.Close()
	}()
	if err := d.validate(resp); err != nil {
		return err
	}

	flags := os.O_CREATE | os.O_WRONLY
	start := int64(0)
	if resp.StatusCode == http.StatusPartialContent && dl.offset > 0 {
		if got, ok := contentRangeStart(resp.Header.Get("Content-Range")); !ok || got != dl.offset {
			return fmt.Errorf("reqcache: unexpected content range %q resuming at %d",
				resp.Header.Get("Content-Range"), dl.offset)
		}
		flags |= os.O_APPEND
		start = dl.offset
	} else {
		flags |= os.O_TRUNC
	}
	dl.written.Store(start)
	dl.lock.Lock()
	if etag := resp.Header.Get("ETag"); etag != "" {
		dl.etag = etag
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		dl.lastModified = lm
	}
	dl.lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(dl.partial), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dl.partial, flags, 0o644)
	if err != nil {
		return err
	}

	total := resp.ContentLength
	if total >= 0 {
		total += start
	}
	w := &countingWriter{w: f, n: &dl.written, total: total, f: t.r.Progress}
	_, err = io.Copy(w, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		if t.ctx.Err() == nil {
			_ = dl.save()
		}
		return err
	}

	if err = os.MkdirAll(filepath.Dir(dl.dest), 0o755); err != nil {
		return err
	}
	if err = os.Rename(dl.partial, dl.dest); err != nil {
		return err
	}
	_ = os.Remove(dl.partial + resumeSuffix)
	t.exec.DownloadPath = dl.dest
	return nil
}

// save writes the resume state of the bytes written so far.
func (dl *download) save() error {
	dl.lock.Lock()
	defer dl.lock.Unlock()
	st := resumeState{
		URL:          dl.url,
		Offset:       dl.written.Load(),
		ETag:         dl.etag,
		LastModified: dl.lastModified,
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(dl.partial), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dl.partial), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dl.partial+resumeSuffix)
}

func loadResumeState(p string) (resumeState, error) {
	var st resumeState
	b, err := os.ReadFile(p)
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(b, &st)
	return st, err
}

// contentRangeStart parses the first byte position of a Content-Range
// header such as "bytes 100-199/200".
func contentRangeStart(h string) (int64, bool) {
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "bytes ") {
		return 0, false
	}
	rng := strings.TrimPrefix(h, "bytes ")
	dash := strings.IndexByte(rng, '-')
	if dash <= 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(rng[:dash], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

type countingWriter struct {
	w     io.Writer
	n     *atomic.Int64
	total int64
	f     func(done, total int64)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	done := c.n.Add(int64(n))
	if c.f != nil && n > 0 {
		c.f(done, c.total)
	}
	return n, err
}
