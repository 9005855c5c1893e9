// Package storage is the blob client: it puts uploaded files into the public
// platform bucket and fetches them back for download.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gosimple/slug"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// FolderStaffProfiles holds staff profile images.
const FolderStaffProfiles = "staff-profiles"

const sniffBytes = 3072

// File is a local file to upload.
type File struct {
	Name string
	Size int64
	Body io.Reader
}

// Open reads a file from disk. The caller closes the returned closer.
func Open(name string) (File, io.Closer, error) {
	f, err := os.Open(name)
	if err != nil {
		return File{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return File{}, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return File{}, nil, fmt.Errorf("%s is a directory", name)
	}
	return File{Name: filepath.Base(name), Size: info.Size(), Body: f}, f, nil
}

// Uploaded describes a stored blob.
type Uploaded struct {
	URL      string
	Path     string
	SizeMB   string
	MIMEType string
}

// Bucket uploads to an ObjectStore and serves objects under a public base URL.
type Bucket struct {
	objects    ObjectStore
	baseURL    string
	httpClient *http.Client
}

// NewBucket wraps objects. publicBaseURL is the prefix object paths are
// appended to, e.g. https://cdn.example.com/unibro.
func NewBucket(objects ObjectStore, publicBaseURL string, httpClient *http.Client) *Bucket {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Bucket{
		objects:    objects,
		baseURL:    strings.TrimRight(publicBaseURL, "/"),
		httpClient: httpClient,
	}
}

// FolderFor maps an upload category to its folder, e.g. "Past Papers" to
// "past-papers".
func FolderFor(category string) string {
	return slug.Make(category)
}

// ObjectPath builds a unique object key for name under folder.
func ObjectPath(folder, name string) (string, error) {
	id, err := gonanoid.New(12)
	if err != nil {
		return "", fmt.Errorf("generate object id: %w", err)
	}
	ext := strings.ToLower(path.Ext(name))
	stem := slug.Make(strings.TrimSuffix(name, path.Ext(name)))
	if stem == "" {
		stem = "file"
	}
	key := id + "-" + stem + ext
	if folder = strings.Trim(folder, "/"); folder != "" {
		key = folder + "/" + key
	}
	return key, nil
}

// SizeMB renders a byte count the way resource cards show it.
func SizeMB(size int64) string {
	return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
}

// DetectMIME sniffs the MIME type from the first bytes of a file.
func DetectMIME(head []byte) string {
	return mimetype.Detect(head).String()
}

// Upload stores file under folder. It validates nothing and does not retry.
func (b *Bucket) Upload(ctx context.Context, file File, folder string) (Uploaded, error) {
	if file.Body == nil {
		return Uploaded{}, errors.New("upload: no file body")
	}
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(file.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Uploaded{}, fmt.Errorf("read file: %w", err)
	}
	head = head[:n]
	contentType := DetectMIME(head)

	key, err := ObjectPath(folder, file.Name)
	if err != nil {
		return Uploaded{}, err
	}
	size := file.Size
	if size <= 0 {
		size = -1
	}
	body := &countingReader{r: io.MultiReader(bytes.NewReader(head), file.Body)}
	if err := b.objects.Put(ctx, key, body, size, contentType); err != nil {
		return Uploaded{}, err
	}
	if size < 0 {
		size = body.n
	}
	return Uploaded{
		URL:      b.PublicURL(key),
		Path:     key,
		SizeMB:   SizeMB(size),
		MIMEType: contentType,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// PublicURL returns the public address of an object path.
func (b *Bucket) PublicURL(key string) string {
	return b.baseURL + "/" + strings.TrimLeft(key, "/")
}

// ExtractPath returns the object path for either a raw path or a public URL.
func (b *Bucket) ExtractPath(pathOrURL string) string {
	s := strings.TrimSpace(pathOrURL)
	if b.baseURL != "" && strings.HasPrefix(s, b.baseURL+"/") {
		s = strings.TrimPrefix(s, b.baseURL+"/")
	} else if u, err := url.Parse(s); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		s = strings.TrimLeft(u.Path, "/")
		if base, err := url.Parse(b.baseURL); err == nil {
			s = strings.TrimPrefix(s, strings.Trim(base.Path, "/")+"/")
		}
	}
	if unescaped, err := url.PathUnescape(s); err == nil {
		s = unescaped
	}
	return strings.TrimLeft(s, "/")
}

// Remove deletes an object given its path or public URL.
func (b *Bucket) Remove(ctx context.Context, pathOrURL string) error {
	key := b.ExtractPath(pathOrURL)
	if key == "" {
		return errors.New("remove: empty object path")
	}
	return b.objects.Delete(ctx, key)
}

// Download fetches url and saves it as filename, returning the written path.
// An empty filename uses the last segment of the URL.
func (b *Bucket) Download(ctx context.Context, rawURL, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	if filename == "" {
		filename = path.Base(req.URL.Path)
		if filename == "/" || filename == "." {
			filename = "download"
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(filename), ".download-*")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return "", fmt.Errorf("save download: %w", err)
	}
	return filename, nil
}
