package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestFolderFor(t *testing.T) {
	if got := FolderFor("Past Papers"); got != "past-papers" {
		t.Fatalf("expected past-papers, got %q", got)
	}
	if got := FolderFor("Notes"); got != "notes" {
		t.Fatalf("expected notes, got %q", got)
	}
}

func TestObjectPathIsUniqueAndSlugged(t *testing.T) {
	a, err := ObjectPath("notes", "Week 1 Notes.PDF")
	if err != nil {
		t.Fatalf("object path: %v", err)
	}
	b, _ := ObjectPath("notes", "Week 1 Notes.PDF")
	if a == b {
		t.Fatalf("expected unique paths, got %q twice", a)
	}
	if !strings.HasPrefix(a, "notes/") || !strings.HasSuffix(a, "-week-1-notes.pdf") {
		t.Fatalf("unexpected path %q", a)
	}
}

func TestUploadReturnsMetadataAndFullBody(t *testing.T) {
	objects := newMemObjects()
	b := NewBucket(objects, "https://cdn.example.com/unibro/", nil)
	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 5000)...)

	up, err := b.Upload(context.Background(), File{Name: "quiz.pdf", Size: int64(len(content)), Body: bytes.NewReader(content)}, "quizzes")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if up.MIMEType != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", up.MIMEType)
	}
	if up.URL != "https://cdn.example.com/unibro/"+up.Path {
		t.Fatalf("unexpected url %q for path %q", up.URL, up.Path)
	}
	if !bytes.Equal(objects.objects[up.Path], content) {
		t.Fatalf("stored body differs from uploaded body")
	}
	if up.SizeMB != "0.00 MB" {
		t.Fatalf("unexpected size %q", up.SizeMB)
	}
}

func TestUploadWithoutSizeReportsBytesSent(t *testing.T) {
	objects := newMemObjects()
	b := NewBucket(objects, "https://cdn.example.com/unibro", nil)
	content := bytes.Repeat([]byte("a"), 3<<20)

	up, err := b.Upload(context.Background(), File{Name: "notes.txt", Body: bytes.NewReader(content)}, "notes")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(objects.objects[up.Path]) != len(content) {
		t.Fatalf("stored %d bytes, want %d", len(objects.objects[up.Path]), len(content))
	}
	if up.SizeMB != "3.00 MB" {
		t.Fatalf("expected 3.00 MB, got %q", up.SizeMB)
	}
}

func TestUploadSurfacesStoreFailure(t *testing.T) {
	objects := newMemObjects()
	objects.putErr = errors.New("bucket offline")
	b := NewBucket(objects, "https://cdn.example.com/unibro", nil)
	_, err := b.Upload(context.Background(), File{Name: "a.txt", Body: strings.NewReader("hi")}, "notes")
	if err == nil || !strings.Contains(err.Error(), "bucket offline") {
		t.Fatalf("expected store failure, got %v", err)
	}
}

func TestSizeMB(t *testing.T) {
	if got := SizeMB(3 * 1024 * 1024 / 2); got != "1.50 MB" {
		t.Fatalf("unexpected size %q", got)
	}
}

func TestExtractPath(t *testing.T) {
	b := NewBucket(newMemObjects(), "https://cdn.example.com/unibro", nil)
	cases := map[string]string{
		"notes/abc-file.pdf": "notes/abc-file.pdf",
		"https://cdn.example.com/unibro/notes/abc-file.pdf":      "notes/abc-file.pdf",
		"https://mirror.example.com/unibro/staff-profiles/a.png": "staff-profiles/a.png",
		"https://cdn.example.com/unibro/past-papers/a%20b.pdf":   "past-papers/a b.pdf",
		"/projects/x.zip": "projects/x.zip",
	}
	for in, want := range cases {
		if got := b.ExtractPath(in); got != want {
			t.Fatalf("ExtractPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRemoveAcceptsURL(t *testing.T) {
	objects := newMemObjects()
	objects.objects["notes/a.pdf"] = []byte("x")
	b := NewBucket(objects, "https://cdn.example.com/unibro", nil)
	if err := b.Remove(context.Background(), "https://cdn.example.com/unibro/notes/a.pdf"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := objects.objects["notes/a.pdf"]; ok {
		t.Fatalf("expected object removed")
	}
	if err := b.Remove(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestDownloadSavesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("file body"))
	}))
	defer srv.Close()

	b := NewBucket(newMemObjects(), srv.URL, srv.Client())
	dest := filepath.Join(t.TempDir(), "saved.pdf")
	got, err := b.Download(context.Background(), srv.URL+"/notes/a.pdf", dest)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(got)
	if err != nil || string(data) != "file body" {
		t.Fatalf("unexpected saved file: %q %v", data, err)
	}
	if _, err := b.Download(context.Background(), srv.URL+"/missing.pdf", dest+".2"); err == nil {
		t.Fatalf("expected error for missing object")
	}
}

func TestOpenRejectsDirectory(t *testing.T) {
	if _, _, err := Open(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory")
	}
	name := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(name, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, closer, err := Open(name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closer.Close()
	if f.Name != "a.txt" || f.Size != 5 {
		t.Fatalf("unexpected file: %+v", f)
	}
}
