package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"benchline/internal/domain"
)

func TestDiskUploadAndDelete(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir, "http://localhost:8080/files/")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	att, err := d.Upload(ctx, "order-1/CASTING", "castedPiece", domain.Upload{
		Filename:    "Front.JPG",
		ContentType: "image/jpeg",
		Body:        strings.NewReader("jpeg-bytes"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if att.Category != "castedPiece" || att.SizeBytes != int64(len("jpeg-bytes")) || att.ID == "" {
		t.Fatalf("attachment = %+v", att)
	}
	want := "http://localhost:8080/files/order-1/CASTING/castedPiece/" + att.ID + ".jpg"
	if att.URL != want {
		t.Fatalf("url = %s, want %s", att.URL, want)
	}
	full := filepath.Join(dir, "order-1", "CASTING", "castedPiece", att.ID+".jpg")
	if data, err := os.ReadFile(full); err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("stored file = %q, %v", data, err)
	}

	if err := d.Delete(ctx, att); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(full); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if err := d.Delete(ctx, att); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestDiskRejectsForeignURLs(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "/files")
	if err != nil {
		t.Fatal(err)
	}
	for _, url := range []string{"https://cdn.example.com/x.jpg", "/files/../etc/passwd", "/files/"} {
		if err := d.Delete(context.Background(), domain.Attachment{URL: url}); !errors.Is(err, ErrOutsideStore) {
			t.Fatalf("delete %s: %v", url, err)
		}
	}
}

func TestDiskUploadHonoursCancelledContext(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Upload(ctx, "o", "c", domain.Upload{Filename: "a.pdf", Body: strings.NewReader("x")}); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestObjectNameSanitisesSegments(t *testing.T) {
	_, name := objectName("../../o1/CAD", "..\\sketch", "design.STL")
	if strings.Contains(name, "..") || !strings.HasPrefix(name, "o1/CAD/sketch/") || !strings.HasSuffix(name, ".stl") {
		t.Fatalf("object name = %s", name)
	}
}

func TestMinioPublicURL(t *testing.T) {
	tests := []struct {
		name     string
		useSSL   bool
		endpoint string
		bucket   string
		object   string
		expected string
	}{
		{"http url", false, "localhost:9000", "bench", "o1/CAD/sketch/a.png", "http://localhost:9000/bench/o1/CAD/sketch/a.png"},
		{"https url", true, "minio.example.com", "photos", "x/y.jpg", "https://minio.example.com/photos/x/y.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMinio(MinioConfig{Endpoint: tt.endpoint, AccessKey: "k", SecretKey: "s", Bucket: tt.bucket, UseSSL: tt.useSSL})
			if err != nil {
				t.Fatal(err)
			}
			if got := m.PublicURL(tt.object); got != tt.expected {
				t.Fatalf("got %s, want %s", got, tt.expected)
			}
			name, err := objectFromURL(m.bucketURL(), tt.expected)
			if err != nil || name != tt.object {
				t.Fatalf("round trip = %s, %v", name, err)
			}
		})
	}
}

func TestNewMinioRequiresBucket(t *testing.T) {
	if _, err := NewMinio(MinioConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Fatalf("expected error")
	}
}
