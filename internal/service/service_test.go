package service

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigkaa/filevault/internal/repository"
	"github.com/bigkaa/filevault/internal/storage/filestore"
	"github.com/bigkaa/filevault/internal/storage/keyname"
	"github.com/bigkaa/filevault/internal/thumbnail"
)

// testEnv — сервисы поверх in-memory хранилища метаданных и временной директории.
type testEnv struct {
	files   *repository.MemoryFileStore
	store   *filestore.FileStore
	thumbs  *thumbnail.Generator
	upload  *UploadService
	service *FilesService
}

var testAllowedMIME = []string{"image/jpeg", "image/png", "application/pdf", "text/plain"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T, maxBytes int64) *testEnv {
	t.Helper()
	store, err := filestore.New(t.TempDir(), maxBytes)
	if err != nil {
		t.Fatalf("filestore.New() ошибка: %v", err)
	}
	logger := testLogger()
	files := repository.NewMemoryFileStore()
	thumbs := thumbnail.New(store, 256, logger)
	return &testEnv{
		files:   files,
		store:   store,
		thumbs:  thumbs,
		upload:  NewUploadService(files, store, keyname.New(), thumbs, testAllowedMIME, logger),
		service: NewFilesService(files, store, thumbs, NewRecordCache(100, 0), logger),
	}
}

// blobCount возвращает число файлов в директории данных.
func (e *testEnv) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(e.store.DataDir(), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("обход директории данных: %v", err)
	}
	return n
}

// jpegBytes кодирует однотонное изображение в JPEG.
func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// pngBytes кодирует изображение в PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// uploadText загружает текстовый файл владельца.
func (e *testEnv) uploadText(t *testing.T, owner int64, name, content string) *FileView {
	t.Helper()
	v, err := e.upload.Upload(t.Context(), UploadRequest{
		OwnerID:     owner,
		Filename:    name,
		ContentType: "text/plain",
		Body:        strings.NewReader(content),
	})
	if err != nil {
		t.Fatalf("Upload(%s) ошибка: %v", name, err)
	}
	return v
}
