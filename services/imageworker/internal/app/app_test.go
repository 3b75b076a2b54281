package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pawmatch/pkg/queue"
	"pawmatch/pkg/storage"
)

func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func encodeTestImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestApp(t *testing.T, objects storage.ObjectStore, widths []int) *App {
	t.Helper()
	q, err := queue.NewResizeQueue(queue.Config{Client: testRedisClient(t), Stream: "test:resize"})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	worker, err := New(Config{
		Objects:           objects,
		Queue:             q,
		VariantWidths:     widths,
		UploadConcurrency: 1,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return worker
}

func seedOriginal(t *testing.T, objects storage.ObjectStore, key string, data []byte) {
	t.Helper()
	if err := objects.Put(context.Background(), key, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
		t.Fatalf("seed original: %v", err)
	}
}

const originalKey = "pets/p1/original/abc.jpg"

func TestProcessRendersAllVariants(t *testing.T) {
	objects := storage.NewMemoryObjectStore()
	worker := newTestApp(t, objects, []int{64, 128})
	seedOriginal(t, objects, originalKey, encodeTestImage(t, 400, 200))

	job := queue.JobStatus{ID: "j1", PetID: "p1", StorageKey: originalKey}
	if err := worker.process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	for _, width := range []int{64, 128} {
		key := storage.VariantKey(originalKey, fmt.Sprintf("w%d", width))
		data, ok := objects.Bytes(key)
		if !ok {
			t.Fatalf("variant %s missing", key)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("variant %s not decodable: %v", key, err)
		}
		if got := img.Bounds().Dx(); got != width {
			t.Fatalf("variant %s width: want %d, got %d", key, width, got)
		}
		// 2:1 aspect ratio must be preserved.
		if got := img.Bounds().Dy(); got != width/2 {
			t.Fatalf("variant %s height: want %d, got %d", key, width/2, got)
		}
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	objects := storage.NewMemoryObjectStore()
	worker := newTestApp(t, objects, []int{64})
	seedOriginal(t, objects, originalKey, encodeTestImage(t, 300, 300))

	job := queue.JobStatus{ID: "j1", PetID: "p1", StorageKey: originalKey}
	if err := worker.process(context.Background(), job); err != nil {
		t.Fatalf("first process: %v", err)
	}
	key := storage.VariantKey(originalKey, "w64")
	first, ok := objects.Bytes(key)
	if !ok {
		t.Fatalf("variant missing after first pass")
	}

	if err := worker.process(context.Background(), job); err != nil {
		t.Fatalf("second process: %v", err)
	}
	second, _ := objects.Bytes(key)
	if !bytes.Equal(first, second) {
		t.Fatalf("reprocessing produced different bytes")
	}
}

func TestProcessDoesNotUpscale(t *testing.T) {
	objects := storage.NewMemoryObjectStore()
	worker := newTestApp(t, objects, []int{256})
	seedOriginal(t, objects, originalKey, encodeTestImage(t, 100, 80))

	job := queue.JobStatus{ID: "j1", PetID: "p1", StorageKey: originalKey}
	if err := worker.process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}
	data, ok := objects.Bytes(storage.VariantKey(originalKey, "w256"))
	if !ok {
		t.Fatalf("variant missing")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode variant: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 80 {
		t.Fatalf("small original must not be upscaled, got %v", img.Bounds())
	}
}

func TestProcessDecodeFailureIsTerminal(t *testing.T) {
	objects := storage.NewMemoryObjectStore()
	worker := newTestApp(t, objects, []int{64})
	seedOriginal(t, objects, originalKey, []byte("definitely not an image"))

	err := worker.process(context.Background(), queue.JobStatus{ID: "j1", PetID: "p1", StorageKey: originalKey})
	if err == nil {
		t.Fatalf("want error for undecodable original")
	}
	var terminal *queue.TerminalError
	if !errors.As(err, &terminal) {
		t.Fatalf("decode failure must be terminal, got %v", err)
	}
}

func TestProcessMissingOriginalIsRetryable(t *testing.T) {
	objects := storage.NewMemoryObjectStore()
	worker := newTestApp(t, objects, []int{64})

	err := worker.process(context.Background(), queue.JobStatus{ID: "j1", PetID: "p1", StorageKey: "pets/p1/original/gone.jpg"})
	if err == nil {
		t.Fatalf("want error for missing original")
	}
	var terminal *queue.TerminalError
	if errors.As(err, &terminal) {
		t.Fatalf("missing original may appear after replication lag; must stay retryable, got %v", err)
	}
}

// flakyStore fails the first Put of a chosen key, then behaves normally.
type flakyStore struct {
	*storage.MemoryObjectStore
	failKey string
	failed  bool
}

func (f *flakyStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if key == f.failKey && !f.failed {
		f.failed = true
		return errors.New("connection reset")
	}
	return f.MemoryObjectStore.Put(ctx, key, r, size, contentType)
}

func TestRedeliveryCompletesPartialUpload(t *testing.T) {
	secondKey := storage.VariantKey(originalKey, "w128")
	objects := &flakyStore{MemoryObjectStore: storage.NewMemoryObjectStore(), failKey: secondKey}
	worker := newTestApp(t, objects, []int{64, 128})
	seedOriginal(t, objects.MemoryObjectStore, originalKey, encodeTestImage(t, 400, 200))

	job := queue.JobStatus{ID: "j1", PetID: "p1", StorageKey: originalKey}
	err := worker.process(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "upload") {
		t.Fatalf("want upload failure on first delivery, got %v", err)
	}
	firstKey := storage.VariantKey(originalKey, "w64")
	firstBytes, ok := objects.Bytes(firstKey)
	if !ok {
		t.Fatalf("first variant should have been uploaded before the failure")
	}
	if _, ok := objects.Bytes(secondKey); ok {
		t.Fatalf("second variant must be absent after the failed upload")
	}

	// Redelivery after the visibility timeout.
	if err := worker.process(context.Background(), job); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	after, _ := objects.Bytes(firstKey)
	if !bytes.Equal(firstBytes, after) {
		t.Fatalf("redelivery corrupted the already-uploaded variant")
	}
	if _, ok := objects.Bytes(secondKey); !ok {
		t.Fatalf("redelivery did not complete the missing variant")
	}
}
