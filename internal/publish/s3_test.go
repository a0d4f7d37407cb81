package publish

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/config"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		return
	}

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeS3) object(path string) ([]byte, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[path], f.types[path]
}

func setupTestPublisher(t *testing.T, prefix string) (*S3Publisher, *fakeS3, *httptest.Server) {
	backend := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	p, err := NewS3Publisher(config.S3Config{
		Enabled:         true,
		Bucket:          "videos",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		Prefix:          prefix,
		ForcePathStyle:  true,
		AccessKeyID:     "test",
		SecretAccessKey: "secret",
	}, logger.NewNopLogger())
	require.NoError(t, err)
	return p, backend, server
}

func writeArchive(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "detections.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK\x05\x06 archive bytes"), 0o644))
	return path
}

func TestS3Publisher_Publish(t *testing.T) {
	p, backend, server := setupTestPublisher(t, "detections")
	bus := service.NewEventBus(10)
	defer bus.Close()
	p.SetEventBus(bus)
	published := bus.Subscribe(service.EventTypeArchivePublished)

	location, err := p.Publish(context.Background(), "job-1", writeArchive(t))
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/videos/detections/job-1/detections.zip", location)
	body, contentType := backend.object("/videos/detections/job-1/detections.zip")
	assert.Equal(t, []byte("PK\x05\x06 archive bytes"), body)
	assert.Equal(t, "application/zip", contentType)

	event := <-published
	assert.Equal(t, "job-1", event.Data["job_id"])
	assert.Equal(t, "detections/job-1/detections.zip", event.Data["key"])
}

func TestS3Publisher_Key(t *testing.T) {
	p, _, _ := setupTestPublisher(t, "")
	assert.Equal(t, "abc/detections.zip", p.Key("abc"))

	p, _, _ = setupTestPublisher(t, "out/")
	assert.Equal(t, "out/abc/detections.zip", p.Key("abc"))
}

func TestS3Publisher_UploadError(t *testing.T) {
	p, backend, _ := setupTestPublisher(t, "detections")
	backend.setFail(true)

	_, err := p.Publish(context.Background(), "job-2", writeArchive(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://videos/detections/job-2/detections.zip")
}

func TestS3Publisher_MissingArchive(t *testing.T) {
	p, _, _ := setupTestPublisher(t, "")

	_, err := p.Publish(context.Background(), "job-3", filepath.Join(t.TempDir(), "none.zip"))
	assert.ErrorContains(t, err, "failed to open archive")
}

func TestS3Publisher_Lifecycle(t *testing.T) {
	p, backend, _ := setupTestPublisher(t, "")

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.GetStatus().IsRunning())

	backend.setFail(true)
	assert.NoError(t, p.Start(context.Background()), "unreachable bucket only warns")

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, service.StatusStopped, p.GetStatus().GetStatus())
}

func TestNewS3Publisher_RequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(config.S3Config{Region: "us-east-1"}, logger.NewNopLogger())
	assert.ErrorContains(t, err, "bucket is required")
}
