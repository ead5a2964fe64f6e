package routes

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apitypes "github.com/lgulliver/lodestone-upload/cmd/upload-gateway/types"
	"github.com/lgulliver/lodestone-upload/internal/storage"
	"github.com/lgulliver/lodestone-upload/internal/upload"
	"github.com/lgulliver/lodestone-upload/pkg/config"
	"github.com/lgulliver/lodestone-upload/pkg/types"
	"github.com/lgulliver/lodestone-upload/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxChunk = 64 << 10

type uploadServer struct {
	router  *gin.Engine
	manager *upload.Manager
	target  *storage.LocalStorage
}

func setupUploadServer(t *testing.T, opts ...upload.Option) *uploadServer {
	gin.SetMode(gin.TestMode)

	staging, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	target, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	cfg := &config.UploadConfig{
		MaxSessions:    10,
		MaxChunkSize:   testMaxChunk,
		IdleTimeout:    time.Hour,
		RetainTerminal: time.Hour,
		ReapInterval:   time.Minute,
		KeepRejected:   true,
	}
	manager := upload.NewManager(staging, target, cfg, opts...)

	router := gin.New()
	UploadRoutes(router, manager, cfg.MaxChunkSize)

	return &uploadServer{router: router, manager: manager, target: target}
}

func (s *uploadServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *uploadServer) start(t *testing.T, filename string) string {
	w := s.do(t, http.MethodPost, "/upload/start", gin.H{"filename": filename})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp apitypes.StartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.UploadToken)
	return resp.UploadToken
}

func (s *uploadServer) send(t *testing.T, token string, offset int64, data []byte) *httptest.ResponseRecorder {
	return s.do(t, http.MethodPost, "/upload/continue/"+token, gin.H{
		"offset": offset,
		"data":   base64.StdEncoding.EncodeToString(data),
	})
}

func digestOf(data []byte) string {
	return utils.ComputeSHA256(data)
}

func TestUploadStart(t *testing.T) {
	srv := setupUploadServer(t)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{name: "valid filename", body: gin.H{"filename": "test.txt"}, wantStatus: http.StatusOK},
		{name: "missing filename", body: gin.H{}, wantStatus: http.StatusBadRequest},
		{name: "dot filename", body: gin.H{"filename": ".."}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, "/upload/start", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestUploadStart_Capacity(t *testing.T) {
	srv := setupUploadServer(t)
	for i := 0; i < 10; i++ {
		srv.start(t, "fill.bin")
	}

	w := srv.do(t, http.MethodPost, "/upload/start", gin.H{"filename": "overflow.bin"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// Mirrors the out of order client check: a duplicate chunk and a chunk sent
// past the expected offset are both answered with the offset to resume from.
func TestUploadContinue_OutOfOrder(t *testing.T) {
	srv := setupUploadServer(t)
	token := srv.start(t, "test.txt")

	w := srv.send(t, token, 0, []byte("hello"))
	require.Equal(t, http.StatusOK, w.Code)
	var accepted apitypes.ContinueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, int64(5), accepted.AcceptedThrough)

	for _, offset := range []int64{0, 11} {
		w = srv.send(t, token, offset, []byte(" world"))
		require.Equal(t, http.StatusConflict, w.Code)

		var conflict apitypes.ConflictResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
		assert.Equal(t, int64(5), conflict.ExpectedOffset)
		assert.NotEmpty(t, conflict.Error)
	}

	w = srv.send(t, token, 5, []byte(" world"))
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodPost, "/upload/finish/"+token, gin.H{
		"filename": "test.txt",
		"sha256":   strings.ToUpper(digestOf([]byte("hello world"))),
		"size":     11,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var finished apitypes.FinishResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &finished))
	assert.Equal(t, "ok", finished.Status)
	assert.Equal(t, "test.txt", finished.Path)
	assert.Equal(t, digestOf([]byte("hello world")), finished.SHA256)
	assert.Equal(t, int64(11), finished.Size)
}

func TestUploadContinue_SingleWriter(t *testing.T) {
	srv := setupUploadServer(t)
	token := srv.start(t, "race.bin")
	chunk := bytes.Repeat([]byte("r"), 1024)

	const clients = 10
	codes := make([]int, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = srv.send(t, token, 0, chunk).Code
		}(i)
	}
	wg.Wait()

	counts := map[int]int{}
	for _, code := range codes {
		counts[code]++
	}
	assert.Equal(t, 1, counts[http.StatusOK])
	assert.Equal(t, clients-1, counts[http.StatusConflict])
}

func TestUploadContinue_Errors(t *testing.T) {
	srv := setupUploadServer(t)
	token := srv.start(t, "errors.bin")

	t.Run("unknown token", func(t *testing.T) {
		w := srv.send(t, uuid.NewString(), 0, []byte("x"))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "session not found")
	})

	t.Run("malformed token", func(t *testing.T) {
		w := srv.send(t, "not-a-token", 0, []byte("x"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing offset", func(t *testing.T) {
		w := srv.do(t, http.MethodPost, "/upload/continue/"+token, gin.H{"data": "aGVsbG8="})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("negative offset", func(t *testing.T) {
		w := srv.send(t, token, -1, []byte("x"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid base64", func(t *testing.T) {
		w := srv.do(t, http.MethodPost, "/upload/continue/"+token, gin.H{"offset": 0, "data": "%%%"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty chunk", func(t *testing.T) {
		w := srv.send(t, token, 0, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "empty chunk")
	})

	t.Run("chunk too large", func(t *testing.T) {
		w := srv.send(t, token, 0, make([]byte, testMaxChunk+1))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	status := srv.do(t, http.MethodGet, "/upload/status/"+token, nil)
	require.Equal(t, http.StatusOK, status.Code)
	var snapshot types.UploadSnapshot
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(0), snapshot.ExpectedOffset, "rejected requests must not advance the offset")
}

func TestUploadFinish(t *testing.T) {
	payload := make([]byte, 200<<10)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	flipped := bytes.Clone(payload)
	flipped[len(flipped)/2] ^= 0x80

	tests := []struct {
		name       string
		sent       []byte
		size       int64
		digest     string
		wantStatus int
		wantError  string
	}{
		{name: "finalized", sent: payload, size: int64(len(payload)), digest: digestOf(payload), wantStatus: http.StatusOK},
		{name: "incomplete", sent: payload[:100<<10], size: int64(len(payload)), digest: digestOf(payload), wantStatus: http.StatusBadRequest, wantError: "incomplete"},
		{name: "nothing sent", sent: nil, size: 10, digest: digestOf(payload), wantStatus: http.StatusBadRequest, wantError: "incomplete"},
		{name: "bit flip", sent: flipped, size: int64(len(payload)), digest: digestOf(payload), wantStatus: http.StatusUnprocessableEntity, wantError: "sha256 mismatch"},
		{name: "malformed digest", sent: payload, size: int64(len(payload)), digest: "abc", wantStatus: http.StatusBadRequest, wantError: "invalid sha256"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := setupUploadServer(t)
			token := srv.start(t, "payload.bin")

			for offset := 0; offset < len(tt.sent); offset += testMaxChunk {
				end := offset + testMaxChunk
				if end > len(tt.sent) {
					end = len(tt.sent)
				}
				require.Equal(t, http.StatusOK, srv.send(t, token, int64(offset), tt.sent[offset:end]).Code)
			}

			w := srv.do(t, http.MethodPost, "/upload/finish/"+token, gin.H{
				"filename": "payload.bin",
				"sha256":   tt.digest,
				"size":     tt.size,
			})
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantError != "" {
				var resp apitypes.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantError, resp.Error)
			}
		})
	}
}

func TestUploadFinish_ClosedSession(t *testing.T) {
	srv := setupUploadServer(t)
	token := srv.start(t, "closed.txt")

	body := gin.H{"sha256": digestOf(nil), "size": 0}
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/upload/finish/"+token, body).Code)

	assert.Equal(t, http.StatusGone, srv.do(t, http.MethodPost, "/upload/finish/"+token, body).Code)
	assert.Equal(t, http.StatusGone, srv.send(t, token, 0, []byte("late")).Code)
	assert.Equal(t, http.StatusGone, srv.do(t, http.MethodDelete, "/upload/"+token, nil).Code)
}

func TestUploadStatusAndCancel(t *testing.T) {
	srv := setupUploadServer(t)
	token := srv.start(t, "status.txt")
	require.Equal(t, http.StatusOK, srv.send(t, token, 0, []byte("partial")).Code)

	w := srv.do(t, http.MethodGet, "/upload/status/"+token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot types.UploadSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, token, snapshot.Token)
	assert.Equal(t, "status.txt", snapshot.Filename)
	assert.Equal(t, types.StatusOpen, snapshot.Status)
	assert.Equal(t, int64(7), snapshot.ExpectedOffset)

	w = srv.do(t, http.MethodDelete, "/upload/"+token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aborted")

	w = srv.do(t, http.MethodGet, "/upload/status/"+token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, types.StatusAborted, snapshot.Status)

	w = srv.do(t, http.MethodGet, "/upload/status/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
