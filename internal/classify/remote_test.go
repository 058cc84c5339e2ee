package classify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/lesionscan/internal/classify"
	"github.com/kiranshivaraju/lesionscan/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const availableStatus = `{"model_version_status":[{"version":"1","state":"AVAILABLE"}]}`

func tinyJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

type modelServer struct {
	predictions [][]float64
	statusCode  int
	probes      atomic.Int32

	mu        sync.Mutex
	lastShape [3]int
}

func (m *modelServer) shape() [3]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastShape
}

func (m *modelServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models/skin_lesion_model", func(w http.ResponseWriter, r *http.Request) {
		m.probes.Add(1)
		if m.statusCode != 0 {
			w.WriteHeader(m.statusCode)
			return
		}
		_, _ = w.Write([]byte(availableStatus))
	})
	mux.HandleFunc("POST /v1/models/skin_lesion_model:predict", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body struct {
			Instances [][][][]float64 `json:"instances"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) || !assert.Len(t, body.Instances, 1) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.lastShape = [3]int{len(body.Instances[0]), len(body.Instances[0][0]), len(body.Instances[0][0][0])}
		m.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": m.predictions})
	})
	return mux
}

func newRemote(t *testing.T, m *modelServer) (*classify.Remote, error) {
	t.Helper()
	srv := httptest.NewServer(m.handler(t))
	t.Cleanup(srv.Close)
	return classify.NewRemote(context.Background(), classify.RemoteConfig{
		BaseURL:   srv.URL + "/",
		ModelName: "skin_lesion_model",
		Labels:    []string{"Melanoma", "Benign Keratosis"},
		Timeout:   5 * time.Second,
	})
}

func TestRemote_Classify(t *testing.T) {
	m := &modelServer{predictions: [][]float64{{0.2, 0.7, 0.1}}}
	r, err := newRemote(t, m)
	require.NoError(t, err)
	assert.True(t, r.Ready())
	assert.Equal(t, classify.RemoteName, r.Name())

	got, err := r.Classify(context.Background(), tinyJPEG(t, 4, 3))
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "Benign Keratosis", got[0].Name)
	assert.Equal(t, 0.7, got[0].Probability)
	assert.Equal(t, "Melanoma", got[1].Name)
	assert.Equal(t, "Class 2", got[2].Name)
	assert.Equal(t, [3]int{3, 4, 3}, m.shape())
}

func TestRemote_ReusesBuffersAcrossCalls(t *testing.T) {
	m := &modelServer{predictions: [][]float64{{0.4, 0.6}}}
	r, err := newRemote(t, m)
	require.NoError(t, err)

	for _, size := range []int{8, 2, 16} {
		_, err := r.Classify(context.Background(), tinyJPEG(t, size, size))
		require.NoError(t, err)
		assert.Equal(t, [3]int{size, size, 3}, m.shape())
	}
}

func TestRemote_ProbeFailureIsCached(t *testing.T) {
	m := &modelServer{statusCode: http.StatusServiceUnavailable}
	r, err := newRemote(t, m)
	require.ErrorIs(t, err, classify.ErrModelNotReady)
	require.NotNil(t, r)
	assert.False(t, r.Ready())

	_, err = r.Classify(context.Background(), tinyJPEG(t, 2, 2))
	assert.ErrorIs(t, err, classify.ErrModelNotReady)
	assert.False(t, r.Ready())
	assert.Equal(t, int32(1), m.probes.Load())
}

func TestRemote_Errors(t *testing.T) {
	t.Run("bad image", func(t *testing.T) {
		r, err := newRemote(t, &modelServer{predictions: [][]float64{{1}}})
		require.NoError(t, err)
		_, err = r.Classify(context.Background(), []byte("nope"))
		assert.ErrorIs(t, err, classify.ErrInference)
	})

	t.Run("empty predictions", func(t *testing.T) {
		r, err := newRemote(t, &modelServer{predictions: [][]float64{}})
		require.NoError(t, err)
		_, err = r.Classify(context.Background(), tinyJPEG(t, 2, 2))
		assert.ErrorIs(t, err, classify.ErrInference)
	})

	t.Run("server error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /v1/models/m", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(availableStatus))
		})
		mux.HandleFunc("POST /v1/models/m:predict", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "oom", http.StatusInternalServerError)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		r, err := classify.NewRemote(context.Background(), classify.RemoteConfig{BaseURL: srv.URL, ModelName: "m", Timeout: time.Second})
		require.NoError(t, err)
		_, err = r.Classify(context.Background(), tinyJPEG(t, 2, 2))
		assert.ErrorIs(t, err, classify.ErrInference)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		r, err := classify.NewRemote(context.Background(), classify.RemoteConfig{BaseURL: url, ModelName: "m", Timeout: time.Second})
		assert.ErrorIs(t, err, classify.ErrModelUnreachable)
		assert.False(t, r.Ready())
	})
}

func TestNewClassifier_FallsBackWhenModelDown(t *testing.T) {
	m := &modelServer{statusCode: http.StatusNotFound}
	srv := httptest.NewServer(m.handler(t))
	defer srv.Close()

	c, err := classify.NewClassifier(context.Background(), config.ClassifierConfig{
		ModelURL:  srv.URL,
		ModelName: "skin_lesion_model",
		Timeout:   time.Second,
		Labels:    config.DefaultLabels,
	})
	require.NoError(t, err)
	assert.Equal(t, classify.SimulatedName, c.Name())
}

func TestNewClassifier_UsesRemoteWhenAvailable(t *testing.T) {
	m := &modelServer{predictions: [][]float64{{0.9}}}
	srv := httptest.NewServer(m.handler(t))
	defer srv.Close()

	c, err := classify.NewClassifier(context.Background(), config.ClassifierConfig{
		ModelURL:  srv.URL,
		ModelName: "skin_lesion_model",
		Timeout:   time.Second,
		Labels:    config.DefaultLabels,
	})
	require.NoError(t, err)
	assert.Equal(t, classify.RemoteName, c.Name())
}
