package response_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/lesionscan/internal/analysis"
	"github.com/kiranshivaraju/lesionscan/internal/api/response"
	"github.com/kiranshivaraju/lesionscan/internal/store"
	"github.com/kiranshivaraju/lesionscan/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"name": "test"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "test", data["name"])
	assert.NotContains(t, body, "message")
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	response.Accepted(w, map[string]string{"jobId": "j1"}, "queued")

	assert.Equal(t, http.StatusAccepted, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "queued", body["message"])
	assert.Equal(t, "j1", body["data"].(map[string]any)["jobId"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "bad input", map[string]string{"field": "image"}, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "bad input", errObj["message"])
	assert.Equal(t, "image", errObj["details"].(map[string]any)["field"])
	assert.NotContains(t, errObj, "stack")
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"missing file", upload.ErrMissingFile, http.StatusBadRequest, upload.ErrMissingFile.Error()},
		{"unsupported type", fmt.Errorf("%w: \".txt\"", upload.ErrUnsupportedType), http.StatusBadRequest, `only image files are allowed: ".txt"`},
		{"too large", upload.ErrTooLarge, http.StatusBadRequest, upload.ErrTooLarge.Error()},
		{"body limit", fmt.Errorf("parse form: %w", &http.MaxBytesError{Limit: 10}), http.StatusBadRequest, upload.ErrTooLarge.Error()},
		{"invalid id", analysis.ErrInvalidJobID, http.StatusBadRequest, analysis.ErrInvalidJobID.Error()},
		{"not found", fmt.Errorf("get job: %w", store.ErrNotFound), http.StatusNotFound, "Job not found"},
		{"storage", fmt.Errorf("%w: connection refused", store.ErrStorage), http.StatusInternalServerError, "Internal Server Error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/status/x", nil)
			response.FromError(w, r, tt.err, false)

			assert.Equal(t, tt.wantStatus, w.Code)
			errObj := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, tt.wantMessage, errObj["message"])
			assert.NotContains(t, errObj, "stack")
		})
	}
}

func TestFromError_StackInDebugMode(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	response.FromError(w, r, errors.New("boom"), true)

	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "Internal Server Error", errObj["message"])
	assert.NotEmpty(t, errObj["stack"])
}
