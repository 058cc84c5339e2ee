package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

// RemoteName identifies the model-server classifier in logs and metrics.
const RemoteName = "remote"

const maxResponseBytes = 1 << 20

// RemoteConfig describes where the model is served.
type RemoteConfig struct {
	BaseURL   string
	ModelName string
	Labels    []string
	Timeout   time.Duration
}

// Remote classifies images with a model served over the TensorFlow Serving REST API.
//
// Readiness is probed once by NewRemote and never re-attempted; a Remote that
// was not ready at startup stays not ready.
type Remote struct {
	predictURL string
	labels     []string
	client     *http.Client
	ready      bool

	tensors sync.Pool
	bodies  sync.Pool
}

// NewRemote builds a Remote client and probes the model's status endpoint.
// A failed probe is reported through the returned error; the client is still
// usable as a not-ready classifier.
func NewRemote(ctx context.Context, cfg RemoteConfig) (*Remote, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse model url: %w", err)
	}
	modelURL := strings.TrimRight(cfg.BaseURL, "/") + "/v1/models/" + url.PathEscape(cfg.ModelName)

	r := &Remote{
		predictURL: modelURL + ":predict",
		labels:     append([]string(nil), cfg.Labels...),
		client:     &http.Client{Timeout: cfg.Timeout},
	}
	r.tensors.New = func() any { return new([]float32) }
	r.bodies.New = func() any { return new(bytes.Buffer) }

	if err := r.probe(ctx, modelURL); err != nil {
		return r, err
	}
	r.ready = true
	return r, nil
}

func (r *Remote) Name() string { return RemoteName }

func (r *Remote) Ready() bool { return r.ready }

// Classify decodes the processed JPEG into a [1,H,W,3] tensor scaled to [0,1],
// runs prediction and pairs the scores with labels, sorted descending.
func (r *Remote) Classify(ctx context.Context, data []byte) ([]models.Condition, error) {
	if !r.ready {
		return nil, ErrModelNotReady
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrInference, err)
	}

	tensor := r.tensors.Get().(*[]float32)
	defer func() {
		*tensor = (*tensor)[:0]
		r.tensors.Put(tensor)
	}()
	*tensor = fillTensor((*tensor)[:0], img)

	body := r.bodies.Get().(*bytes.Buffer)
	defer func() {
		body.Reset()
		r.bodies.Put(body)
	}()
	writePredictRequest(body, *tensor, img.Bounds().Dx(), img.Bounds().Dy())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.predictURL, bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrInference, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var pr predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&pr); err != nil {
		return nil, fmt.Errorf("%w: decoding predict response: %v", ErrInference, err)
	}
	if len(pr.Predictions) == 0 || len(pr.Predictions[0]) == 0 {
		return nil, fmt.Errorf("%w: empty predictions", ErrInference)
	}

	scores := pr.Predictions[0]
	conditions := make([]models.Condition, len(scores))
	for i, p := range scores {
		conditions[i] = models.Condition{Name: r.label(i), Probability: p}
	}
	sortConditions(conditions)
	return conditions, nil
}

func (r *Remote) label(i int) string {
	if i < len(r.labels) {
		return r.labels[i]
	}
	return "Class " + strconv.Itoa(i)
}

func (r *Remote) probe(ctx context.Context, statusURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: model status returned %d", ErrModelNotReady, resp.StatusCode)
	}

	var sr statusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&sr); err != nil {
		return fmt.Errorf("%w: decoding model status: %v", ErrModelNotReady, err)
	}
	for _, v := range sr.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return nil
		}
	}
	return fmt.Errorf("%w: no available model version", ErrModelNotReady)
}

// fillTensor appends img's RGB values in row-major HWC order, scaled to [0,1].
func fillTensor(buf []float32, img image.Image) []float32 {
	b := img.Bounds()
	need := b.Dx() * b.Dy() * 3
	if cap(buf) < need {
		buf = make([]float32, 0, need)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			buf = append(buf,
				float32(r>>8)/255,
				float32(g>>8)/255,
				float32(bl>>8)/255)
		}
	}
	return buf
}

// writePredictRequest encodes {"instances": [tensor]} with tensor shaped [h][w][3].
func writePredictRequest(w *bytes.Buffer, tensor []float32, width, height int) {
	var num []byte
	w.WriteString(`{"instances":[[`)
	for y := 0; y < height; y++ {
		if y > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('[')
		for x := 0; x < width; x++ {
			if x > 0 {
				w.WriteByte(',')
			}
			w.WriteByte('[')
			i := (y*width + x) * 3
			for c := 0; c < 3; c++ {
				if c > 0 {
					w.WriteByte(',')
				}
				num = strconv.AppendFloat(num[:0], float64(tensor[i+c]), 'f', 4, 32)
				w.Write(num)
			}
			w.WriteByte(']')
		}
		w.WriteByte(']')
	}
	w.WriteString(`]]}`)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInference, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrModelUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrInference, err)
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

type statusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

var _ models.Classifier = (*Remote)(nil)
