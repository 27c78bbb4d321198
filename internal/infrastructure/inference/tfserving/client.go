package tfserving

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/inference"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/resilience"
)

// Client calls the TensorFlow Serving REST predict API, one served model per variant.
type Client struct {
	baseURL    string
	manifest   *inference.Manifest
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, manifest *inference.Manifest, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.Config{Enabled: false})
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		manifest:   manifest,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type predictRequest struct {
	Instances []any `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error"`
}

func (c *Client) Predict(ctx context.Context, variant domain.Variant, tensor *domain.Tensor) ([]float32, error) {
	spec, ok := c.manifest.Model(variant)
	if !ok {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "tfserving predict", fmt.Errorf("variant %s is not configured", variant))
	}
	instance, err := instanceOf(tensor)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPredictionFailed, "tfserving predict", err)
	}

	var response predictResponse
	operation := "tfserving." + string(variant)
	err = c.executor.Execute(ctx, operation, func(callCtx context.Context) error {
		path := "/v1/models/" + spec.ServingName + ":predict"
		return c.postJSON(callCtx, path, predictRequest{Instances: []any{instance}}, &response, "predict")
	}, classifyServingError)
	if err != nil {
		return nil, wrapPredictError(string(variant), err)
	}
	if response.Error != "" {
		return nil, domain.WrapError(domain.ErrPredictionFailed, "tfserving predict", fmt.Errorf("%s", response.Error))
	}
	if len(response.Predictions) != 1 {
		return nil, domain.WrapError(domain.ErrPredictionFailed, "tfserving predict",
			fmt.Errorf("expected 1 prediction, got %d", len(response.Predictions)))
	}
	return response.Predictions[0], nil
}

// instanceOf drops the batch dimension of an NHWC tensor and nests the rest
// the way the row-oriented predict API expects.
func instanceOf(tensor *domain.Tensor) ([][][]float32, error) {
	if tensor == nil {
		return nil, fmt.Errorf("nil tensor")
	}
	if len(tensor.Shape) != 4 || tensor.Shape[0] != 1 {
		return nil, fmt.Errorf("expected shape [1,H,W,C], got %v", tensor.Shape)
	}
	h, w, ch := int(tensor.Shape[1]), int(tensor.Shape[2]), int(tensor.Shape[3])
	if len(tensor.Data) != h*w*ch {
		return nil, fmt.Errorf("tensor holds %d values, shape needs %d", len(tensor.Data), h*w*ch)
	}
	rows := make([][][]float32, h)
	for y := 0; y < h; y++ {
		cols := make([][]float32, w)
		for x := 0; x < w; x++ {
			off := (y*w + x) * ch
			cols[x] = tensor.Data[off : off+ch : off+ch]
		}
		rows[y] = cols
	}
	return rows, nil
}
