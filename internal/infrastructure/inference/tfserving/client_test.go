package tfserving

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/inference"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/resilience"
)

func smallTensor() *domain.Tensor {
	return &domain.Tensor{
		Shape: []int64{1, 2, 2, 3},
		Data:  []float32{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 0.5},
	}
}

func TestPredictPostsInstancesToVariantModel(t *testing.T) {
	var capturedPath string
	var captured struct {
		Instances [][][][]float32 `json:"instances"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"predictions":[[0.23,0.77]]}`))
	}))
	defer server.Close()

	client := New(server.URL, inference.DefaultManifest("", 2), time.Second, nil)
	probs, err := client.Predict(context.Background(), domain.VariantStage2, smallTensor())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if capturedPath != "/v1/models/pneumonia_stage2:predict" {
		t.Fatalf("unexpected path %s", capturedPath)
	}
	if len(captured.Instances) != 1 || len(captured.Instances[0]) != 2 || len(captured.Instances[0][1][1]) != 3 {
		t.Fatalf("unexpected instance layout %+v", captured.Instances)
	}
	if captured.Instances[0][1][0][2] != 0.8 {
		t.Fatalf("unexpected pixel value %v", captured.Instances[0][1][0])
	}
	if len(probs) != 2 || probs[1] != 0.77 {
		t.Fatalf("unexpected probabilities %v", probs)
	}
}

func TestPredictMapsStatusErrors(t *testing.T) {
	status := http.StatusBadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad input shape"}`, status)
	}))
	defer server.Close()

	client := New(server.URL, inference.DefaultManifest("", 2), time.Second, nil)
	_, err := client.Predict(context.Background(), domain.VariantStage1, smallTensor())
	if !errors.Is(err, domain.ErrPredictionFailed) {
		t.Fatalf("expected prediction failed for 400, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad input shape") {
		t.Fatalf("expected response body in error, got %v", err)
	}

	status = http.StatusServiceUnavailable
	_, err = client.Predict(context.Background(), domain.VariantStage1, smallTensor())
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable for 503, got %v", err)
	}
}

func TestPredictDoesNotRetryAndTripsBreaker(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenTimeout:  time.Minute,
	})
	client := New(server.URL, inference.DefaultManifest("", 2), time.Second, exec)

	for i := 0; i < 3; i++ {
		_, err := client.Predict(context.Background(), domain.VariantMulticlass, smallTensor())
		if !errors.Is(err, domain.ErrModelUnavailable) {
			t.Fatalf("call %d: expected model unavailable, got %v", i, err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected 2 backend calls before the breaker opened, got %d", calls)
	}
}

func TestPredictRejectsMalformedTensor(t *testing.T) {
	client := New("http://127.0.0.1:1", inference.DefaultManifest("", 2), time.Second, nil)
	_, err := client.Predict(context.Background(), domain.VariantStage1, &domain.Tensor{Shape: []int64{2, 2}, Data: []float32{1}})
	if !errors.Is(err, domain.ErrPredictionFailed) {
		t.Fatalf("expected prediction failed, got %v", err)
	}
}

func TestPredictUnreachableIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := New(url, inference.DefaultManifest("", 2), time.Second, nil)
	_, err := client.Predict(context.Background(), domain.VariantStage1, smallTensor())
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
}
