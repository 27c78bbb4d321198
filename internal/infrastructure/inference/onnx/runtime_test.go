package onnx

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/inference"
)

func TestPredictUnknownVariantIsUnavailable(t *testing.T) {
	rt := NewRuntime(&inference.Manifest{}, "")
	_, err := rt.Predict(context.Background(), domain.VariantStage1, &domain.Tensor{})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
}

func TestMissingModelFileIsUnavailableAndNotCached(t *testing.T) {
	dir := t.TempDir()
	rt := NewRuntime(inference.DefaultManifest(filepath.Join(dir, "missing"), 224), "")
	defer rt.Close()

	for i := 0; i < 2; i++ {
		_, err := rt.Predict(context.Background(), domain.VariantStage2, &domain.Tensor{Data: make([]float32, 224*224*3)})
		if !errors.Is(err, domain.ErrModelUnavailable) {
			t.Fatalf("attempt %d: expected model unavailable, got %v", i, err)
		}
	}
	if loaded := rt.Loaded(); len(loaded) != 0 {
		t.Fatalf("failed loads must not leave sessions behind, got %v", loaded)
	}
}

func TestPredictRejectsNilTensorAndCanceledContext(t *testing.T) {
	rt := NewRuntime(inference.DefaultManifest("/nowhere", 224), "")
	if _, err := rt.Predict(context.Background(), domain.VariantStage1, nil); !errors.Is(err, domain.ErrPredictionFailed) {
		t.Fatalf("expected prediction failed for nil tensor, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rt.Predict(ctx, domain.VariantStage1, &domain.Tensor{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
