package onnx

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/inference"
)

// Runtime hosts one ONNX session per classifier variant. Sessions are opened on
// first use; a failed load is reported for that variant only and attempted again
// on the next call.
type Runtime struct {
	manifest    *inference.Manifest
	libraryPath string

	mu       sync.Mutex
	envReady bool
	slots    map[domain.Variant]*slot
}

type slot struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewRuntime(manifest *inference.Manifest, libraryPath string) *Runtime {
	return &Runtime{
		manifest:    manifest,
		libraryPath: libraryPath,
		slots:       make(map[domain.Variant]*slot),
	}
}

func (r *Runtime) Predict(ctx context.Context, variant domain.Variant, tensor *domain.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tensor == nil {
		return nil, domain.WrapError(domain.ErrPredictionFailed, "onnx predict", fmt.Errorf("nil tensor"))
	}
	spec, ok := r.manifest.Model(variant)
	if !ok {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "onnx predict", fmt.Errorf("variant %s is not configured", variant))
	}

	s := r.slot(variant)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		if err := r.load(s, spec); err != nil {
			return nil, domain.WrapError(domain.ErrModelUnavailable, "load model "+string(variant), err)
		}
	}

	input := s.inputTensor.GetData()
	if len(input) != len(tensor.Data) {
		return nil, domain.WrapError(domain.ErrPredictionFailed, "onnx predict",
			fmt.Errorf("variant %s expects %d values, got %d", variant, len(input), len(tensor.Data)))
	}
	copy(input, tensor.Data)

	if err := s.session.Run(); err != nil {
		return nil, domain.WrapError(domain.ErrPredictionFailed, "onnx predict", fmt.Errorf("inference failed: %w", err))
	}

	out := s.outputTensor.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

func (r *Runtime) slot(variant domain.Variant) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[variant]
	if !ok {
		s = &slot{}
		r.slots[variant] = s
	}
	return s
}

func (r *Runtime) load(s *slot, spec inference.ModelSpec) error {
	if spec.Path == "" {
		return fmt.Errorf("no model path configured")
	}
	if _, err := os.Stat(spec.Path); err != nil {
		return fmt.Errorf("model file: %w", err)
	}
	if err := r.ensureEnvironment(); err != nil {
		return err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.InputShape...))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(spec.Path,
		[]string{spec.InputName}, []string{spec.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	s.session = session
	s.inputTensor = inputTensor
	s.outputTensor = outputTensor
	return nil
}

func (r *Runtime) ensureEnvironment() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.envReady {
		return nil
	}
	if r.libraryPath != "" {
		ort.SetSharedLibraryPath(r.libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	r.envReady = true
	return nil
}

// Loaded reports which variants currently hold an open session.
func (r *Runtime) Loaded() []domain.Variant {
	slots := r.snapshot()
	out := make([]domain.Variant, 0, len(slots))
	for _, v := range domain.Variants() {
		s, ok := slots[v]
		if !ok {
			continue
		}
		s.mu.Lock()
		if s.session != nil {
			out = append(out, v)
		}
		s.mu.Unlock()
	}
	return out
}

func (r *Runtime) Close() {
	for _, s := range r.snapshot() {
		s.mu.Lock()
		if s.inputTensor != nil {
			s.inputTensor.Destroy()
		}
		if s.outputTensor != nil {
			s.outputTensor.Destroy()
		}
		if s.session != nil {
			s.session.Destroy()
		}
		s.session, s.inputTensor, s.outputTensor = nil, nil, nil
		s.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.envReady {
		_ = ort.DestroyEnvironment()
		r.envReady = false
	}
}

// snapshot copies the slot map so slot locks are never taken while holding r.mu.
func (r *Runtime) snapshot() map[domain.Variant]*slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.Variant]*slot, len(r.slots))
	for v, s := range r.slots {
		out[v] = s
	}
	return out
}
