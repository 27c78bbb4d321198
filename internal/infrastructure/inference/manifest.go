package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

// ModelSpec describes one trained classifier variant.
type ModelSpec struct {
	Variant     domain.Variant `yaml:"variant"`
	Path        string         `yaml:"model_path"`
	ServingName string         `yaml:"serving_name"`
	InputName   string         `yaml:"input_name"`
	OutputName  string         `yaml:"output_name"`
	InputShape  []int64        `yaml:"input_shape"`
	OutputShape []int64        `yaml:"output_shape"`
	Labels      []string       `yaml:"labels"`
}

type Manifest struct {
	ImageSize int         `yaml:"image_size"`
	Models    []ModelSpec `yaml:"models"`
}

const defaultImageSize = 224

// LoadManifest reads the manifest at path. imageSize is used when the manifest
// does not set image_size.
func LoadManifest(path string, imageSize int) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model manifest: %w", err)
	}
	return ParseManifest(raw, filepath.Dir(path), imageSize)
}

// ParseManifest fills defaults and resolves relative model paths against baseDir.
// Label order must match the fixed label order of each variant, and every
// input_shape must be [1, image_size, image_size, 3].
func ParseManifest(raw []byte, baseDir string, imageSize int) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse model manifest: %w", err)
	}
	if m.ImageSize <= 0 {
		m.ImageSize = imageSize
	}
	if err := m.normalize(baseDir); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) normalize(baseDir string) error {
	if m.ImageSize <= 0 {
		m.ImageSize = defaultImageSize
	}
	size := int64(m.ImageSize)

	seen := make(map[domain.Variant]bool, len(m.Models))
	for i := range m.Models {
		spec := &m.Models[i]
		if !spec.Variant.Valid() {
			return fmt.Errorf("model manifest entry %d: unknown variant %q", i, spec.Variant)
		}
		if seen[spec.Variant] {
			return fmt.Errorf("model manifest: variant %s listed twice", spec.Variant)
		}
		seen[spec.Variant] = true

		want := spec.Variant.Labels()
		if len(spec.Labels) == 0 {
			for _, l := range want {
				spec.Labels = append(spec.Labels, string(l))
			}
		}
		if len(spec.Labels) != len(want) {
			return fmt.Errorf("model manifest: variant %s has %d labels, want %d", spec.Variant, len(spec.Labels), len(want))
		}
		for j, l := range spec.Labels {
			if !strings.EqualFold(strings.TrimSpace(l), string(want[j])) {
				return fmt.Errorf("model manifest: variant %s label %d is %q, want %q", spec.Variant, j, l, want[j])
			}
		}

		if spec.Path != "" && !filepath.IsAbs(spec.Path) && baseDir != "" {
			spec.Path = filepath.Join(baseDir, spec.Path)
		}
		if spec.ServingName == "" {
			spec.ServingName = "pneumonia_" + string(spec.Variant)
		}
		if spec.InputName == "" {
			spec.InputName = "input"
		}
		if spec.OutputName == "" {
			spec.OutputName = "output"
		}
		if len(spec.InputShape) == 0 {
			spec.InputShape = []int64{1, size, size, 3}
		}
		if !sameShape(spec.InputShape, []int64{1, size, size, 3}) {
			return fmt.Errorf("model manifest: variant %s input_shape %v does not match image_size %d", spec.Variant, spec.InputShape, m.ImageSize)
		}
		if len(spec.OutputShape) == 0 {
			spec.OutputShape = []int64{1, int64(len(want))}
		}
		if n := spec.OutputShape[len(spec.OutputShape)-1]; n != int64(len(want)) {
			return fmt.Errorf("model manifest: variant %s output width %d, want %d", spec.Variant, n, len(want))
		}
	}
	return nil
}

func sameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *Manifest) Model(variant domain.Variant) (ModelSpec, bool) {
	if m == nil {
		return ModelSpec{}, false
	}
	for _, spec := range m.Models {
		if spec.Variant == variant {
			return spec, true
		}
	}
	return ModelSpec{}, false
}

// DefaultManifest lists the three variants with conventional file names under dir.
func DefaultManifest(dir string, imageSize int) *Manifest {
	m := &Manifest{ImageSize: imageSize}
	for _, v := range domain.Variants() {
		m.Models = append(m.Models, ModelSpec{Variant: v, Path: filepath.Join(dir, string(v)+".onnx")})
	}
	// The generated entries always satisfy the label and shape checks.
	_ = m.normalize("")
	return m
}
