package domain

import (
	"fmt"
	"math"
)

// Variant identifies one of the fixed model configurations.
type Variant string

const (
	VariantMulticlass Variant = "multiclass"
	VariantStage1     Variant = "stage1"
	VariantStage2     Variant = "stage2"
)

type Label string

const (
	LabelBacterial Label = "Bacterial"
	LabelNormal    Label = "Normal"
	LabelViral     Label = "Viral"
	LabelPneumonia Label = "Pneumonia"
)

// variantLabels is ordered by model output index.
var variantLabels = map[Variant][]Label{
	VariantMulticlass: {LabelBacterial, LabelNormal, LabelViral},
	VariantStage1:     {LabelNormal, LabelPneumonia},
	VariantStage2:     {LabelBacterial, LabelViral},
}

func Variants() []Variant {
	return []Variant{VariantMulticlass, VariantStage1, VariantStage2}
}

func (v Variant) Valid() bool {
	_, ok := variantLabels[v]
	return ok
}

// Labels returns a copy of the variant's label table.
func (v Variant) Labels() []Label {
	labels := variantLabels[v]
	out := make([]Label, len(labels))
	copy(out, labels)
	return out
}

// Tensor is a preprocessed image batch in NHWC layout.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func (t *Tensor) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Data)
}

// Volume is the element count implied by Shape.
func (t *Tensor) Volume() int {
	if t == nil || len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

type ClassificationResult struct {
	Variant       Variant   `json:"variant"`
	Label         Label     `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
}

// DisplayConfidence formats the confidence the way results are shown to users.
func (r ClassificationResult) DisplayConfidence() string {
	return FormatConfidence(r.Confidence)
}

func FormatConfidence(confidence float64) string {
	return fmt.Sprintf("%.2f", confidence)
}

// NewResult maps a probability vector through the variant's label table.
// The first maximal index wins ties.
func NewResult(variant Variant, probabilities []float32) (ClassificationResult, error) {
	labels, ok := variantLabels[variant]
	if !ok {
		return ClassificationResult{}, fmt.Errorf("unknown variant %q", variant)
	}
	if len(probabilities) != len(labels) {
		return ClassificationResult{}, fmt.Errorf("variant %s expects %d probabilities, got %d", variant, len(labels), len(probabilities))
	}

	probs := make([]float64, len(probabilities))
	maxIdx := 0
	for i, p := range probabilities {
		v := float64(p)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return ClassificationResult{}, fmt.Errorf("probability %d out of range: %v", i, p)
		}
		probs[i] = v
		if v > probs[maxIdx] {
			maxIdx = i
		}
	}

	return ClassificationResult{
		Variant:       variant,
		Label:         labels[maxIdx],
		Confidence:    probs[maxIdx],
		Probabilities: probs,
	}, nil
}
