package nats

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

const (
	HeaderVariant   = "Pneumo-Variant"
	HeaderShape     = "Pneumo-Shape"
	HeaderError     = "Pneumo-Error"
	HeaderErrorKind = "Pneumo-Error-Kind"

	kindModelUnavailable = "model_unavailable"
	kindPredictionFailed = "prediction_failed"
	kindInvalidRequest   = "invalid_request"
)

// Payloads are little-endian float32 arrays; the tensor shape travels in a header.
func encodeFloats(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func decodeFloats(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

func formatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(parts, ",")
}

func parseShape(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("missing tensor shape")
	}
	parts := strings.Split(raw, ",")
	shape := make([]int64, len(parts))
	for i, p := range parts {
		d, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid tensor shape %q", raw)
		}
		shape[i] = d
	}
	return shape, nil
}

func encodeRequest(subject string, variant domain.Variant, tensor *domain.Tensor) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Header.Set(HeaderVariant, string(variant))
	msg.Header.Set(HeaderShape, formatShape(tensor.Shape))
	msg.Data = encodeFloats(tensor.Data)
	return msg
}

func decodeRequest(msg *nats.Msg) (domain.Variant, *domain.Tensor, error) {
	variant := domain.Variant(msg.Header.Get(HeaderVariant))
	if !variant.Valid() {
		return "", nil, fmt.Errorf("unknown variant %q", variant)
	}
	shape, err := parseShape(msg.Header.Get(HeaderShape))
	if err != nil {
		return "", nil, err
	}
	data, err := decodeFloats(msg.Data)
	if err != nil {
		return "", nil, err
	}
	tensor := &domain.Tensor{Shape: shape, Data: data}
	if tensor.Volume() != len(data) {
		return "", nil, fmt.Errorf("shape %v needs %d values, got %d", shape, tensor.Volume(), len(data))
	}
	return variant, tensor, nil
}

func encodeReply(probs []float32, err error) *nats.Msg {
	msg := nats.NewMsg("")
	if err != nil {
		msg.Header.Set(HeaderErrorKind, errorKind(err))
		msg.Header.Set(HeaderError, headerValue(err.Error()))
		return msg
	}
	msg.Data = encodeFloats(probs)
	return msg
}

func decodeReply(variant domain.Variant, msg *nats.Msg) ([]float32, error) {
	operation := "nats predict " + string(variant)
	if reason := msg.Header.Get(HeaderError); reason != "" {
		switch msg.Header.Get(HeaderErrorKind) {
		case kindModelUnavailable:
			return nil, domain.WrapError(domain.ErrModelUnavailable, operation, fmt.Errorf("worker: %s", reason))
		default:
			return nil, domain.WrapError(domain.ErrPredictionFailed, operation, fmt.Errorf("worker: %s", reason))
		}
	}
	probs, err := decodeFloats(msg.Data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPredictionFailed, operation, err)
	}
	return probs, nil
}

// headerValue folds control characters so an error message stays on one header line.
func headerValue(s string) string {
	s = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s))
	if s == "" {
		return "unknown error"
	}
	return s
}

func errorKind(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrModelUnavailable):
		return kindModelUnavailable
	case domain.IsKind(err, domain.ErrInvalidInput):
		return kindInvalidRequest
	default:
		return kindPredictionFailed
	}
}
