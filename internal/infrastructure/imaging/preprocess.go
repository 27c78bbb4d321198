package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

const DefaultSize = 224

// Preprocessor turns an uploaded X-ray into a 1xSxSx3 float tensor scaled to [0,1].
type Preprocessor struct {
	size int
}

func NewPreprocessor(size int) *Preprocessor {
	if size <= 0 {
		size = DefaultSize
	}
	return &Preprocessor{size: size}
}

func (p *Preprocessor) Size() int {
	return p.size
}

func (p *Preprocessor) Preprocess(data []byte) (*domain.Tensor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	side := uint(p.size)
	resized := resize.Resize(side, side, dropAlpha(img), resize.Bicubic)
	return pack(resized, p.size), nil
}

// dropAlpha keeps the straight colour of every pixel and makes it opaque.
func dropAlpha(img image.Image) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}

// pack lays pixels out in NHWC order. Grayscale inputs are expanded to three
// identical channels.
func pack(img image.Image, size int) *domain.Tensor {
	bounds := img.Bounds()
	data := make([]float32, size*size*3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := (y*size + x) * 3
			data[i] = float32(c.R) / 255.0
			data[i+1] = float32(c.G) / 255.0
			data[i+2] = float32(c.B) / 255.0
		}
	}
	return &domain.Tensor{
		Shape: []int64{1, int64(size), int64(size), 3},
		Data:  data,
	}
}
