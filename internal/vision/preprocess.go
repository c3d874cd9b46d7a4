package vision

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ekisa-team/leafsight/internal/tensor"
)

// Size is the target height and width of the classifier input.
type Size struct {
	Height int
	Width  int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// DefaultFilter is the resampling filter used when none is configured.
const DefaultFilter = "catmullrom"

var filters = map[string]imaging.ResampleFilter{
	"nearest":    imaging.NearestNeighbor,
	"linear":     imaging.Linear,
	"catmullrom": imaging.CatmullRom,
	"lanczos":    imaging.Lanczos,
}

// ParseFilter resolves a filter name. An empty name selects DefaultFilter.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	if name == "" {
		name = DefaultFilter
	}
	f, ok := filters[strings.ToLower(name)]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", name)
	}
	return f, nil
}

// Preprocessor turns decoded images into classifier tensors.
type Preprocessor struct {
	filter imaging.ResampleFilter
	size   Size
}

// NewPreprocessor creates a Preprocessor for the given input size and filter name.
func NewPreprocessor(size Size, filter string) (*Preprocessor, error) {
	if size.Height <= 0 || size.Width <= 0 {
		return nil, fmt.Errorf("%w: target size %s", ErrPreprocess, size)
	}
	f, err := ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	return &Preprocessor{size: size, filter: f}, nil
}

// Size returns the target size.
func (p *Preprocessor) Size() Size {
	return p.size
}

// Preprocess converts img into a [1, H, W, 3] tensor with values in [0, 1].
//
// The image is forced to opaque RGB (gray is replicated, alpha dropped),
// stretched to exactly W×H without keeping the aspect ratio, and scaled
// from [0, 255] by dividing by 255.
func (p *Preprocessor) Preprocess(img image.Image) (*tensor.Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrPreprocess)
	}

	rgb := opaque(img)
	resized := imaging.Resize(rgb, p.size.Width, p.size.Height, p.filter)

	out := tensor.New(tensor.ImageShape(p.size.Height, p.size.Width))
	i := 0
	for y := 0; y < p.size.Height; y++ {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+p.size.Width*4]
		for x := 0; x < p.size.Width; x++ {
			px := row[x*4 : x*4+3]
			out.Data[i] = float32(px[0]) / 255
			out.Data[i+1] = float32(px[1]) / 255
			out.Data[i+2] = float32(px[2]) / 255
			i += tensor.Channels
		}
	}

	return out, nil
}

// Preprocess is a convenience for one-off calls with the default filter.
func Preprocess(img image.Image, size Size) (*tensor.Tensor, error) {
	p, err := NewPreprocessor(size, "")
	if err != nil {
		return nil, err
	}
	return p.Preprocess(img)
}

// opaque copies img into non-premultiplied RGBA and discards its alpha.
func opaque(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
