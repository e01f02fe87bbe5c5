package mixup

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mixgo-ml/mixgo/internal/config"
	"github.com/mixgo-ml/mixgo/internal/parallel"
)

// Box is a half-open pixel rectangle [Y1, Y2) × [X1, X2).
type Box struct {
	Y1, X1, Y2, X2 int
}

// Area returns the number of pixels in the box.
func (b Box) Area() int { return (b.Y2 - b.Y1) * (b.X2 - b.X1) }

// RandBox places a box of side ratio cut (of H and W) around a uniformly
// drawn center, clipped to the image.
func RandBox(h, w int, cut float64, rng *rand.Rand) Box {
	cutH, cutW := int(float64(h)*cut), int(float64(w)*cut)
	cy, cx := rng.IntN(h), rng.IntN(w)
	return Box{
		Y1: clamp(cy-cutH/2, 0, h),
		X1: clamp(cx-cutW/2, 0, w),
		Y2: clamp(cy+cutH/2, 0, h),
		X2: clamp(cx+cutW/2, 0, w),
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// Vanilla leaves the batch unmixed.
type Vanilla struct{}

// Mix implements Strategy.
func (Vanilla) Mix(b Batch, perm []int, _ float64, _ *rand.Rand) (Mixed, error) {
	return Mixed{Images: b.Images, LabelsA: b.Labels, LabelsB: b.Labels, Lam: 1, Mode: "vanilla"}, nil
}

// Mixup blends every image with its partner: x = lam·x_i + (1-lam)·x_perm(i).
type Mixup struct{}

// Mix implements Strategy.
func (Mixup) Mix(b Batch, perm []int, lam float64, _ *rand.Rand) (Mixed, error) {
	n, c, h, w, err := checkBatch(b, perm)
	if err != nil {
		return Mixed{}, err
	}
	size := c * h * w
	out := b.Images.Clone()
	src, dst := b.Images.Data(), out.Data()
	l := float32(lam)
	parallel.For(n, func(i int) {
		a, p := src[i*size:(i+1)*size], src[perm[i]*size:(perm[i]+1)*size]
		d := dst[i*size : (i+1)*size]
		for k := range d {
			d[k] = l*a[k] + (1-l)*p[k]
		}
	}, kernels)
	return Mixed{Images: out, LabelsA: b.Labels, LabelsB: permuted(b.Labels, perm), Lam: lam, Mode: "mixup"}, nil
}

// pasteBox copies box from the partner images into out; fill writes one
// channel plane of the box for sample i.
func pasteBox(out []float32, n, c, h, w int, box Box, fill func(i, ch int, plane []float32)) {
	parallel.For(n, func(i int) {
		for ch := 0; ch < c; ch++ {
			fill(i, ch, out[(i*c+ch)*h*w:(i*c+ch+1)*h*w])
		}
	}, kernels)
}

// CutMix pastes a random box from the partner image. The box covers about
// 1-lam of the image; lam is recomputed from the clipped box.
type CutMix struct{}

// Mix implements Strategy.
func (CutMix) Mix(b Batch, perm []int, lam float64, rng *rand.Rand) (Mixed, error) {
	n, c, h, w, err := checkBatch(b, perm)
	if err != nil {
		return Mixed{}, err
	}
	box := RandBox(h, w, math.Sqrt(1-lam), rng)
	out := b.Images.Clone()
	src := b.Images.Data()
	pasteBox(out.Data(), n, c, h, w, box, func(i, ch int, plane []float32) {
		from := src[(perm[i]*c+ch)*h*w:]
		for y := box.Y1; y < box.Y2; y++ {
			copy(plane[y*w+box.X1:y*w+box.X2], from[y*w+box.X1:y*w+box.X2])
		}
	})
	lam = 1 - float64(box.Area())/float64(h*w)
	return Mixed{Images: out, LabelsA: b.Labels, LabelsB: permuted(b.Labels, perm), Lam: lam, Mode: "cutmix"}, nil
}

// ResizeMix pastes the whole partner image, downscaled with nearest
// neighbour, into a random box whose side ratio tao is drawn from Scope
// (uniformly, or through lam when UseAlpha is set).
type ResizeMix struct {
	Scope    [2]float64
	UseAlpha bool
}

// Mix implements Strategy.
func (r ResizeMix) Mix(b Batch, perm []int, lam float64, rng *rand.Rand) (Mixed, error) {
	n, c, h, w, err := checkBatch(b, perm)
	if err != nil {
		return Mixed{}, err
	}
	var tao float64
	if r.UseAlpha {
		tao = r.Scope[0] + (r.Scope[1]-r.Scope[0])*lam
	} else {
		tao = r.Scope[0] + (r.Scope[1]-r.Scope[0])*rng.Float64()
	}
	box := RandBox(h, w, tao, rng)
	out := b.Images.Clone()
	if box.Area() == 0 {
		return Mixed{Images: out, LabelsA: b.Labels, LabelsB: permuted(b.Labels, perm), Lam: 1, Mode: "resizemix"}, nil
	}

	bh, bw := box.Y2-box.Y1, box.X2-box.X1
	src := b.Images.Data()
	pasteBox(out.Data(), n, c, h, w, box, func(i, ch int, plane []float32) {
		from := src[(perm[i]*c+ch)*h*w : (perm[i]*c+ch+1)*h*w]
		for y := 0; y < bh; y++ {
			sy := y * h / bh
			for x := 0; x < bw; x++ {
				plane[(box.Y1+y)*w+box.X1+x] = from[sy*w+x*w/bw]
			}
		}
	})
	lam = 1 - float64(box.Area())/float64(h*w)
	return Mixed{Images: out, LabelsA: b.Labels, LabelsB: permuted(b.Labels, perm), Lam: lam, Mode: "resizemix"}, nil
}

// GridMix splits the image into a g×g grid, with g drawn from Holes, and
// takes each cell from the partner with probability 1-lam. The same cell
// mask is used for the whole batch; lam is recomputed from the mask.
type GridMix struct {
	Holes [2]int
}

// Mix implements Strategy.
func (g GridMix) Mix(b Batch, perm []int, lam float64, rng *rand.Rand) (Mixed, error) {
	n, c, h, w, err := checkBatch(b, perm)
	if err != nil {
		return Mixed{}, err
	}
	grid := g.Holes[0]
	if g.Holes[1] > g.Holes[0] {
		grid += rng.IntN(g.Holes[1] - g.Holes[0] + 1)
	}
	grid = min(grid, h, w)

	var boxes []Box
	swapped := 0
	for i := 0; i < grid; i++ {
		for j := 0; j < grid; j++ {
			if rng.Float64() >= 1-lam {
				continue
			}
			box := Box{Y1: i * h / grid, Y2: (i + 1) * h / grid, X1: j * w / grid, X2: (j + 1) * w / grid}
			boxes = append(boxes, box)
			swapped += box.Area()
		}
	}

	out := b.Images.Clone()
	src := b.Images.Data()
	for _, box := range boxes {
		pasteBox(out.Data(), n, c, h, w, box, func(i, ch int, plane []float32) {
			from := src[(perm[i]*c+ch)*h*w:]
			for y := box.Y1; y < box.Y2; y++ {
				copy(plane[y*w+box.X1:y*w+box.X2], from[y*w+box.X1:y*w+box.X2])
			}
		})
	}
	lam = 1 - float64(swapped)/float64(h*w)
	return Mixed{Images: out, LabelsA: b.Labels, LabelsB: permuted(b.Labels, perm), Lam: lam, Mode: "gridmix"}, nil
}

func init() {
	Register("vanilla", func(config.Config) (Strategy, error) { return Vanilla{}, nil })
	Register("mixup", func(config.Config) (Strategy, error) { return Mixup{}, nil })
	Register("cutmix", func(config.Config) (Strategy, error) { return CutMix{}, nil })
	Register("resizemix", func(args config.Config) (Strategy, error) {
		f := args.Fields()
		scope := f.Floats("scope", 0.1, 0.8)
		r := ResizeMix{UseAlpha: f.Bool("use_alpha", false)}
		if err := f.Err(); err != nil {
			return nil, fmt.Errorf("resizemix: %w", err)
		}
		if len(scope) != 2 || scope[0] < 0 || scope[1] > 1 || scope[0] > scope[1] {
			return nil, fmt.Errorf("resizemix: %w: scope must be [lo, hi] within [0, 1], got %v", config.ErrInvalidConfig, scope)
		}
		r.Scope = [2]float64{scope[0], scope[1]}
		return r, nil
	})
	Register("gridmix", func(args config.Config) (Strategy, error) {
		f := args.Fields()
		holes := f.Ints("n_holes", 2, 6)
		if err := f.Err(); err != nil {
			return nil, fmt.Errorf("gridmix: %w", err)
		}
		if len(holes) == 1 {
			holes = append(holes, holes[0])
		}
		if len(holes) != 2 || holes[0] < 1 || holes[1] < holes[0] {
			return nil, fmt.Errorf("gridmix: %w: n_holes must be n or [lo, hi] with 1 <= lo <= hi, got %v", config.ErrInvalidConfig, holes)
		}
		return GridMix{Holes: [2]int{holes[0], holes[1]}}, nil
	})
}
