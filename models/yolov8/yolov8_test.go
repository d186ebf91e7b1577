package yolov8

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-yolo-decode/images"
	"github.com/nvr-ai/go-yolo-decode/inference/quant"
	"github.com/nvr-ai/go-yolo-decode/inference/tensors"
	"github.com/nvr-ai/go-yolo-decode/models/model"
	"github.com/nvr-ai/go-yolo-decode/models/postprocess"
)

const (
	testDFLLen  = 16
	testPeak    = 10
	testClasses = 2
)

// branch is a float32 description of one head branch used to build tensors
// of any element type.
type branch struct {
	gridH, gridW int
	box          []float32
	score        []float32
	sum          []float32
}

func newBranch(gridH, gridW int) *branch {
	n := gridH * gridW
	return &branch{
		gridH: gridH,
		gridW: gridW,
		box:   make([]float32, 4*testDFLLen*n),
		score: make([]float32, testClasses*n),
		sum:   make([]float32, n),
	}
}

// setCell places a detection at (row, col) whose edge offsets peak at the
// given bins.
func (b *branch) setCell(row, col, class int, score float32, bins [4]int) {
	n := b.gridH * b.gridW
	cell := row*b.gridW + col
	for edge, bin := range bins {
		b.box[(edge*testDFLLen+bin)*n+cell] = testPeak
	}
	b.score[class*n+cell] = score
	b.sum[cell] += score
}

func quantizeAll[T quant.Integer](src []float32, zp int32, scale float32) []T {
	dst := make([]T, len(src))
	for i, v := range src {
		dst[i] = quant.Quantize[T](v, zp, scale)
	}
	return dst
}

type affine struct {
	boxZP, scoreZP       int32
	boxScale, scoreScale float32
}

var (
	int8Affine  = affine{boxZP: 0, boxScale: 0.1, scoreZP: -128, scoreScale: 1.0 / 256}
	uint8Affine = affine{boxZP: 128, boxScale: 0.1, scoreZP: 0, scoreScale: 1.0 / 255}
)

func rawOutputs(b *branch, dtype tensors.DType, withSum bool) []tensors.Raw {
	boxDims := []int{1, 4 * testDFLLen, b.gridH, b.gridW}
	scoreDims := []int{1, testClasses, b.gridH, b.gridW}
	sumDims := []int{1, 1, b.gridH, b.gridW}

	var box, score, sum tensors.Raw
	switch dtype {
	case tensors.Int8Affine:
		a := int8Affine
		box = tensors.Raw{Data: quantizeAll[int8](b.box, a.boxZP, a.boxScale), Dims: boxDims, ZeroPoint: a.boxZP, Scale: a.boxScale}
		score = tensors.Raw{Data: quantizeAll[int8](b.score, a.scoreZP, a.scoreScale), Dims: scoreDims, ZeroPoint: a.scoreZP, Scale: a.scoreScale}
		sum = tensors.Raw{Data: quantizeAll[int8](b.sum, a.scoreZP, a.scoreScale), Dims: sumDims, ZeroPoint: a.scoreZP, Scale: a.scoreScale}
	case tensors.Uint8Affine:
		a := uint8Affine
		box = tensors.Raw{Data: quantizeAll[uint8](b.box, a.boxZP, a.boxScale), Dims: boxDims, ZeroPoint: a.boxZP, Scale: a.boxScale}
		score = tensors.Raw{Data: quantizeAll[uint8](b.score, a.scoreZP, a.scoreScale), Dims: scoreDims, ZeroPoint: a.scoreZP, Scale: a.scoreScale}
		sum = tensors.Raw{Data: quantizeAll[uint8](b.sum, a.scoreZP, a.scoreScale), Dims: sumDims, ZeroPoint: a.scoreZP, Scale: a.scoreScale}
	default:
		box = tensors.Raw{Data: b.box, Dims: boxDims}
		score = tensors.Raw{Data: b.score, Dims: scoreDims}
		sum = tensors.Raw{Data: b.sum, Dims: sumDims}
	}
	if withSum {
		return []tensors.Raw{box, score, sum}
	}
	return []tensors.Raw{box, score}
}

// headOutputs builds three branches for a 32x32 input (strides 8, 16, 32)
// with the given cells set on the stride-8 branch.
func headOutputs(dtype tensors.DType, withSum bool, setup func(b *branch)) []tensors.Raw {
	fine := newBranch(4, 4)
	if setup != nil {
		setup(fine)
	}
	var out []tensors.Raw
	out = append(out, rawOutputs(fine, dtype, withSum)...)
	out = append(out, rawOutputs(newBranch(2, 2), dtype, withSum)...)
	out = append(out, rawOutputs(newBranch(1, 1), dtype, withSum)...)
	return out
}

func testConfig(precision model.Precision) model.Config {
	cfg := model.DefaultConfig()
	cfg.Precision = precision
	cfg.InputWidth = 32
	cfg.InputHeight = 32
	cfg.NumClasses = testClasses
	cfg.ConfidenceThreshold = 0.5
	return cfg
}

func TestDFLZeroLogitsIsCentred(t *testing.T) {
	box := DFL(make([]float32, 4*testDFLLen), testDFLLen)
	for _, v := range box {
		assert.InDelta(t, float32(testDFLLen-1)/2, v, 1e-4)
	}
}

func TestDFLPeakedLogits(t *testing.T) {
	logits := make([]float32, 4*testDFLLen)
	bins := [4]int{0, 3, 7, 15}
	for edge, bin := range bins {
		logits[edge*testDFLLen+bin] = 30
	}
	box := DFL(logits, testDFLLen)
	for edge, bin := range bins {
		assert.InDelta(t, float32(bin), box[edge], 1e-3)
	}
}

func TestDFLLargeLogitsAreStable(t *testing.T) {
	logits := make([]float32, 4*4)
	for i := range logits {
		logits[i] = 1000
	}
	box := DFL(logits, 4)
	for _, v := range box {
		assert.InDelta(t, 1.5, v, 1e-4)
	}
}

func TestScanSingleCell(t *testing.T) {
	b := newBranch(4, 5)
	b.setCell(2, 3, 0, 0.9, [4]int{0, 0, 0, 0})
	raw := rawOutputs(b, tensors.Float32, false)
	box, err := tensors.AsView[float32](raw[0])
	require.NoError(t, err)
	score, err := tensors.AsView[float32](raw[1])
	require.NoError(t, err)

	s := NewScale(32, box, score, nil)
	require.Equal(t, 8, s.Stride)
	require.NoError(t, s.Validate(testClasses))

	cands := ScanScale(s, testClasses, 0.5, nil)
	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, 0, c.Class)
	assert.InDelta(t, 0.9, c.Score, 1e-6)
	assert.InDelta(t, 28, c.Box.X+c.Box.W/2, 0.01)
	assert.InDelta(t, 20, c.Box.Y+c.Box.H/2, 0.01)
	assert.InDelta(t, 0, c.Box.W, 0.1)
	assert.InDelta(t, 0, c.Box.H, 0.1)
}

func TestScanBoxGeometry(t *testing.T) {
	b := newBranch(4, 5)
	b.setCell(1, 1, 1, 0.8, [4]int{1, 1, 2, 3})
	raw := rawOutputs(b, tensors.Float32, false)
	box, _ := tensors.AsView[float32](raw[0])
	score, _ := tensors.AsView[float32](raw[1])

	cands := ScanScale(NewScale(32, box, score, nil), testClasses, 0.5, nil)
	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, 1, c.Class)
	assert.InDelta(t, (1.5-1)*8, c.Box.X, 0.2)
	assert.InDelta(t, (1.5-1)*8, c.Box.Y, 0.2)
	assert.InDelta(t, 3*8, c.Box.W, 0.2)
	assert.InDelta(t, 4*8, c.Box.H, 0.2)
}

func TestScanPicksHighestClass(t *testing.T) {
	b := newBranch(2, 2)
	b.setCell(0, 0, 0, 0.6, [4]int{1, 1, 1, 1})
	b.score[1*4+0] = 0.7
	raw := rawOutputs(b, tensors.Float32, false)
	box, _ := tensors.AsView[float32](raw[0])
	score, _ := tensors.AsView[float32](raw[1])

	cands := ScanScale(NewScale(16, box, score, nil), testClasses, 0.5, nil)
	require.Len(t, cands, 1)
	assert.Equal(t, 1, cands[0].Class)
	assert.InDelta(t, 0.7, cands[0].Score, 1e-6)
}

func TestScanScoreSumEarlyReject(t *testing.T) {
	b := newBranch(2, 2)
	b.setCell(0, 0, 0, 0.9, [4]int{1, 1, 1, 1})
	b.sum[0] = 0.1
	raw := rawOutputs(b, tensors.Float32, true)
	box, _ := tensors.AsView[float32](raw[0])
	score, _ := tensors.AsView[float32](raw[1])
	sum, _ := tensors.AsView[float32](raw[2])

	assert.Empty(t, ScanScale(NewScale(16, box, score, &sum), testClasses, 0.5, nil))
	assert.Len(t, ScanScale(NewScale(16, box, score, nil), testClasses, 0.5, nil), 1)
}

func TestScanUint8ScoresBelowZeroPoint(t *testing.T) {
	// Stored values below the zero point are negative reals and never win,
	// even with a zero threshold.
	zp := int32(100)
	data := []uint8{10, 20, 30, 40}
	score, err := tensors.NewView(data, 1, 2, 2, zp, 0.01)
	require.NoError(t, err)
	box, err := tensors.NewView(make([]uint8, 16), 4, 2, 2, 0, 1)
	require.NoError(t, err)

	assert.Empty(t, ScanScale(NewScale(16, box, score, nil), 1, 0, nil))
}

func TestDecodeThresholdMonotonic(t *testing.T) {
	b := newBranch(4, 4)
	b.setCell(0, 0, 0, 0.3, [4]int{1, 1, 1, 1})
	b.setCell(1, 2, 1, 0.55, [4]int{1, 1, 1, 1})
	b.setCell(3, 3, 0, 0.75, [4]int{1, 1, 1, 1})
	b.setCell(3, 0, 1, 0.95, [4]int{1, 1, 1, 1})
	raw := rawOutputs(b, tensors.Float32, false)
	box, _ := tensors.AsView[float32](raw[0])
	score, _ := tensors.AsView[float32](raw[1])
	scales := []Scale[float32]{NewScale(32, box, score, nil)}

	p := Params{NMSThreshold: 0.45, NumClasses: testClasses, MaxDetections: 128, InputWidth: 32, InputHeight: 32}
	prev := -1
	for _, conf := range []float32{0.9, 0.7, 0.5, 0.2} {
		p.ConfThreshold = conf
		list := Decode(scales, images.IdentityLetterbox(), p)
		assert.GreaterOrEqual(t, list.Count, prev, "conf %v", conf)
		prev = list.Count
	}
	assert.Equal(t, 4, prev)
}

// scoreRow builds a single-class 1xN branch holding the given stored
// scores, together with the float32 branch holding their real values.
func scoreRow[T quant.Integer](stored []T, zp int32, scale float32) (Scale[T], Scale[float32]) {
	n := len(stored)
	codec := quant.Affine[T]{ZeroPoint: zp, Scale: scale}
	real := make([]float32, n)
	for i, v := range stored {
		real[i] = codec.Value(v)
	}

	score, _ := tensors.NewView(stored, 1, 1, n, zp, scale)
	box, _ := tensors.NewView(make([]T, 4*n), 4, 1, n, 0, 1)
	realScore, _ := tensors.NewView(real, 1, 1, n, 0, 0)
	realBox, _ := tensors.NewView(make([]float32, 4*n), 4, 1, n, 0, 0)
	return NewScale(8, box, score, nil), NewScale(8, realBox, realScore, nil)
}

func floatRow(scores []float32) Scale[float32] {
	n := len(scores)
	score, _ := tensors.NewView(scores, 1, 1, n, 0, 0)
	box, _ := tensors.NewView(make([]float32, 4*n), 4, 1, n, 0, 0)
	return NewScale(8, box, score, nil)
}

func candidateCols(cands []postprocess.Candidate) []int {
	cols := make([]int, len(cands))
	for i, c := range cands {
		cols[i] = int(c.Box.X / 8)
	}
	return cols
}

func assertAboveThreshold(t *testing.T, cands []postprocess.Candidate, conf float32) {
	t.Helper()
	for _, c := range cands {
		assert.Greater(t, c.Score, conf)
	}
}

func TestScanThresholdBoundary(t *testing.T) {
	tests := []struct {
		name     string
		conf     float32
		scan     func(conf float32) (got, twin []postprocess.Candidate)
		wantCols []int
	}{
		{
			// 64/255 is just above 0.25, 63/255 just below.
			name: "uint8 step above and below",
			conf: 0.25,
			scan: func(conf float32) ([]postprocess.Candidate, []postprocess.Candidate) {
				q, f := scoreRow([]uint8{63, 64, 65, 0, 255}, 0, 1.0/255)
				return ScanScale(q, 1, conf, nil), ScanScale(f, 1, conf, nil)
			},
			wantCols: []int{1, 2, 4},
		},
		{
			// Stored 64 above the zero point is exactly 0.5 and must not pass.
			name: "uint8 exact threshold",
			conf: 0.5,
			scan: func(conf float32) ([]postprocess.Candidate, []postprocess.Candidate) {
				q, f := scoreRow([]uint8{191, 192, 193, 127}, 128, 1.0/128)
				return ScanScale(q, 1, conf, nil), ScanScale(f, 1, conf, nil)
			},
			wantCols: []int{2},
		},
		{
			name: "int8 step above and below",
			conf: 0.25,
			scan: func(conf float32) ([]postprocess.Candidate, []postprocess.Candidate) {
				q, f := scoreRow([]int8{-65, -64, -63, -128, 127}, -128, 1.0/256)
				return ScanScale(q, 1, conf, nil), ScanScale(f, 1, conf, nil)
			},
			wantCols: []int{2, 4},
		},
		{
			name: "float32 around threshold",
			conf: 0.25,
			scan: func(conf float32) ([]postprocess.Candidate, []postprocess.Candidate) {
				f := floatRow([]float32{0.2499, 0.25, 0.2501, 0.9})
				cands := ScanScale(f, 1, conf, nil)
				return cands, cands
			},
			wantCols: []int{2, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, twin := tt.scan(tt.conf)
			assert.Equal(t, tt.wantCols, candidateCols(got))
			assert.Equal(t, twin, got)
			assertAboveThreshold(t, got, tt.conf)
		})
	}
}

func TestScanThresholdSweepMatchesFloat(t *testing.T) {
	u8 := make([]uint8, 256)
	i8 := make([]int8, 256)
	for i := range u8 {
		u8[i] = uint8(i)
		i8[i] = int8(i - 128)
	}
	u8Scale, u8Real := scoreRow(u8, 0, 1.0/255)
	i8Scale, i8Real := scoreRow(i8, -128, 1.0/256)

	tests := []struct {
		name string
		scan func(conf float32) (got, twin []postprocess.Candidate)
	}{
		{"uint8", func(conf float32) ([]postprocess.Candidate, []postprocess.Candidate) {
			return ScanScale(u8Scale, 1, conf, nil), ScanScale(u8Real, 1, conf, nil)
		}},
		{"int8", func(conf float32) ([]postprocess.Candidate, []postprocess.Candidate) {
			return ScanScale(i8Scale, 1, conf, nil), ScanScale(i8Real, 1, conf, nil)
		}},
		{"float32", func(conf float32) ([]postprocess.Candidate, []postprocess.Candidate) {
			cands := ScanScale(u8Real, 1, conf, nil)
			return cands, cands
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := -1
			for _, conf := range []float32{0.9, 0.75, 0.5, 0.25, 0.1, 0} {
				got, twin := tt.scan(conf)
				assert.Equal(t, twin, got, "conf %v", conf)
				assertAboveThreshold(t, got, conf)
				assert.GreaterOrEqual(t, len(got), prev, "conf %v", conf)
				prev = len(got)
			}
		})
	}
}

func TestDecodeWithStats(t *testing.T) {
	b := newBranch(4, 4)
	// Two heavily overlapping class-0 boxes and one separate class-1 box.
	b.setCell(1, 1, 0, 0.9, [4]int{3, 3, 3, 3})
	b.setCell(1, 2, 0, 0.8, [4]int{3, 3, 3, 3})
	b.setCell(3, 3, 1, 0.7, [4]int{1, 1, 1, 1})
	raw := rawOutputs(b, tensors.Float32, false)
	box, _ := tensors.AsView[float32](raw[0])
	score, _ := tensors.AsView[float32](raw[1])
	scales := []Scale[float32]{NewScale(32, box, score, nil)}
	p := Params{ConfThreshold: 0.5, NMSThreshold: 0.45, NumClasses: testClasses, MaxDetections: 128, InputWidth: 32, InputHeight: 32}

	list, stats := DecodeWithStats(scales, images.IdentityLetterbox(), p)
	assert.Equal(t, Stats{Candidates: 3, Survivors: 2}, stats)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, list, Decode(scales, images.IdentityLetterbox(), p))
}

func TestParamsValidate(t *testing.T) {
	valid := Params{ConfThreshold: 0.25, NMSThreshold: 0.45, NumClasses: 80, MaxDetections: 128, InputWidth: 640, InputHeight: 640}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"conf above one", func(p *Params) { p.ConfThreshold = 1.5 }},
		{"negative nms", func(p *Params) { p.NMSThreshold = -0.1 }},
		{"no classes", func(p *Params) { p.NumClasses = 0 }},
		{"negative capacity", func(p *Params) { p.MaxDetections = -1 }},
		{"empty input", func(p *Params) { p.InputWidth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}

func TestScaleValidate(t *testing.T) {
	box, _ := tensors.NewView(make([]float32, 64*4), 64, 2, 2, 0, 0)
	score, _ := tensors.NewView(make([]float32, 2*4), 2, 2, 2, 0, 0)
	odd, _ := tensors.NewView(make([]float32, 6*4), 6, 2, 2, 0, 0)
	wide, _ := tensors.NewView(make([]float32, 2*6), 2, 2, 3, 0, 0)

	assert.NoError(t, NewScale(32, box, score, nil).Validate(2))
	assert.ErrorIs(t, NewScale(32, box, score, nil).Validate(3), ErrInvalidShape)
	assert.ErrorIs(t, NewScale(32, odd, score, nil).Validate(2), ErrInvalidShape)
	assert.ErrorIs(t, NewScale(32, box, wide, nil).Validate(2), ErrInvalidShape)
	assert.ErrorIs(t, NewScale(32, box, score, &wide).Validate(2), ErrInvalidShape)
	assert.ErrorIs(t, NewScale(1, box, score, nil).Validate(2), ErrInvalidShape)
}

func TestPostProcessSingleDetection(t *testing.T) {
	for _, tc := range []struct {
		precision model.Precision
		dtype     tensors.DType
	}{
		{model.PrecisionINT8, tensors.Int8Affine},
		{model.PrecisionUINT8, tensors.Uint8Affine},
		{model.PrecisionFP32, tensors.Float32},
	} {
		for _, withSum := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/sum=%v", tc.dtype, withSum), func(t *testing.T) {
				m, err := NewModel(testConfig(tc.precision))
				require.NoError(t, err)

				outputs := headOutputs(tc.dtype, withSum, func(b *branch) {
					b.setCell(2, 3, 0, 0.9, [4]int{1, 1, 1, 1})
				})
				list, err := m.PostProcess(outputs, images.IdentityLetterbox())
				require.NoError(t, err)
				require.Equal(t, 1, list.Count)

				d := list.Results[0]
				assert.Equal(t, 0, d.Class)
				assert.InDelta(t, 0.9, d.Score, 0.01)
				assert.InDelta(t, 20, d.Left, 1)
				assert.InDelta(t, 12, d.Top, 1)
				assert.InDelta(t, 36, d.Right, 1)
				assert.InDelta(t, 28, d.Bottom, 1)
			})
		}
	}
}

func TestPostProcessNoDetections(t *testing.T) {
	m, err := NewModel(testConfig(model.PrecisionINT8))
	require.NoError(t, err)

	outputs := headOutputs(tensors.Int8Affine, true, func(b *branch) {
		b.setCell(0, 0, 0, 0.4, [4]int{1, 1, 1, 1})
		b.setCell(3, 3, 1, 0.2, [4]int{1, 1, 1, 1})
	})
	list, err := m.PostProcess(outputs, images.IdentityLetterbox())
	require.NoError(t, err)
	assert.Equal(t, 0, list.Count)
	assert.Empty(t, list.Results)
}

func TestPostProcessLayoutErrors(t *testing.T) {
	m, err := NewModel(testConfig(model.PrecisionFP32))
	require.NoError(t, err)
	full := headOutputs(tensors.Float32, false, nil)

	_, err = m.PostProcess(nil, images.IdentityLetterbox())
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = m.PostProcess(full[:5], images.IdentityLetterbox())
	assert.ErrorIs(t, err, ErrInvalidShape)

	four := append(headOutputs(tensors.Float32, true, nil), headOutputs(tensors.Float32, true, nil)[:3]...)
	_, err = m.PostProcess(four, images.IdentityLetterbox())
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = m.PostProcess(headOutputs(tensors.Int8Affine, false, nil), images.IdentityLetterbox())
	assert.ErrorIs(t, err, tensors.ErrUnsupportedType)

	_, err = m.PostProcess(full, images.Letterbox{})
	assert.ErrorIs(t, err, images.ErrInvalidLetterbox)
}

func TestPostProcessConcurrent(t *testing.T) {
	m, err := NewModel(testConfig(model.PrecisionUINT8))
	require.NoError(t, err)
	outputs := headOutputs(tensors.Uint8Affine, true, func(b *branch) {
		b.setCell(1, 1, 0, 0.9, [4]int{1, 1, 1, 1})
		b.setCell(2, 2, 1, 0.8, [4]int{1, 1, 1, 1})
	})
	want, err := m.PostProcess(outputs, images.IdentityLetterbox())
	require.NoError(t, err)
	require.Equal(t, 2, want.Count)

	var wg sync.WaitGroup
	results := make([]postprocess.DetectionList, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.PostProcess(outputs, images.IdentityLetterbox())
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestNewModelRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(model.PrecisionINT8)
	cfg.NumClasses = 0
	_, err := NewModel(cfg)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}

func BenchmarkPostProcessInt8(b *testing.B) {
	cfg := model.DefaultConfig()
	cfg.NumClasses = testClasses
	m, err := NewModel(cfg)
	require.NoError(b, err)

	var outputs []tensors.Raw
	for _, grid := range []int{80, 40, 20} {
		br := newBranch(grid, grid)
		for i := 0; i < grid; i += 7 {
			br.setCell(i, i, i%testClasses, 0.6, [4]int{2, 2, 3, 3})
		}
		outputs = append(outputs, rawOutputs(br, tensors.Int8Affine, true)...)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.PostProcess(outputs, images.IdentityLetterbox()); err != nil {
			b.Fatal(err)
		}
	}
}
