package core

import (
	"bytes"
	"encoding/csv"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// heartLabelColumn is an optional ground-truth column in uploaded risk
// factor CSVs. It is dropped before prediction.
const heartLabelColumn = "HadHeartAttack"

// Preprocessor converts validated raw inputs into the fixed tensor
// shape each model expects. All transformations are pure and
// deterministic: identical input bytes always yield an identical
// tensor. Companion transforms fitted at training time (scaler, PCA)
// are applied by the model backends from their artifacts, never here.
type Preprocessor struct {
	shapes   ShapeConfig
	features []string
}

func NewPreprocessor(cfg Config) *Preprocessor {
	return &Preprocessor{shapes: cfg.Shapes, features: cfg.HeartFeatures}
}

func (p *Preprocessor) Preprocess(input ModalityInput) (Tensor, error) {
	if err := input.Validate(); err != nil {
		return Tensor{}, err
	}

	switch input.Modality {
	case ModalityECG:
		if input.Image != nil {
			return p.ecgImage(input.Image)
		}
		return p.ecgSeries(input.Series)
	case ModalityHeart:
		return p.heartFeatures(input.Fields)
	case ModalityPPG:
		return p.ppgSeries(input.Series)
	}
	return Tensor{}, NewFormatError("unknown modality %q", input.Modality)
}

// ecgImage decodes the uploaded image and resizes it uniformly to the
// configured square resolution with bilinear interpolation. Images are
// never cropped: cropping could discard pathology-bearing regions of
// the waveform. Pixels are scaled to [0, 1] RGB.
func (p *Preprocessor) ecgImage(data []byte) (Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Tensor{}, NewFormatError("cannot decode image: %v", err)
	}

	size := p.shapes.ECGImageSize
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([]float32, size*size*3)
	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px := dst.RGBAAt(x, y)
			out[i] = float32(px.R) / 255
			out[i+1] = float32(px.G) / 255
			out[i+2] = float32(px.B) / 255
			i += 3
		}
	}

	return Tensor{Modality: ModalityECG, Shape: []int{size, size, 3}, Data: out}, nil
}

// ecgSeries resamples the signal to the configured length and z-score
// normalizes it, matching the normalization the classifier was trained
// with.
func (p *Preprocessor) ecgSeries(series []float64) (Tensor, error) {
	resampled := resample(series, p.shapes.ECGSeriesLen)

	var mean float64
	for _, v := range resampled {
		mean += v
	}
	mean /= float64(len(resampled))

	var variance float64
	for _, v := range resampled {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(resampled)))

	out := make([]float32, len(resampled))
	for i, v := range resampled {
		out[i] = float32((v - mean) / (std + 1e-8))
	}

	return Tensor{Modality: ModalityECG, Shape: []int{p.shapes.ECGSeriesLen}, Data: out}, nil
}

// heartFeatures validates the named fields against the training schema
// and emits them in schema order. The trained scaler is applied by the
// heart model backend from its artifact.
func (p *Preprocessor) heartFeatures(fields map[string]float64) (Tensor, error) {
	if len(fields) != len(p.features) {
		return Tensor{}, NewShapeError(ModalityHeart, "expected %d feature columns, got %d",
			len(p.features), len(fields))
	}

	out := make([]float32, len(p.features))
	for i, name := range p.features {
		v, ok := fields[name]
		if !ok {
			return Tensor{}, NewShapeError(ModalityHeart, "missing feature column %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Tensor{}, NewFormatError("feature %q is not a finite number", name)
		}
		out[i] = float32(v)
	}

	return Tensor{Modality: ModalityHeart, Shape: []int{len(p.features)}, Data: out}, nil
}

// ppgSeries resamples the signal to the PCA transform's expected input
// length. The transform itself lives with the model artifact.
func (p *Preprocessor) ppgSeries(series []float64) (Tensor, error) {
	resampled := resample(series, p.shapes.PPGSeriesLen)

	out := make([]float32, len(resampled))
	for i, v := range resampled {
		out[i] = float32(v)
	}

	return Tensor{Modality: ModalityPPG, Shape: []int{p.shapes.PPGSeriesLen}, Data: out}, nil
}

// resample stretches or decimates src to exactly n samples using
// linear interpolation over the original index range.
func resample(src []float64, n int) []float64 {
	out := make([]float64, n)
	if len(src) == 1 {
		for i := range out {
			out[i] = src[0]
		}
		return out
	}
	if len(src) == n {
		copy(out, src)
		return out
	}
	if n == 1 {
		out[0] = src[0]
		return out
	}

	step := float64(len(src)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= len(src)-1 {
			out[i] = src[len(src)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = src[lo]*(1-frac) + src[lo+1]*frac
	}
	return out
}

// DecodeSeriesCSV parses an uploaded single-signal CSV into an ordered
// sample sequence. The first column is used; a leading non-numeric row
// is treated as a header.
func DecodeSeriesCSV(data []byte) ([]float64, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, NewFormatError("cannot parse csv: %v", err)
	}
	if len(records) == 0 {
		return nil, NewFormatError("csv contains no rows")
	}

	start := 0
	if _, err := parseCell(records[0][0]); err != nil {
		start = 1
	}

	series := make([]float64, 0, len(records)-start)
	for _, record := range records[start:] {
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		v, err := parseCell(record[0])
		if err != nil {
			return nil, NewFormatError("non-numeric cell %q", record[0])
		}
		series = append(series, v)
	}
	if len(series) == 0 {
		return nil, NewFormatError("csv contains no numeric samples")
	}
	return series, nil
}

// DecodeHeartCSV parses an uploaded risk factor CSV into named numeric
// fields. The header row names the columns; the first data row is
// used. An optional ground-truth label column is dropped.
func DecodeHeartCSV(data []byte) (map[string]float64, error) {
	reader := csv.NewReader(bytes.NewReader(data))

	records, err := reader.ReadAll()
	if err != nil {
		return nil, NewFormatError("cannot parse csv: %v", err)
	}
	if len(records) < 2 {
		return nil, NewFormatError("csv needs a header row and at least one data row")
	}

	header, row := records[0], records[1]
	if len(row) != len(header) {
		return nil, NewFormatError("data row has %d cells, header has %d", len(row), len(header))
	}
	fields := make(map[string]float64, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == heartLabelColumn {
			continue
		}
		v, err := parseCell(row[i])
		if err != nil {
			return nil, NewFormatError("non-numeric cell %q in column %q", row[i], name)
		}
		fields[name] = v
	}
	return fields, nil
}

func parseCell(cell string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(cell), 64)
}

// InputFromUpload builds a ModalityInput from raw uploaded bytes,
// dispatching on the file extension the way the upload intake presents
// them: png/jpeg for waveform images, csv otherwise.
func InputFromUpload(modality Modality, fileName string, data []byte) (ModalityInput, error) {
	if len(data) == 0 {
		return ModalityInput{}, NewFormatError("empty upload %q", fileName)
	}

	input := ModalityInput{Modality: modality, FileName: fileName}
	lower := strings.ToLower(fileName)
	isImage := strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg")

	switch modality {
	case ModalityECG:
		if isImage {
			if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
				return ModalityInput{}, NewFormatError("cannot decode image: %v", err)
			}
			input.Image = data
			return input, nil
		}
		series, err := DecodeSeriesCSV(data)
		if err != nil {
			return ModalityInput{}, err
		}
		input.Series = series
	case ModalityHeart:
		fields, err := DecodeHeartCSV(data)
		if err != nil {
			return ModalityInput{}, err
		}
		input.Fields = fields
	case ModalityPPG:
		series, err := DecodeSeriesCSV(data)
		if err != nil {
			return ModalityInput{}, err
		}
		input.Series = series
	default:
		return ModalityInput{}, NewFormatError("unknown modality %q", modality)
	}
	return input, nil
}
