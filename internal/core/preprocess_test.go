package core

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preprocessTestConfig() Config {
	return Config{
		Shapes: ShapeConfig{
			ECGImageSize: 8,
			ECGSeriesLen: 5,
			PPGSeriesLen: 4,
		},
		HeartFeatures: []string{"Sex", "BMI", "SleepHours"},
	}
}

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPreprocessEcgImagePng(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(20, 12, color.RGBA{R: 255, A: 255})))

	tensor, err := pre.Preprocess(ModalityInput{Modality: ModalityECG, Image: buf.Bytes()})
	require.NoError(t, err)

	assert.Equal(t, []int{8, 8, 3}, tensor.Shape)
	require.Len(t, tensor.Data, 8*8*3)
	// Solid red resizes to solid red regardless of aspect ratio.
	for i := 0; i < len(tensor.Data); i += 3 {
		assert.InDelta(t, 1.0, tensor.Data[i], 1e-6)
		assert.InDelta(t, 0.0, tensor.Data[i+1], 1e-6)
		assert.InDelta(t, 0.0, tensor.Data[i+2], 1e-6)
	}
}

func TestPreprocessEcgImageJpeg(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(16, 16, color.RGBA{R: 10, G: 200, B: 30, A: 255}), nil))

	tensor, err := pre.Preprocess(ModalityInput{Modality: ModalityECG, Image: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, []int{8, 8, 3}, tensor.Shape)
}

func TestPreprocessEcgImageDeterministic(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(30, 10, color.RGBA{R: 80, G: 90, B: 100, A: 255})))
	input := ModalityInput{Modality: ModalityECG, Image: buf.Bytes()}

	first, err := pre.Preprocess(input)
	require.NoError(t, err)
	second, err := pre.Preprocess(input)
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
}

func TestPreprocessEcgImageGarbageBytes(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	_, err := pre.Preprocess(ModalityInput{Modality: ModalityECG, Image: []byte("not an image")})

	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestPreprocessEcgSeriesNormalization(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	tensor, err := pre.Preprocess(ModalityInput{
		Modality: ModalityECG,
		Series:   []float64{1, 2, 3, 4, 5},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{5}, tensor.Shape)
	// z-score of 1..5: mean 3, std sqrt(2)
	assert.InDelta(t, -1.4142, tensor.Data[0], 1e-3)
	assert.InDelta(t, 0.0, tensor.Data[2], 1e-3)
	assert.InDelta(t, 1.4142, tensor.Data[4], 1e-3)
}

func TestPreprocessHeartFieldsInSchemaOrder(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	tensor, err := pre.Preprocess(ModalityInput{
		Modality: ModalityHeart,
		Fields:   map[string]float64{"BMI": 27.4, "Sex": 1, "SleepHours": 7},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3}, tensor.Shape)
	assert.Equal(t, []float32{1, 27.4, 7}, tensor.Data)
}

func TestPreprocessHeartMissingColumn(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	_, err := pre.Preprocess(ModalityInput{
		Modality: ModalityHeart,
		Fields:   map[string]float64{"BMI": 27.4, "Sex": 1, "Weight": 80},
	})

	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, ModalityHeart, shapeErr.Modality)
}

func TestPreprocessHeartWrongColumnCount(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	_, err := pre.Preprocess(ModalityInput{
		Modality: ModalityHeart,
		Fields:   map[string]float64{"BMI": 27.4},
	})

	var shapeErr *ShapeError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestPreprocessPpgResample(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	tensor, err := pre.Preprocess(ModalityInput{
		Modality: ModalityPPG,
		Series:   []float64{0, 3, 6},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{4}, tensor.Shape)
	assert.InDelta(t, 0, tensor.Data[0], 1e-6)
	assert.InDelta(t, 2, tensor.Data[1], 1e-6)
	assert.InDelta(t, 4, tensor.Data[2], 1e-6)
	assert.InDelta(t, 6, tensor.Data[3], 1e-6)
}

func TestPreprocessEmptyInput(t *testing.T) {
	pre := NewPreprocessor(preprocessTestConfig())

	_, err := pre.Preprocess(ModalityInput{Modality: ModalityPPG})

	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestResample(t *testing.T) {
	assert.Equal(t, []float64{1, 1, 1}, resample([]float64{1}, 3))
	assert.Equal(t, []float64{1, 2, 3}, resample([]float64{1, 2, 3}, 3))

	up := resample([]float64{0, 10}, 5)
	assert.InDelta(t, 2.5, up[1], 1e-9)
	assert.InDelta(t, 5.0, up[2], 1e-9)
	assert.InDelta(t, 7.5, up[3], 1e-9)

	down := resample([]float64{0, 1, 2, 3, 4, 5, 6}, 4)
	assert.InDelta(t, 0, down[0], 1e-9)
	assert.InDelta(t, 2, down[1], 1e-9)
	assert.InDelta(t, 4, down[2], 1e-9)
	assert.InDelta(t, 6, down[3], 1e-9)

	assert.Equal(t, []float64{3}, resample([]float64{3, 7, 9}, 1))
}

func TestDecodeSeriesCSV(t *testing.T) {
	series, err := DecodeSeriesCSV([]byte("signal\n0.1\n0.2\n0.3\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, series)

	series, err = DecodeSeriesCSV([]byte("1.5\n2.5\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, series)

	_, err = DecodeSeriesCSV([]byte("signal\nabc\n"))
	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)

	_, err = DecodeSeriesCSV([]byte(""))
	assert.ErrorAs(t, err, &formatErr)
}

func TestDecodeHeartCSV(t *testing.T) {
	fields, err := DecodeHeartCSV([]byte("Sex,BMI\n1,27.4\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Sex": 1, "BMI": 27.4}, fields)
}

func TestDecodeHeartCSVDropsLabelColumn(t *testing.T) {
	fields, err := DecodeHeartCSV([]byte("Sex,HadHeartAttack,BMI\n1,1,27.4\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Sex": 1, "BMI": 27.4}, fields)
}

func TestDecodeHeartCSVRowLengthMismatch(t *testing.T) {
	_, err := DecodeHeartCSV([]byte("Sex;BMI\n1;27.4\n"))

	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)

	_, err = DecodeHeartCSV([]byte("Sex,BMI\n1\n"))
	assert.ErrorAs(t, err, &formatErr)
}

func TestDecodeHeartCSVMissingDataRow(t *testing.T) {
	_, err := DecodeHeartCSV([]byte("Sex,BMI\n"))

	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestInputFromUpload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(4, 4, color.RGBA{A: 255})))

	input, err := InputFromUpload(ModalityECG, "trace.png", buf.Bytes())
	require.NoError(t, err)
	assert.NotNil(t, input.Image)
	assert.Nil(t, input.Series)

	input, err = InputFromUpload(ModalityECG, "trace.csv", []byte("0.1\n0.2\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, input.Series)

	input, err = InputFromUpload(ModalityHeart, "patient.csv", []byte("Sex,BMI\n1,27.4\n"))
	require.NoError(t, err)
	assert.Len(t, input.Fields, 2)

	_, err = InputFromUpload(ModalityPPG, "empty.csv", nil)
	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestInputFromUploadRejectsUndecodableImage(t *testing.T) {
	_, err := InputFromUpload(ModalityECG, "trace.png", []byte("not an image"))
	var formatErr *FormatError
	assert.ErrorAs(t, err, &formatErr)

	_, err = InputFromUpload(ModalityECG, "trace.jpg", []byte{0x89, 0x50, 0x4e})
	assert.ErrorAs(t, err, &formatErr)
}
