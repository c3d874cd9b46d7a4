package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/leafsight/internal/inference"
	"github.com/ekisa-team/leafsight/internal/model"
	"github.com/ekisa-team/leafsight/internal/ranking"
	"github.com/ekisa-team/leafsight/internal/tensor"
	"github.com/ekisa-team/leafsight/internal/vision"
)

var labels = []string{
	"Tomato___Bacterial_spot",
	"Tomato___Early_blight",
	"Tomato___healthy",
}

type MockSession struct {
	mock.Mock
}

func (m *MockSession) InputShape() tensor.Shape {
	return tensor.ImageShape(8, 8)
}

func (m *MockSession) Predict(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	args := m.Called(in.Shape)
	scores, _ := args.Get(0).([]float32)
	return scores, args.Error(1)
}

func (m *MockSession) Close() error {
	return nil
}

type staticModels struct {
	handle *model.Handle
}

func (s staticModels) Current() (*model.Handle, error) {
	if s.handle == nil {
		return nil, model.ErrNotLoaded
	}
	return s.handle, nil
}

func newClassifier(t *testing.T, session *MockSession, settings Settings) *Classifier {
	t.Helper()

	h := &model.Handle{ID: "tomato", Session: session, Labels: labels}
	c, err := NewClassifier(staticModels{handle: h}, settings)
	require.NoError(t, err)
	return c
}

func leafPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: uint8(100 + x), B: 20, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	session := new(MockSession)
	session.On("Predict", tensor.ImageShape(8, 8)).Return([]float32{0.9, 0.05, 0.05}, nil).Once()

	c := newClassifier(t, session, Settings{
		HealthyMarker: "healthy",
		DisplayNames:  map[string]string{"Tomato___Bacterial_spot": "Bacterial spot"},
	})

	p, err := c.Classify(context.Background(), leafPNG(t), Options{})
	require.NoError(t, err)

	assert.Equal(t, "Tomato___Bacterial_spot", p.Label)
	assert.Equal(t, "Bacterial spot", p.Name)
	assert.Equal(t, "90.00%", p.Percent)
	assert.InDelta(t, 0.9, p.Confidence, 1e-6)
	assert.Equal(t, ranking.VerdictDiseased, p.Verdict)
	assert.False(t, p.Healthy())
	assert.Equal(t, "png", p.Format)
	assert.Equal(t, "tomato", p.ModelID)
	assert.NotEmpty(t, p.ID)

	require.Len(t, p.Ranked, 3)
	assert.Equal(t, "Tomato___Bacterial_spot", p.Ranked[0].Label)
	assert.Equal(t, "Tomato___Early_blight", p.Ranked[1].Label)
	assert.Equal(t, "Tomato___healthy", p.Ranked[2].Label)
	assert.Equal(t, "5.00%", p.Ranked[1].Percent)

	session.AssertExpectations(t)
}

func TestClassify_HealthyVerdict(t *testing.T) {
	session := new(MockSession)
	session.On("Predict", mock.Anything).Return([]float32{0.1, 0.2, 0.7}, nil).Once()

	c := newClassifier(t, session, Settings{HealthyMarker: "HEALTHY"})

	p, err := c.Classify(context.Background(), leafPNG(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, "Tomato___healthy", p.Label)
	assert.Equal(t, ranking.VerdictHealthy, p.Verdict)
	assert.True(t, p.Healthy())
}

func TestClassify_TextFileFailsBeforeInference(t *testing.T) {
	session := new(MockSession)
	c := newClassifier(t, session, Settings{})

	_, err := c.Classify(context.Background(), []byte("these are my notes about the garden\n"), Options{})
	assert.ErrorIs(t, err, vision.ErrDecode)

	session.AssertNotCalled(t, "Predict", mock.Anything)
}

func TestClassify_NoModel(t *testing.T) {
	c, err := NewClassifier(staticModels{}, Settings{})
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), leafPNG(t), Options{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, model.ErrNotLoaded)
}

func TestClassify_InferenceFailure(t *testing.T) {
	session := new(MockSession)
	session.On("Predict", mock.Anything).Return(nil, errors.New("session closed")).Once()

	c := newClassifier(t, session, Settings{})

	_, err := c.Classify(context.Background(), leafPNG(t), Options{})
	assert.ErrorIs(t, err, inference.ErrInference)
}

func TestClassify_TopKAndThreshold(t *testing.T) {
	session := new(MockSession)
	session.On("Predict", mock.Anything).Return([]float32{0.6, 0.3, 0.1}, nil)

	c := newClassifier(t, session, Settings{TopK: 2})

	p, err := c.Classify(context.Background(), leafPNG(t), Options{})
	require.NoError(t, err)
	assert.Len(t, p.Ranked, 2)

	p, err = c.Classify(context.Background(), leafPNG(t), Options{TopK: 1})
	require.NoError(t, err)
	assert.Len(t, p.Ranked, 1)

	p, err = c.Classify(context.Background(), leafPNG(t), Options{TopK: ranking.All})
	require.NoError(t, err)
	assert.Len(t, p.Ranked, 3)

	c.UpdateSettings(Settings{ConfidenceThreshold: 0.5})
	p, err = c.Classify(context.Background(), leafPNG(t), Options{})
	require.NoError(t, err)
	require.Len(t, p.Ranked, 1)
	assert.Equal(t, "Tomato___Bacterial_spot", p.Ranked[0].Label)
}

func TestResult(t *testing.T) {
	session := new(MockSession)
	session.On("Predict", mock.Anything).Return([]float32{0.2, 0.5, 0.3}, nil)

	c := newClassifier(t, session, Settings{RecentResults: 1})

	first, err := c.Classify(context.Background(), leafPNG(t), Options{})
	require.NoError(t, err)

	got, err := c.Result(first.ID)
	require.NoError(t, err)
	assert.Same(t, first, got)

	second, err := c.Classify(context.Background(), leafPNG(t), Options{})
	require.NoError(t, err)

	// Capacity one: the first result was evicted.
	_, err = c.Result(first.ID)
	assert.ErrorIs(t, err, ErrResultNotFound)

	got, err = c.Result(second.ID)
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestWriteTable(t *testing.T) {
	session := new(MockSession)
	session.On("Predict", mock.Anything).Return([]float32{0.9, 0.05, 0.05}, nil)

	c := newClassifier(t, session, Settings{
		DisplayNames: map[string]string{"Tomato___Bacterial_spot": "Bacterial spot"},
	})

	p, err := c.Classify(context.Background(), leafPNG(t), Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.WriteTable(&buf, p))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "Bacterial spot")
	assert.Contains(t, lines[1], "90.00%")
}
