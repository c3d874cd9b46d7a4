package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/leafsight/internal/inference"
	"github.com/ekisa-team/leafsight/internal/service"
	"github.com/ekisa-team/leafsight/internal/vision"
)

// ImageField is the multipart field carrying the uploaded leaf photo.
const ImageField = "image"

type (
	ClassifyInput struct {
		TopK    int `query:"top_k" minimum:"-1" doc:"Number of ranked classes to return, -1 for all, 0 for the configured default"`
		RawBody multipart.Form
	}

	ClassifyOutput struct {
		Body *service.Prediction
	}

	ResultInput struct {
		ID string `path:"id" doc:"Prediction ID returned by /classify"`
	}

	ResultOutput struct {
		Body *service.Prediction
	}
)

type (
	HealthOutput struct {
		Body struct {
			LoadedAt time.Time `json:"loaded_at"`
			Status   string    `json:"status"`
			Model    string    `json:"model"`
			Backend  string    `json:"backend"`
		}
	}

	LabelDTO struct {
		Label string `json:"label"`
		Name  string `json:"name"`
	}

	LabelsOutput struct {
		Body struct {
			Model  string     `json:"model"`
			Labels []LabelDTO `json:"labels"`
			Height int        `json:"height"`
			Width  int        `json:"width"`
		}
	}
)

// ClassifierHandler handles HTTP requests for leaf classification.
type ClassifierHandler struct {
	service        *service.Classifier
	maxUploadBytes int64
}

// NewClassifierHandler registers the classifier operations on api.
func NewClassifierHandler(api huma.API, service *service.Classifier, maxUploadBytes int64) *ClassifierHandler {
	h := &ClassifierHandler{service: service, maxUploadBytes: maxUploadBytes}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Report whether a model is loaded",
		Tags:        []string{"health"},
	}, h.handleHealth)

	huma.Register(api, huma.Operation{
		OperationID: "list-labels",
		Method:      http.MethodGet,
		Path:        "/labels",
		Summary:     "List the classes the model predicts",
		Tags:        []string{"classifier"},
	}, h.handleLabels)

	huma.Register(api, huma.Operation{
		OperationID:   "classify",
		Method:        http.MethodPost,
		Path:          "/classify",
		Summary:       "Classify a tomato leaf photo",
		Tags:          []string{"classifier"},
		DefaultStatus: http.StatusOK,
		MaxBodyBytes:  bodyLimit(maxUploadBytes),
	}, h.handleClassify)

	huma.Register(api, huma.Operation{
		OperationID: "get-result",
		Method:      http.MethodGet,
		Path:        "/results/{id}",
		Summary:     "Fetch a recent prediction",
		Tags:        []string{"classifier"},
	}, h.handleResult)

	return h
}

// handleHealth handles the health operation.
func (h *ClassifierHandler) handleHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	m, err := h.service.Model()
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("model not loaded", err)
	}

	out := &HealthOutput{}
	out.Body.Status = "ok"
	out.Body.Model = m.ID
	out.Body.Backend = string(m.Backend)
	out.Body.LoadedAt = m.LoadedAt
	return out, nil
}

// handleLabels handles the list-labels operation.
func (h *ClassifierHandler) handleLabels(ctx context.Context, _ *struct{}) (*LabelsOutput, error) {
	m, err := h.service.Model()
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("model not loaded", err)
	}

	settings := h.service.Settings()
	shape := m.InputShape()

	out := &LabelsOutput{}
	out.Body.Model = m.ID
	out.Body.Height = shape.Height()
	out.Body.Width = shape.Width()
	out.Body.Labels = make([]LabelDTO, len(m.Labels))
	for i, label := range m.Labels {
		out.Body.Labels[i] = LabelDTO{Label: label, Name: settings.DisplayName(label)}
	}
	return out, nil
}

// handleClassify handles the classify operation.
func (h *ClassifierHandler) handleClassify(ctx context.Context, input *ClassifyInput) (*ClassifyOutput, error) {
	files := input.RawBody.File[ImageField]
	if len(files) == 0 {
		return nil, huma.Error400BadRequest(fmt.Sprintf("missing %q file field", ImageField))
	}

	data, err := readUpload(files[0], h.maxUploadBytes)
	if err != nil {
		return nil, huma.Error400BadRequest("failed to read upload", err)
	}

	p, err := h.service.Classify(ctx, data, service.Options{TopK: input.TopK})
	if err != nil {
		return nil, classifyError(err)
	}

	return &ClassifyOutput{Body: p}, nil
}

// handleResult handles the get-result operation.
func (h *ClassifierHandler) handleResult(ctx context.Context, input *ResultInput) (*ResultOutput, error) {
	p, err := h.service.Result(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("result not found", err)
	}
	return &ResultOutput{Body: p}, nil
}

// bodyLimit leaves room for the multipart envelope around the image.
func bodyLimit(maxUploadBytes int64) int64 {
	if maxUploadBytes <= 0 {
		return -1
	}
	return maxUploadBytes + 64<<10
}

func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if limit <= 0 {
		return io.ReadAll(f)
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("upload exceeds %d bytes", limit)
	}
	return data, nil
}

// classifyError maps pipeline failures to HTTP statuses.
func classifyError(err error) error {
	switch {
	case errors.Is(err, vision.ErrDecode), errors.Is(err, vision.ErrPreprocess):
		return huma.Error422UnprocessableEntity("image could not be processed", err)
	case errors.Is(err, service.ErrUnavailable):
		return huma.Error503ServiceUnavailable("model not loaded", err)
	case errors.Is(err, inference.ErrShapeMismatch), errors.Is(err, inference.ErrInference):
		return huma.Error500InternalServerError("inference failed", err)
	default:
		return huma.Error500InternalServerError("failed to classify", err)
	}
}
