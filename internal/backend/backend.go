package backend

import (
	"context"

	"github.com/ekisa-team/leafsight/internal/tensor"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	BackendProviderONNXRuntime BackendProvider = "onnxruntime"
	BackendProviderCommand     BackendProvider = "command"
)

// Backend defines the core interface for all inference backends.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Load opens a model artifact for inference only. Training state stored
	// in the artifact is ignored.
	Load(ctx context.Context, req *LoadRequest) (Session, error)

	// Close cleans up resources.
	Close() error
}

// Session is a loaded classifier. Implementations must allow concurrent Predict calls.
type Session interface {
	// InputShape is the [1, H, W, 3] shape the classifier accepts.
	InputShape() tensor.Shape

	// Predict returns one score per class for a single image tensor.
	Predict(ctx context.Context, in *tensor.Tensor) ([]float32, error)

	// Close releases the session.
	Close() error
}

// LoadRequest encapsulates the parameters needed to open a classifier.
type LoadRequest struct {
	// Parameters contains backend-specific settings.
	Parameters map[string]any

	// ModelPath is the path to the model file.
	ModelPath string

	// Input is the declared input shape. Backends that can read the shape
	// from the artifact use it to fill dynamic dimensions.
	Input tensor.Shape

	// Classes is the number of labels the output must cover.
	Classes int
}
