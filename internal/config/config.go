package config

import (
	"errors"
	"path/filepath"
	"strings"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeURL represents a direct HTTP(S) download.
	SourceTypeURL SourceType = "url"

	// SourceTypeGoogleDrive represents a Google Drive shared file.
	SourceTypeGoogleDrive SourceType = "google_drive"

	// SourceTypeHuggingFace represents a file in a Hugging Face model repository.
	SourceTypeHuggingFace SourceType = "huggingface"
)

// Config holds the main configuration for the application.
type Config struct {
	Version      string             `json:"version"                yaml:"version"`
	Storage      StorageConfig      `json:"storage,omitempty"      yaml:"storage,omitempty"`
	Model        ModelConfig        `json:"model"                  yaml:"model"`
	Presentation PresentationConfig `json:"presentation,omitempty" yaml:"presentation,omitempty"`
	Server       ServerConfig       `json:"server,omitempty"       yaml:"server,omitempty"`
}

// StorageConfig holds configuration for caching and auto-download.
type StorageConfig struct {
	ModelsDir       string `json:"models_dir,omitempty"       yaml:"models_dir,omitempty"`
	DownloadTimeout string `json:"download_timeout,omitempty" yaml:"download_timeout,omitempty"`
	MaxDownloadMB   int64  `json:"max_download_mb,omitempty"  yaml:"max_download_mb,omitempty"`
}

// ModelConfig holds configuration for the classifier.
type ModelConfig struct {
	Source        SourceConfig      `json:"source"                   yaml:"source"`
	DisplayNames  map[string]string `json:"display_names,omitempty"  yaml:"display_names,omitempty"`
	Runtime       RuntimeConfig     `json:"runtime,omitempty"        yaml:"runtime,omitempty"`
	ID            string            `json:"id"                       yaml:"id"`
	Backend       string            `json:"backend"                  yaml:"backend"`
	File          string            `json:"file,omitempty"           yaml:"file,omitempty"`
	Path          string            `json:"path,omitempty"           yaml:"path,omitempty"`
	HealthyMarker string            `json:"healthy_marker,omitempty" yaml:"healthy_marker,omitempty"`
	Resample      string            `json:"resample,omitempty"       yaml:"resample,omitempty"`
	Labels        []string          `json:"labels"                   yaml:"labels"`
	Input         InputConfig       `json:"input"                    yaml:"input"`
}

// InputConfig is the declared input size of the classifier.
type InputConfig struct {
	Height int `json:"height" yaml:"height"`
	Width  int `json:"width"  yaml:"width"`
}

// RuntimeConfig holds backend-specific settings.
type RuntimeConfig struct {
	// LibraryPath is the onnxruntime shared library (onnxruntime backend).
	LibraryPath string `json:"library_path,omitempty" yaml:"library_path,omitempty"`

	// Command is the classifier program and its leading arguments (command backend).
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	// Timeout bounds a single command invocation, as a Go duration string.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Threads caps intra-op parallelism of the onnxruntime backend. Zero lets the runtime decide.
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty"`
}

// Parameters returns the runtime settings as backend load parameters.
func (r RuntimeConfig) Parameters() map[string]any {
	params := map[string]any{}
	if r.Threads > 0 {
		params["threads"] = r.Threads
	}
	if r.Timeout != "" {
		params["timeout"] = r.Timeout
	}
	return params
}

// PresentationConfig controls how ranked results are returned.
type PresentationConfig struct {
	// TopK limits the ranked table. Zero keeps every class.
	TopK int `json:"top_k,omitempty" yaml:"top_k,omitempty"`

	// ConfidenceThreshold hides table rows below this score. The top class is always shown.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty"`

	// RecentResults is the number of predictions kept for lookup by ID.
	RecentResults int `json:"recent_results,omitempty" yaml:"recent_results,omitempty"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	HTTPPort    int   `json:"http_port,omitempty"     yaml:"http_port,omitempty"`
	GRPCPort    int   `json:"grpc_port,omitempty"     yaml:"grpc_port,omitempty"`
	MaxUploadMB int64 `json:"max_upload_mb,omitempty" yaml:"max_upload_mb,omitempty"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	URL         *URLSource         `json:"url,omitempty"          yaml:"url,omitempty"`
	GoogleDrive *GoogleDriveSource `json:"google_drive,omitempty" yaml:"google_drive,omitempty"`
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty"  yaml:"huggingface,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
	// String describes the source without credentials.
	String() string
}

// URLSource is a direct download link.
type URLSource struct {
	URL    string `json:"url"              yaml:"url"`
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// Type returns the URL source type.
func (u URLSource) Type() SourceType {
	return SourceTypeURL
}

func (u URLSource) String() string {
	return redactURL(u.URL)
}

// GoogleDriveSource is a file shared from Google Drive. Either FileID or Link must be set.
type GoogleDriveSource struct {
	FileID string `json:"file_id,omitempty" yaml:"file_id,omitempty"`
	Link   string `json:"link,omitempty"    yaml:"link,omitempty"`
	SHA256 string `json:"sha256,omitempty"  yaml:"sha256,omitempty"`
}

// Type returns the Google Drive source type.
func (g GoogleDriveSource) Type() SourceType {
	return SourceTypeGoogleDrive
}

func (g GoogleDriveSource) String() string {
	if g.FileID != "" {
		return "gdrive:" + g.FileID
	}
	return "gdrive:" + redactURL(g.Link)
}

// HuggingFaceSource represents a single file in a Hugging Face model repository.
type HuggingFaceSource struct {
	Repo     string `json:"repo"               yaml:"repo"`
	Filename string `json:"filename"           yaml:"filename"`
	Revision string `json:"revision,omitempty" yaml:"revision,omitempty"`
	Token    string `json:"token,omitempty"    yaml:"token,omitempty"`
	SHA256   string `json:"sha256,omitempty"   yaml:"sha256,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

func (h HuggingFaceSource) String() string {
	rev := h.Revision
	if rev == "" {
		rev = "main"
	}
	return "hf:" + h.Repo + "@" + rev + "/" + h.Filename
}

// GetSource returns the active source for the model.
func (m *ModelConfig) GetSource() (ModelSource, error) {
	switch {
	case m.Source.URL != nil:
		return *m.Source.URL, nil
	case m.Source.GoogleDrive != nil:
		return *m.Source.GoogleDrive, nil
	case m.Source.HuggingFace != nil:
		return *m.Source.HuggingFace, nil
	}

	return nil, errors.New("no source configured for model")
}

// SetURLSource replaces the configured source with a direct URL.
func (m *ModelConfig) SetURLSource(source URLSource) {
	m.Source = SourceConfig{URL: &source}
}

// ArtifactPath returns where the model file lives on disk.
// An explicit Path wins; otherwise the file sits in <modelsDir>/<id>/<file>.
func (m *ModelConfig) ArtifactPath(modelsDir string) string {
	if m.Path != "" {
		return filepath.Clean(m.Path)
	}

	file := m.File
	if file == "" {
		file = DefaultModelFile
	}
	return filepath.Join(modelsDir, m.ID, file)
}

// redactURL strips the query string so tokens never reach logs.
func redactURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
