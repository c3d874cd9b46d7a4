package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	// DefaultModelID names the bundled tomato leaf classifier.
	DefaultModelID = "tomato-leaf-disease"

	// DefaultModelFile is the artifact file name inside the model directory.
	DefaultModelFile = "model.onnx"

	// DefaultBackend is the inference backend used when none is configured.
	DefaultBackend = "onnxruntime"

	// DefaultHealthyMarker marks the healthy class by label substring.
	DefaultHealthyMarker = "healthy"

	// DefaultInputSize is the square input size of the classifier.
	DefaultInputSize = 256

	// DefaultDownloadTimeout bounds a single download attempt.
	DefaultDownloadTimeout = 10 * time.Minute

	// DefaultMaxDownloadMB caps the model artifact size.
	DefaultMaxDownloadMB = 1024

	// DefaultMaxUploadMB caps uploaded image size.
	DefaultMaxUploadMB = 10

	// DefaultRecentResults is the size of the recent prediction cache.
	DefaultRecentResults = 128

	defaultHTTPPort = 8080
	defaultGRPCPort = 9090
)

// DefaultLabels returns the ten tomato leaf classes in model output order.
func DefaultLabels() []string {
	return []string{
		"Bacterial_spot",
		"Early_blight",
		"Late_blight",
		"Leaf_Mold",
		"Septoria_leaf_spot",
		"Spider_mites Two-spotted_spider_mite",
		"Target_Spot",
		"Tomato_Yellow_Leaf_Curl_Virus",
		"Tomato_healthy",
		"Tomato_mosaic_virus",
	}
}

// DefaultDisplayNames maps the default labels to readable names.
func DefaultDisplayNames() map[string]string {
	return map[string]string{
		"Bacterial_spot":                       "Bacterial Spot",
		"Early_blight":                         "Early Blight",
		"Late_blight":                          "Late Blight",
		"Leaf_Mold":                            "Leaf Mold",
		"Septoria_leaf_spot":                   "Septoria Leaf Spot",
		"Spider_mites Two-spotted_spider_mite": "Spider Mites",
		"Target_Spot":                          "Target Spot",
		"Tomato_Yellow_Leaf_Curl_Virus":        "Yellow Leaf Curl Virus",
		"Tomato_healthy":                       "Healthy",
		"Tomato_mosaic_virus":                  "Mosaic Virus",
	}
}

// Default returns a configuration that only lacks a model source or path.
func Default() *Config {
	return &Config{
		Version: "1",
		Model: ModelConfig{
			ID:            DefaultModelID,
			Backend:       DefaultBackend,
			File:          DefaultModelFile,
			HealthyMarker: DefaultHealthyMarker,
			Labels:        DefaultLabels(),
			DisplayNames:  DefaultDisplayNames(),
			Input: InputConfig{
				Height: DefaultInputSize,
				Width:  DefaultInputSize,
			},
		},
		Presentation: PresentationConfig{
			RecentResults: DefaultRecentResults,
		},
		Server: ServerConfig{
			HTTPPort:    defaultHTTPPort,
			GRPCPort:    defaultGRPCPort,
			MaxUploadMB: DefaultMaxUploadMB,
		},
	}
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Model.ID == "" {
		c.Model.ID = d.Model.ID
	}
	if c.Model.Backend == "" {
		c.Model.Backend = d.Model.Backend
	}
	if c.Model.File == "" {
		c.Model.File = d.Model.File
	}
	if c.Model.HealthyMarker == "" {
		c.Model.HealthyMarker = d.Model.HealthyMarker
	}
	if len(c.Model.Labels) == 0 {
		c.Model.Labels = d.Model.Labels
		if c.Model.DisplayNames == nil {
			c.Model.DisplayNames = d.Model.DisplayNames
		}
	}
	if c.Model.Input.Height == 0 {
		c.Model.Input.Height = d.Model.Input.Height
	}
	if c.Model.Input.Width == 0 {
		c.Model.Input.Width = d.Model.Input.Width
	}
	if c.Presentation.RecentResults == 0 {
		c.Presentation.RecentResults = d.Presentation.RecentResults
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = d.Server.HTTPPort
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = d.Server.GRPCPort
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = d.Server.MaxUploadMB
	}
}

// Timeout parses DownloadTimeout, falling back to the default.
func (s StorageConfig) Timeout() time.Duration {
	if d, err := time.ParseDuration(s.DownloadTimeout); err == nil && d > 0 {
		return d
	}
	return DefaultDownloadTimeout
}

// MaxDownloadBytes returns the artifact size limit in bytes.
func (s StorageConfig) MaxDownloadBytes() int64 {
	mb := s.MaxDownloadMB
	if mb <= 0 {
		mb = DefaultMaxDownloadMB
	}
	return mb << 20
}

// DefaultConfigPath returns the default path for leafsight config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "leafsight", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "leafsight")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "leafsight")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "leafsight")
		}
		return filepath.Join(home, ".config", "leafsight")
	}
}

// DefaultModelsPath returns the default path for leafsight models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "leafsight", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "leafsight", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "leafsight", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "leafsight", "models")
		}
		return filepath.Join(home, ".cache", "leafsight", "models")
	}
}
