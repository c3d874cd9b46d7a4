package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/leafsight/internal/envvar"
)

const minimalYAML = `
version: "1"
model:
  source:
    google_drive:
      link: https://drive.google.com/file/d/1b862FRoAlyzbz2DjpI3XeDLkeiRl_HqH/view?usp=sharing
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAndValidate_AppliesDefaults(t *testing.T) {
	cfg, err := LoadAndValidate(writeConfig(t, minimalYAML), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultModelID, cfg.Model.ID)
	assert.Equal(t, DefaultBackend, cfg.Model.Backend)
	assert.Equal(t, DefaultLabels(), cfg.Model.Labels)
	assert.Equal(t, "Healthy", cfg.Model.DisplayNames["Tomato_healthy"])
	assert.Equal(t, 256, cfg.Model.Input.Height)
	assert.Equal(t, 256, cfg.Model.Input.Width)
	assert.Equal(t, DefaultHealthyMarker, cfg.Model.HealthyMarker)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)

	src, err := cfg.Model.GetSource()
	require.NoError(t, err)
	assert.Equal(t, SourceTypeGoogleDrive, src.Type())
}

func TestLoadAndValidate_FullConfig(t *testing.T) {
	body := `
version: "1"
storage:
  models_dir: /var/cache/leafsight
  download_timeout: 90s
model:
  id: tomato-v2
  backend: command
  file: last.h5
  labels: [Healthy, Early_blight]
  input: {height: 128, width: 96}
  runtime:
    command: [python3, classify.py]
  source:
    huggingface:
      repo: acme/tomato
      filename: last.h5
presentation:
  top_k: 3
  confidence_threshold: 0.05
`
	cfg, err := LoadAndValidate(writeConfig(t, body), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Healthy", "Early_blight"}, cfg.Model.Labels)
	assert.Empty(t, cfg.Model.DisplayNames)
	assert.Equal(t, 96, cfg.Model.Input.Width)
	assert.Equal(t, 3, cfg.Presentation.TopK)
	assert.Equal(t, filepath.Join("/var/cache/leafsight", "tomato-v2", "last.h5"), cfg.ArtifactPath())
	assert.Equal(t, "1m30s", cfg.Storage.Timeout().String())
}

func TestLoadAndValidate_PathWithoutSource(t *testing.T) {
	body := `
version: "1"
model:
  path: /srv/models/tomato.onnx
`
	cfg, err := LoadAndValidate(writeConfig(t, body), "")
	require.NoError(t, err)

	assert.Equal(t, "/srv/models/tomato.onnx", cfg.ArtifactPath())
	_, err = cfg.Model.GetSource()
	assert.Error(t, err)
}

func TestDefault_PathFromEnvOnly(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())

	env := map[string]string{envvar.LeafsightModelPath: "/srv/models/tomato.onnx"}
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/srv/models/tomato.onnx", cfg.ArtifactPath())
}

func TestLoadAndValidate_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing source", "version: \"1\"\nmodel: {}\n"},
		{"two sources", `
version: "1"
model:
  source:
    url: {url: "https://example.com/m.onnx"}
    google_drive: {file_id: abc}
`},
		{"unknown backend", `
version: "1"
model:
  backend: tensorflow
  source: {url: {url: "https://example.com/m.onnx"}}
`},
		{"duplicate labels", `
version: "1"
model:
  labels: [a, a]
  source: {url: {url: "https://example.com/m.onnx"}}
`},
		{"threshold out of range", `
version: "1"
model:
  source: {url: {url: "https://example.com/m.onnx"}}
presentation: {confidence_threshold: 2}
`},
		{"command backend without command", `
version: "1"
model:
  backend: command
  source: {url: {url: "https://example.com/m.h5"}}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAndValidate(writeConfig(t, tt.body), "")
			assert.Error(t, err)
		})
	}
}

func TestLoadAndValidate_EnvOverrides(t *testing.T) {
	t.Setenv(envvar.LeafsightModelURL, "https://models.example.com/tomato.onnx?sig=secret")
	t.Setenv(envvar.LeafsightModelPath, "/tmp/tomato.onnx")
	t.Setenv(envvar.LeafsightTopK, "5")
	t.Setenv(envvar.LeafsightConfidenceThreshold, "0.1")

	cfg, err := LoadAndValidate(writeConfig(t, minimalYAML), "")
	require.NoError(t, err)

	src, err := cfg.Model.GetSource()
	require.NoError(t, err)
	assert.Equal(t, SourceTypeURL, src.Type())
	assert.Equal(t, "https://models.example.com/tomato.onnx", src.String())
	assert.Equal(t, "/tmp/tomato.onnx", cfg.ArtifactPath())
	assert.Equal(t, 5, cfg.Presentation.TopK)
	assert.InDelta(t, 0.1, cfg.Presentation.ConfidenceThreshold, 1e-9)
}

func TestApplyEnv_RejectsBadValues(t *testing.T) {
	cfg := Default()

	err := cfg.ApplyEnv(func(key string) (string, bool) {
		if key == envvar.LeafsightTopK {
			return "-1", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestLoadAndValidate_InvalidYAML(t *testing.T) {
	_, err := LoadAndValidate(writeConfig(t, "version: [unclosed"), "")
	assert.ErrorContains(t, err, "invalid YAML")
}
