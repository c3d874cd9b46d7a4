// Package service runs the leaf classification pipeline: decode, preprocess,
// predict and rank.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ekisa-team/leafsight/internal/config"
	"github.com/ekisa-team/leafsight/internal/inference"
	"github.com/ekisa-team/leafsight/internal/model"
	"github.com/ekisa-team/leafsight/internal/ranking"
	"github.com/ekisa-team/leafsight/internal/vision"
)

// HandleSource yields the classifier currently in use.
type HandleSource interface {
	Current() (*model.Handle, error)
}

// Settings controls how predictions are ranked and presented.
type Settings struct {
	DisplayNames        map[string]string
	HealthyMarker       string
	Resample            string
	TopK                int
	ConfidenceThreshold float64
	RecentResults       int
}

// SettingsFromConfig extracts presentation settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DisplayNames:        maps.Clone(cfg.Model.DisplayNames),
		HealthyMarker:       cfg.Model.HealthyMarker,
		Resample:            cfg.Model.Resample,
		TopK:                cfg.Presentation.TopK,
		ConfidenceThreshold: cfg.Presentation.ConfidenceThreshold,
		RecentResults:       cfg.Presentation.RecentResults,
	}
}

// DisplayName returns the human-readable name of label, or the label itself.
func (s Settings) DisplayName(label string) string {
	if name, ok := s.DisplayNames[label]; ok && name != "" {
		return name
	}
	return label
}

// Ranked is one row of the ranked table.
type Ranked struct {
	Label      string  `json:"label"`
	Name       string  `json:"name"`
	Percent    string  `json:"percent"`
	Confidence float32 `json:"confidence"`
}

// Prediction is the presented result of one classification.
type Prediction struct {
	CreatedAt  time.Time       `json:"created_at"`
	ID         string          `json:"id"`
	ModelID    string          `json:"model_id"`
	Label      string          `json:"label"`
	Name       string          `json:"name"`
	Percent    string          `json:"percent"`
	Verdict    ranking.Verdict `json:"verdict"`
	Format     string          `json:"format"`
	Ranked     []Ranked        `json:"ranked"`
	Entries    []ranking.Entry `json:"-"`
	ElapsedMS  float64         `json:"elapsed_ms"`
	Confidence float32         `json:"confidence"`
}

// Healthy reports whether the top class is the healthy one.
func (p *Prediction) Healthy() bool {
	return p.Verdict == ranking.VerdictHealthy
}

// Options adjusts a single classification.
type Options struct {
	// TopK overrides the configured table size when non-zero. Negative keeps every class.
	TopK int
}

// Classifier runs images through the current model.
type Classifier struct {
	models HandleSource
	recent *lru.Cache[string, *Prediction]

	mu       sync.RWMutex
	settings Settings
}

// NewClassifier creates a Classifier reading handles from models.
func NewClassifier(models HandleSource, settings Settings) (*Classifier, error) {
	size := settings.RecentResults
	if size <= 0 {
		size = config.DefaultRecentResults
	}
	recent, err := lru.New[string, *Prediction](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	return &Classifier{
		models:   models,
		recent:   recent,
		settings: settings,
	}, nil
}

// Settings returns the current presentation settings.
func (c *Classifier) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.settings
}

// UpdateSettings applies new presentation settings to later requests.
func (c *Classifier) UpdateSettings(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.RecentResults > 0 && s.RecentResults != c.settings.RecentResults {
		c.recent.Resize(s.RecentResults)
	}
	c.settings = s
}

// Model returns the handle currently serving requests.
func (c *Classifier) Model() (*model.Handle, error) {
	h, err := c.models.Current()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return h, nil
}

// Classify decodes data, classifies it and returns the ranked prediction.
// Errors wrap vision.ErrDecode, vision.ErrPreprocess,
// inference.ErrShapeMismatch, inference.ErrInference or ErrUnavailable.
func (c *Classifier) Classify(ctx context.Context, data []byte, opts Options) (*Prediction, error) {
	start := time.Now()
	settings := c.Settings()

	h, err := c.Model()
	if err != nil {
		return nil, err
	}

	img, format, err := vision.Decode(data)
	if err != nil {
		return nil, err
	}

	shape := h.InputShape()
	pre, err := vision.NewPreprocessor(vision.Size{Height: shape.Height(), Width: shape.Width()}, settings.Resample)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vision.ErrPreprocess, err)
	}
	t, err := pre.Preprocess(img)
	if err != nil {
		return nil, err
	}

	scores, err := inference.Predict(ctx, h, t)
	if err != nil {
		return nil, err
	}

	entries, err := ranking.Rank(scores, h.Labels, ranking.All)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", inference.ErrShapeMismatch, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: model has no classes", inference.ErrShapeMismatch)
	}

	top := entries[0]
	k := opts.TopK
	if k == 0 {
		k = settings.TopK
	}
	if k > 0 && k < len(entries) {
		entries = entries[:k]
	}
	entries = ranking.Filter(entries, settings.ConfidenceThreshold)

	p := &Prediction{
		CreatedAt:  time.Now().UTC(),
		ID:         uuid.NewString(),
		ModelID:    h.ID,
		Label:      top.Label,
		Name:       settings.DisplayName(top.Label),
		Confidence: top.Score,
		Percent:    top.Percent(),
		Verdict:    ranking.Assess(top, settings.HealthyMarker),
		Format:     format,
		Entries:    entries,
		Ranked:     make([]Ranked, len(entries)),
	}
	for i, e := range entries {
		p.Ranked[i] = Ranked{
			Label:      e.Label,
			Name:       settings.DisplayName(e.Label),
			Confidence: e.Score,
			Percent:    e.Percent(),
		}
	}
	p.ElapsedMS = float64(time.Since(start).Microseconds()) / 1000

	c.recent.Add(p.ID, p)

	slog.Info("Leaf classified",
		"id", p.ID,
		"label", p.Label,
		"confidence", p.Percent,
		"verdict", p.Verdict,
		"elapsed_ms", p.ElapsedMS,
	)

	return p, nil
}

// Result returns a recent prediction by ID.
func (c *Classifier) Result(id string) (*Prediction, error) {
	p, ok := c.recent.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	return p, nil
}

// WriteTable prints the ranked table of p.
func (c *Classifier) WriteTable(w io.Writer, p *Prediction) error {
	settings := c.Settings()
	return ranking.WriteTable(w, p.Entries, settings.DisplayName, 0)
}
