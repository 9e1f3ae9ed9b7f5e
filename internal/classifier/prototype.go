package classifier

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

const (
	// DefaultK is the number of neighbours consulted per query
	DefaultK = 5

	// PrototypeFormatVersion is written into saved model files
	PrototypeFormatVersion = 1

	// distanceEpsilon keeps inverse-distance weights finite on exact matches
	distanceEpsilon = 1e-9

	// minStdDev replaces degenerate per-dimension spread
	minStdDev = 1e-12
)

// Prototype is one labelled reference vector
type Prototype struct {
	Label  string    `yaml:"label" json:"label"`
	Source string    `yaml:"source,omitempty" json:"source,omitempty"`
	Vector []float64 `yaml:"vector,flow" json:"vector"`
}

// PrototypeModel is the on-disk form of a prototype classifier
type PrototypeModel struct {
	Version    int         `yaml:"version" json:"version"`
	Extractor  string      `yaml:"extractor,omitempty" json:"extractor,omitempty"`
	Dimensions int         `yaml:"dimensions" json:"dimensions"`
	Labels     []string    `yaml:"labels" json:"labels"`
	Prototypes []Prototype `yaml:"prototypes" json:"prototypes"`
}

// Validate checks that every prototype has the declared dimension and a
// known label. Missing Labels or Dimensions are filled in from the data.
func (m *PrototypeModel) Validate() error {
	if len(m.Prototypes) == 0 {
		return errors.New(ErrEmptyModel).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Build()
	}

	if m.Dimensions == 0 {
		m.Dimensions = len(m.Prototypes[0].Vector)
	}
	if len(m.Labels) == 0 {
		seen := make(map[string]bool)
		for _, p := range m.Prototypes {
			if !seen[p.Label] {
				seen[p.Label] = true
				m.Labels = append(m.Labels, p.Label)
			}
		}
		slices.Sort(m.Labels)
	}

	known := make(map[string]bool, len(m.Labels))
	for _, l := range m.Labels {
		known[l] = true
	}

	for i, p := range m.Prototypes {
		if len(p.Vector) != m.Dimensions {
			return errors.New(fmt.Errorf("prototype %d has %d features, expected %d: %w",
				i, len(p.Vector), m.Dimensions, ErrDimensionMismatch)).
				Component("classifier").
				Category(errors.CategoryModelLoad).
				Build()
		}
		if !known[p.Label] {
			return errors.Newf("prototype %d has unknown label %q", i, p.Label).
				Component("classifier").
				Category(errors.CategoryModelLoad).
				Build()
		}
		for _, v := range p.Vector {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Newf("prototype %d contains a non-finite value", i).
					Component("classifier").
					Category(errors.CategoryModelLoad).
					Build()
			}
		}
	}
	return nil
}

// LoadPrototypes reads a model file. The format follows the extension:
// .json for JSON, anything else is parsed as YAML.
func LoadPrototypes(path string) (*PrototypeModel, error) {
	data, err := os.ReadFile(path) //nolint:gosec // model path comes from config
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read prototypes: %w", err)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			FileContext(path, 0).
			Build()
	}

	model := &PrototypeModel{}
	if isJSONPath(path) {
		err = json.Unmarshal(data, model)
	} else {
		err = yaml.Unmarshal(data, model)
	}
	if err != nil {
		return nil, errors.New(fmt.Errorf("unable to parse prototypes: %w", err)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			FileContext(path, int64(len(data))).
			Build()
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}
	return model, nil
}

// Save writes the model to path in the format implied by its extension
func (m *PrototypeModel) Save(path string) error {
	if m.Version == 0 {
		m.Version = PrototypeFormatVersion
	}

	var (
		data []byte
		err  error
	)
	if isJSONPath(path) {
		data, err = json.MarshalIndent(m, "", "  ")
	} else {
		data, err = yaml.Marshal(m)
	}
	if err != nil {
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryFileIO).
			Build()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).Component("classifier").Category(errors.CategoryFileIO).Build()
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // model files are not secret
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryFileIO).
			FileContext(path, int64(len(data))).
			Build()
	}
	return nil
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// PrototypeOption configures a PrototypeClassifier
type PrototypeOption func(*PrototypeClassifier)

// WithK sets the neighbour count. Values below 1 are ignored.
func WithK(k int) PrototypeOption {
	return func(c *PrototypeClassifier) {
		if k > 0 {
			c.k = k
		}
	}
}

// PrototypeClassifier is a k-nearest-prototype classifier. Prototypes are
// standardized per dimension and scaled to unit length; a query gets the
// same treatment, and each of its k nearest prototypes votes for its label
// with weight 1/(distance+eps). It is immutable once built and safe for
// concurrent use.
type PrototypeClassifier struct {
	labels  *LabelSet
	k       int
	dims    int
	mean    []float64
	std     []float64
	vectors [][]float64
	owners  []int // label index per prototype
}

var _ Classifier = (*PrototypeClassifier)(nil)

// NewPrototypeClassifier prepares model for querying
func NewPrototypeClassifier(model *PrototypeModel, opts ...PrototypeOption) (*PrototypeClassifier, error) {
	if model == nil {
		return nil, errors.New(ErrEmptyModel).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Build()
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	labels, err := NewLabelSet(model.Labels)
	if err != nil {
		return nil, err
	}

	c := &PrototypeClassifier{
		labels: labels,
		k:      DefaultK,
		dims:   model.Dimensions,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.fitScaler(model.Prototypes)

	c.vectors = make([][]float64, len(model.Prototypes))
	c.owners = make([]int, len(model.Prototypes))
	for i, p := range model.Prototypes {
		c.vectors[i] = c.transform(p.Vector)
		c.owners[i], _ = labels.Index(p.Label)
	}

	GetLogger().Debug("prototype classifier ready",
		logger.Int("prototypes", len(c.vectors)),
		logger.Int("labels", labels.Len()),
		logger.Int("dimensions", c.dims),
		logger.Int("k", c.k))

	return c, nil
}

// fitScaler computes per-dimension mean and standard deviation over the
// prototypes so that no single feature dominates the distance.
func (c *PrototypeClassifier) fitScaler(protos []Prototype) {
	c.mean = make([]float64, c.dims)
	c.std = make([]float64, c.dims)
	column := make([]float64, len(protos))

	for d := range c.dims {
		for i, p := range protos {
			column[i] = p.Vector[d]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if math.IsNaN(std) || std < minStdDev {
			std = 1
		}
		c.mean[d] = mean
		c.std[d] = std
	}
}

// transform standardizes vec and scales it to unit length. A zero vector
// stays zero.
func (c *PrototypeClassifier) transform(vec []float64) []float64 {
	out := make([]float64, len(vec))
	for d, v := range vec {
		out[d] = (v - c.mean[d]) / c.std[d]
	}
	if norm := floats.Norm(out, 2); norm > 0 {
		floats.Scale(1/norm, out)
	}
	return out
}

// Labels returns the label set
func (c *PrototypeClassifier) Labels() *LabelSet {
	return c.labels
}

// Dimensions returns the feature vector length the model expects
func (c *PrototypeClassifier) Dimensions() int {
	return c.dims
}

// K returns the neighbour count
func (c *PrototypeClassifier) K() int {
	return c.k
}

// Classify returns inverse-distance weighted votes of the k nearest
// prototypes, normalized to sum to 1. Labels without a neighbour get 0.
func (c *PrototypeClassifier) Classify(vec []float64) (Distribution, error) {
	if len(vec) != c.dims {
		return Distribution{}, errors.New(ErrDimensionMismatch).
			Component("classifier").
			Category(errors.CategoryClassification).
			Context("expected", c.dims).
			Context("got", len(vec)).
			Build()
	}

	if floats.HasNaN(vec) {
		return Distribution{}, errors.New(ErrInvalidVector).
			Component("classifier").
			Category(errors.CategoryClassification).
			Build()
	}

	query := c.transform(vec)

	type neighbour struct {
		index    int
		distance float64
	}
	neighbours := make([]neighbour, len(c.vectors))
	for i, proto := range c.vectors {
		neighbours[i] = neighbour{index: i, distance: floats.Distance(query, proto, 2)}
	}
	slices.SortStableFunc(neighbours, func(a, b neighbour) int {
		return cmp.Compare(a.distance, b.distance)
	})

	k := min(c.k, len(neighbours))
	probs := make([]float64, c.labels.Len())
	for _, n := range neighbours[:k] {
		probs[c.owners[n.index]] += 1 / (n.distance + distanceEpsilon)
	}
	floats.Scale(1/floats.Sum(probs), probs)

	return NewDistribution(c.labels, probs)
}
