package classifier

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansound/soundscape/internal/errors"
)

func mustLabels(t *testing.T, names ...string) *LabelSet {
	t.Helper()
	ls, err := NewLabelSet(names)
	require.NoError(t, err)
	return ls
}

func twoClassModel() *PrototypeModel {
	return &PrototypeModel{
		Labels: []string{"Sirena", "Trafico"},
		Prototypes: []Prototype{
			{Label: "Sirena", Vector: []float64{1.0, 0.0}},
			{Label: "Sirena", Vector: []float64{1.1, 0.1}},
			{Label: "Trafico", Vector: []float64{0.0, 1.0}},
			{Label: "Trafico", Vector: []float64{0.1, 1.1}},
		},
	}
}

func TestLabelSet(t *testing.T) {
	t.Parallel()

	ls := mustLabels(t, "Ladrido", "Sirena", "Obras")
	assert.Equal(t, 3, ls.Len())
	assert.Equal(t, "Sirena", ls.Name(1))
	assert.Empty(t, ls.Name(7))

	i, ok := ls.Index("Obras")
	assert.True(t, ok)
	assert.Equal(t, 2, i)
	_, ok = ls.Index("Lluvia")
	assert.False(t, ok)

	_, err := NewLabelSet(nil)
	require.ErrorIs(t, err, ErrEmptyModel)
	_, err = NewLabelSet([]string{"a", "a"})
	require.Error(t, err)
	_, err = NewLabelSet([]string{"a", " "})
	require.Error(t, err)
}

func TestDistribution(t *testing.T) {
	t.Parallel()

	ls := mustLabels(t, "A", "B", "C", "D")

	t.Run("argmax tie goes to lowest index", func(t *testing.T) {
		t.Parallel()
		d, err := NewDistribution(ls, []float64{0.1, 0.4, 0.4, 0.1})
		require.NoError(t, err)
		i, p := d.Argmax()
		assert.Equal(t, 1, i)
		assert.InDelta(t, 0.4, p, 1e-12)
		assert.Equal(t, "B", d.Best().Label)
	})

	t.Run("top n", func(t *testing.T) {
		t.Parallel()
		d, err := NewDistribution(ls, []float64{0.1, 0.2, 0.6, 0.1})
		require.NoError(t, err)
		top := d.Top(2)
		require.Len(t, top, 2)
		assert.Equal(t, "C", top[0].Label)
		assert.Equal(t, "B", top[1].Label)
		assert.Len(t, d.Top(10), 4)
	})

	t.Run("prob by label", func(t *testing.T) {
		t.Parallel()
		d, err := NewDistribution(ls, []float64{0.25, 0.25, 0.25, 0.25})
		require.NoError(t, err)
		assert.InDelta(t, 0.25, d.Prob("D"), 1e-12)
		assert.Zero(t, d.Prob("Z"))
	})

	t.Run("length mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := NewDistribution(ls, []float64{1})
		require.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("values are copied", func(t *testing.T) {
		t.Parallel()
		probs := []float64{1, 0, 0, 0}
		d, err := NewDistribution(ls, probs)
		require.NoError(t, err)
		probs[0] = 0
		assert.InDelta(t, 1.0, d.At(0), 1e-12)
	})
}

func TestPrototypeClassifierNearestLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		k     int
		query []float64
		want  string
	}{
		{"k1 near sirena", 1, []float64{1.05, 0.02}, "Sirena"},
		{"k1 near trafico", 1, []float64{0.02, 1.05}, "Trafico"},
		{"k3 near sirena", 3, []float64{1.0, 0.05}, "Sirena"},
		{"k larger than prototypes", 10, []float64{0.05, 1.0}, "Trafico"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := NewPrototypeClassifier(twoClassModel(), WithK(tt.k))
			require.NoError(t, err)

			d, err := c.Classify(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Best().Label)

			sum := 0.0
			for _, p := range d.Probs() {
				assert.GreaterOrEqual(t, p, 0.0)
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestPrototypeClassifierExactMatchWithK1(t *testing.T) {
	t.Parallel()

	c, err := NewPrototypeClassifier(twoClassModel(), WithK(1))
	require.NoError(t, err)

	d, err := c.Classify([]float64{0.0, 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Prob("Trafico"), 1e-12)
	assert.InDelta(t, 0.0, d.Prob("Sirena"), 1e-12)
}

func TestPrototypeClassifierErrors(t *testing.T) {
	t.Parallel()

	c, err := NewPrototypeClassifier(twoClassModel())
	require.NoError(t, err)
	assert.Equal(t, DefaultK, c.K())

	_, err = c.Classify([]float64{1, 2, 3})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.True(t, errors.IsCategory(err, errors.CategoryClassification))

	_, err = NewPrototypeClassifier(nil)
	require.ErrorIs(t, err, ErrEmptyModel)

	bad := twoClassModel()
	bad.Prototypes[1].Vector = []float64{1}
	_, err = NewPrototypeClassifier(bad)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	unknown := twoClassModel()
	unknown.Prototypes[0].Label = "Lluvia"
	_, err = NewPrototypeClassifier(unknown)
	require.Error(t, err)
}

func TestPrototypeClassifierSingleProtoPerLabel(t *testing.T) {
	t.Parallel()

	model := &PrototypeModel{Prototypes: []Prototype{
		{Label: "Obras", Vector: []float64{3, 3, 3}},
	}}
	c, err := NewPrototypeClassifier(model)
	require.NoError(t, err)
	assert.Equal(t, []string{"Obras"}, c.Labels().Names())

	d, err := c.Classify([]float64{0, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Prob("Obras"), 1e-12)
}

func TestValidateDerivesLabels(t *testing.T) {
	t.Parallel()

	m := &PrototypeModel{Prototypes: []Prototype{
		{Label: "Trafico", Vector: []float64{1}},
		{Label: "Ladrido", Vector: []float64{2}},
		{Label: "Trafico", Vector: []float64{3}},
	}}
	require.NoError(t, m.Validate())
	assert.Equal(t, []string{"Ladrido", "Trafico"}, m.Labels)
	assert.Equal(t, 1, m.Dimensions)
}

func TestSaveAndLoadPrototypes(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"model.yaml", "model.json"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, twoClassModel().Save(path))

			loaded, err := LoadPrototypes(path)
			require.NoError(t, err)
			assert.Equal(t, PrototypeFormatVersion, loaded.Version)
			assert.Equal(t, 2, loaded.Dimensions)
			assert.Equal(t, twoClassModel().Prototypes, loaded.Prototypes)
		})
	}
}

func TestLoadPrototypesErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadPrototypes(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = LoadPrototypes(path)
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("version: 1\n"), 0o600))
	_, err = LoadPrototypes(empty)
	require.ErrorIs(t, err, ErrEmptyModel)
}

func TestBuildPrototypes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	files := map[string]string{
		"Sirena/a.wav":      "",
		"Sirena/b.wav":      "",
		"Trafico/c.wav":     "",
		"Trafico/bad.wav":   "",
		"Trafico/notes.txt": "",
		"Vacio/skip.txt":    "",
		"README.md":         "",
	}
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}

	embed := func(_ context.Context, path string) ([]float64, error) {
		base := filepath.Base(path)
		if base == "bad.wav" {
			return nil, errors.NewStd("decode failed")
		}
		return []float64{float64(len(base)), float64(base[0])}, nil
	}
	accept := func(path string) bool { return strings.HasSuffix(path, ".wav") }

	model, err := BuildPrototypes(context.Background(), root, embed, EnrollOptions{Accept: accept, Extractor: "band"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Sirena", "Trafico"}, model.Labels)
	assert.Len(t, model.Prototypes, 3)
	assert.Equal(t, 2, model.Dimensions)
	assert.Equal(t, "band", model.Extractor)
	assert.Equal(t, "Trafico/c.wav", model.Prototypes[2].Source)
}

func TestBuildPrototypesCancelled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Sirena"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Sirena", "a.wav"), nil, 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := BuildPrototypes(ctx, root, func(context.Context, string) ([]float64, error) {
		return []float64{1}, nil
	}, EnrollOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegistryCachesByModTime(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prototypes.yaml")
	require.NoError(t, twoClassModel().Save(path))

	reg := NewRegistry(time.Minute, WithK(1))

	first, err := reg.Get(path)
	require.NoError(t, err)
	second, err := reg.Get(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, first.K())
	assert.Equal(t, 1, reg.Len())

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	third, err := reg.Get(path)
	require.NoError(t, err)
	assert.NotSame(t, first, third)

	reg.Flush()
	assert.Zero(t, reg.Len())

	_, err = reg.Get(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
