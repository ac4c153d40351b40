package core

import (
	"context"
	"expvar"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewcore/pkg/domain"
)

func TestPrometheusRecorderCountsEngineActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	svc, err := NewInMemoryService(nil, WithRecorder(rec))
	require.NoError(t, err)
	defer svc.Close()
	ctx := context.Background()

	recipe, _, err := svc.CreateRecipe(ctx, domain.Recipe{Name: "r", PreBoilVolume: domain.Ptr(30.0)})
	require.NoError(t, err)
	_, err = svc.Get(ctx, EntityRecipe, recipe.ID, "preBoilVolumeCold")
	require.NoError(t, err)
	_, err = svc.Get(ctx, EntityRecipe, recipe.ID, "preBoilVolumeCold")
	require.NoError(t, err)
	_, err = svc.SetAttribute(ctx, EntityRecipe, recipe.ID, "preBoilVolume", domain.Ptr(31.0))
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(rec.recomputed.WithLabelValues("recipe", "preBoilVolumeCold")))
	assert.Equal(t, 1.0, promtest.ToFloat64(rec.invalidated.WithLabelValues("recipe", "preBoilVolumeCold")))
	assert.Equal(t, 2, promtest.CollectAndCount(rec.recomputed)+promtest.CollectAndCount(rec.invalidated))

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestExpvarRecorderPublishesSnapshot(t *testing.T) {
	rec := NewExpvarRecorder("")
	rec.Recomputed("recipe", "OG")
	rec.Recomputed("recipe", "OG")
	rec.Invalidated("recipe", "OG")

	snap := rec.Snapshot()
	assert.Equal(t, int64(2), snap.Recomputed["recipe.OG"])
	assert.Equal(t, int64(1), snap.Invalidated["recipe.OG"])
	require.NotNil(t, expvar.Get(rec.Name()))
	assert.Contains(t, expvar.Get(rec.Name()).String(), "recomputations_total")

	snap.Recomputed["recipe.OG"] = 99
	assert.Equal(t, int64(2), rec.Snapshot().Recomputed["recipe.OG"], "snapshot is a copy")
}

func TestRecordersFanOut(t *testing.T) {
	a, b := NewExpvarRecorder(""), NewExpvarRecorder("")
	r := Recorders(a, nil, b)
	r.Recomputed("beer_type", "x")
	r.Invalidated("beer_type", "x")
	for _, rec := range []*ExpvarRecorder{a, b} {
		snap := rec.Snapshot()
		assert.Equal(t, int64(1), snap.Recomputed["beer_type.x"])
		assert.Equal(t, int64(1), snap.Invalidated["beer_type.x"])
	}
}

func TestNewRecorderDrivers(t *testing.T) {
	rec, err := NewRecorder(MetricsConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = NewRecorder(MetricsConfig{Driver: MetricsPrometheus}, nil)
	require.NoError(t, err)
	assert.IsType(t, &PrometheusRecorder{}, rec)

	rec, err = NewRecorder(MetricsConfig{Driver: MetricsExpvar}, nil)
	require.NoError(t, err)
	assert.IsType(t, &ExpvarRecorder{}, rec)

	_, err = NewRecorder(MetricsConfig{Driver: "statsd"}, nil)
	assert.Error(t, err)
}
