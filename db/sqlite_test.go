package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediassist/ml"
	"mediassist/predict"
	"mediassist/report"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRecordAndRecent(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []predict.Event{
		{ID: "a", Disease: ml.Diabetes, Label: 1, Probability: 0.82, RiskLevel: report.High, Latency: 3 * time.Millisecond, CreatedAt: base},
		{ID: "b", Disease: ml.HeartDisease, Label: 0, Probability: 0.2, RiskLevel: report.Low, CreatedAt: base.Add(time.Minute)},
		{ID: "c", Disease: ml.Diabetes, Label: 0, Probability: 0.45, RiskLevel: report.Moderate, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, d.Record(ctx, e))
	}

	all, err := d.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)
	assert.Equal(t, 3*time.Millisecond, all[2].Latency)
	assert.True(t, base.Equal(all[2].CreatedAt))

	diabetes, err := d.Recent(ctx, ml.Diabetes, 1)
	require.NoError(t, err)
	require.Len(t, diabetes, 1)
	assert.Equal(t, report.Moderate, diabetes[0].RiskLevel)

	counts, err := d.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[ml.Diabetes])
	assert.Equal(t, 1, counts[ml.HeartDisease])
}

func TestRecordAssignsID(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	require.NoError(t, d.Record(ctx, predict.Event{Disease: ml.Parkinsons, RiskLevel: report.Low}))

	got, err := d.Recent(ctx, ml.Parkinsons, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].ID, 36)
}

func TestDuplicatePredictionIDRejected(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	e := predict.Event{ID: "same", Disease: ml.Diabetes, RiskLevel: report.Low}
	require.NoError(t, d.Record(ctx, e))
	assert.Error(t, d.Record(ctx, e))
}

func TestTrainingLog(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	trained := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	log := TrainingLog{
		Disease:    ml.HeartDisease,
		ModelName:  "random_forest",
		Metrics:    ml.Metrics{Accuracy: 0.9, Precision: 0.8, Recall: 0.7, F1: 0.75},
		TrainedAt:  trained,
		DataPoints: 303,
	}
	require.NoError(t, d.SaveTrainingLog(ctx, log))

	logs, err := d.LoadTrainingLog(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ml.HeartDisease, logs[0].Disease)
	assert.Equal(t, log.Metrics, logs[0].Metrics)
	assert.Equal(t, 303, logs[0].DataPoints)
}
