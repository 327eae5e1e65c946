package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mc-integrator/evaluation"
)

func TestSaveJSON(t *testing.T) {
	dir := t.TempDir()
	in := evaluation.ConvergenceStudy{Problem: "pi", Seed: 9}
	require.NoError(t, saveJSON(dir, "study.json", in))

	data, err := os.ReadFile(filepath.Join(dir, "study.json"))
	require.NoError(t, err)
	var out evaluation.ConvergenceStudy
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "pi", out.Problem)
	assert.Equal(t, uint64(9), out.Seed)
}

func TestRunQuickEvaluation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping evaluation run in short mode")
	}
	dir := filepath.Join(t.TempDir(), "out")
	f := &runnerFlags{outputDir: dir, quickTest: true, seed: 1}
	require.NoError(t, run(context.Background(), f))
	assert.FileExists(t, filepath.Join(dir, "quick_evaluation.json"))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &runnerFlags{outputDir: t.TempDir(), quickTest: true, seed: 1}
	assert.ErrorIs(t, run(ctx, f), context.Canceled)
}
