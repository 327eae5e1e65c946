package main

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mc-integrator/estimator"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEstimateCmd_JSON(t *testing.T) {
	out, err := execute(t, "estimate", "--problem", "pi", "--samples", "50000", "--batches", "4",
		"--seed", "7", "--json", "--log-level", "error")
	require.NoError(t, err)

	var r report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "pi", r.Problem)
	assert.Equal(t, uint64(7), r.Result.Seed)
	assert.Equal(t, 200000, r.Result.Samples)
	assert.True(t, r.Result.HasStdErr)
	require.NotNil(t, r.Exact)
	assert.InDelta(t, math.Pi, r.Result.Value, 0.05)
}

func TestEstimateCmd_Reproducible(t *testing.T) {
	args := []string{"estimate", "--problem", "sphere-3d", "--samples", "10000", "--batches", "3",
		"--seed", "11", "--json", "--log-level", "error"}
	first, err := execute(t, args...)
	require.NoError(t, err)
	second, err := execute(t, args...)
	require.NoError(t, err)

	var a, b report
	require.NoError(t, json.Unmarshal([]byte(first), &a))
	require.NoError(t, json.Unmarshal([]byte(second), &b))
	assert.Equal(t, a.Result.Value, b.Result.Value)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestEstimateCmd_RegionOverride(t *testing.T) {
	out, err := execute(t, "estimate", "--problem", "square-1d", "--low", "0", "--high", "2",
		"--samples", "200000", "--seed", "3", "--json", "--log-level", "error")
	require.NoError(t, err)

	var r report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Nil(t, r.Exact)
	assert.Equal(t, 2.0, r.Result.Volume)
	assert.InEpsilon(t, 8.0/3.0, r.Result.Value, 0.02)
}

func TestEstimateCmd_Text(t *testing.T) {
	out, err := execute(t, "estimate", "--problem", "masked-2d", "--samples", "1000", "--batches", "2",
		"--seed", "1", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Monte Carlo Estimate")
	assert.Contains(t, out, "masked-2d")
	assert.Contains(t, out, "Accepted:")
}

func TestEstimateCmd_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.yaml")
	exportPath := filepath.Join(dir, "out", "metrics.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
problem: cube-sum-3d
samples: 2000
batches: 5
seed: 99
log:
  level: error
metrics:
  export: `+exportPath+`
  prometheus: true
`), 0o644))

	out, err := execute(t, "estimate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "cube-sum-3d")
	assert.Contains(t, out, "mcint_samples_total 10000")

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, float64(5), m["total_batches"])
}

func TestEstimateCmd_Errors(t *testing.T) {
	_, err := execute(t, "estimate", "--samples", "0", "--log-level", "error")
	assert.ErrorIs(t, err, estimator.ErrInvalidSampleCount)

	_, err = execute(t, "estimate", "--problem", "pi", "--low", "1,1", "--high", "0,0", "--log-level", "error")
	assert.ErrorIs(t, err, estimator.ErrInvalidRegion)

	_, err = execute(t, "estimate", "--problem", "nope", "--log-level", "error")
	assert.Error(t, err)

	_, err = execute(t, "estimate", "--low", "a", "--high", "1")
	assert.Error(t, err)
}

func TestListCmd(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	for _, name := range []string{"pi", "square-1d", "sphere-3d", "masked-2d", "mean-square-<d>d"} {
		assert.Contains(t, out, name)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "mcint "+version+"\n", out)
}

func TestParseBounds(t *testing.T) {
	b, err := parseBounds(" -1, 2.5 ,3")
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2.5, 3}, b)

	_, err = parseBounds("")
	assert.Error(t, err)
}
