package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okian/concord/internal/domain/types"
)

const panelYAML = `
- {subject_id: S1, rater_id: R1, score: 4}
- {subject_id: S1, rater_id: R2, score: 4}
- {subject_id: S2, rater_id: R1, score: 2}
- {subject_id: S2, rater_id: R2, score: 3}
- {subject_id: S3, rater_id: R1, score: 5}
- {subject_id: S3, rater_id: R2, score: 5}
`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestComputeYAML(t *testing.T) {
	path := writeFile(t, "panel.yaml", panelYAML)

	out, err := runCLI(t, "compute", "--file", path)
	require.NoError(t, err)
	require.Contains(t, out, "ICC(2,1): 0.900")
	require.Contains(t, out, "F(2, 2) = 19.00")
	require.Contains(t, out, "R1")
}

func TestComputeJSONOutput(t *testing.T) {
	path := writeFile(t, "panel.json", `[
		{"subject_id":"A","rater_id":"R1","score":3},
		{"subject_id":"A","rater_id":"R2","score":3},
		{"subject_id":"B","rater_id":"R1","score":5},
		{"subject_id":"B","rater_id":"R2","score":5}
	]`)

	out, err := runCLI(t, "compute", "-f", path, "--json")
	require.NoError(t, err)

	var report types.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, types.StatusOK, report.Status)
	require.Equal(t, 1.0, report.Reliability.ICC)
	require.Contains(t, out, `"f": "Infinity"`)
}

func TestComputeInsufficientData(t *testing.T) {
	path := writeFile(t, "one.yml", "- {subject_id: S1, rater_id: R1, score: 4}\n")

	out, err := runCLI(t, "compute", "--file", path)
	require.NoError(t, err)
	require.Contains(t, out, types.StatusInsufficientData)
}

func TestComputeErrors(t *testing.T) {
	_, err := runCLI(t, "compute")
	require.Error(t, err)

	_, err = runCLI(t, "compute", "--file", writeFile(t, "panel.csv", "S1,R1,4"))
	require.ErrorContains(t, err, "unsupported")

	_, err = runCLI(t, "compute", "--file", writeFile(t, "bad.yaml", "- {subject_id: S1, score: 4}\n"))
	require.ErrorContains(t, err, "rater_id")

	_, err = runCLI(t, "compute", "--file", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
