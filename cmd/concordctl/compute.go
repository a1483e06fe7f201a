package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	service "github.com/okian/concord/internal/app"
	"github.com/okian/concord/internal/domain/reliability"
	"github.com/okian/concord/internal/domain/types"
)

// recordFile is one row of a compute input file.
type recordFile struct {
	SubjectID string  `json:"subject_id" yaml:"subject_id"`
	RaterID   string  `json:"rater_id" yaml:"rater_id"`
	Score     float64 `json:"score" yaml:"score"`
}

func newComputeCmd() *cobra.Command {
	var (
		file        string
		asJSON      bool
		calibration float64
		divergence  float64
	)
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute ICC(2,1) and rater divergence for a file of evaluations",
		Long: `Reads a YAML or JSON list of {subject_id, rater_id, score} records and
prints the reliability report without contacting a server. Later records for
the same subject and rater replace earlier ones.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := readRecords(file)
			if err != nil {
				return err
			}
			svc := service.New(
				service.WithCalibrationThreshold(calibration),
				service.WithDivergenceThreshold(divergence),
			)
			report := svc.Compute(records)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "records file, .yaml/.yml or .json (required)")
	f.BoolVar(&asJSON, "json", false, "print the report as JSON")
	f.Float64Var(&calibration, "calibration-threshold", service.DefaultThresholds.Calibration, "flag the panel when ICC is below this")
	f.Float64Var(&divergence, "divergence-threshold", service.DefaultThresholds.Divergence, "flag a rater whose mean absolute deviation exceeds this")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readRecords(path string) ([]reliability.EvaluationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	var rows []recordFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &rows)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &rows)
	default:
		return nil, fmt.Errorf("unsupported records file %q: use .json, .yaml or .yml", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}

	out := make([]reliability.EvaluationRecord, 0, len(rows))
	for i, r := range rows {
		if r.SubjectID == "" || r.RaterID == "" {
			return nil, fmt.Errorf("record %d: subject_id and rater_id are required", i)
		}
		if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
			return nil, fmt.Errorf("record %d: score must be finite", i)
		}
		out = append(out, reliability.EvaluationRecord{SubjectID: r.SubjectID, RaterID: r.RaterID, Score: r.Score})
	}
	return out, nil
}

func printReport(w io.Writer, report *types.Report) error {
	fmt.Fprintf(w, "records: %d\n", report.Records)
	if report.Reliability == nil {
		fmt.Fprintf(w, "status: %s (need at least 2 subjects and 2 raters)\n", report.Status)
		return nil
	}
	icc := report.Reliability
	fmt.Fprintf(w, "ICC(2,1): %.3f (%s)  95%% CI [%.3f, %.3f]\n", icc.ICC, icc.Interpretation, icc.CI95Lower, icc.CI95Upper)
	fmt.Fprintf(w, "F(%d, %d) = %s  n=%d k=%d\n", icc.DF1, icc.DF2, formatStat(icc.F), icc.N, icc.K)
	if report.NeedsCalibration {
		fmt.Fprintln(w, "panel needs calibration")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RATER\tRATINGS\tMEAN DEV\tMEAN |DEV|\tICC WITHOUT\tCALIBRATE")
	for _, r := range report.Raters {
		without := "-"
		if r.ICCWithout != nil {
			without = fmt.Sprintf("%.3f", r.ICCWithout.ICC)
		}
		flag := ""
		if r.NeedsCalibration {
			flag = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%+.3f\t%.3f\t%s\t%s\n", r.RaterID, r.Ratings, r.MeanDeviation, r.MeanAbsDeviation, without, flag)
	}
	return tw.Flush()
}

func formatStat(s types.Stat) string {
	v := float64(s)
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return fmt.Sprintf("%.2f", v)
}
