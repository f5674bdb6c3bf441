package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Skufu/il17a-response/internal/explain"
	"github.com/Skufu/il17a-response/internal/features"
	"github.com/Skufu/il17a-response/internal/intake"
	"github.com/Skufu/il17a-response/internal/model"
	"github.com/Skufu/il17a-response/internal/predict"
	"github.com/Skufu/il17a-response/internal/report"
)

const chartTitle = "Feature contributions (SHAP)"

type predictOutput struct {
	Patient      []intake.Field  `json:"patient" yaml:"patient"`
	Probability  float64         `json:"probability" yaml:"probability"`
	Percent      string          `json:"percent" yaml:"percent"`
	Verdict      predict.Verdict `json:"verdict" yaml:"verdict"`
	Label        string          `json:"label" yaml:"label"`
	Advice       string          `json:"advice" yaml:"advice"`
	ModelVersion string          `json:"modelVersion" yaml:"modelVersion"`
	Explanation  *explain.Result `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Chart        string          `json:"chart,omitempty" yaml:"chart,omitempty"`
}

func newPredictCmd(v *viper.Viper) *cobra.Command {
	schema := features.Default()
	var (
		wantExplain bool
		chartPath   string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict whether a patient responds to IL-17A inhibitors",
		Long: `Predict the responder probability for one patient. Every feature has its
own flag and defaults to the value the input form pre-fills.`,
		Example: `  respondctl predict --BMI 31.5 --Baseline_PASI 22 --explain
  respondctl predict --Biologics_History 1 --chart contributions.html -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(v)
			if err != nil {
				return err
			}

			values := intake.Values{}
			for _, name := range schema.Names() {
				val, err := cmd.Flags().GetFloat64(name)
				if err != nil {
					return err
				}
				values[name] = val
			}
			rec, err := intake.Collect(schema, values)
			if err != nil {
				return err
			}

			pipeline, err := model.Load(v.GetString("model"), schema.Names())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := predict.New(pipeline).Predict(ctx, rec)
			if err != nil {
				return err
			}

			verdict := report.Present(res)
			out := predictOutput{
				Patient:      rec.Fields(),
				Probability:  res.Probability,
				Percent:      verdict.Percent,
				Verdict:      res.Verdict,
				Label:        verdict.Label,
				Advice:       verdict.Advice,
				ModelVersion: res.ModelVersion,
			}

			if wantExplain || chartPath != "" {
				svc := explain.New(pipeline, explain.Options{Timeout: v.GetDuration("explain_timeout")})
				ex, err := svc.Explain(ctx, rec)
				if err != nil {
					return err
				}
				out.Explanation = &ex
			}
			if chartPath != "" {
				if err := writeChart(ctx, chartPath, *out.Explanation); err != nil {
					return err
				}
				out.Chart = chartPath
			}

			return writePrediction(cmd.OutOrStdout(), out, format)
		},
	}

	for _, def := range schema.Definitions() {
		cmd.Flags().Float64(def.Name, def.Default, fmt.Sprintf("%s, %s", def.Label, allowed(def)))
	}
	cmd.Flags().BoolVar(&wantExplain, "explain", false, "explain the prediction with SHAP contributions")
	cmd.Flags().StringVar(&chartPath, "chart", "", "write the contribution chart to this file (.html or .png)")
	return cmd
}

func writeChart(ctx context.Context, path string, ex explain.Result) error {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		img, err := report.RenderPNG(ctx, ex, chartTitle)
		if err != nil {
			return err
		}
		return os.WriteFile(path, img, 0o644)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	if err := report.RenderChart(f, ex, chartTitle); err != nil {
		f.Close()
		return fmt.Errorf("render chart: %w", err)
	}
	return f.Close()
}

func writePrediction(w io.Writer, out predictOutput, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Patient information")
	for _, f := range out.Patient {
		fmt.Fprintf(tw, "  %s\t%g\n", f.Name, f.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Predicted Probability: %s\nResult: %s\n", out.Percent, out.Label)
	fmt.Fprintln(w, out.Advice)

	if out.Explanation != nil {
		ex := out.Explanation
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Feature contributions (base value %.4f, output %.4f)\n", ex.Baseline, ex.Output)
		for _, c := range ex.Contributions {
			fmt.Fprintf(tw, "  %s\t%+.4f\n", report.FeatureLabel(c), c.Contribution)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if out.Chart != "" {
		fmt.Fprintf(w, "\nChart written to %s\n%s\n", out.Chart, report.ChartCaption)
	}
	return nil
}
