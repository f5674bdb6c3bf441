// Package report renders prediction and explanation results for people.
package report

import (
	"fmt"

	"github.com/Skufu/il17a-response/internal/predict"
)

const (
	ColorResponder    = "#2ca02c"
	ColorNonResponder = "#d62728"

	adviceResponder    = "High likelihood of a favorable response to IL-17A inhibitor therapy."
	adviceNonResponder = "Likely poor response; review risk factors before starting therapy."

	// ChartCaption explains the bar colours of the contribution chart.
	ChartCaption = "Red bars push the prediction toward Responder, blue bars toward Non-Responder."

	// MismatchHint is shown next to inference failures, whose usual cause is a
	// deployment where the request schema and the fitted model disagree.
	MismatchHint = "Check that feature names (case sensitive) and their order match the columns the model was trained on."
)

type Verdict struct {
	Label   string `json:"label"`
	Color   string `json:"color"`
	Advice  string `json:"advice"`
	Percent string `json:"percent"`
}

func Present(res predict.Result) Verdict {
	v := Verdict{Percent: fmt.Sprintf("%.2f%%", res.Percent())}
	if res.Verdict == predict.Responder {
		v.Label = "Responder"
		v.Color = ColorResponder
		v.Advice = adviceResponder
	} else {
		v.Label = "Non-Responder"
		v.Color = ColorNonResponder
		v.Advice = adviceNonResponder
	}
	return v
}

// Summary is the two-line result block shown above the advice.
func Summary(res predict.Result) string {
	v := Present(res)
	return fmt.Sprintf("Predicted Probability: %s\nResult: %s", v.Percent, v.Label)
}
