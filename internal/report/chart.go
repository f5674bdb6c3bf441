package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Skufu/il17a-response/internal/explain"
)

const (
	colorPush     = "#ff0051"
	colorPull     = "#008bfb"
	colorText     = "#333333"
	colorGridLine = "#d0d0d0"

	chartWidthPx  = 960
	rowHeightPx   = 48
	minHeightPx   = 320
	pngRenderWait = 800 * time.Millisecond
)

// ErrHeadlessUnavailable is returned by RenderPNG when no headless browser
// could be started.
var ErrHeadlessUnavailable = errors.New("headless browser unavailable")

// ContributionChart draws one horizontal bar per feature, signed relative to
// the baseline, labelled with the feature's name and input value.
func ContributionChart(res explain.Result, title string) *charts.Bar {
	height := chartHeight(len(res.Contributions))

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       title,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", height),
			BackgroundColor: "#ffffff",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      fmt.Sprintf("base value %.4f  ->  output %.4f", res.Baseline, res.Output),
			Left:          "center",
			TitleStyle:    &opts.TextStyle{Color: colorText, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorText},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "SHAP value (impact on responder probability)",
			AxisLabel: &opts.AxisLabel{Color: colorText},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorGridLine}},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorText},
		}),
	)

	labels := make([]string, len(res.Contributions))
	data := make([]opts.BarData, len(res.Contributions))
	for i, c := range res.Contributions {
		labels[i] = FeatureLabel(c)
		color := colorPull
		if c.Contribution > 0 {
			color = colorPush
		}
		data[i] = opts.BarData{
			Name:      labels[i],
			Value:     round(c.Contribution, 6),
			ItemStyle: &opts.ItemStyle{Color: color},
		}
	}
	bar.SetXAxis(labels)
	bar.AddSeries("contribution", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "right"}),
	)
	bar.XYReversal()
	return bar
}

// FeatureLabel formats the axis label of one bar, e.g. "BMI = 24".
func FeatureLabel(c explain.Contribution) string {
	return c.Feature + " = " + strconv.FormatFloat(c.Value, 'f', -1, 64)
}

// RenderChart writes the chart as a standalone HTML page.
func RenderChart(w io.Writer, res explain.Result, title string) error {
	return ContributionChart(res, title).Render(w)
}

// RenderPNG screenshots a rendered chart page with headless Chrome.
func RenderPNG(ctx context.Context, res explain.Result, title string) ([]byte, error) {
	var page bytes.Buffer
	if err := RenderChart(&page, res, title); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	height := chartHeight(len(res.Contributions))
	return htmlToPNG(ctx, page.Bytes(), chartWidthPx+40, height+40)
}

func htmlToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	if err := chromedp.Run(timeoutCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeadlessUnavailable, err)
	}

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(pngRenderWait),
		chromedp.FullScreenshot(&screenshot, 100),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, fmt.Errorf("capture chart: %w", err)
	}
	return screenshot, nil
}

func chartHeight(rows int) int {
	return max(rows*rowHeightPx+160, minHeightPx)
}

func round(v float64, decimals int) float64 {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	out, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return v
	}
	return out
}
