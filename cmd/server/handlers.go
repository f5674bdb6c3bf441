package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/Skufu/il17a-response/internal/audit"
	"github.com/Skufu/il17a-response/internal/explain"
	"github.com/Skufu/il17a-response/internal/intake"
	"github.com/Skufu/il17a-response/internal/predict"
	"github.com/Skufu/il17a-response/internal/report"
)

const chartTitle = "Feature contributions (SHAP)"

type predictResponse struct {
	Probability  float64         `json:"probability"`
	Percent      string          `json:"percent"`
	Verdict      predict.Verdict `json:"verdict"`
	Label        string          `json:"label"`
	Color        string          `json:"color"`
	Advice       string          `json:"advice"`
	Summary      string          `json:"summary"`
	ModelVersion string          `json:"modelVersion"`
	Patient      intake.Record   `json:"patient"`
	Explanation  *explain.Result `json:"explanation,omitempty"`
	Caption      string          `json:"caption,omitempty"`
}

func newPredictResponse(res predict.Result, rec intake.Record) predictResponse {
	v := report.Present(res)
	return predictResponse{
		Probability:  res.Probability,
		Percent:      v.Percent,
		Verdict:      res.Verdict,
		Label:        v.Label,
		Color:        v.Color,
		Advice:       v.Advice,
		Summary:      report.Summary(res),
		ModelVersion: res.ModelVersion,
		Patient:      rec,
	}
}

func (a *app) readyz(c *gin.Context) {
	body := gin.H{"status": "ok", "model": a.modelVersion}
	if a.db == nil {
		body["db"] = "disabled"
		c.JSON(http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		body["status"] = "degraded"
		body["db"] = fmt.Sprintf("unhealthy: %v", err)
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["db"] = "ok"
	c.JSON(http.StatusOK, body)
}

func (a *app) schemaHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"modelVersion": a.modelVersion,
		"threshold":    predict.Threshold,
		"features":     a.schema.Definitions(),
	})
}

func (a *app) predictHandler(c *gin.Context) {
	wantExplain, err := queryBool(c, "explain")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid explain flag"})
		return
	}

	rec, ok := a.bindRecord(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	res, err := a.predictor.Predict(ctx, rec)
	if err != nil {
		a.fail(c, err, nil)
		return
	}
	resp := newPredictResponse(res, rec)

	if wantExplain {
		ex, err := a.explainer.Explain(ctx, rec)
		if err != nil {
			a.recordAudit(c, res, false)
			a.fail(c, err, gin.H{"prediction": resp})
			return
		}
		resp.Explanation = &ex
		resp.Caption = report.ChartCaption
	}

	a.recordAudit(c, res, wantExplain)
	c.JSON(http.StatusOK, resp)
}

func (a *app) chartHandler(c *gin.Context) {
	format := c.DefaultQuery("format", "html")
	if format != "html" && format != "png" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be html or png"})
		return
	}

	rec, ok := a.bindRecord(c)
	if !ok {
		return
	}

	ex, err := a.explainer.Explain(c.Request.Context(), rec)
	if err != nil {
		a.fail(c, err, nil)
		return
	}

	if format == "png" {
		img, err := a.renderPNG(c.Request.Context(), ex, chartTitle)
		if err != nil {
			_ = c.Error(err)
			status := http.StatusInternalServerError
			if errors.Is(err, report.ErrHeadlessUnavailable) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": "render_failed", "details": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", img)
		return
	}

	var page bytes.Buffer
	if err := report.RenderChart(&page, ex, chartTitle); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failed", "details": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page.Bytes())
}

// bindRecord decodes a flat JSON object of feature values, or a urlencoded
// form whose empty fields fall back to the defaults, and validates it. It
// writes the error response itself and reports whether to continue.
func (a *app) bindRecord(c *gin.Context) (intake.Record, bool) {
	if c.ContentType() == binding.MIMEPOSTForm {
		if err := c.Request.ParseForm(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form", "details": err.Error()})
			return intake.Record{}, false
		}
		rec, err := intake.Collect(a.schema, intake.WithDefaults(intake.FormValues(c.Request.PostForm), a.schema))
		if err != nil {
			a.fail(c, err, nil)
			return intake.Record{}, false
		}
		return rec, true
	}

	var payload intake.Values
	if err := c.ShouldBindJSON(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return intake.Record{}, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
		return intake.Record{}, false
	}

	rec, err := intake.Collect(a.schema, payload)
	if err != nil {
		a.fail(c, err, nil)
		return intake.Record{}, false
	}
	return rec, true
}

// fail maps the typed service errors onto HTTP responses. extra is merged
// into the body.
func (a *app) fail(c *gin.Context, err error, extra gin.H) {
	_ = c.Error(err)

	status := http.StatusInternalServerError
	body := gin.H{"error": "internal_error", "details": err.Error()}

	var valErr *intake.ValidationError
	var infErr *predict.InferenceError
	var expErr *explain.ExplanationError
	switch {
	case errors.As(err, &valErr):
		status = http.StatusUnprocessableEntity
		body = gin.H{"error": "validation_failed", "feature": valErr.Feature, "details": valErr.Reason}
	case errors.As(err, &infErr):
		body = gin.H{"error": "inference_failed", "details": err.Error(), "hint": report.MismatchHint}
	case errors.As(err, &expErr):
		body = gin.H{"error": "explanation_failed", "details": err.Error()}
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

// recordAudit never fails the request; a broken audit store is only logged.
func (a *app) recordAudit(c *gin.Context, res predict.Result, explained bool) {
	if a.auditor == nil {
		return
	}
	entry, err := a.auditor.Record(c.Request.Context(), audit.Entry{
		ModelVersion: res.ModelVersion,
		Probability:  res.Probability,
		Verdict:      string(res.Verdict),
		Explained:    explained,
	})
	if err != nil {
		a.log.Warn("audit record failed", zap.String("request_id", c.GetString(requestIDHeader)), zap.Error(err))
		return
	}
	a.log.Debug("audit recorded", zap.String("audit_id", entry.ID.String()))
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
