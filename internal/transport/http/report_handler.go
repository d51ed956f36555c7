package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"qeval/internal/app"
	apperrors "qeval/internal/errors"
	"qeval/internal/evaluation"
	"qeval/internal/timeseries"
)

// reportHandler serves the pieces of a run report.
type reportHandler struct {
	report       *app.RunReport
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

func newReportHandler(report *app.RunReport, logger *slog.Logger) *reportHandler {
	return &reportHandler{
		report:       report,
		logger:       logger,
		errorHandler: apperrors.NewErrorHandler(logger),
	}
}

// RegisterRoutes registers the report routes
func (h *reportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.GetHealth)
	r.Get("/metrics", h.GetMetrics)
	r.Get("/forecasts", h.GetForecasts)
	r.Get("/growth", h.GetGrowth)
}

// GetHealth reports run identity and table sizes
func (h *reportHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":       "ok",
		"run_id":       h.report.RunID,
		"generated_at": h.report.GeneratedAt,
		"series_len":   h.report.SeriesLen,
		"forecasts":    len(h.report.Aligned),
		"skipped_fits": len(h.report.Skipped),
	})
}

// GetMetrics returns the per-(model, horizon) accuracy table, optionally
// filtered by model.
func (h *reportHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows := h.report.Metrics
	if model := r.URL.Query().Get("model"); model != "" {
		filtered := make([]evaluation.MetricRow, 0, len(rows))
		for _, row := range rows {
			if row.Model == model {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	h.logger.InfoContext(ctx, "serving metrics", slog.Int("rows", len(rows)))
	render.JSON(w, r, map[string]any{
		"run_id":        h.report.RunID,
		"metrics":       rows,
		"missing_cells": h.report.MissingCells,
		"skipped":       h.report.Skipped,
	})
}

// GetForecasts returns aligned forecast records, optionally filtered by
// model and horizon.
func (h *reportHandler) GetForecasts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	model := r.URL.Query().Get("model")
	horizon := 0
	if raw := r.URL.Query().Get("horizon"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.logger.WarnContext(ctx, "invalid horizon filter", slog.String("horizon", raw))
			h.errorHandler.HandleError(w, r, apperrors.NewParsingError(
				"horizon must be a positive integer", err))
			return
		}
		horizon = parsed
	}

	records := make([]evaluation.AlignedRecord, 0, len(h.report.Aligned))
	for _, rec := range h.report.Aligned {
		if model != "" && rec.Model != model {
			continue
		}
		if horizon != 0 && rec.Horizon != horizon {
			continue
		}
		records = append(records, rec)
	}

	render.JSON(w, r, map[string]any{
		"run_id":    h.report.RunID,
		"forecasts": records,
	})
}

// GetGrowth returns the year-over-year growth table, optionally filtered by
// source ("actual" or a model name).
func (h *reportHandler) GetGrowth(w http.ResponseWriter, r *http.Request) {
	growth := h.report.Growth
	if source := r.URL.Query().Get("source"); source != "" {
		points, ok := growth[source]
		if !ok {
			h.errorHandler.HandleError(w, r, apperrors.NewParsingError(
				"unknown growth source "+source, nil))
			return
		}
		growth = map[string][]timeseries.GrowthPoint{source: points}
	}

	render.JSON(w, r, map[string]any{
		"run_id": h.report.RunID,
		"growth": growth,
	})
}
