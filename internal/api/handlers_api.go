package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lox/floodwatch/internal/forecast"
	"github.com/lox/floodwatch/internal/jobs"
	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/store"
)

const dateLayout = forecast.DateLayout

const recentPredictionDates = 10

func (s *Server) handleHealth(c *fiber.Ctx) error {
	health := HealthStatus{Status: "ok", ModelVersion: s.modelVersion}

	version, err := s.store.MigrationVersion()
	if err != nil {
		health.Errors = append(health.Errors, "schema: "+err.Error())
	}
	health.SchemaVersion = version

	failures, err := s.store.RecentRunErrors(5)
	if err != nil {
		health.Errors = append(health.Errors, "runs: "+err.Error())
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	var recent []store.PredictionRun
	for _, f := range failures {
		if f.StartedAt.After(cutoff) {
			recent = append(recent, f)
		}
	}
	if len(recent) > 0 {
		health.RecentFailures = newRunErrors(recent)
		health.Status = "degraded"
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}
	if health.Status != "ok" {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(health)
}

func parseDateParam(c *fiber.Ctx) (time.Time, string, error) {
	raw := c.Params("date")
	date, err := forecast.ParseDate(raw)
	if err != nil {
		return time.Time{}, raw, fiber.NewError(fiber.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
	}
	return date, raw, nil
}

// loadOrGenerate returns the stored hotspots for date, generating them first
// when the date has never been predicted. A failed generation is logged and
// yields an empty result rather than an error.
func (s *Server) loadOrGenerate(ctx context.Context, date time.Time) ([]models.StoredHotspot, bool, error) {
	stored, err := s.store.GetHotspots(date)
	if err != nil || len(stored) > 0 || s.runner == nil {
		return stored, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	s.logger.Info("no predictions stored, generating on demand", "date", date.Format(dateLayout))
	_, ran, err := s.runner.RunIfMissing(ctx, date)
	if err != nil {
		s.logger.Warn("on-demand generation failed", "date", date.Format(dateLayout), "error", err)
		return stored, false, nil
	}

	stored, err = s.store.GetHotspots(date)
	return stored, ran, err
}

func (s *Server) handlePredictionsForDate(c *fiber.Ctx) error {
	date, raw, err := parseDateParam(c)
	if err != nil {
		return err
	}
	stored, generated, err := s.loadOrGenerate(c.UserContext(), date)
	if err != nil {
		return err
	}
	return c.JSON(newPredictionsResponse(raw, stored, generated))
}

func (s *Server) handleGenerate(c *fiber.Ctx) error {
	if s.adminToken != "" {
		auth := c.Get(fiber.HeaderAuthorization)
		if auth == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization required")
		}
		if strings.TrimPrefix(auth, "Bearer ") != s.adminToken {
			return fiber.NewError(fiber.StatusForbidden, "Only authorities can trigger predictions")
		}
	}
	if s.runner == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Prediction generation is disabled")
	}

	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Date == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Date is required")
	}
	date, err := forecast.ParseDate(req.Date)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), generateTimeout)
	defer cancel()

	out, err := s.runner.Run(ctx, date, jobs.RunOptions{})
	if err != nil {
		s.logger.Error("prediction generation failed", "date", req.Date, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:     "Prediction generation failed",
			Status:    "error",
			DebugInfo: err.Error(),
		})
	}

	return c.JSON(GenerateResponse{
		Message:        "Prediction generated successfully",
		Date:           req.Date,
		Status:         "success",
		RunID:          out.Run.ID,
		HotspotCount:   len(out.Result.Hotspots),
		RainfallSource: out.Run.RainfallSource,
		FailedSinks:    out.FailedSinks,
	})
}

func (s *Server) handlePredictionStats(c *fiber.Ctx) error {
	stats, err := s.store.PredictionStats(recentPredictionDates)
	if err != nil {
		return err
	}
	return c.JSON(newStatsResponse(stats))
}

func (s *Server) handleModelMetrics(c *fiber.Ctx) error {
	md, err := s.store.LatestModelMetadata()
	if err != nil {
		return err
	}
	if md == nil {
		version := s.modelVersion
		if version == "" {
			version = "unknown"
		}
		return c.JSON(ModelMetricsResponse{
			CurrentVersion: version,
			Message:        "No model metadata available yet",
		})
	}
	return c.JSON(newModelMetricsResponse(md))
}

func (s *Server) handleRainfall(c *fiber.Ctx) error {
	date, raw, err := parseDateParam(c)
	if err != nil {
		return err
	}
	recs, err := s.store.GetRainfallStations(date)
	if err != nil {
		return err
	}
	return c.JSON(newRainfallResponse(raw, recs))
}

// runKey identifies the data a rendered artifact was built from.
func (s *Server) runKey(date time.Time, stored []models.StoredHotspot) string {
	if len(stored) > 0 {
		return stored[0].RunID
	}
	run, err := s.store.LatestSuccessfulRun(date)
	if err != nil || run == nil {
		return "none"
	}
	return run.RunID
}
