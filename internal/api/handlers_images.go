package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lox/floodwatch/internal/briefing"
	"github.com/lox/floodwatch/internal/geo"
	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/render"
)

func toHotspots(stored []models.StoredHotspot) []models.Hotspot {
	out := make([]models.Hotspot, len(stored))
	for i, h := range stored {
		out[i] = h.Hotspot
	}
	return out
}

// handleMap serves a PNG overview of a date's hotspots.
func (s *Server) handleMap(c *fiber.Ctx) error {
	date, raw, err := parseDateParam(c)
	if err != nil {
		return err
	}
	stored, _, err := s.loadOrGenerate(c.UserContext(), date)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("map:%s:%s:%d", raw, s.runKey(date, stored), len(stored))
	if data, ok := s.cache.Get(key); ok {
		return s.sendPNG(c, data)
	}

	data := render.MapData{Date: raw, Hotspots: toHotspots(stored)}
	if len(stored) > 0 {
		data.RainfallMM = stored[0].PredictedRainfallMM
	} else if run, err := s.store.LatestSuccessfulRun(date); err == nil && run != nil {
		data.RainfallMM = run.RainfallMM
	}

	img, err := render.Map(data, render.Options{Zones: geo.HighRiskZones})
	if err != nil {
		return err
	}
	s.cache.Set(key, img)
	return s.sendPNG(c, img)
}

func (s *Server) sendPNG(c *fiber.Ctx, data []byte) error {
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.Send(data)
}

// handleBriefing serves a generated plain-language briefing for a date.
// Briefings are cached per run and generated one at a time.
func (s *Server) handleBriefing(c *fiber.Ctx) error {
	if s.briefing == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Briefings are disabled")
	}
	date, raw, err := parseDateParam(c)
	if err != nil {
		return err
	}
	stored, _, err := s.loadOrGenerate(c.UserContext(), date)
	if err != nil {
		return err
	}

	key := "briefing:" + raw + ":" + s.runKey(date, stored)
	if text, ok := s.cache.Get(key); ok {
		return c.JSON(BriefingResponse{Date: raw, Briefing: string(text), HotspotCount: len(stored)})
	}

	s.briefMu.Lock()
	defer s.briefMu.Unlock()

	if text, ok := s.cache.Get(key); ok {
		return c.JSON(BriefingResponse{Date: raw, Briefing: string(text), HotspotCount: len(stored)})
	}

	in := briefing.Input{Date: raw, Hotspots: toHotspots(stored)}
	if run, err := s.store.LatestSuccessfulRun(date); err == nil && run != nil {
		in.Rainfall = models.RainfallObservation{RainfallMM: run.RainfallMM, Source: run.RainfallSource}
	} else if len(stored) > 0 {
		in.Rainfall = models.RainfallObservation{RainfallMM: stored[0].PredictedRainfallMM, Source: stored[0].RainfallSource}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), time.Minute)
	defer cancel()

	text, err := s.briefing.Generate(ctx, in)
	if err != nil {
		s.logger.Error("briefing generation failed", "date", raw, "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "Briefing generation failed")
	}
	s.cache.Set(key, []byte(text))
	return c.JSON(BriefingResponse{Date: raw, Briefing: text, HotspotCount: len(stored)})
}
