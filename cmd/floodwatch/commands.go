package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/floodwatch/internal/api"
	"github.com/lox/floodwatch/internal/briefing"
	"github.com/lox/floodwatch/internal/forecast"
	"github.com/lox/floodwatch/internal/geo"
	"github.com/lox/floodwatch/internal/jobs"
	"github.com/lox/floodwatch/internal/models"
	"github.com/lox/floodwatch/internal/render"
)

type PredictCmd struct {
	Date     string `arg:"" help:"Date to predict (YYYY-MM-DD)."`
	JSON     bool   `name:"json" help:"Print the result as JSON."`
	DryRun   bool   `name:"dry-run" help:"Predict without storing or publishing."`
	Map      string `name:"map" type:"path" help:"Write a PNG map of the hotspots to this file."`
	Briefing bool   `name:"briefing" help:"Print a generated briefing (needs OPENAI_API_KEY)."`
}

func (c *PredictCmd) Run(g *Globals) error {
	// Validate before touching the model or the database.
	date, err := forecast.ParseDate(c.Date)
	if err != nil {
		return err
	}

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := a.loadModel()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := a.newRunner(ctx, model)
	if err != nil {
		return err
	}
	out, err := runner.Run(ctx, date, jobs.RunOptions{DryRun: c.DryRun})
	if err != nil {
		return err
	}

	if c.Map != "" {
		img, err := render.Map(render.MapData{
			Date:       c.Date,
			RainfallMM: out.Result.Rainfall.RainfallMM,
			Hotspots:   out.Result.Hotspots,
		}, render.Options{Zones: geo.HighRiskZones})
		if err != nil {
			return fmt.Errorf("render map: %w", err)
		}
		if err := os.WriteFile(c.Map, img, 0o644); err != nil {
			return fmt.Errorf("write map: %w", err)
		}
		a.logger.Info("wrote map", "path", c.Map)
	}

	var brief string
	if c.Briefing {
		gen, err := briefing.NewGenerator(g.OpenAIKey, a.logger)
		if err != nil {
			return err
		}
		brief, err = gen.Generate(ctx, briefing.Input{
			Date:     c.Date,
			Rainfall: out.Result.Rainfall,
			Hotspots: out.Result.Hotspots,
		})
		if err != nil {
			return fmt.Errorf("briefing: %w", err)
		}
	}

	if c.JSON {
		return writeJSON(os.Stdout, c.Date, out, brief)
	}
	writeTable(os.Stdout, c.Date, out)
	if brief != "" {
		fmt.Fprintf(os.Stdout, "\n%s\n", brief)
	}
	return nil
}

type predictOutput struct {
	Date        string                     `json:"date"`
	RunID       string                     `json:"run_id"`
	Model       string                     `json:"model_version"`
	Rainfall    models.RainfallObservation `json:"rainfall"`
	Hotspots    []models.Hotspot           `json:"hotspots"`
	FailedSinks []string                   `json:"failed_sinks,omitempty"`
	Briefing    string                     `json:"briefing,omitempty"`
}

func writeJSON(w io.Writer, date string, out *jobs.Outcome, brief string) error {
	hotspots := out.Result.Hotspots
	if hotspots == nil {
		hotspots = []models.Hotspot{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(predictOutput{
		Date:        date,
		RunID:       out.Run.ID,
		Model:       out.Run.ModelVersion,
		Rainfall:    out.Result.Rainfall,
		Hotspots:    hotspots,
		FailedSinks: out.FailedSinks,
		Briefing:    brief,
	})
}

func writeTable(w io.Writer, date string, out *jobs.Outcome) {
	rain := out.Result.Rainfall
	fmt.Fprintf(w, "%s: %.1f mm (%s), %d hotspots\n", date, rain.RainfallMM, rain.Source, len(out.Result.Hotspots))
	if len(out.Result.Hotspots) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tSEVERITY\tCONFIDENCE\tLAT\tLNG\tRADIUS")
	for i, h := range out.Result.Hotspots {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.3f\t%.4f\t%.4f\t%dm\n",
			i+1, h.Name, h.Severity, h.ConfidenceScore, h.Lat, h.Lng, h.RadiusMeters)
	}
	tw.Flush()
}

type FlushCmd struct {
	Date string `name:"date" help:"Only flush this date (YYYY-MM-DD)."`
}

func (c *FlushCmd) Run(g *Globals) error {
	var date *time.Time
	if c.Date != "" {
		d, err := forecast.ParseDate(c.Date)
		if err != nil {
			return err
		}
		date = &d
	}

	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := jobs.Flush(a.store, date, a.logger)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d hotspots\n", n)
	return nil
}

type SyncMetricsCmd struct{}

func (c *SyncMetricsCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := a.loadModel()
	if err != nil {
		return err
	}
	md, err := jobs.SyncMetrics(model, a.store, a.logger)
	if err != nil {
		return err
	}
	fmt.Printf("stored metrics for %s (accuracy %.3f, f1 %.3f)\n", md.ModelVersion, md.Accuracy, md.F1Score)
	return nil
}

type ImportRainfallCmd struct {
	File string `arg:"" help:"CSV file or ftp:// URL to import."`
}

func (c *ImportRainfallCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := jobs.ImportRainfall(ctx, c.File, a.store, a.logger)
	if err != nil {
		return err
	}
	fmt.Printf("read %d records, imported %d, skipped %d\n", res.Read, res.Imported, res.Skipped)
	return nil
}

type ServeCmd struct {
	Addr       string `name:"addr" env:"HTTP_ADDR" default:":8080" help:"Address to listen on."`
	AdminToken string `name:"admin-token" env:"ADMIN_TOKEN" help:"Bearer token required to trigger predictions."`
	WarmDays   int    `name:"warm-days" default:"3" help:"Days ahead, today included, to keep predicted."`
	NoWarm     bool   `name:"no-warm" help:"Disable the background warmer."`
}

func (c *ServeCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := a.loadModel()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := a.newRunner(ctx, model)
	if err != nil {
		return err
	}
	if _, err := jobs.SyncMetrics(model, a.store, a.logger); err != nil && !errors.Is(err, jobs.ErrNoMetrics) {
		a.logger.Warn("could not sync model metrics", "error", err)
	}

	srv := api.NewServer(api.Config{
		Store:        a.store,
		Runner:       runner,
		Briefing:     a.newBriefing(),
		ModelVersion: model.Version(),
		AdminToken:   c.AdminToken,
		Logger:       a.logger,
	})

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return srv.Run(ctx, c.Addr)
	})
	if !c.NoWarm {
		warmer := jobs.NewWarmer(jobs.WarmerConfig{
			Runner:   runner,
			Days:     c.WarmDays,
			Janitor:  a.store,
			Location: a.loc,
			Logger:   a.logger,
		})
		grp.Go(func() error {
			warmer.Run(ctx)
			return nil
		})
	} else {
		a.logger.Info("warmer disabled (--no-warm)")
	}

	err = grp.Wait()
	a.logger.Info("shutdown complete")
	return err
}
