// Package briefing turns a day's hotspots into a short plain-language
// operations briefing using an OpenAI chat model.
package briefing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/floodwatch/internal/models"
)

const DefaultModel = "gpt-4o-mini"

// maxListed bounds how many hotspots go into the prompt.
const maxListed = 15

var ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")

const systemPrompt = `You write short operational briefings for Delhi's flood response teams.
Use plain language. Lead with the most severe locations. Mention pump dispatch
times when given. Do not invent locations or numbers that are not in the data.
Keep it under 180 words.`

type Generator struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

type Option func(*config)

type config struct {
	model   string
	reqOpts []option.RequestOption
}

func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithRequestOptions passes options through to the OpenAI client, such as a
// base URL.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) { c.reqOpts = append(c.reqOpts, opts...) }
}

func NewGenerator(apiKey string, logger *slog.Logger, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	cfg := config{model: DefaultModel}
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, cfg.reqOpts...)
	return &Generator{
		client: openai.NewClient(reqOpts...),
		model:  cfg.model,
		logger: logger,
	}, nil
}

type Input struct {
	Date     string
	Rainfall models.RainfallObservation
	Hotspots []models.Hotspot
}

// BuildPrompt renders the data the model is asked to summarise.
func BuildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", in.Date)
	fmt.Fprintf(&b, "Rainfall: %.1f mm", in.Rainfall.RainfallMM)
	if in.Rainfall.Source != "" {
		fmt.Fprintf(&b, " (source: %s)", in.Rainfall.Source)
	}
	b.WriteString("\n")

	if len(in.Hotspots) == 0 {
		b.WriteString("No waterlogging hotspots are predicted.\n")
		return b.String()
	}

	counts := make(map[models.Severity]int)
	for _, h := range in.Hotspots {
		counts[h.Severity]++
	}
	fmt.Fprintf(&b, "Hotspots: %d total, %d Critical, %d High, %d Medium, %d Low\n",
		len(in.Hotspots), counts[models.SeverityCritical], counts[models.SeverityHigh],
		counts[models.SeverityMedium], counts[models.SeverityLow])

	for i, h := range in.Hotspots {
		if i == maxListed {
			fmt.Fprintf(&b, "(%d more not listed)\n", len(in.Hotspots)-maxListed)
			break
		}
		fmt.Fprintf(&b, "%d. %s: %s, confidence %.2f, radius %d m, %d grid cells",
			i+1, h.Name, h.Severity, h.ConfidenceScore, h.RadiusMeters, h.RiskFactors.ClusterSize)
		if l := h.RiskFactors.Logistics; l != nil {
			fmt.Fprintf(&b, ", nearest pump %s %.1f km (~%d min)", l.ResourceName, l.DistanceKM, l.ResponseTimeMins)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Generate asks the model for a briefing. An empty hotspot list still gets a
// briefing so "all clear" days are reported too.
func (g *Generator) Generate(ctx context.Context, in Input) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(in)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("briefing completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no briefing returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty briefing returned")
	}

	g.logger.Info("generated briefing", "date", in.Date, "hotspots", len(in.Hotspots), "chars", len(text))
	return text, nil
}
