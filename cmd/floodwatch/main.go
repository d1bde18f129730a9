package main

import (
	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
)

// Globals are settings shared by every command. Each can come from a flag,
// the environment or the .env file.
type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`

	DBPath           string   `name:"db" env:"DB_PATH" default:"data/floodwatch.db" help:"Path to SQLite database."`
	ModelPath        string   `name:"model" env:"MODEL_PATH" default:"artifacts/risk_model.json" help:"Path to the risk model artifact."`
	VerifiedHotspots string   `name:"verified" env:"VERIFIED_HOTSPOTS" default:"data/verified_hotspots.csv" help:"CSV of verified historical hotspots."`
	RainfallCSV      string   `name:"rainfall-csv" env:"RAINFALL_CSV" help:"Ground truth rainfall CSV, local path or ftp:// URL."`
	Pumps            string   `name:"pumps" env:"PUMPS_CSV" help:"CSV of pump stations for dispatch logistics."`
	DatabaseURL      string   `name:"database-url" env:"DATABASE_URL" help:"Postgres URL to mirror predictions into."`
	KafkaBrokers     []string `name:"kafka-brokers" env:"KAFKA_BROKERS" sep:"," help:"Kafka brokers to publish predictions to."`
	KafkaTopic       string   `name:"kafka-topic" env:"KAFKA_TOPIC" default:"flood-hotspots" help:"Kafka topic for predictions."`
	OpenAIKey        string   `name:"openai-api-key" env:"OPENAI_API_KEY" help:"Enables generated briefings."`
	LogLevel         string   `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat        string   `name:"log-format" env:"LOG_FORMAT" default:"text" enum:"json,text" help:"Log format."`
	Timezone         string   `name:"timezone" env:"TIMEZONE" default:"Asia/Kolkata" help:"Timezone that defines today."`
}

type CLI struct {
	Globals

	Predict        PredictCmd        `cmd:"" help:"Predict waterlogging hotspots for a date."`
	Flush          FlushCmd          `cmd:"" help:"Delete stored predictions."`
	SyncMetrics    SyncMetricsCmd    `cmd:"" name:"sync-metrics" help:"Store the model artifact's evaluation metrics."`
	ImportRainfall ImportRainfallCmd `cmd:"" name:"import-rainfall" help:"Import station rainfall records from CSV."`
	Serve          ServeCmd          `cmd:"" help:"Serve the API and keep upcoming dates predicted."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("floodwatch"),
		kong.Description("Waterlogging hotspot forecasts for Delhi."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
