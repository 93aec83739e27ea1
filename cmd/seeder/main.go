package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	chclient "premiummeter/internal/adapters/clickhouse"
	"premiummeter/internal/adapters/config"
	"premiummeter/internal/adapters/kafka"
	pgclient "premiummeter/internal/adapters/postgres"
	"premiummeter/internal/domain/premium"
	"premiummeter/internal/domain/stock"
	chrepo "premiummeter/internal/repository/clickhouse"
	pgrepo "premiummeter/internal/repository/postgres"
	"premiummeter/migrations"
	"premiummeter/pkg/logger"
)

const insertChunk = 5000

func main() {
	tickers := flag.String("tickers", "AAPL,MSFT,SPY", "Comma-separated tickers to seed")
	spot := flag.String("spot", "100", "Starting underlying price")
	days := flag.Int("days", 30, "Days of history to generate")
	dryRun := flag.Bool("dry-run", false, "Generate records without writing them")
	publish := flag.Bool("publish", true, "Publish a premiums.ingested event per ticker when Kafka is enabled")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()

	startSpot, err := decimal.NewFromString(*spot)
	if err != nil || !startSpot.IsPositive() {
		log.Fatalf("invalid --spot %q", *spot)
	}

	list := parseTickers(*tickers)
	log.Infow("Starting seeder",
		"tickers", list,
		"days", *days,
		"dry_run", *dryRun,
		"database", cfg.ClickHouse.Database,
	)

	ctx := context.Background()
	now := time.Now().UTC()

	generated := make(map[string][]premium.Record, len(list))
	for i, ticker := range list {
		generated[ticker] = Synthesize(SyntheticConfig{
			Ticker:          ticker,
			Spot:            startSpot,
			StrikeStep:      decimal.NewFromInt(5),
			StrikesEachSide: 5,
			ExpiryOffsets:   []int{7, 14, 30, 45, 60, 90},
			Days:            *days,
			End:             now,
			Seed:            uint64(i + 1),
		})
		log.Infow("Generated records", "ticker", ticker, "records", humanize.Comma(int64(len(generated[ticker]))))
	}

	if *dryRun {
		log.Info("✅ Dry-run mode: nothing written")
		return
	}

	ch, err := chclient.NewClient(ctx, cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer ch.Close()

	if cfg.App.AutoMigrate {
		if _, err := migrations.Apply(ctx, migrations.ClickHouse, func(ctx context.Context, stmt string) error {
			return ch.Conn().Exec(ctx, stmt)
		}); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	records := chrepo.NewPremiumRecordRepository(ch.Conn())

	var stocks *pgrepo.StockRepository
	if cfg.Postgres.Enabled {
		pg, err := pgclient.NewClient(ctx, cfg.Postgres)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer pg.Close()
		stocks = pgrepo.NewStockRepository(pg.DB())
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled && *publish {
		producer = kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers}, log)
		defer producer.Close()
	}

	for _, ticker := range list {
		batch := generated[ticker]
		for start := 0; start < len(batch); start += insertChunk {
			end := min(start+insertChunk, len(batch))
			if err := records.InsertRecords(ctx, batch[start:end]); err != nil {
				log.Fatalf("Failed to insert records for %s: %v", ticker, err)
			}
		}

		if stocks != nil {
			if err := stocks.Upsert(ctx, &stock.Stock{Ticker: ticker, CompanyName: ticker, Status: stock.StatusActive}); err != nil {
				log.Fatalf("Failed to upsert stock %s: %v", ticker, err)
			}
		}

		if producer != nil {
			event := premium.IngestionEvent{Ticker: ticker, CollectedAt: now, RecordCount: len(batch)}
			if err := producer.Publish(ctx, kafka.TopicPremiumsIngested, ticker, event); err != nil {
				log.Warnw("Failed to publish ingestion event", "ticker", ticker, "error", err)
			}
		}

		log.Infow("✅ Ticker seeded", "ticker", ticker, "records", humanize.Comma(int64(len(batch))))
	}

	log.Info("✅ All tickers seeded")
}

// parseTickers splits, upper-cases and de-duplicates a comma-separated list
func parseTickers(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(s, ",") {
		t := strings.ToUpper(strings.TrimSpace(part))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
