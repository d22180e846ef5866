// Command meliwatch runs the seller watchdog: one-shot stock scans and
// market comparisons from flags, or a long-running daemon that scans on a
// cron schedule.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/dmestre/meliwatch/internal/auth"
	"github.com/dmestre/meliwatch/internal/category"
	"github.com/dmestre/meliwatch/internal/concurrent"
	"github.com/dmestre/meliwatch/internal/config"
	"github.com/dmestre/meliwatch/internal/estimate"
	"github.com/dmestre/meliwatch/internal/meli"
	"github.com/dmestre/meliwatch/internal/ratelimit"
	"github.com/dmestre/meliwatch/internal/rival"
	"github.com/dmestre/meliwatch/internal/sales"
	"github.com/dmestre/meliwatch/internal/service"
	"github.com/dmestre/meliwatch/internal/stock"
	"github.com/dmestre/meliwatch/internal/store"
)

func main() {
	scanNow := flag.Bool("scan-now", false, "run one stock scan and exit")
	showReport := flag.Bool("last-report", false, "print the latest stock report and exit")
	listCategories := flag.Bool("categories", false, "list the seller's categories and exit")
	versusItem := flag.String("versus", "", "compare one of your listings (item id) against its rival and exit")
	reportCategory := flag.String("report", "", "build a market report for a category id and exit")
	month := flag.Int("month", 0, "month (1-12) for -report; 0 means the current month")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	db, err := store.NewRedisStore(store.RedisConfig{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("connecting to redis: %v", err)
	}
	defer db.Close()

	client := meli.NewClient(meli.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		SiteID:         cfg.Upstream.SiteID,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		RequestsPerSec: cfg.Upstream.RequestsPerSec,
		PublicLimiter:  ratelimit.NewLimiter(cfg.Upstream.PublicBurst, cfg.Upstream.PublicRefill),
	})

	log.Printf("meliwatch: upstream %s, site %s", client.BaseURL(), client.SiteID())

	tokens := auth.NewManager(client, db)
	fetcher := concurrent.NewFetcher(concurrent.Config{
		Workers:        cfg.Scan.FetchWorkers,
		RequestsPerSec: cfg.Upstream.RequestsPerSec,
	})

	svc := service.New(service.Deps{
		Accounts:        db,
		Reports:         db,
		API:             client,
		Tokens:          tokens,
		Scanner:         stock.NewScanner(db, db, client, tokens, fetcher),
		Discoverer:      category.NewDiscoverer(client, fetcher),
		Resolver:        rival.NewResolver(client),
		Comparator:      sales.NewComparator(client),
		Estimator:       estimate.NewEstimator(),
		PreferredUserID: cfg.Upstream.PreferredUserID,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case *scanNow:
		report, err := svc.TriggerScan(ctx)
		if err != nil {
			log.Fatalf("scan failed: %v", err)
		}
		printJSON(report)
	case *showReport:
		report, err := svc.LatestStockReport(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Fatal("no scan has run yet")
			}
			log.Fatalf("loading report: %v", err)
		}
		printJSON(report)
	case *listCategories:
		categories, err := svc.ListCategories(ctx)
		if err != nil {
			log.Fatalf("listing categories: %v", err)
		}
		printJSON(categories)
	case *versusItem != "":
		result, err := svc.Versus(ctx, *versusItem)
		if err != nil {
			if errors.Is(err, rival.ErrNoCandidate) {
				log.Fatalf("no competitor found for %s", *versusItem)
			}
			log.Fatalf("versus failed: %v", err)
		}
		printJSON(result)
	case *reportCategory != "":
		report, err := svc.CategoryReport(ctx, *reportCategory, *month)
		if err != nil {
			log.Fatalf("building report: %v", err)
		}
		printJSON(report)
	default:
		runDaemon(ctx, svc, cfg.Scan.Schedule)
	}
}

// runDaemon scans on the configured cron schedule until interrupted. An
// initial scan runs immediately so a fresh deployment has a report before
// the first tick.
func runDaemon(ctx context.Context, svc *service.Service, schedule string) {
	runScan(ctx, svc)

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { runScan(ctx, svc) }); err != nil {
		log.Fatalf("invalid scan schedule %q: %v", schedule, err)
	}
	c.Start()
	log.Printf("meliwatch: scanning on schedule %q", schedule)

	<-ctx.Done()
	log.Println("meliwatch: shutting down")
	<-c.Stop().Done()
}

func runScan(ctx context.Context, svc *service.Service) {
	report, err := svc.TriggerScan(ctx)
	if err != nil {
		if errors.Is(err, stock.ErrNoAccounts) {
			log.Println("scan skipped: no accounts linked")
			return
		}
		log.Printf("scan failed: %v", err)
		return
	}
	log.Printf("scan %s: %d listings out of stock, %d variants out of stock",
		report.ScanID, len(report.SinStockTotal), len(report.VariantesSinStock))
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encoding output: %v", err)
	}
}
