package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/slack-go/slack"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/webvitals/admin/internal/report"
	"github.com/malbeclabs/webvitals/api/backend"
	"github.com/malbeclabs/webvitals/api/config"
	"github.com/malbeclabs/webvitals/api/db"
	"github.com/malbeclabs/webvitals/api/logger"
	"github.com/malbeclabs/webvitals/api/vitals"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Commands
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Run ClickHouse database migrations using goose")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show ClickHouse database migration status")
	reportFlag := flag.Bool("report", false, "Print a Core Web Vitals report for one or more pages")

	// Report options
	urlsFlag := flag.StringSlice("url", nil, "Page URL to report on (repeatable)")
	likeFlag := flag.Bool("like", false, "Match URLs with LIKE instead of equality")
	accountIDFlag := flag.Int64("account-id", 0, "Account ID (or set VITALS_ACCOUNT_ID env var)")
	timeRangeFlag := flag.Duration("time-range", vitals.DefaultWindow, "How far back to look")
	slackWebhookFlag := flag.String("slack-webhook", "", "Also post the report to this Slack incoming webhook (or set SLACK_WEBHOOK_URL env var)")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if envSlackWebhook := os.Getenv("SLACK_WEBHOOK_URL"); envSlackWebhook != "" && *slackWebhookFlag == "" {
		*slackWebhookFlag = envSlackWebhook
	}

	// Environment variables override flags.
	chCfg := config.ClickHouseConfig{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}.WithEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *clickhouseMigrateFlag {
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate")
		}
		return db.RunMigrations(ctx, log, chCfg.Migration())
	}

	if *clickhouseMigrateStatusFlag {
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-status")
		}
		return db.MigrationStatus(ctx, log, chCfg.Migration())
	}

	if *reportFlag {
		if len(*urlsFlag) == 0 {
			return fmt.Errorf("--url is required for --report")
		}
		if *accountIDFlag == 0 {
			if raw := os.Getenv("VITALS_ACCOUNT_ID"); raw != "" {
				if _, err := fmt.Sscan(raw, accountIDFlag); err != nil {
					return fmt.Errorf("invalid VITALS_ACCOUNT_ID: %w", err)
				}
			}
		}

		if err := config.LoadVitals(); err != nil {
			return err
		}

		var conn driver.Conn
		if config.Vitals.Backend == config.BackendClickHouse {
			if chCfg.Addr == "" {
				return fmt.Errorf("--clickhouse-addr is required for the clickhouse backend")
			}
			c, err := config.OpenClickHouse(ctx, log, chCfg)
			if err != nil {
				return err
			}
			defer c.Close()
			conn = c
		}

		executor, closeExecutor, err := backend.NewExecutor(log, config.Vitals, conn)
		if err != nil {
			return err
		}
		defer func() { _ = closeExecutor() }()

		svc, err := vitals.NewService(vitals.ServiceConfig{
			Logger:         log,
			Executor:       executor,
			QueryTimeout:   config.Vitals.QueryTimeout,
			MaxConcurrency: config.Vitals.MaxConcurrency,
		})
		if err != nil {
			return err
		}

		inputs := make([]vitals.Inputs, len(*urlsFlag))
		for i, u := range *urlsFlag {
			inputs[i] = vitals.Inputs{
				TargetURL: strings.TrimSpace(u),
				UseLike:   *likeFlag,
				AccountID: *accountIDFlag,
				TimeRange: vitals.LastDuration(*timeRangeFlag),
			}
		}

		panels := svc.Panels(ctx, inputs)
		pages := make([]report.Page, len(panels))
		for i, p := range panels {
			pages[i] = report.Page{URL: inputs[i].TargetURL, Like: inputs[i].UseLike, Panel: p}
		}

		if err := report.WriteText(os.Stdout, pages); err != nil {
			return err
		}

		if *slackWebhookFlag != "" {
			postCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := slack.PostWebhookContext(postCtx, *slackWebhookFlag, report.WebhookMessage(pages)); err != nil {
				return fmt.Errorf("failed to post report to slack: %w", err)
			}
			log.Info("posted report to slack", "pages", len(pages))
		}
		return nil
	}

	flag.Usage()
	return nil
}
