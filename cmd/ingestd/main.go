// Command ingestd runs the schema-inferring ingest pipeline of spec.md as
// one process: load config, wire the relational/document backends, the WAL,
// metadata store, dead-letter queue, and orchestrator, optionally start the
// Kafka source adapter and the admin API, then serve until a SIGINT/SIGTERM.
// Overall shape follows the teacher's cmd/kafka-to-postgresql-v2/main.go:
// InitLogging / InitPrometheus / InitHealthCheck, then block for a signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schemaforge/schemaforge/internal/adminapi"
	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/config"
	"github.com/schemaforge/schemaforge/internal/deadletter"
	"github.com/schemaforge/schemaforge/internal/document"
	"github.com/schemaforge/schemaforge/internal/logging"
	"github.com/schemaforge/schemaforge/internal/metadata"
	"github.com/schemaforge/schemaforge/internal/metrics"
	"github.com/schemaforge/schemaforge/internal/migrate"
	"github.com/schemaforge/schemaforge/internal/orchestrator"
	"github.com/schemaforge/schemaforge/internal/relational"
	"github.com/schemaforge/schemaforge/internal/router"
	"github.com/schemaforge/schemaforge/internal/shutdown"
	"github.com/schemaforge/schemaforge/internal/source"
	"github.com/schemaforge/schemaforge/internal/wal"
)

// migratorRef breaks the construction cycle between relational.Client
// (which needs a Migrator at New) and migrate.Migrator (which needs the
// constructed relational.Client as its RelationalReader): relational.New is
// handed this empty box and only ever calls through it after main has
// filled in m, once both clients exist.
type migratorRef struct {
	m *migrate.Migrator
}

func (r *migratorRef) MigrateSQLColumnToDoc(ctx context.Context, table, column string) error {
	return r.m.MigrateSQLColumnToDoc(ctx, table, column)
}

func (r *migratorRef) MigrateDocToSQL(ctx context.Context, field string) error {
	return r.m.MigrateDocToSQL(ctx, field)
}

func main() {
	configFile := flag.String("config", "", "path to a YAML/JSON/TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	defer log.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.MetadataDir, 0o755); err != nil {
		log.Fatalw("create metadata dir", "dir", cfg.MetadataDir, "error", err)
	}

	var docClient *document.Client
	if cfg.Document.Database != "" {
		docClient, err = document.New(ctx, document.Config{
			Host: cfg.Document.Host, Port: cfg.Document.Port,
			Database: cfg.Document.Database, User: cfg.Document.User, Password: cfg.Document.Password,
		}, log)
		if err != nil {
			log.Fatalw("connect document backend", "error", err)
		}
	}

	var relClient *relational.Client
	mref := &migratorRef{}
	if cfg.Relational.Database != "" {
		relClient, err = relational.New(ctx, relational.Config{
			Host: cfg.Relational.Host, Port: cfg.Relational.Port, User: cfg.Relational.User,
			Password: cfg.Relational.Password, Database: cfg.Relational.Database, SSLMode: cfg.Relational.SSLMode,
		}, log, mref)
		if err != nil {
			log.Fatalw("connect relational backend", "error", err)
		}
	}
	if relClient == nil || docClient == nil {
		// The router always reconciles the relational schema and dispatches
		// to both clients per flush (spec.md §4.6), so both backends must be
		// configured; config.Load already rejects a config missing either —
		// see DESIGN.md's cmd/ingestd entry.
		log.Fatalw("both relational.database and document.database must be configured")
	}
	mref.m = migrate.New(relClient, docClient, cfg.TableName, log)

	rt := router.New(relClient, docClient, cfg.TableName)

	walStore, err := wal.Open(cfg.MetadataDir, log)
	if err != nil {
		log.Fatalw("open WAL", "error", err)
	}
	metaStore, err := metadata.New(cfg.MetadataDir, log)
	if err != nil {
		log.Fatalw("open metadata store", "error", err)
	}
	dlQueue, err := deadletter.Open(filepath.Join(cfg.MetadataDir, "deadletter"), log)
	if err != nil {
		log.Fatalw("open dead-letter queue", "error", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	thresholds := classify.Thresholds{
		MinPresence:      cfg.Placement.MinPresence,
		MinTypeStability: cfg.Placement.MinTypeStability,
		PKMinUnique:      cfg.PK.MinUnique,
	}

	orch, err := orchestrator.New(ctx, orchestrator.Config{
		BufferSize:      cfg.Buffer.Size,
		BufferTimeout:   cfg.Buffer.TimeoutSeconds,
		Table:           cfg.TableName,
		DeadLetterAfter: 8,
	}, orchestrator.Deps{
		WAL: walStore, Meta: metaStore, Router: rt, DeadLetter: dlQueue,
		Metrics: m, Log: log, Thresholds: thresholds,
	})
	if err != nil {
		log.Fatalw("start orchestrator", "error", err)
	}

	var kafkaSource *source.KafkaSource
	if cfg.Kafka.Enabled {
		kafkaSource, err = source.New(source.Config{
			Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic, GroupID: cfg.Kafka.GroupID,
		}, orch, log)
		if err != nil {
			log.Fatalw("start kafka source", "error", err)
		}
		go func() {
			if err := kafkaSource.Run(ctx); err != nil {
				log.Errorw("kafka source stopped", "error", err)
			}
		}()
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(100000))
	if relClient != nil {
		health.AddReadinessCheck("relational", func() error { return relClient.Ping(ctx) })
		health.AddLivenessCheck("relational", func() error { return relClient.Ping(ctx) })
	}
	if docClient != nil {
		health.AddReadinessCheck("document", func() error { return docClient.Ping(ctx) })
		health.AddLivenessCheck("document", func() error { return docClient.Ping(ctx) })
	}
	if kafkaSource != nil {
		health.AddLivenessCheck("kafka", kafkaSource.GetLivenessCheck())
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/healthz", http.HandlerFunc(health.LiveEndpoint))
		mux.Handle("/readyz", http.HandlerFunc(health.ReadyEndpoint))
		log.Infow("serving metrics and healthcheck", "addr", "0.0.0.0:8086")
		/* #nosec G114 */
		if err := http.ListenAndServe("0.0.0.0:8086", mux); err != nil {
			log.Errorw("metrics/healthcheck server stopped", "error", err)
		}
	}()

	var adminSrv *adminapi.Server
	if cfg.AdminAPI.Enabled {
		adminSrv = adminapi.New(orch, health, log)
		go func() {
			if err := adminSrv.Run(ctx, cfg.AdminAPI.Addr); err != nil {
				log.Errorw("admin API stopped", "error", err)
			}
		}()
	}

	sh := shutdown.New(log, 30*time.Second, func() error {
		cancel()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()

		if err := orch.Close(closeCtx); err != nil {
			log.Errorw("orchestrator close", "error", err)
		}
		if kafkaSource != nil {
			_ = kafkaSource.Close()
		}
		if err := walStore.Close(); err != nil {
			log.Errorw("WAL close", "error", err)
		}
		if err := dlQueue.Close(); err != nil {
			log.Errorw("dead-letter queue close", "error", err)
		}
		if relClient != nil {
			relClient.Close()
		}
		if docClient != nil {
			_ = docClient.Close(closeCtx)
		}
		return nil
	})
	sh.Wait()
}
