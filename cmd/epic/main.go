package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	embodiedflows "github.com/superdango/embodied-flows"
	"github.com/superdango/embodied-flows/internal/aws"
	"github.com/superdango/embodied-flows/internal/cache"
	"github.com/superdango/embodied-flows/internal/demo"
	"github.com/superdango/embodied-flows/internal/gcp"
	"github.com/superdango/embodied-flows/internal/must"
	"github.com/superdango/embodied-flows/internal/postgres"
	"github.com/superdango/embodied-flows/internal/project"
	"github.com/superdango/embodied-flows/internal/server"
	"github.com/superdango/embodied-flows/model/catalog"
	"github.com/superdango/embodied-flows/report"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env file: %s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])

		flag.PrintDefaults()

		fmt.Fprint(os.Stderr, "\nWithout -project nor -demo.enabled, an HTTP server is started on -listen.\n")
		fmt.Fprint(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprint(os.Stderr, "  EPIC_DATABASE_URL\n")
		fmt.Fprint(os.Stderr, "        default postgres dsn of the materials catalog\n")
		fmt.Fprint(os.Stderr, "  EPIC_AWS_ACCESS_KEY_ID, EPIC_AWS_SECRET_ACCESS_KEY\n")
		fmt.Fprint(os.Stderr, "        default static aws credentials of the s3 catalog\n")
		fmt.Fprint(os.Stderr, "  AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_PROFILE\n")
		fmt.Fprint(os.Stderr, "        aws credentials used to read a catalog on s3\n")
		fmt.Fprint(os.Stderr, "  GOOGLE_APPLICATION_CREDENTIALS\n")
		fmt.Fprint(os.Stderr, "        gcp credentials used to read a catalog on cloud storage\n")
	}

	flagProject := ""
	flagPeriod := 0.0
	flagFormat := ""
	flagWorkers := 0
	flagCatalogFile := ""
	flagCatalogGCS := ""
	flagCatalogS3 := ""
	flagCatalogAWSRoleArn := ""
	flagCatalogAWSRegion := ""
	flagCatalogAWSEndpoint := ""
	flagCatalogAWSAccessKey := ""
	flagCatalogAWSSecretKey := ""
	flagCatalogPostgres := ""
	flagCatalogPostgresSeed := false
	flagCatalogTTL := time.Duration(0)
	flagListen := ""
	flagDemoEnabled := false
	flagLogLevel := ""
	flagLogFormat := ""

	flag.StringVar(&flagProject, "project", "", "project document to analyze (json)")
	flag.Float64Var(&flagPeriod, "period", 0, "period of analysis in years, overrides the project period")
	flag.StringVar(&flagFormat, "format", "text", "output format (text, json, csv, openmetrics)")
	flag.IntVar(&flagWorkers, "workers", 1, "number of goroutines computing line items")
	flag.StringVar(&flagCatalogFile, "catalog.file", "", "materials catalog csv file")
	flag.StringVar(&flagCatalogGCS, "catalog.gcs", "", "materials catalog on cloud storage (gs://bucket/object or gs://bucket/prefix/)")
	flag.StringVar(&flagCatalogS3, "catalog.s3", "", "materials catalog on s3 (s3://bucket/key or s3://bucket/prefix/)")
	flag.StringVar(&flagCatalogAWSRoleArn, "catalog.aws.rolearn", "", "aws role arn to assume to read the s3 catalog")
	flag.StringVar(&flagCatalogAWSRegion, "catalog.aws.region", "us-east-1", "aws region of the s3 catalog")
	flag.StringVar(&flagCatalogAWSEndpoint, "catalog.aws.endpoint", "", "s3 compatible endpoint")
	flag.StringVar(&flagCatalogAWSAccessKey, "catalog.aws.accesskey", os.Getenv("EPIC_AWS_ACCESS_KEY_ID"), "static aws access key of the s3 catalog, bypasses the default credentials chain")
	flag.StringVar(&flagCatalogAWSSecretKey, "catalog.aws.secretkey", os.Getenv("EPIC_AWS_SECRET_ACCESS_KEY"), "static aws secret key of the s3 catalog")
	flag.StringVar(&flagCatalogPostgres, "catalog.postgres", os.Getenv("EPIC_DATABASE_URL"), "postgres dsn of the materials catalog")
	flag.BoolVar(&flagCatalogPostgresSeed, "catalog.postgres.seed", false, "create the materials table and load the embedded catalog into it")
	flag.DurationVar(&flagCatalogTTL, "catalog.ttl", 10*time.Minute, "duration before a remote catalog is reloaded")
	flag.StringVar(&flagListen, "listen", "0.0.0.0:2922", "addr to listen to")
	flag.BoolVar(&flagDemoEnabled, "demo.enabled", false, "analyze the demonstration project")
	flag.StringVar(&flagLogLevel, "log.level", "info", "log severity (debug, info, warn, error)")
	flag.StringVar(&flagLogFormat, "log.format", "text", "log format (text, json)")

	flag.Parse()

	initLogging(flagLogLevel, flagLogFormat)

	source, closeSource, err := setupCatalogSource(ctx, map[string]string{
		"catalog.file":          flagCatalogFile,
		"catalog.gcs":           flagCatalogGCS,
		"catalog.s3":            flagCatalogS3,
		"catalog.aws.rolearn":   flagCatalogAWSRoleArn,
		"catalog.aws.region":    flagCatalogAWSRegion,
		"catalog.aws.endpoint":  flagCatalogAWSEndpoint,
		"catalog.aws.accesskey": flagCatalogAWSAccessKey,
		"catalog.aws.secretkey": flagCatalogAWSSecretKey,
		"catalog.postgres":      flagCatalogPostgres,
		"catalog.postgres.seed": fmt.Sprint(flagCatalogPostgresSeed),
	}, flagCatalogTTL)
	if err != nil {
		slog.Error("failed to setup materials catalog", "err", err)
		os.Exit(1)
	}
	defer closeSource()

	analyzer := embodiedflows.NewAnalyzer(embodiedflows.WithWorkers(flagWorkers))

	if flagProject != "" || flagDemoEnabled {
		doc := demo.Project()
		if flagProject != "" {
			doc, err = project.Load(flagProject)
			if err != nil {
				slog.Error("failed to load project", "project", flagProject, "err", err)
				os.Exit(1)
			}
		}
		if flagPeriod > 0 {
			doc.Period = flagPeriod
		}

		if err := analyze(ctx, os.Stdout, source, analyzer, doc, flagFormat); err != nil {
			slog.Error("analysis failed", "kind", embodiedflows.ErrorKind(err), "err", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, flagListen, server.NewRouter(source, server.WithAnalyzer(analyzer))); err != nil {
		slog.Error("failed to run embodied flows server", "err", err)
		os.Exit(1)
	}
}

func initLogging(logLevel string, logFormat string) {
	switch logFormat {
	case "text":
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:   slogLevel(logLevel),
			NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
		})))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slogLevel(logLevel),
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				switch a.Key {
				case slog.LevelKey:
					a.Key = "severity"
					return a
				case slog.MessageKey:
					a.Key = "message"
					return a
				default:
					return a
				}
			},
		})))
	}
}

// setupCatalogSource returns the first configured catalog source. Remote
// sources are cached for ttl.
func setupCatalogSource(ctx context.Context, params map[string]string, ttl time.Duration) (catalog.Source, func(), error) {
	noop := func() {}

	switch {
	case params["catalog.postgres"] != "":
		db, err := postgres.Connect(ctx, params["catalog.postgres"])
		if err != nil {
			return nil, noop, err
		}
		if params["catalog.postgres.seed"] == "true" {
			if err := seed(ctx, db); err != nil {
				db.Close()
				return nil, noop, err
			}
		}
		return cache.NewCatalogSource(ctx, db.String(), db, ttl), db.Close, nil

	case params["catalog.s3"] != "":
		opts := []aws.SourceOption{
			aws.WithDefaultRegion(params["catalog.aws.region"]),
			aws.WithRoleArn(params["catalog.aws.rolearn"]),
		}
		if params["catalog.aws.endpoint"] != "" {
			opts = append(opts, aws.WithEndpoint(params["catalog.aws.endpoint"]))
		}
		if params["catalog.aws.accesskey"] != "" {
			opts = append(opts, aws.WithStaticCredentials(params["catalog.aws.accesskey"], params["catalog.aws.secretkey"]))
		}
		s3, err := aws.NewS3Source(ctx, params["catalog.s3"], opts...)
		if err != nil {
			return nil, noop, err
		}
		return cache.NewCatalogSource(ctx, s3.String(), s3, ttl), noop, nil

	case params["catalog.gcs"] != "":
		gcs, err := gcp.NewStorageSource(ctx, params["catalog.gcs"])
		if err != nil {
			return nil, noop, err
		}
		closer := func() {
			if err := gcs.Close(); err != nil {
				slog.Warn("failed to close storage client", "err", err)
			}
		}
		return cache.NewCatalogSource(ctx, gcs.String(), gcs, ttl), closer, nil

	case params["catalog.file"] != "":
		file := catalog.FileSource(params["catalog.file"])
		return cache.NewCatalogSource(ctx, "file", file, ttl), noop, nil
	}

	slog.Debug("using embedded materials catalog", "materials", catalog.Default().Len())
	return catalog.Embedded, noop, nil
}

func seed(ctx context.Context, db *postgres.Source) error {
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	records := catalog.Default().Records()
	if err := db.Upsert(ctx, records); err != nil {
		return err
	}
	slog.Info("materials catalog seeded", "materials", len(records))
	return nil
}

func analyze(ctx context.Context, w io.Writer, source catalog.Source, analyzer *embodiedflows.Analyzer, doc *project.Document, format string) error {
	materials, err := source.Load(ctx)
	if err != nil {
		return err
	}

	req, err := doc.Request(materials)
	if err != nil {
		return err
	}

	result, err := analyzer.Analyze(req)
	if err != nil {
		return err
	}
	if err := result.Verify(1e-9); err != nil {
		must.Assert(false, "analysis totals are not conserved", "err", err)
	}

	switch format {
	case "text":
		return report.Text(w, result)
	case "json":
		return must.PrintJSON(w, result)
	case "csv":
		return report.WriteCSV(w, result)
	case "openmetrics":
		return embodiedflows.WriteOpenMetrics(w, result)
	}
	return fmt.Errorf("unsupported format %q", format)
}

func serve(ctx context.Context, listen string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         listen,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		slog.Info("starting embodied flows server", "listen", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	errg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("stopping embodied flows server")
		return srv.Shutdown(shutdownCtx)
	})

	return errg.Wait()
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	return slog.LevelInfo
}
