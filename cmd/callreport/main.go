package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dennisdiepolder/monti/callreport/internal/aggregator"
	"github.com/dennisdiepolder/monti/callreport/internal/alerts"
	"github.com/dennisdiepolder/monti/callreport/internal/ingestion"
	"github.com/dennisdiepolder/monti/callreport/internal/metrics"
	"github.com/dennisdiepolder/monti/callreport/internal/report"
	"github.com/dennisdiepolder/monti/callreport/internal/sheet"
	"github.com/dennisdiepolder/monti/callreport/internal/types"
	"github.com/dennisdiepolder/monti/callreport/pkg/client"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

type options struct {
	format     string
	server     string
	token      string
	period     string
	queueNames string
	maxMB      int
	pushURL    string
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.format, "format", "text", "Output format: text|json|csv")
	flag.StringVar(&opts.server, "server", "", "Upload to this callreport server instead of processing locally")
	flag.StringVar(&opts.token, "token", os.Getenv("CALLREPORT_TOKEN"), "Bearer token for -server")
	flag.StringVar(&opts.period, "period", "", "Reporting period stored with uploaded rows")
	flag.StringVar(&opts.queueNames, "queue-names", "", "YAML file with extra queue display names")
	flag.IntVar(&opts.maxMB, "max-mb", 10, "Maximum file size in megabytes")
	flag.StringVar(&opts.pushURL, "push-url", "", "Pushgateway URL to push ingestion metrics to")
	flag.BoolVar(&opts.verbose, "v", false, "Log pipeline progress to stderr")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] FILE...\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	validFormats := map[string]bool{"text": true, "json": true, "csv": true}
	if !validFormats[opts.format] {
		fmt.Fprintf(os.Stderr, "Error: format must be one of: text, json, csv (got: %s)\n", opts.format)
		os.Exit(2)
	}
	if opts.maxMB <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -max-mb must be positive")
		os.Exit(2)
	}

	logger := zerolog.Nop()
	if opts.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	var (
		reports []report.Report
		failed  int
	)
	if opts.server != "" {
		reports, failed = uploadAll(opts, files)
	} else {
		var err error
		reports, failed, err = processAll(opts, files, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := printReports(os.Stdout, opts.format, reports); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d files failed\n", failed, len(files))
		os.Exit(1)
	}
}

func newProgressBar(n int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetVisibility(n > 1),
	)
}

// processAll runs the pipeline locally over every file. With more than one
// file a combined report over all records is appended.
func processAll(opts options, files []string, logger zerolog.Logger) ([]report.Report, int, error) {
	names, err := ingestion.LoadQueueNames(opts.queueNames)
	if err != nil {
		return nil, 0, err
	}

	m := metrics.New()
	processor := ingestion.NewProcessor(names, int64(opts.maxMB)<<20, logger)
	processor.SetRecorder(m)

	bar := newProgressBar(len(files), "processing")
	var (
		reports  []report.Report
		combined []types.CallRecord
		failed   int
	)
	for _, path := range files {
		result, err := processFile(processor, path)
		bar.Add(1)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		combined = append(combined, result.Records...)
		reports = append(reports, newReport(path, result.Summary))
	}
	bar.Finish()

	if len(reports) > 1 {
		reports = append(reports, newReport("all files", aggregator.Aggregate(combined)))
	}

	if opts.pushURL != "" {
		if err := push.New(opts.pushURL, "callreport").Gatherer(m.Registry()).Push(); err != nil {
			fmt.Fprintf(os.Stderr, "Error pushing to Pushgateway: %v\n", err)
		}
	}
	return reports, failed, nil
}

func processFile(processor *ingestion.Processor, path string) (*ingestion.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	payload, err := sheet.ReadPayload(f, processor.MaxBytes())
	if err != nil {
		return nil, err
	}
	return processor.Process(filepath.Base(path), payload)
}

// uploadAll sends every file to the server; the server applies its own
// alert thresholds
func uploadAll(opts options, files []string) ([]report.Report, int) {
	c := client.NewClient(opts.server, opts.token)
	bar := newProgressBar(len(files), "uploading")

	var (
		reports []report.Report
		failed  int
	)
	for _, path := range files {
		result, err := uploadFile(c, path, opts.period)
		bar.Add(1)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		reports = append(reports, report.Report{
			Source:  fmt.Sprintf("%s (upload %s)", path, result.UploadID),
			Summary: result.Summary,
			Alerts:  result.Alerts,
		})
	}
	bar.Finish()
	return reports, failed
}

func uploadFile(c *client.Client, path, period string) (*types.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return c.Upload(ctx, filepath.Base(path), f, period)
}

func newReport(source string, summary types.Summary) report.Report {
	return report.Report{
		Source:  source,
		Summary: summary,
		Alerts:  alerts.CheckQueueAlerts(summary.ByQueue, alerts.DefaultThresholds),
	}
}

func printReports(w io.Writer, format string, reports []report.Report) error {
	var (
		out string
		err error
	)
	switch format {
	case "json":
		out, err = report.FormatJSON(reports)
	case "csv":
		out, err = report.FormatCSV(reports)
	default:
		out = report.FormatText(reports)
	}
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
