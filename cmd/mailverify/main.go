// Command mailverify checks email addresses from the command line.
//
// Usage:
//
//	mailverify user@example.com other@example.org
//	mailverify --csv contacts.csv --out checked.csv
//
// Addresses given as arguments produce one JSON verdict per line on stdout.
// With --csv, every row is validated in paced groups and the input columns
// are written back with the verdict columns appended.
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
	"time"

	flag "github.com/spf13/pflag"

	"github.com/studiocloud/mailverify/batch"
	"github.com/studiocloud/mailverify/internal/app"
	"github.com/studiocloud/mailverify/internal/config"
	"github.com/studiocloud/mailverify/internal/csvrecords"
	"github.com/studiocloud/mailverify/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configDir   string
	csvPath     string
	outPath     string
	logLevel    string
	nameserver  string
	smtpTimeout time.Duration
	dnsTimeout  time.Duration
	smtpPort    int
}

type verdictLine struct {
	Email   string `json:"email"`
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason"`
	MX      bool   `json:"mx"`
	DNS     bool   `json:"dns"`
	SPF     bool   `json:"spf"`
	Mailbox bool   `json:"mailbox"`
	SMTP    bool   `json:"smtp"`
}

// run returns the process exit code: 0 when every address is valid, 1 when
// any is not, 2 on usage or setup errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mailverify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.configDir, "config", "config", "directory containing config.yaml")
	fs.StringVar(&o.csvPath, "csv", "", "validate the email column of this CSV file")
	fs.StringVar(&o.outPath, "out", "", "write the CSV result here instead of stdout")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	fs.StringVar(&o.nameserver, "nameserver", "", "query this DNS server (host:port) instead of the system resolver")
	fs.DurationVar(&o.smtpTimeout, "smtp-timeout", 0, "bound on one SMTP probe")
	fs.DurationVar(&o.dnsTimeout, "dns-timeout", 0, "bound on one DNS lookup")
	fs.IntVar(&o.smtpPort, "smtp-port", 0, "SMTP port to probe")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if o.csvPath == "" && fs.NArg() == 0 {
		fmt.Fprintln(stderr, "error: give addresses as arguments or --csv FILE")
		fs.PrintDefaults()
		return 2
	}

	cfg, err := config.Load(o.configDir)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 2
	}
	applyFlags(cfg, fs, o)

	// stdout carries results, so logs go to stderr unless a file is configured.
	logCfg := logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		Format:    cfg.Logging.Format,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if logCfg.Output != "file" {
		logCfg.Output = "stderr"
	}
	log := logger.NewFromConfig(logCfg)

	svc, err := app.New(cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "failed to configure validator: %v\n", err)
		return 2
	}
	defer svc.Close()

	if o.csvPath != "" {
		return runCSV(ctx, svc.Runner, o, stdout, stderr)
	}
	return runAddresses(ctx, svc, fs.Args(), stdout, stderr)
}

func applyFlags(cfg *config.Config, fs *flag.FlagSet, o options) {
	if fs.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if fs.Changed("nameserver") {
		cfg.DNS.Nameserver = o.nameserver
	}
	if fs.Changed("smtp-timeout") {
		cfg.SMTP.Timeout = o.smtpTimeout
	}
	if fs.Changed("dns-timeout") {
		cfg.DNS.Timeout = o.dnsTimeout
	}
	if fs.Changed("smtp-port") {
		cfg.SMTP.Port = o.smtpPort
	}
}

func runAddresses(ctx context.Context, svc *app.Services, emails []string, stdout, stderr io.Writer) int {
	results, err := svc.Validator.ValidateMany(ctx, emails)
	if err != nil {
		fmt.Fprintf(stderr, "validation failed: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	code := 0
	for i, r := range results {
		if !r.Valid {
			code = 1
		}
		_ = enc.Encode(verdictLine{
			Email:   emails[i],
			Valid:   r.Valid,
			Reason:  r.Reason,
			MX:      r.Checks.MX,
			DNS:     r.Checks.DNS,
			SPF:     r.Checks.SPF,
			Mailbox: r.Checks.Mailbox,
			SMTP:    r.Checks.SMTP,
		})
	}
	return code
}

func runCSV(ctx context.Context, runner *batch.Runner, o options, stdout, stderr io.Writer) int {
	in, err := os.Open(o.csvPath)
	if err != nil {
		fmt.Fprintf(stderr, "open csv: %v\n", err)
		return 2
	}
	headers, rows, err := csvrecords.Read(in)
	in.Close()
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", o.csvPath, err)
		return 2
	}

	var records []batch.Record
	for ev := range runner.Run(ctx, rows, headers) {
		switch ev.Type {
		case batch.EventProgress:
			fmt.Fprintf(stderr, "\rvalidated %d/%d (%.0f%%)", ev.Progress.Processed, ev.Progress.Total, ev.Progress.Percent())
		case batch.EventComplete:
			fmt.Fprintln(stderr)
			records = ev.Records
		case batch.EventError:
			fmt.Fprintln(stderr)
			fmt.Fprintf(stderr, "%s: %v\n", o.csvPath, ev.Err)
			return 2
		}
	}
	if records == nil {
		// The run ended without a terminal event; only cancellation does that.
		fmt.Fprintln(stderr, "\ninterrupted")
		return 2
	}

	out := stdout
	if o.outPath != "" {
		f, err := os.Create(o.outPath)
		if err != nil {
			fmt.Fprintf(stderr, "create output: %v\n", err)
			return 2
		}
		defer f.Close()
		out = f
	}
	if err := csvrecords.Write(out, headers, records); err != nil {
		fmt.Fprintf(stderr, "write csv: %v\n", err)
		return 2
	}

	for _, rec := range records {
		if !rec.Result.Valid {
			return 1
		}
	}
	return 0
}
