// Package app wires command line options to the timespan resolver, a calendar provider,
// the aggregator and the renderer.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/viant/calcatime/aggregate"
	"github.com/viant/calcatime/calendar"
	"github.com/viant/calcatime/logging"
	"github.com/viant/calcatime/render"
	"github.com/viant/calcatime/timespan"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// App runs one calcatime invocation.
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	// Now anchors timespan resolution; defaults to time.Now.
	Now func() time.Time
	// NewClient builds the calendar client; defaults to NewClient.
	NewClient ClientFactory
	// LoadSecret resolves --secret and --azure-ref; defaults to scy.
	LoadSecret SecretLoader
}

// New returns an App writing to stdout and stderr with the default provider wiring.
func New(stdout, stderr io.Writer) *App {
	return &App{Stdout: stdout, Stderr: stderr, Now: time.Now, NewClient: NewClient, LoadSecret: loadSecret}
}

// Main parses argv, runs the report and returns the process exit code.
func (a *App) Main(ctx context.Context, argv []string) int {
	opts, err := a.Parse(argv)
	if err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			return ExitOK
		}
		return ExitUsage
	}
	if opts.Version {
		fmt.Fprintf(a.Stdout, "calcatime %s\n", Version)
		return ExitOK
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if err := a.Run(ctx, opts); err != nil {
		a.printError(err, opts.Debug)
		return ExitError
	}
	return ExitOK
}

// Parse reads options from argv; help and parse errors are printed by go-flags.
func (a *App) Parse(argv []string) (*Options, error) {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "calcatime"
	parser.Usage = usage
	parser.LongDescription = longDescription
	if _, err := parser.ParseArgs(argv); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(a.Stdout, err)
		} else {
			fmt.Fprintln(a.Stderr, err)
		}
		return nil, err
	}
	return opts, nil
}

// Run resolves the timespan, fetches events, aggregates and renders them.
func (a *App) Run(ctx context.Context, opts *Options) error {
	logger := logging.New(a.Stderr, opts.Debug)
	ctx, logger = logging.WithCID(ctx, logger)

	opts.applyEnv()
	if err := a.resolveSecrets(ctx, opts); err != nil {
		return err
	}
	uri, err := a.validate(opts)
	if err != nil {
		return err
	}
	spec, err := opts.GroupSpec()
	if err != nil {
		return err
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	r, err := timespan.Resolve(opts.Args.Timespan, now())
	if err != nil {
		return err
	}
	logger = logger.With(slog.String(logging.KeyProvider, string(uri.Provider)), slog.String(logging.KeyServer, uri.Server))
	logger.Debug("resolved timespan", slog.String(logging.KeyRange, r.String()), slog.String("group_by", spec.String()))

	factory := a.NewClient
	if factory == nil {
		factory = NewClient
	}
	client, err := factory(ctx, Provider{
		URI:         uri,
		Credentials: calendar.Credentials{Domain: opts.Domain, Username: opts.Username, Password: opts.Password},
		ClientID:    opts.ClientID,
		TenantID:    opts.TenantID,
		Storage:     opts.Storage,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	events, err := client.Events(ctx, r)
	if err != nil {
		logger.Debug("fetch failed", logging.Err(err))
		return err
	}
	logger.Debug("fetched events", slog.Int(logging.KeyCount, len(events)))

	rows, err := aggregate.Aggregate(events, r, spec, opts.IncludeZero)
	if err != nil {
		return err
	}
	return render.Write(a.Stdout, rows, opts.Format())
}

func (a *App) validate(opts *Options) (calendar.URI, error) {
	if strings.TrimSpace(opts.Calendar) == "" {
		return calendar.URI{}, fmt.Errorf("%w: missing -c <calendar_uri>", calendar.ErrInvalidURI)
	}
	uri, err := calendar.ParseURI(opts.Calendar)
	if err != nil {
		return calendar.URI{}, err
	}
	if opts.Username == "" || opts.Password == "" {
		return calendar.URI{}, fmt.Errorf("%w: missing -u <username> or -p <password>", calendar.ErrAuthentication)
	}
	return uri, nil
}

// printError writes the error line; debug adds every wrapped cause.
func (a *App) printError(err error, debug bool) {
	fmt.Fprintf(a.Stderr, "Error: %v\n", err)
	if !debug {
		return
	}
	for _, cause := range causes(err) {
		fmt.Fprintf(a.Stderr, "  caused by: %v\n", cause)
	}
}

// causes walks the wrap tree of err depth-first, skipping err itself.
func causes(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, c := range u.Unwrap() {
				out = append(out, c)
				walk(c)
			}
		case interface{ Unwrap() error }:
			if c := u.Unwrap(); c != nil {
				out = append(out, c)
				walk(c)
			}
		}
	}
	walk(err)
	return out
}
