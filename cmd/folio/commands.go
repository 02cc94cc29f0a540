package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/portfolio"
)

var commands = []subcommands.Command{
	&encodeCmd{},
	&decodeCmd{},
	&validateCmd{},
	&valueCmd{},
}

// openInput returns stdin for "" or "-", otherwise the named file.
func openInput(name string) (io.ReadCloser, error) {
	if name == "" || name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(name)
}

func readPositions(name string) ([]models.Position, error) {
	in, err := openInput(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return portfolio.ReadCSV(in)
}

type encodeCmd struct {
	baseURL string
}

func (*encodeCmd) Name() string     { return "encode" }
func (*encodeCmd) Synopsis() string { return "turn a CSV portfolio into a share link token" }
func (*encodeCmd) Usage() string {
	return `folio encode [-base <url>] [file.csv]

  Reads a position CSV (stdin when no file is given) and prints the
  share link token, or a full URL when -base is set.
`
}

func (c *encodeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.baseURL, "base", "", "Base URL to append the token to.")
}

func (c *encodeCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	positions, err := readPositions(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := encode(os.Stdout, positions, c.baseURL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func encode(w io.Writer, positions []models.Position, baseURL string) error {
	var (
		out string
		err error
	)
	if baseURL != "" {
		out, err = portfolio.ShareURL(baseURL, positions)
	} else {
		out, err = portfolio.EncodeLink(positions)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

type decodeCmd struct{}

func (*decodeCmd) Name() string     { return "decode" }
func (*decodeCmd) Synopsis() string { return "turn a share link token back into CSV" }
func (*decodeCmd) Usage() string {
	return `folio decode <token|url>

  Prints the positions carried by a share link as CSV. A full URL is
  accepted; the token is taken from its "portfolio" query parameter.
`
}

func (*decodeCmd) SetFlags(*flag.FlagSet) {}

func (*decodeCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := decode(os.Stdout, f.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func decode(w io.Writer, arg string) error {
	positions, err := portfolio.DecodeLink(portfolio.TokenFromURL(strings.TrimSpace(arg)))
	if err != nil {
		return err
	}
	return portfolio.WriteCSV(w, positions)
}

type validateCmd struct{}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "check a CSV portfolio for import errors" }
func (*validateCmd) Usage() string {
	return `folio validate [file.csv]

  Parses the CSV exactly as an import would and reports the first
  problem, or the number of positions and distinct tickers.
`
}

func (*validateCmd) SetFlags(*flag.FlagSet) {}

func (*validateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	positions, err := readPositions(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := summarize(os.Stdout, positions); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func summarize(w io.Writer, positions []models.Position) error {
	p, err := portfolio.New(positions...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "ok: %d positions, %d tickers\n", len(positions), len(p.Tickers()))
	return err
}

type valueCmd struct {
	config string
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "value a CSV portfolio against live market data" }
func (*valueCmd) Usage() string {
	return `folio value [-config <folio.toml>] [file.csv]

  Values the positions with the configured market data provider and
  prints the valuation as JSON.
`
}

func (c *valueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "Path to folio.toml (defaults to FOLIO_CONFIG).")
}

func (c *valueCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	positions, err := readPositions(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	a, err := app.NewApp(c.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	v, err := a.Analytics.Value(ctx, positions)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
