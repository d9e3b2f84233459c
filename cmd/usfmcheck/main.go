// Command usfmcheck validates and repairs USFM scripture files.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/mattn/go-isatty"

	"github.com/FocuswithJustin/usfmcheck/core/grammar"
	"github.com/FocuswithJustin/usfmcheck/internal/logging"
)

const version = "0.4.0"

// CLI defines the command-line interface for usfmcheck.
type CLI struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"warn" enum:"debug,info,warn,error"`
	LogFormat string `name:"log-format" help:"Log format; auto picks text on a terminal" default:"auto" enum:"auto,text,json"`

	Check   CheckCmd     `cmd:"" help:"Check USFM files, directories or bundles"`
	Grammar GrammarGroup `cmd:"" help:"Inspect the tag grammar"`
	Store   StoreGroup   `cmd:"" help:"Query stored check runs"`
	Version VersionCmd   `cmd:"" help:"Print version information"`
}

// AfterApply configures logging once flags are parsed.
func (c *CLI) AfterApply() error {
	format := logging.FormatJSON
	switch c.LogFormat {
	case "text":
		format = logging.FormatText
	case "auto":
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = logging.FormatText
		}
	}
	logging.InitLogger(logging.ParseLevel(c.LogLevel), format)
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("usfmcheck version %s\n", version)
	return nil
}

// loadGrammar returns the embedded grammar or the one at path.
func loadGrammar(path string) (*grammar.Registry, error) {
	if path == "" {
		return grammar.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return grammar.Load(f, path)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("usfmcheck"),
		kong.Description("USFM validation and repair"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
