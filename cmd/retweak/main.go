package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/funnyzak/retweak/internal/config"
	"github.com/funnyzak/retweak/internal/logger"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// cli carries what every command needs
type cli struct {
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs
	v      *viper.Viper
}

func newRootCmd(stdout, stderr io.Writer, fs afero.Fs) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, fs: fs, v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "retweak <url>",
		Short: "Send a request once per value and report only what changes",
		Long: `retweak replaces the * marker in one part of a request (URL, method, header block
or data) with every value of a list, sends the requests and reports new status codes,
header values and response bodies as they appear.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.tweakRunner(nil),
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.StringP("data", "d", "", "Request data to send (<data>/@file)")
	flags.StringP("headers", "H", "", "Request headers to send (<headers>/@file)")
	flags.StringP("ignore-headers", "i", "", "Don't report changes in these headers (<names>/@file)")
	flags.BoolP("json", "j", false, "Write JSON responses to the output file (only with -o)")
	flags.BoolP("insecure", "k", false, "Allow insecure TLS connections")
	flags.StringP("list", "l", "", "List of values to try (<values>/@file)")
	flags.StringP("max-data", "m", "", "Don't report data when it's this size or larger (<size>B/KB)")
	flags.StringP("output", "o", "", "Write all responses to file")
	flags.BoolP("parallel", "p", false, "Send requests in parallel")
	flags.BoolP("quiet", "q", false, "Don't show banner and debugging info")
	flags.StringP("tweak", "t", "", `Part of the request to tweak ["url","method","header","data"]`)
	flags.StringP("method", "X", "", "Request method")
	flags.String("format", "", "Output file format (text, json, csv)")
	flags.Int("max-concurrent", 0, "Maximum requests in flight with --parallel (0 = unlimited)")
	flags.Int("timeout", 0, "Request timeout in seconds (0 = none)")
	flags.String("store", "", "Record every result in this SQLite database")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error, fatal, panic, disabled)")
	flags.String("log-format", "", "Log format on stderr (console, json)")
	flags.String("log-file", "", "Also write JSON logs to this rotating file")

	c.bindFlags(flags)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "hosts <url>",
			Short: "Test a bunch of values for the Host header",
			Args:  cobra.ExactArgs(1),
			RunE:  c.tweakRunner(hostsPreset),
		},
		&cobra.Command{
			Use:   "methods <url>",
			Short: "Test all HTTP methods",
			Args:  cobra.ExactArgs(1),
			RunE:  c.tweakRunner(methodsPreset),
		},
		&cobra.Command{
			Use:   "urls <url>",
			Short: "Test URL encodings",
			Args:  cobra.ExactArgs(1),
			RunE:  c.tweakRunner(urlsPreset),
		},
		c.historyCmd(),
		c.configCmd(),
		c.versionCmd(),
	)

	return rootCmd
}

func (c *cli) bindFlags(flags *pflag.FlagSet) {
	bindings := map[string]string{
		"request.data":            "data",
		"request.headers":         "headers",
		"request.list":            "list",
		"request.tweak":           "tweak",
		"request.method":          "method",
		"report.ignore_headers":   "ignore-headers",
		"report.max_data":         "max-data",
		"report.quiet":            "quiet",
		"transport.insecure":      "insecure",
		"transport.timeout":       "timeout",
		"output.path":             "output",
		"output.format":           "format",
		"dispatch.max_concurrent": "max-concurrent",
		"storage.path":            "store",
		"log.level":               "log-level",
		"log.format":              "log-format",
	}
	for key, name := range bindings {
		_ = c.v.BindPFlag(key, flags.Lookup(name))
	}
}

// loadConfig loads the configuration and applies the flags that have no direct key
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadConfig(configPath, c.v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if asJSON, err := cmd.Flags().GetBool("json"); err == nil && asJSON {
		cfg.Output.Format = config.FormatJSON
	}
	if parallel, err := cmd.Flags().GetBool("parallel"); err == nil && parallel {
		cfg.Dispatch.Mode = config.ModeConcurrent
	}
	if logFile, err := cmd.Flags().GetString("log-file"); err == nil && logFile != "" {
		cfg.Log.FileLogging.Enable = true
		cfg.Log.FileLogging.Path = logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *cli) tweakRunner(p *preset) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := c.loadConfig(cmd)
		if err != nil {
			return err
		}

		a := &app{
			stdout: c.stdout,
			stderr: c.stderr,
			fs:     c.fs,
			log:    logger.New(c.stderr, &cfg.Log, cfg.Log.Format == "json"),
		}
		_, err = a.run(cmd.Context(), cfg, args[0], p)
		return err
	}
}

func (c *cli) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			return cfg.Dump(c.stdout)
		},
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.stdout, "retweak version %s\n", version)
			fmt.Fprintf(c.stdout, "Commit: %s\n", commit)
			fmt.Fprintf(c.stdout, "Built: %s\n", buildDate)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr, afero.NewOsFs()).ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(1)
	}
}
