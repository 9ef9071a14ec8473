package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nhatthm/webscraper/internal/app/cli"
	"github.com/nhatthm/webscraper/internal/fetcher"
	"github.com/nhatthm/webscraper/internal/frontier"
)

const (
	// defaultNumWorkers is the default value for number of workers.
	defaultNumWorkers = 10
	// defaultPollInterval is how long an idle worker waits for an url by default.
	defaultPollInterval = time.Second
	// defaultShutdownTimeout is how long the in-flight fetches may take after a stop by default.
	defaultShutdownTimeout = 30 * time.Second

	envPrefix = "WEBSCRAPER"

	examples = `  Fetch all the urls in path/to/file.txt:
    webscraper -p 24 -f path/to/file.txt

  Fetch all the urls in arguments:
    webscraper -p 10 https://google.com https://facebook.com

  Fetch all the urls in stdin:
    echo -n "https://google.com" | webscraper -p 10 -vv

  Expose the metrics while fetching:
    webscraper --metrics-addr :9090 -f path/to/file.txt

Note:
  - All urls must be absolute with an http or https scheme.
  - Every option can be set with an environment variable, for example
    WEBSCRAPER_PARALLEL=24, or in a config file given with --config.

Read more:
  - Time Duration format: https://golang.org/pkg/time/#ParseDuration`
)

// runFunc runs the application with a configuration.
type runFunc func(cfg cli.Config, inputSources ...any) cli.ExitCode

func main() {
	os.Exit(runMain(os.Args[1:], pipeFromStdIn(os.Stdin), os.Stdout, os.Stderr))
}

func runMain(args []string, stdin io.ReadCloser, out, errOut io.Writer) int {
	code := cli.CodeOK

	cmd := newRootCmd(viper.New(), stdin, out, errOut, func(cfg cli.Config, sources ...any) cli.ExitCode {
		cfg.Registry = newRegistry()

		code = cli.Run(cfg, sources...)

		return code
	})

	// Without args, cobra would read os.Args.
	if args == nil {
		args = []string{}
	}

	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(errOut, err.Error())

		return int(cli.CodeErrBadArgs)
	}

	return int(code)
}

// newRootCmd creates the command that reads the urls and fetches them.
//
// The options are read from the flags, then the environment variables prefixed with WEBSCRAPER_, then the config
// file, then the defaults.
func newRootCmd(v *viper.Viper, stdin io.ReadCloser, out, errOut io.Writer, run runFunc) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:     "webscraper [flags] [url1 url2 ... urlN]",
		Short:   "Fetch websites concurrently and report the responses.",
		Example: examples,

		SilenceUsage:  true,
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfig(v, cfgFile); err != nil {
				return err
			}

			cfg := loadConfig(v)
			cfg.OutWriter = out
			cfg.ErrWriter = errOut

			run(cfg, args, v.GetString("file"), stdin)

			return nil
		},
	}

	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.Flags()

	flags.StringVar(&cfgFile, "config", "", "Path to a config file (yaml, json or toml).")
	flags.StringP("file", "f", "", "Path to the input file that contains a list of urls, separated by '\\n'.\nThis option is used if no urls are provided.")
	flags.IntP("parallel", "p", defaultNumWorkers, "Number of workers.")
	flags.Int("capacity", frontier.DefaultCapacity, "Maximum number of pending urls.")
	flags.Duration("connect-timeout", fetcher.DefaultConnectTimeout, "Timeout for establishing a connection.")
	flags.Duration("poll-interval", defaultPollInterval, "How long an idle worker waits for an url.")
	flags.Duration("shutdown-timeout", defaultShutdownTimeout, "How long the in-flight fetches may take after a stop.")
	flags.Bool("dedupe", true, "Fetch every url only once.")
	flags.String("user-agent", "", "User agent of the requests.")
	flags.Bool("pretty", true, "Prettify the output.")
	flags.CountP("verbose", "v", "Print out the error log messages, -vv prints out all the log messages.")
	flags.Bool("very-verbose", false, "Print out all the log messages.")
	flags.String("log-file", "", "Path to a rotated file that also receives the log messages.")
	flags.String("metrics-addr", "", "Address of the metrics server, for example :9090. Disabled if empty.")

	_ = flags.MarkHidden("very-verbose") // nolint: errcheck

	// Keys use underscores so that they match the environment variables.
	for _, name := range []string{
		"file", "parallel", "capacity", "connect-timeout", "poll-interval", "shutdown-timeout", "dedupe",
		"user-agent", "pretty", "verbose", "very-verbose", "log-file", "metrics-addr",
	} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name)) // nolint: errcheck
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	return cmd
}

// readConfig reads the config file if any.
func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile == "" {
		return nil
	}

	v.SetConfigFile(cfgFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}

	return nil
}

// loadConfig builds the configuration of the application.
func loadConfig(v *viper.Viper) cli.Config {
	cfg := cli.Config{
		NumWorkers:      v.GetInt("parallel"),
		Capacity:        v.GetInt("capacity"),
		ConnectTimeout:  v.GetDuration("connect_timeout"),
		PollInterval:    v.GetDuration("poll_interval"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		NoDedupe:        !v.GetBool("dedupe"),
		UserAgent:       v.GetString("user_agent"),
		PrettyOutput:    v.GetBool("pretty"),
		VerbosityLevel:  cli.VerbosityLevelSilent,
		LogFile:         v.GetString("log_file"),
		MetricsAddr:     v.GetString("metrics_addr"),
	}

	switch verbose := v.GetInt("verbose"); {
	case verbose > 1 || v.GetBool("very_verbose"):
		cfg.VerbosityLevel = cli.VerbosityLevelDebug

	case verbose == 1:
		cfg.VerbosityLevel = cli.VerbosityLevelError
	}

	return cfg
}

// newRegistry creates the metrics registry with the runtime collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// Detect if stdin is piped from another process.
func pipeFromStdIn(in *os.File) io.ReadCloser {
	fi, err := in.Stat()
	if err != nil {
		// Just ignore because we do not know if it is a pipe or not.
		return nil
	}

	if (fi.Mode() & os.ModeNamedPipe) != 0 {
		return io.NopCloser(in)
	}

	return nil
}
