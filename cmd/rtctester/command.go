package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"rtctester/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// options holds the command-line flags. Numeric values are strings so that
// malformed input falls back to the documented defaults instead of failing.
type options struct {
	configPath       string
	url              string
	clients          string
	interval         string
	reportInterval   string
	lifetime         string
	logLevel         string
	logFormat        string
	statusAddress    string
	redisAddress     string
	stopOnCompletion bool
	noColor          bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	cmd, _ := buildCommand(out)
	return cmd
}

func buildCommand(out io.Writer) (*cobra.Command, *options) {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "rtctester <url> [clients] [connection_interval_ms] [report_interval_ms] [lifetime_s]",
		Short: "WebRTC load tester",
		Long: `rtctester starts a fleet of simulated WebRTC viewers against a websocket
signaling endpoint, staggers their startup and prints periodic and final
reports of connection states, delay, GOP, frame rate and bit rate.

Non-numeric or negative values fall back to the defaults: 1 client, 100 ms
between connections, a summary every 5000 ms and no lifetime limit.

Examples:
  rtctester ws://localhost:3333/app/stream
  rtctester ws://localhost:3333/app/stream 50 100 5000 60
  rtctester --url wss://example.com/app/stream -n 10 --lifetime 30
  rtctester --config configs/rtctester.yaml`,
		Version:      version,
		Args:         cobra.RangeArgs(0, 5),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts, args, cmd.Flags())
			if err != nil {
				cmd.PrintErrln(cmd.UsageString())
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, out, !opts.noColor)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	f.StringVarP(&opts.url, "url", "u", "", "signaling URL (ws, wss, http or https)")
	f.StringVarP(&opts.clients, "clients", "n", "", "number of clients")
	f.StringVarP(&opts.interval, "interval", "i", "", "milliseconds between client starts")
	f.StringVarP(&opts.reportInterval, "report-interval", "r", "", "milliseconds between summaries")
	f.StringVarP(&opts.lifetime, "lifetime", "l", "", "seconds to run, 0 runs until interrupted")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "", "log format (console or json)")
	f.StringVar(&opts.statusAddress, "status-address", "", "serve /health, /metrics and /api/v1/summary on this address")
	f.StringVar(&opts.redisAddress, "redis-address", "", "publish reports to redis at this address")
	f.BoolVar(&opts.stopOnCompletion, "stop-on-completion", true, "end the run once every client has finished")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored client names in the final report")

	return cmd, opts
}

// resolveConfig layers defaults, the config file, environment, positional
// arguments and flags, in that order, and validates the result.
func resolveConfig(opts *options, args []string, flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	positional := func(i int) (string, bool) {
		if i < len(args) {
			return args[i], true
		}
		return "", false
	}
	if v, ok := positional(0); ok {
		cfg.Test.URL = v
	}
	if v, ok := positional(1); ok {
		cfg.Test.Clients = config.ParseIntOr(v, config.DefaultClients)
	}
	if v, ok := positional(2); ok {
		cfg.Test.ConnectionInterval = config.Milliseconds(v, config.DefaultConnectionInterval)
	}
	if v, ok := positional(3); ok {
		cfg.Test.ReportInterval = config.Milliseconds(v, config.DefaultReportInterval)
	}
	if v, ok := positional(4); ok {
		cfg.Test.Lifetime = config.Seconds(v, 0)
	}

	if flags.Changed("url") {
		cfg.Test.URL = opts.url
	}
	if flags.Changed("clients") {
		cfg.Test.Clients = config.ParseIntOr(opts.clients, config.DefaultClients)
	}
	if flags.Changed("interval") {
		cfg.Test.ConnectionInterval = config.Milliseconds(opts.interval, config.DefaultConnectionInterval)
	}
	if flags.Changed("report-interval") {
		cfg.Test.ReportInterval = config.Milliseconds(opts.reportInterval, config.DefaultReportInterval)
	}
	if flags.Changed("lifetime") {
		cfg.Test.Lifetime = config.Seconds(opts.lifetime, 0)
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}
	if flags.Changed("status-address") {
		cfg.Monitoring.Enabled = opts.statusAddress != ""
		cfg.Monitoring.Address = opts.statusAddress
	}
	if flags.Changed("redis-address") {
		cfg.Redis.Enabled = opts.redisAddress != ""
		cfg.Redis.Address = opts.redisAddress
	}
	if flags.Changed("stop-on-completion") {
		cfg.Test.StopOnCompletion = opts.stopOnCompletion
	}
	// A zero report interval cannot drive a ticker.
	if cfg.Test.ReportInterval <= 0 {
		cfg.Test.ReportInterval = config.DefaultReportInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
