package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/control"
	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
	"github.com/abdul-hamid-achik/httpvcr/packages/journal"
	"github.com/abdul-hamid-achik/httpvcr/packages/metrics"
	"github.com/abdul-hamid-achik/httpvcr/packages/proxy"
	"github.com/abdul-hamid-achik/httpvcr/packages/transport"
	"github.com/abdul-hamid-achik/httpvcr/packages/vcr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	proxyPortFlag          int
	proxyHostFlag          string
	proxyTargetFlag        string
	proxyControlPortFlag   int
	proxyMetricsAddrFlag   string
	proxyJournalFlag       string
	proxyWatchFlag         bool
	proxyVerboseFlag       bool
	proxyTimeoutFlag       time.Duration
	proxyInsecureFlag      bool
	proxyUpstreamProxyFlag string
	proxyRateFlag          float64
	proxyBurstFlag         int
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run a recording reverse proxy in front of an API",
	Long: `Start a reverse proxy whose requests go through the interceptor. In
record and cache mode misses are forwarded to the target and stored; in
playback mode misses fail with 404.

A control server accepts POST /testOptions with {"testName": "..."} to
namespace fixtures per test.

Examples:
  httpvcr proxy --target https://api.example.com --mode cache
  httpvcr proxy -t https://api.example.com -m playback --control-port 0
  httpvcr proxy -t https://api.example.com --metrics-addr :9090 --journal usage.db
  httpvcr proxy -t https://api.example.com --watch`,
	Args: cobra.NoArgs,
	RunE: proxyCommand,
}

func init() {
	proxyCmd.Flags().IntVarP(&proxyPortFlag, "port", "p", proxy.DefaultPort, "Port to run the proxy on")
	proxyCmd.Flags().StringVar(&proxyHostFlag, "host", "", "Host to listen on (default: all interfaces)")
	proxyCmd.Flags().StringVarP(&proxyTargetFlag, "target", "t", "", "Target URL to proxy to (required)")
	proxyCmd.Flags().IntVar(&proxyControlPortFlag, "control-port", control.DefaultPort, "Control server port, 0 disables it")
	proxyCmd.Flags().StringVar(&proxyMetricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address")
	proxyCmd.Flags().StringVar(&proxyJournalFlag, "journal", "", "Record fixture usage to this SQLite file")
	proxyCmd.Flags().BoolVarP(&proxyWatchFlag, "watch", "w", false, "Reload the config file when it changes")
	proxyCmd.Flags().BoolVarP(&proxyVerboseFlag, "verbose", "v", false, "Print hit and miss banners and every exchange")
	proxyCmd.Flags().DurationVar(&proxyTimeoutFlag, "timeout", transport.DefaultTimeout, "Upstream request timeout")
	proxyCmd.Flags().BoolVarP(&proxyInsecureFlag, "insecure", "k", false, "Skip upstream TLS verification")
	proxyCmd.Flags().StringVar(&proxyUpstreamProxyFlag, "upstream-proxy", "", "HTTP proxy for upstream requests")
	proxyCmd.Flags().Float64Var(&proxyRateFlag, "rate", 0, "Maximum upstream requests per second, 0 is unlimited")
	proxyCmd.Flags().IntVar(&proxyBurstFlag, "burst", 1, "Upstream burst size when --rate is set")

	_ = proxyCmd.MarkFlagRequired("target")
}

func proxyCommand(cmd *cobra.Command, args []string) error {
	settings, file, err := loadSettings()
	if err != nil {
		return err
	}
	mode, err := resolveMode(file)
	if err != nil {
		return err
	}
	if proxyVerboseFlag {
		settings.Configure(config.Options{Verbose: config.BoolPtr(true)})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := proxy.New(
		proxy.WithHost(proxyHostFlag),
		proxy.WithPort(proxyPortFlag),
		proxy.WithTargetURL(proxyTargetFlag),
		proxy.WithVerbose(proxyVerboseFlag),
	)
	vcrOpts := []vcr.Option{
		vcr.WithObserver(p),
		vcr.WithBannerOutput(cmd.ErrOrStderr()),
	}

	var collector *metrics.Collector
	if proxyMetricsAddrFlag != "" {
		collector = metrics.NewCollector()
		vcrOpts = append(vcrOpts, vcr.WithObserver(collector))
	}
	if proxyJournalFlag != "" {
		j, err := journal.Open(proxyJournalFlag)
		if err != nil {
			return err
		}
		defer j.Close()
		vcrOpts = append(vcrOpts, vcr.WithObserver(j))
	}

	transportOpts := []transport.Option{
		transport.WithTimeout(proxyTimeoutFlag),
		transport.WithValidateSSL(!proxyInsecureFlag),
	}
	if proxyUpstreamProxyFlag != "" {
		transportOpts = append(transportOpts, transport.WithProxy(proxyUpstreamProxyFlag))
	}
	if proxyRateFlag > 0 {
		transportOpts = append(transportOpts, transport.WithRateLimit(proxyRateFlag, proxyBurstFlag))
	}
	p.SetTransport(vcr.New(transport.New(transportOpts...), mode, settings, vcrOpts...))

	errCh := make(chan error, 3)
	go func() { errCh <- p.StartWithContext(ctx) }()

	if proxyControlPortFlag > 0 {
		server := control.NewServer(settings, control.WithPort(proxyControlPortFlag))
		go func() { errCh <- server.Start(ctx) }()
	}
	if collector != nil {
		go func() { errCh <- collector.Serve(ctx, proxyMetricsAddrFlag) }()
	}
	if proxyWatchFlag {
		if err := watchConfig(ctx, settings); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Proxying %s in %s mode, fixtures in %s\n", proxyTargetFlag, mode, settings.FixtureDir())

	select {
	case err := <-errCh:
		if err != nil {
			return &exitError{code: ExitNetworkError, err: err}
		}
	case <-ctx.Done():
	}

	printExchangeSummary(cmd, p.Counts())
	return nil
}

func watchConfig(ctx context.Context, settings *config.Settings) error {
	path := configFlag
	if path == "" {
		path = config.Find(".")
	}
	if path == "" {
		return usageError(fmt.Errorf("--watch needs a config file"))
	}

	logger := logrus.WithFields(logrus.Fields{"component": "config", "path": path})
	go func() {
		err := config.Watch(ctx, path, func(f *config.File, err error) {
			if err != nil {
				logger.WithError(err).Warn("failed to reload config")
				return
			}
			if err := f.Apply(settings); err != nil {
				logger.WithError(err).Warn("config not applied")
				return
			}
			if dir := fixturesOverride(); dir != "" {
				settings.SetFixtureDir(dir)
			}
			logger.Info("config reloaded")
		})
		if err != nil {
			logger.WithError(err).Error("config watch stopped")
		}
	}()
	return nil
}

func printExchangeSummary(cmd *cobra.Command, counts map[vcr.Kind]int) {
	if len(counts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nNo requests proxied")
		return
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	fmt.Fprintln(cmd.OutOrStdout())
	for _, k := range kinds {
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d\n", k, counts[vcr.Kind(k)])
	}
}
