// Command rpcprobe runs the pool's health probes against a configured
// endpoint set, either once (diagnostics) or continuously (daemon).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	rpcpool "github.com/homezloco/soleco-sub001"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "rpcprobe",
	Short: "Probe Solana RPC endpoints and report pool health",
	Long: `rpcprobe builds a connection pool from the configured endpoint set
and runs the same health probes the pool's background monitor uses.

Configuration is read from --config (YAML), RPCPROBE_* environment
variables, and an optional .env file in the working directory.`,
	SilenceUsage: true,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every endpoint once and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, monitor, err := buildPool()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("probe_timeout")+5*time.Second)
		defer cancel()

		results := monitor.RunOnce(ctx)
		printResults(results, pool.Stats())
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Probe continuously on the configured interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, monitor, err := buildPool()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		monitor.Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./rpcprobe.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().Duration("interval", 2*time.Minute, "probe interval for watch mode")
	rootCmd.PersistentFlags().Duration("probe-timeout", 10*time.Second, "per-probe timeout")
	rootCmd.PersistentFlags().Bool("ssl-verify", true, "verify TLS certificates")

	cobra.CheckErr(viper.BindPFlag("interval", rootCmd.PersistentFlags().Lookup("interval")))
	cobra.CheckErr(viper.BindPFlag("probe_timeout", rootCmd.PersistentFlags().Lookup("probe-timeout")))
	cobra.CheckErr(viper.BindPFlag("ssl_verify", rootCmd.PersistentFlags().Lookup("ssl-verify")))

	rootCmd.AddCommand(checkCmd, watchCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("rpcprobe")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("RPCPROBE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "using config:", viper.ConfigFileUsed())
	}
}

func newLogger() rpcpool.Logger {
	var l *zap.Logger
	var err error
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		l = zap.NewNop()
	}
	return rpcpool.NewZapLogger(l)
}

func buildPool() (*rpcpool.Pool, *rpcpool.HealthMonitor, error) {
	apiKeys := map[string]string{
		"helius":    viper.GetString("api_keys.helius"),
		"quicknode": viper.GetString("api_keys.quicknode"),
	}

	registry := rpcpool.NewRegistry(rpcpool.MainnetSeeds(apiKeys)...)
	for _, raw := range viper.GetStringSlice("endpoints") {
		err := registry.Add(rpcpool.Endpoint{URL: raw, Class: rpcpool.ClassDiscovered})
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping endpoint %s: %v\n", raw, err)
		}
	}

	logger := newLogger()
	pool, err := rpcpool.New(
		rpcpool.WithRegistry(registry, rpcpool.RegistryFilter{}),
		rpcpool.WithSSLVerify(viper.GetBool("ssl_verify")),
		rpcpool.WithPoolLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}

	monitor := rpcpool.NewHealthMonitor(pool,
		rpcpool.WithProbeInterval(viper.GetDuration("interval")),
		rpcpool.WithProbeTimeout(viper.GetDuration("probe_timeout")),
		rpcpool.WithHealthLogger(logger),
	)
	return pool, monitor, nil
}

func printResults(results []rpcpool.ProbeResult, stats []rpcpool.EndpointStats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tOUTCOME\tLATENCY\tSTREAK\tCOOLDOWN\tERROR")
	for i, r := range results {
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		cooldown := "-"
		if i < len(stats) && stats[i].InCooldown {
			cooldown = time.Until(stats[i].CooldownUntil).Round(time.Second).String()
		}
		streak := 0
		if i < len(stats) {
			streak = stats[i].ConsecutiveFailures
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.Endpoint, r.Outcome, r.Latency.Round(time.Millisecond), streak, cooldown, errMsg)
	}
	w.Flush()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
