package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mordilloSan/go_logger/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mordilloSan/sharingcart/cmd"
	"github.com/mordilloSan/sharingcart/internal/version"
)

const envPrefix = "SHARINGCART"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "sharingcart",
	Short:         "Sharing cart daemon: stores cart items and renders them as HTML trees",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, _ []string) error {
		if err := initConfig(c); err != nil {
			return err
		}
		logger.Init("production", viper.GetBool("verbose"))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file (default: ./sharingcart.yaml or /etc/sharingcart/sharingcart.yaml)")
	pf.String("db-path", "", "SQLite database path")
	pf.String("wwwroot", "", "Site root used in icon and download URLs")
	pf.String("theme", "boost", "Theme used in icon URLs")
	pf.String("lang", "en", "Interface language (BCP 47)")
	pf.String("strings-file", "", "YAML file with string overrides")
	pf.Duration("lookup-timeout", 2*time.Second, "Timeout for each backup file lookup while rendering")
	pf.Bool("verbose", false, "Enable verbose logging")

	rootCmd.AddCommand(serveCmd(), renderCmd(), grantCmd(), versionCmd())
}

// initConfig binds flags, SHARINGCART_* environment variables and the optional config file.
// Keys use underscores (db_path); flags use dashes (--db-path).
func initConfig(c *cobra.Command) error {
	var bindErr error
	for _, fs := range []*pflag.FlagSet{c.Flags(), c.InheritedFlags()} {
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" {
				return
			}
			if err := viper.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
	}
	if bindErr != nil {
		return bindErr
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigType("yaml")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("sharingcart")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/sharingcart")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

func daemonConfig() cmd.DaemonConfig {
	return cmd.DaemonConfig{
		DBPath:        viper.GetString("db_path"),
		SocketPath:    viper.GetString("socket_path"),
		ListenAddr:    viper.GetString("listen"),
		BackupDir:     viper.GetString("backup_dir"),
		WWWRoot:       viper.GetString("wwwroot"),
		Theme:         viper.GetString("theme"),
		Lang:          viper.GetString("lang"),
		StringsFile:   viper.GetString("strings_file"),
		LookupTimeout: viper.GetDuration("lookup_timeout"),
		Interval:      viper.GetDuration("interval"),
		OrphanMaxAge:  viper.GetDuration("orphan_max_age"),
	}
}

func serveCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon (unix socket, optional TCP listener, backup watcher)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(daemonConfig())
		},
	}
	f := c.Flags()
	f.String("socket-path", "/var/run/sharingcart.sock", `Unix socket path ("-" disables)`)
	f.String("listen", "", "Optional TCP address (e.g., :8080)")
	f.String("backup-dir", "", "Directory where course backups are written")
	f.Duration("interval", time.Hour, "Maintenance interval (Go duration like 6h, 30m); 0 disables")
	f.Duration("orphan-max-age", 7*24*time.Hour, "Age after which unreferenced backup records are pruned")
	return c
}

func runDaemon(cfg cmd.DaemonConfig) error {
	d, err := cmd.NewDaemon(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	listenDisplay := cfg.ListenAddr
	if listenDisplay == "" {
		listenDisplay = "disabled"
	}
	logger.Infof("Daemon initialized %s db=%s socket=%s listen=%s backups=%s interval=%v",
		version.String(), cfg.DBPath, cfg.SocketPath, listenDisplay, cfg.BackupDir, cfg.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Infof("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Infof("Shutdown complete")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "sharingcart:", err)
		os.Exit(1)
	}
}
