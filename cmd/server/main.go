package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/2024aa05820/mlops-assignment2/internal/config"
	logger "github.com/2024aa05820/mlops-assignment2/internal/logger"
	"github.com/2024aa05820/mlops-assignment2/internal/server"
)

// envPrefix is the environment prefix for viper bindings.
const envPrefix = "CATSDOGS"

var (
	cfg     = config.New()
	cfgFile string
)

var serverCmd = &cobra.Command{
	Use:          "server",
	Short:        "serve the cats-vs-dogs classifier over HTTP",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(cfg.Console, cfg.Verbose); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runServer()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := serverCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path of the configuration file")
	flags.BoolVar(&cfg.Console, "console", cfg.Console, "log to console instead of JSON")
	flags.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable debug logging")
	flags.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "port the HTTP server listens on")
	flags.StringVar(&cfg.Server.ModelPath, "model-path", cfg.Server.ModelPath, "checkpoint loaded at startup")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("config")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Debugf("using config file: %s", viper.ConfigFileUsed())
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Fatalf("cannot unmarshal config: %v", err)
	}
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.New(cfg, logger.CoreLogger).Run(ctx)
}

func main() {
	if err := serverCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
