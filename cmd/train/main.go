package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/2024aa05820/mlops-assignment2/internal/config"
	"github.com/2024aa05820/mlops-assignment2/internal/dataset"
	logger "github.com/2024aa05820/mlops-assignment2/internal/logger"
	"github.com/2024aa05820/mlops-assignment2/internal/nn"
	"github.com/2024aa05820/mlops-assignment2/internal/pipeline"
	"github.com/2024aa05820/mlops-assignment2/internal/tracking"
	"github.com/2024aa05820/mlops-assignment2/internal/training"
)

const envPrefix = "CATSDOGS"

var (
	cfg     = config.New()
	cfgFile string
)

var trainCmd = &cobra.Command{
	Use:          "train",
	Short:        "train the cats-vs-dogs classifier against a labeled image directory",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(cfg.Console, cfg.Verbose); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runTrain()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := trainCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path of the configuration file")
	flags.BoolVar(&cfg.Console, "console", cfg.Console, "log to console instead of JSON")
	flags.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable debug logging")
	flags.StringVar(&cfg.Data.Root, "data-dir", cfg.Data.Root, "dataset root directory")
	flags.IntVar(&cfg.Data.BatchSize, "batch-size", cfg.Data.BatchSize, "training batch size")
	flags.IntVar(&cfg.Training.Epochs, "epochs", cfg.Training.Epochs, "number of epochs")
	flags.Float64Var(&cfg.Training.LearningRate, "lr", cfg.Training.LearningRate, "learning rate")
	flags.StringVar(&cfg.Training.CheckpointDir, "checkpoint-dir", cfg.Training.CheckpointDir, "directory receiving checkpoints")
	flags.BoolVar(&cfg.Data.Validate, "validate-data", cfg.Data.Validate, "pre-decode every image and drop unreadable files")
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

func runTrain() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	split, err := dataset.New(cfg.Data.Root, cfg.Data.Seed, cfg.Data.TrainRatio, cfg.Data.ValRatio)
	if err != nil {
		return err
	}
	if cfg.Data.Validate {
		split.Train = pruneInvalid(split.Train)
		split.Val = pruneInvalid(split.Val)
		split.Test = pruneInvalid(split.Test)
	}
	split = split.Cap(cfg.Data.MaxSamples)
	logger.Infof("dataset: train %v, val %v, test %v",
		dataset.Counts(split.Train), dataset.Counts(split.Val), dataset.Counts(split.Test))

	trainLoader, err := dataset.NewLoader(split.Train, cfg.Data.BatchSize, true, cfg.Training.Seed)
	if err != nil {
		return err
	}
	valLoader, err := dataset.NewLoader(split.Val, cfg.Data.BatchSize, false, cfg.Training.Seed)
	if err != nil {
		return err
	}

	var tracker tracking.Tracker = tracking.NewNoop()
	if cfg.Tracking.Addr != "" {
		tracker = tracking.NewHTTP(cfg.Tracking.Addr, cfg.Tracking.Experiment, cfg.Tracking.Timeout)
	}
	defer tracker.Close()

	net := nn.New(cfg.Training.Seed, cfg.Training.Dropout)
	trainer := training.New(cfg.Training, net, trainLoader, valLoader, tracker, logger.CoreLogger)

	bestPath, err := trainer.Run(ctx)
	if err != nil {
		return err
	}
	logger.Infof("best checkpoint: %s", bestPath)
	return nil
}

// pruneInvalid drops samples that cannot be decoded, with one warning per
// dropped file.
func pruneInvalid(samples []dataset.Sample) []dataset.Sample {
	kept := make([]dataset.Sample, 0, len(samples))
	for _, s := range samples {
		if err := pipeline.ValidateFile(s.Path); err != nil {
			logger.Warnf("dropping unreadable sample: %v", err)
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

func main() {
	if err := trainCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
