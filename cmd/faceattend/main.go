package main

import (
	"fmt"
	"os"

	"github.com/MrCodeEU/faceattend/pkg/classifier"
	"github.com/MrCodeEU/faceattend/pkg/config"
	"github.com/MrCodeEU/faceattend/pkg/corpus"
	"github.com/MrCodeEU/faceattend/pkg/detect"
	"github.com/MrCodeEU/faceattend/pkg/encode"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/storage"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfg        *config.Config
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "faceattend",
	Short: "Face recognition for attendance taking",
	Long: `faceattend trains an identity classifier from a folder of labeled face
images and recognizes those identities in new images.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.SetVersionTemplate(`{{printf "faceattend v%s\n" .Version}}`)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.WithField("args", os.Args[1:]).WithError(err).Debug("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and initializes logging for every command.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", configFile, err)
		}
	} else {
		cfg, err = config.LoadDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
			cfg = config.DefaultConfig()
		}
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	if cfg.Logging.File == "" {
		logging.SetOutput(cmd.ErrOrStderr())
	}
	if debug {
		logging.SetLevel("debug")
	}

	logging.Debugf("faceattend v%s starting", version)
	logging.Debugf("Config loaded, corpus: %s, models: %s", cfg.Corpus.Root, cfg.Classifier.ModelDir)
	return nil
}

// openStore returns the classifier store with any persisted model loaded.
// Unusable artifacts leave the store untrained so a new training run can
// replace them.
func openStore() (*classifier.Store, error) {
	artifacts, err := storage.NewFileStorage(cfg.Classifier.ModelDir, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return nil, err
	}

	store := classifier.NewStore(artifacts, cfg.TrainOptions())
	if err := store.Load(); err != nil {
		logging.WithFields(logging.Fields{
			"model_dir": cfg.Classifier.ModelDir,
			"error":     err,
		}).Warn("Ignoring unusable classifier artifacts, continuing untrained")
	}
	return store, nil
}

// openDetector builds the configured detector backend.
func openDetector() (detect.Detector, error) {
	det, _, err := detect.New(cfg.DetectorConfig())
	return det, err
}

// newManager returns a corpus manager without detection, for inventory
// commands that never encode images.
func newManager() *corpus.Manager {
	return corpus.NewManager(cfg.Corpus.Root, nil, encode.NewSimpleEncoder(), nil)
}
