package main

import (
	"fmt"
	"os"

	"github.com/MrCodeEU/faceattend/pkg/corpus"
	"github.com/MrCodeEU/faceattend/pkg/encode"
	"github.com/dustin/go-humanize/english"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	trainCorpus  string
	trainWorkers int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier on every identity in the corpus",
	Args:  cobra.NoArgs,
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainCorpus, "corpus", "", "Corpus directory (default from config)")
	trainCmd.Flags().IntVarP(&trainWorkers, "workers", "w", 0, "Images encoded in parallel (default from config)")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	if trainCorpus != "" {
		cfg.Corpus.Root = trainCorpus
	}
	if trainWorkers > 0 {
		cfg.Corpus.Workers = trainWorkers
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	det, err := openDetector()
	if err != nil {
		return err
	}
	defer det.Close()

	manager := corpus.NewManager(cfg.Corpus.Root, det, encode.NewSimpleEncoder(), store)
	manager.SetWorkers(cfg.Corpus.Workers)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Training"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)

	report, err := manager.TrainAll(func(message string, percent float64) {
		bar.Describe(message)
		_ = bar.Set(int(percent))
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("Training completed successfully with %s from %s\n",
		english.Plural(report.Encodings, "face encoding", ""),
		english.Plural(report.Identities, "identity", "identities"))
	return nil
}
