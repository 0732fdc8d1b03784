package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus and model statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := newManager().Statistics()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, label := range store.Labels() {
		known[label] = true
	}

	fmt.Printf("Corpus: %s\n", cfg.Corpus.Root)
	fmt.Printf("  %s, %s, %s\n\n",
		english.Plural(stats.Identities, "identity", "identities"),
		english.Plural(stats.Images, "image", ""),
		humanize.Bytes(uint64(stats.Bytes)))

	if stats.Identities > 0 {
		labels := make([]string, 0, len(stats.PerIdentity))
		for label := range stats.PerIdentity {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "IDENTITY\tIMAGES\tSIZE\tIN MODEL")
		fmt.Fprintln(w, "--------\t------\t----\t--------")
		for _, label := range labels {
			s := stats.PerIdentity[label]
			inModel := "no"
			if known[label] {
				inModel = "yes"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", label, s.ImageCount, humanize.Bytes(uint64(s.Bytes)), inModel)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Println()
	}

	if !store.Trained() {
		fmt.Printf("Model: not trained (%s)\n", cfg.Classifier.ModelDir)
		return nil
	}

	fmt.Printf("Model: %s, generation %s\n",
		english.Plural(len(known), "identity", "identities"), store.Generation())
	return nil
}
