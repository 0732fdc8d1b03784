package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/MrCodeEU/faceattend/pkg/encode"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/MrCodeEU/faceattend/pkg/recognition"
	"github.com/spf13/cobra"
)

var (
	recognizeUnique bool
	recognizeJSON   bool
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Recognize known identities in images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecognize,
}

func init() {
	recognizeCmd.Flags().BoolVarP(&recognizeUnique, "unique", "u", false, "Report each identity at most once per image")
	recognizeCmd.Flags().BoolVar(&recognizeJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(recognizeCmd)
}

type fileResults struct {
	File    string               `json:"file"`
	Results []recognition.Result `json:"results"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if !store.Trained() {
		logging.Warnf("No trained classifier in %s, run 'faceattend train' first", cfg.Classifier.ModelDir)
	}

	det, err := openDetector()
	if err != nil {
		return err
	}

	pipeline := recognition.NewPipeline(det, encode.NewSimpleEncoder(), store)
	defer pipeline.Close()

	all := make([]fileResults, 0, len(args))
	for _, path := range args {
		results := pipeline.ProcessFile(path)
		if recognizeUnique {
			results = recognition.Unique(results)
		}
		all = append(all, fileResults{File: path, Results: results})
	}

	if recognizeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILE\tIDENTITY\tCONFIDENCE\tBOX")
	fmt.Fprintln(w, "----\t--------\t----------\t---")
	for _, fr := range all {
		if len(fr.Results) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\n", fr.File)
			continue
		}
		for _, r := range fr.Results {
			fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n", fr.File, r.Label, r.Confidence*100, r.Box)
		}
	}
	return w.Flush()
}
