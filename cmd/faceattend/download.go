package main

import (
	"compress/bzip2"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const facefinderURL = "https://raw.githubusercontent.com/esimov/pigo/master/cascade/facefinder"

var downloadDlib bool

var downloadCmd = &cobra.Command{
	Use:   "download-cascade",
	Short: "Download the detector model files",
	Long: `Downloads the pigo facefinder cascade to detector.pigo_cascade_file.
With --dlib the dlib models for the dlib backend are fetched as well.`,
	Args: cobra.NoArgs,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().BoolVar(&downloadDlib, "dlib", false, "Also download the dlib detector models")
	rootCmd.AddCommand(downloadCmd)
}

type model struct {
	Name string
	URL  string
	Path string
}

func runDownload(cmd *cobra.Command, args []string) error {
	models := []model{
		{
			Name: "facefinder",
			URL:  facefinderURL,
			Path: cfg.Detector.PigoCascadeFile,
		},
	}

	if downloadDlib {
		for _, name := range []string{
			"shape_predictor_5_face_landmarks.dat",
			"dlib_face_recognition_resnet_model_v1.dat",
			"mmod_human_face_detector.dat",
		} {
			models = append(models, model{
				Name: name,
				URL:  "http://dlib.net/files/" + name + ".bz2",
				Path: filepath.Join(cfg.Detector.DlibModelDir, name),
			})
		}
	}

	for _, m := range models {
		if _, err := os.Stat(m.Path); err == nil {
			logging.Infof("Model %s already exists, skipping", m.Name)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(m.Path), 0755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}

		logging.Infof("Downloading %s...", m.Name)
		if err := download(m.URL, m.Path); err != nil {
			return fmt.Errorf("failed to download %s: %w", m.Name, err)
		}
		logging.Infof("Successfully downloaded %s to %s", m.Name, m.Path)
	}

	logging.Infof("All models downloaded successfully!")
	return nil
}

// download fetches url into targetPath, decompressing .bz2 payloads. The
// file only appears at targetPath once it is complete.
func download(url, targetPath string) error {
	client := &http.Client{
		Timeout: 10 * time.Minute,
	}

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.CreateTemp(filepath.Dir(targetPath), "."+filepath.Base(targetPath)+"-*.part")
	if err != nil {
		return err
	}
	tmp := out.Name()
	defer func() { _ = os.Remove(tmp) }()

	bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(targetPath))

	var body io.Reader = io.TeeReader(resp.Body, bar)
	if strings.HasSuffix(url, ".bz2") {
		body = bzip2.NewReader(body)
	}

	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, targetPath)
}
