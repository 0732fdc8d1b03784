package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/MrCodeEU/faceattend/pkg/corpus"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage identities in the training corpus",
}

var identityAddCmd = &cobra.Command{
	Use:   "add <label> [image]...",
	Short: "Create an identity and copy training images into it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIdentityAdd,
}

var identityRemoveCmd = &cobra.Command{
	Use:   "remove <label>",
	Short: "Delete an identity and all its training images",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityRemove,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities in the corpus",
	Args:  cobra.NoArgs,
	RunE:  runIdentityList,
}

func init() {
	identityCmd.AddCommand(identityAddCmd, identityRemoveCmd, identityListCmd)
	rootCmd.AddCommand(identityCmd)
}

func runIdentityAdd(cmd *cobra.Command, args []string) error {
	label, images := args[0], args[1:]

	manager := newManager()
	if err := manager.EnsureRoot(); err != nil {
		return err
	}

	dir, err := manager.CreateIdentity(label)
	if err != nil {
		return err
	}

	copied := 0
	for _, src := range images {
		if !corpus.IsImageFile(src) {
			logging.Warnf("Skipping %s: not an image file", src)
			continue
		}

		dst := filepath.Join(dir, filepath.Base(src))
		if _, err := os.Stat(dst); err == nil {
			logging.Warnf("Skipping %s: %s already exists", src, dst)
			continue
		}

		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("failed to copy %s: %w", src, err)
		}
		copied++
	}

	fmt.Printf("Identity '%s' ready at %s (%s added)\n", label, dir, english.Plural(copied, "image", ""))
	if copied > 0 {
		fmt.Println("Run 'faceattend train' to update the classifier.")
	}
	return nil
}

func runIdentityRemove(cmd *cobra.Command, args []string) error {
	label := args[0]

	if err := newManager().DeleteIdentity(label); err != nil {
		return err
	}

	fmt.Printf("Training data for '%s' has been removed.\n", label)
	fmt.Println("Run 'faceattend train' to drop the identity from the classifier.")
	return nil
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	labels, err := newManager().EnumerateLabels()
	if err != nil {
		return err
	}

	if len(labels) == 0 {
		fmt.Println("No identities in corpus.")
		return nil
	}

	fmt.Println("Identities:")
	for _, info := range labels {
		fmt.Printf("  - %s (%s)\n", info.Label, english.Plural(info.ImageCount, "image", ""))
	}
	fmt.Printf("\nTotal: %s\n", english.Plural(len(labels), "identity", "identities"))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
