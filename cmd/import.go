package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <folder-path>",
	Short: "Bulk import profiles from a folder",
	Long: `Import profiles from a folder of person directories.
Each subdirectory becomes one profile: the directory name is the person's
name and every image inside becomes one of their faces.

  people/
    Alice Novak/
      front.jpg
      side.jpg
    Bob/
      bob.png`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("contact", "", "Contact assigned to every imported profile (default <name>@import.local)")
	importCmd.Flags().String("place", "", "Place assigned to every imported profile")
}

// imageExtensions are the file extensions picked up during import.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// collectPersonDirs lists the subdirectories of root, one per person.
func collectPersonDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading folder: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}

// readPersonImages loads every image file in the person's directory.
func readPersonImages(dir string) ([]registry.ImageUpload, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []registry.ImageUpload
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		images = append(images, registry.ImageUpload{Filename: e.Name(), Data: data})
	}
	return images, nil
}

// defaultContact derives a contact address from a person's name.
func defaultContact(name string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "."))
	return slug + "@import.local"
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	root := args[0]
	contact := mustGetString(cmd, "contact")
	place := mustGetString(cmd, "place")

	reg, err := buildRegistry(cfg, false)
	if err != nil {
		return err
	}

	persons, err := collectPersonDirs(root)
	if err != nil {
		return err
	}
	if len(persons) == 0 {
		return fmt.Errorf("no person directories found in %s", root)
	}

	bar := progressbar.NewOptions(len(persons),
		progressbar.OptionSetDescription("Importing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("profiles"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	ctx := context.Background()
	imported, skipped := 0, 0
	for _, name := range persons {
		images, err := readPersonImages(filepath.Join(root, name))
		if err != nil {
			return fmt.Errorf("reading images for %s: %w", name, err)
		}
		if len(images) == 0 {
			skipped++
			_ = bar.Add(1)
			continue
		}

		personContact := contact
		if personContact == "" {
			personContact = defaultContact(name)
		}

		if _, err := reg.Create(ctx, registry.CreateInput{
			Name:    name,
			Contact: personContact,
			Place:   place,
			Images:  images,
		}); err != nil {
			return fmt.Errorf("importing %s: %w", name, err)
		}
		imported++
		_ = bar.Add(1)
	}

	fmt.Printf("\nImported %d profiles (%d skipped, no images)\n", imported, skipped)
	return nil
}
