package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// treeStats accumulates totals while walking the output tree
type treeStats struct {
	files int
	dirs  int
	bytes int64
}

// GenerateAndSaveTreeStructure walks the sitemap output directory and writes a text tree
// with file sizes and a totals footer to outputFilePath.
func GenerateAndSaveTreeStructure(targetDir, outputFilePath string, log *logrus.Entry) error {
	log.Debugf("Starting tree generation for target: %s", targetDir)
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return fmt.Errorf("target directory '%s' does not exist: %w", targetDir, err)
	} else if err != nil {
		return fmt.Errorf("error checking target directory '%s': %w", targetDir, err)
	}

	file, err := os.Create(outputFilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file '%s': %w", outputFilePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	if _, err = fmt.Fprintf(writer, "Sitemap Output Structure for: %s\n", targetDir); err != nil {
		return err
	}
	if _, err = fmt.Fprintf(writer, "%s\n\n", strings.Repeat("=", 30+len(targetDir))); err != nil {
		return err
	}
	if _, err = fmt.Fprintf(writer, "%s/\n", filepath.Base(targetDir)); err != nil {
		return err
	}

	stats := &treeStats{}
	if err = walkDirRecursive(writer, targetDir, "", stats, log); err != nil {
		log.Errorf("Error occurred during recursive walk for '%s': %v", targetDir, err)
		return fmt.Errorf("error generating tree structure for '%s': %w", targetDir, err)
	}

	_, err = fmt.Fprintf(writer, "\n%d directories, %d files, %s\n",
		stats.dirs, stats.files, humanize.Bytes(uint64(stats.bytes)))
	return err
}

// walkDirRecursive writes entries of dirPath, directories first, then recurses
func walkDirRecursive(writer io.Writer, dirPath string, currentIndent string, stats *treeStats, log *logrus.Entry) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Warnf("Failed to read directory '%s': %v", dirPath, err)
		return fmt.Errorf("failed to read directory '%s': %w", dirPath, err)
	}

	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})

	for i, entry := range entries {
		isLast := i == len(entries)-1
		connector := entryPrefix
		if isLast {
			connector = lastEntryPrefix
		}

		label := entry.Name()
		if entry.IsDir() {
			label += "/"
			stats.dirs++
		} else {
			stats.files++
			if info, infoErr := entry.Info(); infoErr == nil {
				stats.bytes += info.Size()
				label = fmt.Sprintf("%s (%s)", label, humanize.Bytes(uint64(info.Size())))
			}
		}

		if _, writeErr := fmt.Fprintf(writer, "%s%s%s\n", currentIndent, connector, label); writeErr != nil {
			return writeErr
		}

		if entry.IsDir() {
			nextIndent := currentIndent + verticalLine
			if isLast {
				nextIndent = currentIndent + indentPrefix
			}
			if err := walkDirRecursive(writer, filepath.Join(dirPath, entry.Name()), nextIndent, stats, log); err != nil {
				return err
			}
		}
	}
	return nil
}
