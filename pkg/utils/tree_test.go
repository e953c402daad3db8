package utils

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// testTreeLogger returns a logger entry that discards output
func testTreeLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestGenerateAndSaveTreeStructure_SitemapLayout(t *testing.T) {
	tmpDir := t.TempDir()
	targetDir := filepath.Join(tmpDir, "out")
	if err := os.MkdirAll(filepath.Join(targetDir, "products"), 0755); err != nil {
		t.Fatalf("Failed to create target dir: %v", err)
	}

	files := map[string]string{
		"sitemap.xml":                "<sitemapindex/>",
		"pages.xml.gz":               "gz",
		"products/products.xml.gz":   "gz",
		"products/products-1.xml.gz": "gz",
		"products/products-2.xml.gz": "gz",
	}
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(targetDir, rel), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", rel, err)
		}
	}

	outputFile := filepath.Join(tmpDir, "tree.txt")
	if err := GenerateAndSaveTreeStructure(targetDir, outputFile, testTreeLogger()); err != nil {
		t.Fatalf("GenerateAndSaveTreeStructure() error = %v", err)
	}

	content, err := os.ReadFile(outputFile)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	output := string(content)

	for _, want := range []string{"products/", "products-2.xml.gz", "sitemap.xml (15 B)", "1 directories, 5 files"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q:\n%s", want, output)
		}
	}

	// Directories are listed before files
	if strings.Index(output, "products/") > strings.Index(output, "pages.xml.gz") {
		t.Errorf("Directory should be listed before files:\n%s", output)
	}
}

func TestGenerateAndSaveTreeStructure_MissingTarget(t *testing.T) {
	tmpDir := t.TempDir()
	err := GenerateAndSaveTreeStructure(filepath.Join(tmpDir, "nope"), filepath.Join(tmpDir, "tree.txt"), testTreeLogger())
	if err == nil {
		t.Fatal("GenerateAndSaveTreeStructure() expected error for missing target")
	}
}
