package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/normgraph/normgraph/internal/document"
	"github.com/normgraph/normgraph/internal/knowledge"
)

var (
	ingestFile           string
	ingestURL            string
	ingestDir            string
	ingestPattern        string
	ingestForce          bool
	ingestSkipExtraction bool
	ingestChunkSize      int
	ingestChunkOverlap   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest compliance documents",
	Long: `Ingest documents into the knowledge stores.

Each document is classified, chunked, embedded, and stored; control
requirements are extracted into the graph when an LLM provider is
configured.

Examples:
  # Ingest a single document
  normgraph ingest --file bsi-kubernetes.pdf

  # Ingest every markdown file in a directory
  normgraph ingest --dir ./standards --pattern "*.md"

  # Ingest a published standard directly from its URL
  normgraph ingest --url https://example.org/standards/sys-1-6.pdf

  # Re-ingest even when the content is unchanged
  normgraph ingest --file annex-a.xlsx --force`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "Path to a document to ingest")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "URL of a document to download and ingest")
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "Directory to ingest documents from")
	ingestCmd.Flags().StringVar(&ingestPattern, "pattern", "*", "Glob pattern for --dir")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "Re-ingest unchanged sources")
	ingestCmd.Flags().BoolVar(&ingestSkipExtraction, "skip-extraction", false, "Skip LLM control extraction")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "Chunk size in tokens (default from document type)")
	ingestCmd.Flags().IntVar(&ingestChunkOverlap, "chunk-overlap", 0, "Chunk overlap in tokens (default from document type)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	set := 0
	for _, v := range []string{ingestFile, ingestURL, ingestDir} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of --file, --url, or --dir is required")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	ingester, err := a.newIngester(ctx)
	if err != nil {
		return err
	}

	var paths []string
	switch {
	case ingestFile != "":
		paths = []string{ingestFile}
	case ingestURL != "":
		path, cleanup, err := downloadDocument(ctx, ingestURL)
		if err != nil {
			return err
		}
		defer cleanup()
		paths = []string{path}
	default:
		paths, err = collectFiles(ingestDir, ingestPattern)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no files matching %q under %s", ingestPattern, ingestDir)
		}
	}

	opts := knowledge.IngestOptions{
		Force:          ingestForce,
		SkipExtraction: ingestSkipExtraction,
		ChunkSize:      ingestChunkSize,
		ChunkOverlap:   ingestChunkOverlap,
	}
	failures := 0
	for _, path := range paths {
		result, err := ingester.Ingest(ctx, path, opts)
		if err != nil {
			failures++
			fmt.Printf("%s %s: %v\n", color.RedString("failed"), path, err)
			continue
		}
		printIngestResult(result)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d documents failed", failures, len(paths))
	}
	return nil
}

// downloadDocument fetches a URL into a temp directory, keeping the URL
// path's filename so format detection and the source name stay natural.
func downloadDocument(ctx context.Context, rawURL string) (string, func(), error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("invalid URL: %w", err)
	}
	name := filepath.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		return "", nil, fmt.Errorf("URL has no usable filename: %s", rawURL)
	}
	if _, err := document.DetectFormat(name); err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("failed to fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	dir, err := os.MkdirTemp("", "normgraph-ingest-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// collectFiles walks dir and returns supported files matching pattern.
func collectFiles(dir, pattern string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		matched, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return err
		}
		if !matched {
			return nil
		}
		if _, err := document.DetectFormat(path); err != nil {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

func printIngestResult(result *knowledge.IngestResult) {
	if result.Skipped {
		fmt.Printf("%s %s (unchanged, use --force to re-ingest)\n",
			color.YellowString("skipped"), result.Source)
		return
	}

	status := color.GreenString("ingested")
	if result.GraphDegraded {
		status = color.YellowString("ingested (graph unavailable)")
	}
	fmt.Printf("%s %s: type=%s chunks=%d controls=%d relationships=%d in %s\n",
		status, result.Source, result.Classification.Type,
		result.Chunks, result.Controls, result.Relationships,
		result.Duration.Round(timeRound))
}
