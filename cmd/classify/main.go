// Command classify runs the leaf classifier over local image files.
//
//	classify [-json] leaf1.jpg leaf2.png ...
//
// Model settings come from the same environment as the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"wheatleaf_backend/internal/app/di"
	"wheatleaf_backend/internal/feature/diagnosis/usecase"
	"wheatleaf_backend/internal/platform/config"
	"wheatleaf_backend/internal/platform/logger"
)

type result struct {
	File           string    `json:"file"`
	Label          string    `json:"label,omitempty"`
	Confidence     float32   `json:"confidence,omitempty"`
	Scores         []float32 `json:"scores,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
	Error          string    `json:"error,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code so that deferred cleanup runs before exit.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print one JSON object per file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: classify [-json] image...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "failed to load config:", err)
		return 1
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(stderr, "failed to initialize logger:", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	clf, closeModel, err := di.NewClassifier(cfg, nil, log)
	if err != nil {
		log.Error("failed to build classifier", zap.Error(err))
		return 1
	}
	defer closeModel()

	results, failed := classifyFiles(context.Background(), clf, fs.Args())
	writeResults(stdout, results, *asJSON)
	if failed {
		return 1
	}
	return 0
}

func classifyFiles(ctx context.Context, clf usecase.Classifier, paths []string) ([]result, bool) {
	failed := false
	results := make([]result, 0, len(paths))
	for _, path := range paths {
		r := result{File: path}
		data, err := os.ReadFile(path)
		if err == nil {
			pred, _, cerr := clf.Classify(ctx, data)
			err = cerr
			if err == nil {
				r.Label = pred.Label.String()
				r.Confidence = pred.Confidence
				r.Scores = pred.Scores
				r.Recommendation = pred.Label.Recommendation()
			}
		}
		if err != nil {
			r.Error = err.Error()
			failed = true
		}
		results = append(results, r)
	}
	return results, failed
}

func writeResults(out io.Writer, results []result, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(out)
		for _, r := range results {
			_ = enc.Encode(r)
		}
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tLABEL\tCONFIDENCE\tNOTE")
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s\t-\t-\t%s\n", r.File, r.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n", r.File, r.Label, r.Confidence*100, r.Recommendation)
	}
	_ = w.Flush()
}
