// Command eval ingests the built-in sample corpus and scores the
// scripted query set: document hit rates, MRR and per-query
// diagnostics. Exits non-zero when hit@k falls below -min-hit.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/yukunliu/ragpipe"
	"github.com/yukunliu/ragpipe/data"
	"github.com/yukunliu/ragpipe/eval"
)

func main() {
	topK := flag.Int("topk", 5, "Citations requested per query")
	minHit := flag.Float64("min-hit", 0, "Fail the run when hit@k is below this fraction")
	jsonOut := flag.Bool("json", false, "Emit the full report as JSON")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))
	_ = godotenv.Load()

	ctx := context.Background()
	engine, err := ragpipe.New(ctx, ragpipe.ConfigFromEnv())
	if err != nil {
		fmt.Fprintln(os.Stderr, "creating engine:", err)
		os.Exit(1)
	}
	defer engine.Close()

	start := time.Now()
	for _, doc := range data.Documents {
		if _, err := engine.Ingest(ctx, doc.DocID, doc.DocName, doc.Content, "markdown"); err != nil {
			fmt.Fprintf(os.Stderr, "ingest %s: %v\n", doc.DocID, err)
			os.Exit(1)
		}
	}
	fmt.Fprintf(os.Stderr, "ingested %d documents in %s\n",
		len(data.Documents), time.Since(start).Round(time.Millisecond))

	report, err := eval.New(engine, *topK).Run(ctx, data.Queries)
	if err != nil {
		fmt.Fprintln(os.Stderr, "eval:", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintln(os.Stderr, "encoding report:", err)
			os.Exit(1)
		}
	} else {
		report.WriteText(os.Stdout)
	}

	if report.HitAtK < *minHit {
		fmt.Fprintf(os.Stderr, "hit@k %.3f below threshold %.3f\n", report.HitAtK, *minHit)
		os.Exit(1)
	}
}
