// Package eval measures retrieval quality of an engine against a
// scripted query set with known target documents. It reports document
// hit rates, mean reciprocal rank and refusal counts, with a per-query
// breakdown for diagnosing misses.
package eval

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/yukunliu/ragpipe"
	"github.com/yukunliu/ragpipe/data"
	"github.com/yukunliu/ragpipe/generation"
)

// Evaluator runs scripted queries against an engine.
type Evaluator struct {
	engine ragpipe.Engine
	topK   int
}

// New creates an evaluator. topK bounds the citations requested per
// query; 0 uses the engine default.
func New(engine ragpipe.Engine, topK int) *Evaluator {
	return &Evaluator{engine: engine, topK: topK}
}

// Report holds the results of an evaluation run.
type Report struct {
	TotalQueries int           `json:"total_queries"`
	HitAt1       float64       `json:"hit_at_1"`
	HitAtK       float64       `json:"hit_at_k"`
	MRR          float64       `json:"mrr"`
	Refusals     int           `json:"refusals"`
	Errors       int           `json:"errors"`
	AvgLatency   time.Duration `json:"avg_latency_ns"`
	RunTime      time.Duration `json:"run_time_ns"`
	Results      []Result      `json:"results"`
}

// Result is the outcome of a single scripted query.
type Result struct {
	Query       string `json:"query"`
	ExpectedDoc string `json:"expected_doc"`
	Description string `json:"description,omitempty"`
	TopDoc      string `json:"top_doc,omitempty"`
	// Rank is the 1-based position of the expected document in the
	// deduplicated citation order; 0 means it was not retrieved.
	Rank      int    `json:"rank"`
	Citations int    `json:"citations"`
	Source    string `json:"source"`
	Refused   bool   `json:"refused"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

// Run executes the query set. Each query gets its own session so the
// conversation history of one cannot influence the retrieval of the
// next.
func (e *Evaluator) Run(ctx context.Context, queries []data.Query) (*Report, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("eval: empty query set")
	}

	report := &Report{TotalQueries: len(queries)}
	start := time.Now()

	var totalLatency time.Duration
	var hit1, hitK int
	var mrrSum float64

	for _, q := range queries {
		res := Result{
			Query:       q.Query,
			ExpectedDoc: q.ExpectedDoc,
			Description: q.Description,
		}

		qStart := time.Now()
		resp, err := e.engine.Chat(ctx, ragpipe.ChatRequest{
			UserID:    "eval",
			SessionID: "eval-" + uuid.NewString(),
			Query:     q.Query,
			TopK:      e.topK,
		})
		elapsed := time.Since(qStart)
		totalLatency += elapsed
		res.ElapsedMs = elapsed.Milliseconds()

		if err != nil {
			res.Error = err.Error()
			report.Errors++
			report.Results = append(report.Results, res)
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			continue
		}

		res.Citations = len(resp.Citations)
		res.Source = resp.Source
		res.Refused = resp.Answer == generation.Refusal
		if res.Refused {
			report.Refusals++
		}

		docs := docOrder(resp.Citations)
		if len(docs) > 0 {
			res.TopDoc = docs[0]
		}
		res.Rank = rankOf(docs, q.ExpectedDoc)
		if res.Rank == 1 {
			hit1++
		}
		if res.Rank > 0 {
			hitK++
			mrrSum += 1.0 / float64(res.Rank)
		}

		report.Results = append(report.Results, res)
	}

	n := float64(len(queries))
	report.HitAt1 = float64(hit1) / n
	report.HitAtK = float64(hitK) / n
	report.MRR = mrrSum / n
	report.AvgLatency = totalLatency / time.Duration(len(queries))
	report.RunTime = time.Since(start)

	return report, nil
}

// docOrder returns the distinct document IDs of a citation list in
// rank order.
func docOrder(citations []ragpipe.Citation) []string {
	seen := make(map[string]bool, len(citations))
	var docs []string
	for _, c := range citations {
		if !seen[c.DocID] {
			seen[c.DocID] = true
			docs = append(docs, c.DocID)
		}
	}
	return docs
}

// rankOf returns the 1-based position of docID, 0 when absent.
func rankOf(docs []string, docID string) int {
	for i, d := range docs {
		if d == docID {
			return i + 1
		}
	}
	return 0
}

// WriteText prints a human-readable summary followed by the per-query
// breakdown.
func (r *Report) WriteText(w io.Writer) {
	fmt.Fprintf(w, "queries:   %d\n", r.TotalQueries)
	fmt.Fprintf(w, "hit@1:     %.1f%%\n", r.HitAt1*100)
	fmt.Fprintf(w, "hit@k:     %.1f%%\n", r.HitAtK*100)
	fmt.Fprintf(w, "mrr:       %.3f\n", r.MRR)
	fmt.Fprintf(w, "refusals:  %d\n", r.Refusals)
	fmt.Fprintf(w, "errors:    %d\n", r.Errors)
	fmt.Fprintf(w, "avg query: %s\n", r.AvgLatency.Round(time.Millisecond))
	fmt.Fprintf(w, "run time:  %s\n\n", r.RunTime.Round(time.Millisecond))

	for i, res := range r.Results {
		mark := "MISS"
		switch {
		case res.Error != "":
			mark = "ERR "
		case res.Rank == 1:
			mark = "HIT "
		case res.Rank > 0:
			mark = fmt.Sprintf("@%-3d", res.Rank)
		}
		fmt.Fprintf(w, "[%s] %2d. %s\n", mark, i+1, res.Query)
		if res.Error != "" {
			fmt.Fprintf(w, "          error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(w, "          expected %s, top %s (%d citations, %dms)\n",
			res.ExpectedDoc, res.TopDoc, res.Citations, res.ElapsedMs)
	}
}
