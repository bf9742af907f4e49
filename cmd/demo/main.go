// Command demo ingests the built-in sample corpus and runs the
// scripted end-to-end conversation: ingestion through the bus,
// three-level retrieval with citations, streamed generation, and a
// cache-hit replay of the first query.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yukunliu/ragpipe"
	"github.com/yukunliu/ragpipe/data"
)

func main() {
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

	banner("加载示例文档")
	total := 0
	for _, doc := range data.Documents {
		n, err := engine.Ingest(ctx, doc.DocID, doc.DocName, doc.Content, "markdown")
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingest %s: %v\n", doc.DocID, err)
			os.Exit(1)
		}
		total += n
		fmt.Printf("  [OK] %s -> %d chunks\n", doc.DocName, n)
	}
	fmt.Printf("数据加载完毕: %d 篇文档, %d 个 chunk\n", len(data.Documents), total)

	banner("端到端查询演示")
	for i, q := range data.Queries[:4] {
		fmt.Printf("\n--- 查询 %d: %s ---\n", i+1, q.Query)
		fmt.Printf("[期望命中] %s (%s)\n", q.ExpectedDoc, q.Description)

		start := time.Now()
		var answer strings.Builder
		resp, err := engine.ChatStream(ctx, ragpipe.ChatRequest{
			UserID:    "demo",
			SessionID: "demo-session",
			Query:     q.Query,
			TopK:      5,
		}, func(token string) error {
			answer.WriteString(token)
			return nil
		})
		if err != nil {
			fmt.Printf("[错误] %v\n", err)
			continue
		}

		fmt.Printf("[改写结果] %v\n", resp.RewrittenQueries)
		fmt.Printf("[检索结果] %d 个候选:\n", len(resp.Citations))
		for _, c := range resp.Citations {
			fmt.Printf("  - %s (score=%.4f) [%s] %s\n",
				c.ChunkID, c.Score, c.DocID, clip(c.HeadingPath, 50))
		}
		fmt.Printf("[生成答案] %s\n", clip(answer.String(), 200))
		fmt.Printf("[来源] %s, 耗时 %s\n", resp.Source, time.Since(start).Round(time.Millisecond))
	}

	banner("缓存命中测试")
	start := time.Now()
	resp, err := engine.Chat(ctx, ragpipe.ChatRequest{
		UserID:    "demo",
		SessionID: "demo-session",
		Query:     data.Queries[0].Query,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "cache replay:", err)
		os.Exit(1)
	}
	if resp.Source == ragpipe.SourceExactCache {
		fmt.Printf("[Cache HIT] 精确缓存命中，耗时 %s\n", time.Since(start).Round(time.Millisecond))
	} else {
		fmt.Printf("[Cache MISS] 来源 %s\n", resp.Source)
	}
}

func banner(title string) {
	line := strings.Repeat("=", 60)
	fmt.Printf("\n%s\n%s\n%s\n", line, title, line)
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
