package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yukunliu/ragpipe/cache"
	"github.com/yukunliu/ragpipe/llm"
)

const rewriteSystemPrompt = `你是一个专业的查询改写助手，服务于无线通信领域的 RAG 检索系统。
你的任务是：
1. 指代消解：将多轮对话中的代词（它、这个、那个、该技术）还原为具体概念
2. 问题扩展：将用户问题扩展为 1~3 个语义等价或相关的检索问题，提高检索命中率

输出格式（JSON）:
{
  "resolved_query": "消解指代后的完整问题",
  "expanded_queries": ["扩展问题1", "扩展问题2"]
}`

const rewriteUserPrompt = `对话历史：
%s

当前问题：%s

请执行指代消解和问题扩展。注意：
- 术语和关键词保留原文
- 缩写需扩展为全称（如 CA -> 载波聚合）
- 排序逻辑：原始问题优先，扩展问题按相关性降序`

// abbreviations maps domain acronyms to their expansions.
var abbreviations = []struct{ abbr, full string }{
	{"PRACH", "物理随机接入信道"},
	{"PDCCH", "物理下行控制信道"},
	{"PDSCH", "物理下行共享信道"},
	{"MIMO", "多输入多输出"},
	{"HARQ", "混合自动重传请求"},
	{"RACH", "随机接入信道"},
	{"RRC", "无线资源控制"},
	{"gNB", "gNodeB 基站"},
	{"SSB", "同步信号块"},
	{"BWP", "带宽部分"},
	{"DCI", "下行控制信息"},
	{"RAR", "随机接入响应"},
	{"CA", "载波聚合"},
	{"NR", "New Radio"},
	{"UE", "用户设备"},
}

var pronouns = []string{"它", "这个", "那个", "该技术", "该方案", "这种", "那种", "上述"}

var paraphrases = []struct{ old, new string }{
	{"是什么", "的定义和概念"},
	{"怎么工作", "的工作原理"},
	{"有什么优势", "的优点和好处"},
	{"有什么区别", "之间的差异对比"},
	{"如何配置", "的配置方法和步骤"},
}

var topicRe = regexp.MustCompile(`(.+?)(?:是什么|有什么|怎么|如何)`)

// Rewriter produces 1-3 retrieval queries from the user query and
// recent history, the original query always first. A model-backed
// rewrite is attempted when a provider is configured; rule-based
// rewriting is the fallback.
type Rewriter struct {
	provider llm.Provider // nil means rules only
	model    string
}

// NewRewriter wires a Rewriter; provider may be nil.
func NewRewriter(provider llm.Provider, model string) *Rewriter {
	return &Rewriter{provider: provider, model: model}
}

// Rewrite returns the ordered query list.
func (r *Rewriter) Rewrite(ctx context.Context, query string, history []cache.Message) []string {
	if r.provider != nil {
		if queries, err := r.rewriteWithModel(ctx, query, history); err == nil {
			slog.Debug("rewriter: model rewrite", "query", query, "rewrites", queries)
			return queries
		} else {
			slog.Warn("rewriter: model rewrite failed, falling back to rules", "error", err)
		}
	}
	queries := r.rewriteRuleBased(query, history)
	slog.Debug("rewriter: rule rewrite", "query", query, "rewrites", queries)
	return queries
}

type rewriteResult struct {
	ResolvedQuery   string   `json:"resolved_query"`
	ExpandedQueries []string `json:"expanded_queries"`
}

func (r *Rewriter) rewriteWithModel(ctx context.Context, query string, history []cache.Message) ([]string, error) {
	recent := history
	if len(recent) > 4 {
		recent = recent[len(recent)-4:]
	}
	var lines []string
	for _, m := range recent {
		lines = append(lines, m.Role+": "+m.Content)
	}
	historyText := strings.Join(lines, "\n")
	if historyText == "" {
		historyText = "（无历史）"
	}

	resp, err := r.provider.Chat(ctx, llm.ChatRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "system", Content: rewriteSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(rewriteUserPrompt, historyText, query)},
		},
		Temperature:    0.2,
		MaxTokens:      512,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, err
	}

	var result rewriteResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &result); err != nil {
		return nil, fmt.Errorf("parsing rewrite response: %w", err)
	}

	queries := []string{query}
	if resolved := strings.TrimSpace(result.ResolvedQuery); resolved != "" {
		queries[0] = resolved
	}
	for _, eq := range result.ExpandedQueries {
		eq = strings.TrimSpace(eq)
		if eq != "" && !contains(queries, eq) {
			queries = append(queries, eq)
		}
	}
	return cap3(queries), nil
}

func (r *Rewriter) rewriteRuleBased(query string, history []cache.Message) []string {
	queries := []string{query}

	if len(history) > 0 {
		if resolved := resolveReferences(query, history); resolved != "" && resolved != query {
			queries = append(queries, resolved)
		}
	}
	if expanded := expandAbbreviations(query); expanded != "" && !contains(queries, expanded) {
		queries = append(queries, expanded)
	}
	if para := paraphrase(query); para != "" && !contains(queries, para) {
		queries = append(queries, para)
	}
	return cap3(queries)
}

// resolveReferences replaces pronouns with the topic of the most recent
// user turn; empty when the query has no pronoun or no topic is found.
func resolveReferences(query string, history []cache.Message) string {
	hasPronoun := false
	for _, p := range pronouns {
		if strings.Contains(query, p) {
			hasPronoun = true
			break
		}
	}
	if !hasPronoun {
		return ""
	}

	var topic string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "user" {
			continue
		}
		content := history[i].Content
		if m := topicRe.FindStringSubmatch(content); m != nil {
			topic = strings.TrimSpace(m[1])
		} else {
			runes := []rune(strings.TrimSpace(content))
			if len(runes) > 20 {
				runes = runes[:20]
			}
			topic = string(runes)
		}
		break
	}
	if topic == "" {
		return ""
	}

	resolved := query
	for _, p := range pronouns {
		resolved = strings.ReplaceAll(resolved, p, topic)
	}
	return resolved
}

var asciiWordRe = regexp.MustCompile(`[A-Za-z]+`)

// expandAbbreviations rewrites each known acronym A to "A(expansion)".
// Matching is per ASCII word so PRACH is never re-expanded through its
// substring RACH.
func expandAbbreviations(query string) string {
	expanded := asciiWordRe.ReplaceAllStringFunc(query, func(word string) string {
		for _, e := range abbreviations {
			if word == e.abbr {
				return word + "(" + e.full + ")"
			}
		}
		return word
	})
	if expanded == query {
		return ""
	}
	return expanded
}

func paraphrase(query string) string {
	for _, p := range paraphrases {
		if strings.Contains(query, p.old) {
			return strings.Replace(query, p.old, p.new, 1)
		}
	}
	return ""
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func cap3(xs []string) []string {
	if len(xs) > 3 {
		return xs[:3]
	}
	return xs
}
