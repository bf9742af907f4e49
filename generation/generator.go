package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yukunliu/ragpipe/cache"
	"github.com/yukunliu/ragpipe/llm"
	"github.com/yukunliu/ragpipe/store"
)

// Refusal is the standard answer when the knowledge base has nothing
// relevant; the system prompt instructs the model to emit it verbatim.
const Refusal = "根据当前已知知识库，暂时无法回答该问题。"

const answerSystemPrompt = `你是一个严谨的华为无线通信技术专家。请仅基于以下<context>和</context>标签内部的参考资料回答问题。
如果参考资料中不包含相关答案，请输出标准回复："根据当前已知知识库，暂时无法回答该问题"。
严禁捏造不存在的术语、协议编号与事实。
在表述关键论点后必须添加引用标记，格式为 [chunk_id]。
回答要求：
1. 结构清晰，使用标题和列表组织内容
2. 关键技术点必须附带引用来源
3. 如果多个参考资料有互补信息，需综合整理
4. 输出语言与用户提问语言保持一致`

// Generator produces a streamed answer from retrieved context. fn is
// called once per token fragment; returning an error aborts the stream.
type Generator interface {
	GenerateStream(ctx context.Context, query string, chunks []store.RetrievedChunk, history []cache.Message, fn func(token string) error) error
}

// buildContext wraps the retrieved chunks in <context> tags with their
// IDs exposed for citation.
func buildContext(chunks []store.RetrievedChunk) string {
	parts := make([]string, len(chunks))
	for i, rc := range chunks {
		parts[i] = fmt.Sprintf("[%s] %s", rc.Chunk.ChunkID, rc.Chunk.Text)
	}
	return "<context>\n" + strings.Join(parts, "\n---\n") + "\n</context>"
}

func buildMessages(query, contextText string, history []cache.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: answerSystemPrompt})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: fmt.Sprintf("参考资料：\n%s\n\n问题：%s", contextText, query),
	})
	return messages
}

// LLM is the production Generator, streaming from a chat provider
// under the anti-hallucination system prompt.
type LLM struct {
	provider llm.Provider
	model    string
	trimmer  *BudgetTrimmer
}

// NewLLM wires an LLM generator.
func NewLLM(provider llm.Provider, model string, trimmer *BudgetTrimmer) *LLM {
	if trimmer == nil {
		trimmer = NewBudgetTrimmer(0)
	}
	return &LLM{provider: provider, model: model, trimmer: trimmer}
}

func (g *LLM) GenerateStream(ctx context.Context, query string, chunks []store.RetrievedChunk, history []cache.Message, fn func(string) error) error {
	contextText := buildContext(chunks)
	trimmed := g.trimmer.TrimHistory(answerSystemPrompt, history, query)
	messages := buildMessages(query, contextText, trimmed)

	slog.Debug("generator: prompt built",
		"context_chars", len(contextText),
		"history_kept", len(trimmed),
		"messages", len(messages),
	)

	return g.provider.ChatStream(ctx, llm.ChatRequest{
		Model:    g.model,
		Messages: messages,
	}, fn)
}

// Mock is the offline Generator: it assembles an answer with citations
// directly from the top context chunks. It exercises the same prompt
// construction path as LLM so budget behavior stays covered without a
// model dependency.
type Mock struct {
	trimmer *BudgetTrimmer
}

// NewMock wires a Mock generator.
func NewMock(trimmer *BudgetTrimmer) *Mock {
	if trimmer == nil {
		trimmer = NewBudgetTrimmer(0)
	}
	return &Mock{trimmer: trimmer}
}

func (g *Mock) GenerateStream(ctx context.Context, query string, chunks []store.RetrievedChunk, history []cache.Message, fn func(string) error) error {
	contextText := buildContext(chunks)
	trimmed := g.trimmer.TrimHistory(answerSystemPrompt, history, query)
	_ = buildMessages(query, contextText, trimmed)

	answer := g.compose(query, chunks)
	for _, r := range answer {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(string(r)); err != nil {
			return err
		}
	}
	return nil
}

func (g *Mock) compose(query string, chunks []store.RetrievedChunk) string {
	if len(chunks) == 0 {
		return Refusal
	}

	var b strings.Builder
	fmt.Fprintf(&b, "关于「%s」，根据检索到的资料回答如下：\n\n", query)

	max := len(chunks)
	if max > 5 {
		max = 5
	}
	for i, rc := range chunks[:max] {
		text := strings.TrimSpace(rc.Chunk.Text)
		runes := []rune(text)
		snippet := text
		if len(runes) > 200 {
			snippet = string(runes[:200]) + "..."
		}
		heading := rc.Chunk.Meta.HeadingPath
		if heading == "" {
			heading = rc.Chunk.Meta.DocName
		}
		fmt.Fprintf(&b, "**%d. %s**\n%s [%s]\n\n", i+1, heading, snippet, rc.Chunk.ChunkID)
	}

	b.WriteString("以上信息均来源于检索到的参考资料，如需更详细信息请进一步查阅原文档。")
	return b.String()
}
