package data

// Query is one scripted demo query with the document it should hit.
type Query struct {
	Query       string
	ExpectedDoc string
	Description string
}

// Queries is the scripted demo conversation.
var Queries = []Query{
	{
		Query:       "5G随机接入的四步流程是什么？",
		ExpectedDoc: "doc_001",
		Description: "语义理解：应命中随机接入文档",
	},
	{
		Query:       "CA是什么",
		ExpectedDoc: "doc_002",
		Description: "缩写扩展：CA -> 载波聚合",
	},
	{
		Query:       "gNodeB AAU5613 的最大功率是多少",
		ExpectedDoc: "doc_005",
		Description: "精确参数匹配：BM25 优势场景",
	},
	{
		Query:       "波束失败后怎么恢复",
		ExpectedDoc: "doc_003",
		Description: "语义理解：波束恢复流程",
	},
	{
		Query:       "URLLC 切片的时延要求",
		ExpectedDoc: "doc_004",
		Description: "多维度匹配：术语 + 参数",
	},
	{
		Query:       "HARQ 最多能重传几次",
		ExpectedDoc: "doc_007",
		Description: "精确事实查询",
	},
	{
		Query:       "上行功率控制的计算公式",
		ExpectedDoc: "doc_008",
		Description: "技术细节查询",
	},
	{
		Query:       "RRC连接建立需要几步",
		ExpectedDoc: "doc_006",
		Description: "流程类查询",
	},
}
