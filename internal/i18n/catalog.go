package i18n

// Keys for backend-produced strings.
const (
	KeySystemPrompt  = "system_prompt"
	KeyYou           = "you"
	KeyAssistant     = "assistant"
	KeyToolCall      = "tool_call"
	KeyToolResult    = "tool_result"
	KeyUntitled      = "untitled"
	KeySession       = "session"
	KeyModel         = "model"
	KeyDocument      = "document"
	KeyCreated       = "created"
	KeyStatus        = "status"
	KeySummaryPrompt = "summary_prompt"
	KeySummaryHeader = "summary_header"
)

var catalog = map[Lang]map[string]string{
	EN: {
		KeySystemPrompt: `You are a writing assistant inside a markdown editor.
The user is editing a markdown document. Use the document tools to read it before answering questions about it,
and to make the edits the user asks for. Prefer small targeted replacements over rewriting the whole document.
After editing, briefly describe what you changed.`,
		KeyYou:           "You",
		KeyAssistant:     "Assistant",
		KeyToolCall:      "Tool Call",
		KeyToolResult:    "Tool Result",
		KeyUntitled:      "(untitled)",
		KeySession:       "Session",
		KeyModel:         "Model",
		KeyDocument:      "Document",
		KeyCreated:       "Created",
		KeyStatus:        "Status",
		KeySummaryPrompt: "Summarize the conversation excerpt below between a user and the writing assistant of a markdown editor. " +
			"Keep what the user asked for, the edits that were made and anything still pending. " +
			"The document itself is reloaded every turn, so do not reproduce its text. Output only the summary.",
		KeySummaryHeader: "[Earlier conversation, summarized]",
	},
	ZH: {
		KeySystemPrompt: `你是 Markdown 编辑器中的写作助手。
用户正在编辑一份 Markdown 文档。回答与文档有关的问题前，请先使用文档工具读取内容；用户要求修改时，也请使用文档工具完成修改。
优先进行小范围的精准替换，而不是重写整份文档。修改完成后，请简要说明你改动了什么。请使用中文回复。`,
		KeyYou:           "你",
		KeyAssistant:     "助手",
		KeyToolCall:      "工具调用",
		KeyToolResult:    "工具结果",
		KeyUntitled:      "（未命名）",
		KeySession:       "会话",
		KeyModel:         "模型",
		KeyDocument:      "文档",
		KeyCreated:       "创建时间",
		KeyStatus:        "状态",
		KeySummaryPrompt: "请总结以下用户与 Markdown 编辑器写作助手之间的对话片段。" +
			"保留用户的要求、已完成的修改以及尚未完成的事项。文档内容每轮都会重新读取，不要复述文档正文。只输出总结本身。",
		KeySummaryHeader: "[较早的对话摘要]",
	},
}

// T returns the string for key in lang, falling back to English, then the key.
func T(lang Lang, key string) string {
	if s, ok := catalog[lang][key]; ok {
		return s
	}
	if s, ok := catalog[Default][key]; ok {
		return s
	}
	return key
}
