package contract

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one user-input or system-output entry in a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ToolRequest is a single planner decision: which tool to invoke with
// which arguments. CallID ties the request back to the model's tool call
// so results can be fed into the next planning round.
type ToolRequest struct {
	CallID string         `json:"call_id,omitempty"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
}

// ToolResult carries either a success payload or a structured error.
// Errors here are planner context, not caller-visible failures.
type ToolResult struct {
	CallID string `json:"call_id,omitempty"`
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ToolExchange pairs a request with the result it produced, in the order
// the tools ran within the current turn.
type ToolExchange struct {
	Request ToolRequest `json:"request"`
	Result  ToolResult  `json:"result"`
}

// PlanRequest is everything the planner sees: the bounded conversation
// history (newest user message last) and the tool exchanges completed so
// far in this turn.
type PlanRequest struct {
	History   []Turn         `json:"history"`
	Exchanges []ToolExchange `json:"exchanges,omitempty"`
}

// Decision is either an ordered list of tool requests to execute next,
// or a terminal natural-language answer.
type Decision struct {
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
	Answer       string        `json:"answer,omitempty"`
}

func (d Decision) Terminal() bool {
	return len(d.ToolRequests) == 0
}
