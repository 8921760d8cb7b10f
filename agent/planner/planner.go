package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/tanpawarit/crmpilot/agent/contract"
	toolx "github.com/tanpawarit/crmpilot/agent/tool"
	llmx "github.com/tanpawarit/crmpilot/pkg/llm"
)

// Planner proposes tool calls or a terminal answer through an LLM with
// tool calling. It is stateless between Plan calls: the transcript is
// rebuilt from the request every time.
type Planner struct {
	client       *openaisdk.Client
	model        string
	temperature  float64
	maxTokens    int64
	systemPrompt string
	tools        []openaisdk.ChatCompletionToolParam
}

var _ contractx.Planner = (*Planner)(nil)

func New(client *openaisdk.Client, cfg llmx.Config, systemPrompt string, specs []toolx.Spec) *Planner {
	tools := make([]openaisdk.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openaisdk.ChatCompletionToolParam{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openaisdk.String(spec.Description),
				Parameters:  spec.Parameters,
			},
		})
	}

	return &Planner{
		client:       client,
		model:        strings.TrimSpace(cfg.Model),
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxCompletionTokens,
		systemPrompt: systemPrompt,
		tools:        tools,
	}
}

func (p *Planner) Plan(ctx context.Context, req contractx.PlanRequest) (contractx.Decision, error) {
	if len(req.History) == 0 {
		return contractx.Decision{}, fmt.Errorf("%w: planner needs at least one turn", contractx.ErrValidation)
	}

	messages, err := p.messages(req)
	if err != nil {
		return contractx.Decision{}, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:               openaisdk.ChatModel(p.model),
		Messages:            messages,
		Tools:               p.tools,
		Temperature:         openaisdk.Float(p.temperature),
		MaxCompletionTokens: openaisdk.Int(p.maxTokens),
	})
	if err != nil {
		return contractx.Decision{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if len(completion.Choices) == 0 {
		return contractx.Decision{}, fmt.Errorf("%w: completion has no choices", contractx.ErrSchemaViolation)
	}

	msg := completion.Choices[0].Message

	if len(msg.ToolCalls) > 0 {
		reqs := make([]contractx.ToolRequest, 0, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			name := strings.TrimSpace(call.Function.Name)
			if name == "" {
				return contractx.Decision{}, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
			}

			args := map[string]any{}
			if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					return contractx.Decision{}, fmt.Errorf("%w: invalid args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
				}
			}

			reqs = append(reqs, contractx.ToolRequest{
				CallID: call.ID,
				Tool:   name,
				Args:   args,
			})
		}
		return contractx.Decision{ToolRequests: reqs}, nil
	}

	answer := strings.TrimSpace(msg.Content)
	if answer == "" {
		return contractx.Decision{}, fmt.Errorf("%w: model returned neither tools nor an answer", contractx.ErrSchemaViolation)
	}
	return contractx.Decision{Answer: answer}, nil
}

// messages rebuilds the chat transcript: system prompt, the bounded
// conversation history, then this turn's tool exchanges as an assistant
// tool-call message followed by one tool message per result.
func (p *Planner) messages(req contractx.PlanRequest) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.History)+2*len(req.Exchanges)+2)
	messages = append(messages, openaisdk.SystemMessage(p.systemPrompt))

	for _, turn := range req.History {
		switch turn.Role {
		case contractx.RoleAssistant:
			messages = append(messages, openaisdk.AssistantMessage(turn.Text))
		default:
			messages = append(messages, openaisdk.UserMessage(turn.Text))
		}
	}

	if len(req.Exchanges) == 0 {
		return messages, nil
	}

	toolCalls := make([]openaisdk.ChatCompletionMessageToolCallParam, 0, len(req.Exchanges))
	for _, ex := range req.Exchanges {
		args, err := json.Marshal(ex.Request.Args)
		if err != nil {
			return nil, fmt.Errorf("%w: encode tool args: %v", contractx.ErrValidation, err)
		}
		toolCalls = append(toolCalls, openaisdk.ChatCompletionMessageToolCallParam{
			ID: ex.Request.CallID,
			Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
				Name:      ex.Request.Tool,
				Arguments: string(args),
			},
		})
	}
	messages = append(messages, openaisdk.ChatCompletionMessageParamUnion{
		OfAssistant: &openaisdk.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls},
	})

	for _, ex := range req.Exchanges {
		payload, err := json.Marshal(ex.Result)
		if err != nil {
			return nil, fmt.Errorf("%w: encode tool result: %v", contractx.ErrValidation, err)
		}
		messages = append(messages, openaisdk.ToolMessage(string(payload), ex.Request.CallID))
	}

	return messages, nil
}
