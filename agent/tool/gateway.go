package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/crmpilot/agent/contract"
	"github.com/tanpawarit/crmpilot/pkg/email"
	"github.com/tanpawarit/crmpilot/pkg/hubspot"
)

var toolInvocations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tool_invocations_total",
		Help: "Total number of tool invocations by tool and outcome",
	},
	[]string{"tool", "outcome"},
)

// CRMService is the slice of the CRM client the gateway needs.
type CRMService interface {
	UpsertContact(ctx context.Context, in hubspot.ContactInput) (*hubspot.Contact, error)
	UpdateContact(ctx context.Context, in hubspot.UpdateContactInput) (*hubspot.Contact, error)
	CreateDeal(ctx context.Context, in hubspot.DealInput) (*hubspot.DealResult, error)
	UpdateDeal(ctx context.Context, dealID string, in hubspot.DealInput) (*hubspot.Deal, error)
}

// EmailService sends a confirmation message through the configured backend.
type EmailService interface {
	Send(ctx context.Context, msg email.Message) (*email.Receipt, error)
}

// Gateway binds tool names to service calls. Tool failures become
// structured results for the planner, never errors to the caller; only
// context cancellation aborts the sequence.
type Gateway struct {
	crm  CRMService
	mail EmailService
}

func NewGateway(crm CRMService, mail EmailService) *Gateway {
	return &Gateway{crm: crm, mail: mail}
}

func (g *Gateway) Execute(ctx context.Context, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	results := make([]contractx.ToolResult, 0, len(reqs))
	for _, req := range reqs {
		// A cancelled turn stops issuing further tool calls; already
		// committed mutations stay committed.
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, g.execute(ctx, req))
	}
	return results, nil
}

func (g *Gateway) execute(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	result := contractx.ToolResult{CallID: req.CallID, Tool: req.Tool}

	payload, err := g.dispatch(ctx, req)
	if err != nil {
		log.Warn().Str("tool", req.Tool).Err(err).Msg("tool invocation failed")
		toolInvocations.WithLabelValues(req.Tool, "error").Inc()
		result.Error = err.Error()
		return result
	}

	toolInvocations.WithLabelValues(req.Tool, "ok").Inc()
	result.Result = payload
	return result
}

func (g *Gateway) dispatch(ctx context.Context, req contractx.ToolRequest) (any, error) {
	switch req.Tool {
	case ToolCreateContact:
		var in hubspot.ContactInput
		if err := decodeArgs(req.Args, &in); err != nil {
			return nil, err
		}
		return g.crm.UpsertContact(ctx, in)

	case ToolUpdateContact:
		var in hubspot.UpdateContactInput
		if err := decodeArgs(req.Args, &in); err != nil {
			return nil, err
		}
		return g.crm.UpdateContact(ctx, in)

	case ToolCreateDeal:
		var in hubspot.DealInput
		if err := decodeArgs(req.Args, &in); err != nil {
			return nil, err
		}
		return g.crm.CreateDeal(ctx, in)

	case ToolUpdateDeal:
		var in struct {
			DealID string `json:"deal_id"`
			hubspot.DealInput
		}
		if err := decodeArgs(req.Args, &in); err != nil {
			return nil, err
		}
		return g.crm.UpdateDeal(ctx, in.DealID, in.DealInput)

	case ToolSendConfirmationEmail:
		var msg email.Message
		if err := decodeArgs(req.Args, &msg); err != nil {
			return nil, err
		}
		return g.mail.Send(ctx, msg)

	default:
		return nil, fmt.Errorf("%w: unknown tool %q", contractx.ErrValidation, req.Tool)
	}
}

// decodeArgs maps loosely-typed planner arguments onto the typed service
// input through a JSON round trip.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: encode tool args: %v", contractx.ErrValidation, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode tool args: %v", contractx.ErrValidation, err)
	}
	return nil
}
