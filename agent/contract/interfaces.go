package contract

import "context"

// Planner proposes the next step for a turn. Implementations must be
// stateless between calls: everything they need arrives in the request.
// This keeps the non-deterministic model behind a narrow interface that
// deterministic test fakes can stand in for.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (Decision, error)
}

// ToolGateway executes tool requests strictly in order and never returns
// an error for an individual tool failure; those are encoded in the
// ToolResult so the planner can react to them.
type ToolGateway interface {
	Execute(ctx context.Context, reqs []ToolRequest) ([]ToolResult, error)
}
