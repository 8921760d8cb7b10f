package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/crmpilot/agent/contract"
	historyx "github.com/tanpawarit/crmpilot/agent/history"
)

// DefaultMaxToolRounds bounds how many plan/execute cycles one turn may
// run before the orchestrator gives up and summarizes what it got done.
const DefaultMaxToolRounds = 5

type Config struct {
	MaxToolRounds   int `split_words:"true" default:"5"`
	HistoryCapacity int `split_words:"true" default:"8"`
}

// Service drives one conversation session: it owns the bounded turn
// history and runs the per-turn plan/execute/replan loop. Turns within a
// session are serialized; distinct sessions use distinct Service
// instances and share nothing but the remote CRM.
type Service struct {
	planner contractx.Planner
	tools   contractx.ToolGateway

	mu      sync.Mutex
	history *historyx.History

	maxRounds int
}

func New(planner contractx.Planner, tools contractx.ToolGateway, cfg Config) (*Service, error) {
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}

	return &Service{
		planner:   planner,
		tools:     tools,
		history:   historyx.New(cfg.HistoryCapacity),
		maxRounds: maxRounds,
	}, nil
}

// HandleMessage runs one conversation turn: Received -> Planning ->
// Executing -> Replanning (bounded) -> Responding. Tool failures are fed
// back to the planner as context; only planner failures and cancellation
// surface as errors.
func (s *Service) HandleMessage(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", contractx.ErrInvalidMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Append(contractx.Turn{Role: contractx.RoleUser, Text: text})

	var exchanges []contractx.ToolExchange

	for round := 0; round < s.maxRounds; round++ {
		decision, err := s.planner.Plan(ctx, contractx.PlanRequest{
			History:   s.history.Turns(),
			Exchanges: exchanges,
		})
		if err != nil {
			return "", err
		}

		if decision.Terminal() {
			answer := strings.TrimSpace(decision.Answer)
			if answer == "" {
				return "", fmt.Errorf("%w: terminal decision with empty answer", contractx.ErrSchemaViolation)
			}
			s.history.Append(contractx.Turn{Role: contractx.RoleAssistant, Text: answer})
			return answer, nil
		}

		results, execErr := s.tools.Execute(ctx, decision.ToolRequests)
		for i, result := range results {
			exchanges = append(exchanges, contractx.ToolExchange{
				Request: decision.ToolRequests[i],
				Result:  result,
			})
		}
		if execErr != nil {
			// Cancellation mid-turn: stop issuing tool calls, leave
			// committed mutations committed.
			return "", execErr
		}
	}

	log.Warn().Int("rounds", s.maxRounds).Int("tools_run", len(exchanges)).
		Msg("tool round budget exhausted, returning partial summary")

	answer := partialSummary(exchanges)
	s.history.Append(contractx.Turn{Role: contractx.RoleAssistant, Text: answer})
	return answer, nil
}

// History returns a snapshot of the retained turns, oldest first.
func (s *Service) History() []contractx.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Turns()
}

// partialSummary narrates what did and did not get done when the round
// budget ran out, and states explicitly that the request is incomplete.
func partialSummary(exchanges []contractx.ToolExchange) string {
	if len(exchanges) == 0 {
		return "I could not complete your request within my planning budget and no actions were performed. Please try rephrasing it."
	}

	var done, failed []string
	for _, ex := range exchanges {
		if ex.Result.Error != "" {
			failed = append(failed, fmt.Sprintf("%s (%s)", ex.Request.Tool, ex.Result.Error))
		} else {
			done = append(done, ex.Request.Tool)
		}
	}

	var b strings.Builder
	b.WriteString("I ran out of steps before fully completing your request.")
	if len(done) > 0 {
		b.WriteString(" Completed: " + strings.Join(done, ", ") + ".")
	}
	if len(failed) > 0 {
		b.WriteString(" Failed: " + strings.Join(failed, "; ") + ".")
	}
	b.WriteString(" The request was only partially completed; please re-ask for anything still missing.")
	return b.String()
}
