package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/crmpilot/agent/orchestrator"
	plannerx "github.com/tanpawarit/crmpilot/agent/planner"
	promptx "github.com/tanpawarit/crmpilot/agent/prompt"
	toolx "github.com/tanpawarit/crmpilot/agent/tool"
	configx "github.com/tanpawarit/crmpilot/pkg/config"
	"github.com/tanpawarit/crmpilot/pkg/email"
	"github.com/tanpawarit/crmpilot/pkg/hubspot"
	llmx "github.com/tanpawarit/crmpilot/pkg/llm"
	logx "github.com/tanpawarit/crmpilot/pkg/logger"
	serverx "github.com/tanpawarit/crmpilot/server"
)

func main() {
	// Registered before the config loader parses flags.
	promptFlag := flag.String("prompt", "", "run a single request and exit instead of serving HTTP")

	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	llmCfg := configx.MustNew[llmx.Config]("OPENAI")
	hubspotCfg := configx.MustNew[hubspot.Config]("HUBSPOT")
	emailCfg := configx.MustNew[email.Config]("EMAIL")
	orchestratorCfg := configx.MustNew[orchestratorx.Config]("ORCHESTRATOR")
	serverCfg := configx.MustNew[serverx.Config]("SERVER")

	crm, err := hubspot.NewClient(*hubspotCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize hubspot client")
	}

	mailer, err := email.New(*emailCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email service")
	}

	llmClient := llmx.MustNewClient(*llmCfg)
	gateway := toolx.NewGateway(crm, mailer)

	newSession := func() (*orchestratorx.Service, error) {
		p := plannerx.New(llmClient, *llmCfg, promptx.System(), toolx.Catalog())
		return orchestratorx.New(p, gateway, *orchestratorCfg)
	}

	if query := strings.TrimSpace(*promptFlag); query != "" {
		session, err := newSession()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build orchestrator")
		}
		output, err := session.HandleMessage(context.Background(), query)
		if err != nil {
			log.Error().Err(err).Msg("request failed")
			fmt.Println("Sorry, something went wrong: " + err.Error())
			os.Exit(1)
		}
		fmt.Println(output)
		return
	}

	srv := serverx.New(newSession)
	if err := srv.Start(serverCfg.Addr); err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}
