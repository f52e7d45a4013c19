package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	supervisorx "github.com/omniflowhq/omniflow/agent/agents/supervisor"
	contractx "github.com/omniflowhq/omniflow/agent/contract"
	promptx "github.com/omniflowhq/omniflow/agent/prompt"
	statex "github.com/omniflowhq/omniflow/agent/state"
	synthx "github.com/omniflowhq/omniflow/agent/synthesis"
	"github.com/omniflowhq/omniflow/domain"
	configx "github.com/omniflowhq/omniflow/pkg/config"
	_ "github.com/omniflowhq/omniflow/pkg/logger/autoload"
	openrouterx "github.com/omniflowhq/omniflow/pkg/openrouter"
	qstashx "github.com/omniflowhq/omniflow/pkg/qstash"
)

type AppConfig struct {
	PostgresDSN string `envconfig:"POSTGRES_DSN" required:"true"`
	UserEmail   string `envconfig:"DEMO_USER_EMAIL" default:"amy@example.com"`
	UserName    string `envconfig:"DEMO_USER_NAME" default:"Amy"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("")

	db, err := domain.NewDB(appCfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open postgres")
	}
	defer db.Close()
	registry := domain.NewRegistry(db, time.Now)

	var store statex.Store
	if os.Getenv("UPSTASH_REDIS_URL") != "" {
		redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		redisStore, err := statex.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init session store")
		}
		store = redisStore
	} else {
		log.Warn().Msg("UPSTASH_REDIS_URL not set, sessions are in-memory only")
		store = statex.NewMemoryStore()
	}

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	synth, err := openrouterx.NewSynthesizer(*openRouterCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init synthesizer")
	}
	guard := synthx.NewGuard(synth, promptx.LoadPromptSet())

	var publisher contractx.TracePublisher
	if os.Getenv("QSTASH_URL") != "" {
		qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
		publisher = qstashx.NewTracePublisher(qstashx.MustNew(*qstashCfg))
	}

	agent, err := supervisorx.New(store, registry, guard, publisher, supervisorx.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("init supervisor")
	}

	runREPL(agent, appCfg)
}

// runREPL drives a single demo session over stdin.
func runREPL(agent *supervisorx.Supervisor, cfg *AppConfig) {
	sessionID := uuid.NewString()
	fmt.Printf("session %s — type a message, or /quit\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return
		}

		input := contractx.TurnInput{
			Query:     line,
			UserEmail: cfg.UserEmail,
			UserName:  cfg.UserName,
		}
		// "/image <path>" attaches an item photo to the turn.
		if rest, ok := strings.CutPrefix(line, "/image "); ok {
			data, err := os.ReadFile(strings.TrimSpace(rest))
			if err != nil {
				fmt.Printf("could not read image: %v\n", err)
				continue
			}
			input.Query = "here is the item photo"
			input.Image = base64.StdEncoding.EncodeToString(data)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		result, err := agent.RunTurn(ctx, sessionID, input)
		cancel()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}

		fmt.Println(result.Answer)
		if result.NeedsImage {
			fmt.Println("(attach a photo with /image <path>)")
		}
		log.Debug().
			Float64("confidence", result.Confidence).
			Interface("trace", result.Trace).
			Msg("turn complete")
	}
}
