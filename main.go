package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	enginex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/engine"
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	promptx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/prompt"
	respondx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/respond"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
	transcriptx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/transcript"
	validatorx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/validator"
	configx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/pkg/config"
	_ "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/pkg/openrouter"
	qstashx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/pkg/qstash"
)

type AppConfig struct {
	FlowID             string `envconfig:"FLOW_ID" split_words:"true" default:"lead_intake"`
	FlowDir            string `envconfig:"FLOW_DIR" split_words:"true"`
	StoreBackend       string `envconfig:"STORE_BACKEND" split_words:"true" default:"memory"`
	GeneratorEnabled   bool   `envconfig:"GENERATOR_ENABLED" split_words:"true" default:"false"`
	TranscriptEnabled  bool   `envconfig:"TRANSCRIPT_ENABLED" split_words:"true" default:"false"`
	HandoffDestination string `envconfig:"HANDOFF_DESTINATION" split_words:"true"`
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("")
	engineCfg := configx.MustNew[enginex.Config]("ENGINE")

	// the same registry gates flow loading and backs the engine's extractor
	validators := validatorx.NewRegistry()
	flows := flowx.NewRegistry(validators.Has)
	flows.MustLoadDefault()
	if appCfg.FlowDir != "" {
		if err := flows.LoadDir(appCfg.FlowDir); err != nil {
			log.Fatal().Err(err).Str("dir", appCfg.FlowDir).Msg("load flow dir")
		}
	}

	store := buildStore(ctx, appCfg.StoreBackend, engineCfg.SessionTTL)

	var gen contractx.Generator
	if appCfg.GeneratorEnabled {
		openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
		chatModel, err := openRouterCfg.New(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("create chat model")
		}
		gen, err = respondx.NewModelGenerator(ctx, chatModel, promptx.LoadSet().System)
		if err != nil {
			log.Fatal().Err(err).Msg("create generator")
		}
	}

	var engineOpts []enginex.Option
	if appCfg.TranscriptEnabled {
		transcriptCfg := configx.MustNew[transcriptx.Config]("TRANSCRIPT")
		transcripts, err := transcriptx.New(*transcriptCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create transcript store")
		}
		defer transcripts.Close()
		if err := transcripts.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ensure transcript schema")
		}
		engineOpts = append(engineOpts, enginex.WithTranscriptStore(transcripts))
	}
	if appCfg.HandoffDestination != "" {
		qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
		publisher := &qstashHandoffPublisher{
			client:      qstashx.MustNew(*qstashCfg),
			destination: appCfg.HandoffDestination,
		}
		engineOpts = append(engineOpts, enginex.WithHandoffPublisher(publisher))
	}

	engineOpts = append(engineOpts, enginex.WithValidators(validators))

	eng, err := enginex.New(store, flows, gen, *engineCfg, engineOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("create engine")
	}

	runDemo(ctx, eng, appCfg.FlowID)
}

func buildStore(ctx context.Context, backend string, ttl time.Duration) statex.Store {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "upstash":
		redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		store, err := statex.NewUpstashRedisStore(*redisCfg, statex.WithTTL(ttl))
		if err != nil {
			log.Fatal().Err(err).Msg("create upstash store")
		}
		return store
	default:
		store := statex.NewMemoryStore(statex.WithMemoryTTL(ttl))
		store.StartSweeper(ctx)
		return store
	}
}

// runDemo drives one conversation over stdin. The first turn is opened with
// a nil utterance, later lines are fed as user input.
func runDemo(ctx context.Context, eng *enginex.Engine, flowID string) {
	conversationID := uuid.NewString()
	opts := contractx.TurnOptions{FlowID: flowID}

	result, err := eng.ProcessTurn(ctx, conversationID, nil, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("open conversation")
	}
	fmt.Printf("bot> %s\n", result.Text)

	scanner := bufio.NewScanner(os.Stdin)
	for result.Status == contractx.StatusInProgress {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result, err = eng.ProcessTurn(ctx, conversationID, &line, opts)
		if err != nil {
			log.Fatal().Err(err).Msg("process turn")
		}
		fmt.Printf("bot> %s\n", result.Text)
	}
	fmt.Printf("conversation ended: %s\n", result.Status)
}

type qstashHandoffPublisher struct {
	client      *qstashx.Client
	destination string
}

func (p *qstashHandoffPublisher) PublishHandoff(ctx context.Context, ev contractx.HandoffEvent) error {
	return p.client.Publish(ctx, p.destination, ev)
}
