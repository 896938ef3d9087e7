// Demo host for the relay engine: an in-memory store, a console UI adapter
// and a single configured player. It seeds a definition, launches a session
// and walks through a navigation so the moving pieces can be watched locally.
package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relaygame/relay/go/internal/relay"
	"github.com/relaygame/relay/go/internal/relay/events"
	"github.com/relaygame/relay/go/internal/relay/schema"
	"github.com/relaygame/relay/go/internal/store"
	"github.com/relaygame/relay/go/internal/store/memstore"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := loadConfig(getEnv("RELAY_CONFIG", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	player := getEnv("RELAY_PLAYER", cfg.Player)
	if player == "" {
		player = "Demo Player"
	}
	if ms := getEnvAsInt("RELAY_TICK_MS", cfg.TickIntervalMS); ms > 0 {
		cfg.TickIntervalMS = ms
	}

	var publisher events.Publisher = events.NewLogPublisher()
	if url := getEnv("NATS_URL", cfg.NATS.URL); url != "" {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = url
		if cfg.NATS.StreamName != "" {
			jsCfg.StreamName = cfg.NATS.StreamName
		}
		if cfg.NATS.SubjectPrefix != "" {
			jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		js, err := events.NewJetStreamPublisher(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect JetStream publisher")
		}
		defer js.Close()
		publisher = js
	}

	st := memstore.New()
	engine, err := relay.New(relay.Config{
		Store:     st,
		UI:        consoleUI{},
		Identity:  staticIdentity{player: player},
		Publisher: publisher,
		Home:      cfg.Home,
		Interval:  cfg.tickInterval(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize relay engine")
	}

	ctx := context.Background()
	if err := engine.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}

	if err := seedDefinition(ctx, st, engine.Catalog().Home()); err != nil {
		log.Fatal().Err(err).Msg("failed to seed definition")
	}

	titles, err := engine.Catalog().ListDefinitions(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list definitions")
	}
	log.Info().Strs("definitions", titles).Msg("definition catalog")

	sess, err := engine.Launch(ctx, "Euler Relay", "Euler Relay #1", map[string]string{"problem": "42"}, 10)
	if err != nil {
		log.Fatal().Err(err).Msg("launch failed")
	}
	log.Info().Str("session", sess.Title).Str("problem", sess.ProblemText).Msg("session launched")

	position, err := engine.Join(ctx, sess.Title)
	if err != nil {
		log.Fatal().Err(err).Msg("join failed")
	}
	log.Info().Int("position", position).Msg("joined session")

	decision, err := engine.HandleNavigation(ctx, sess.Title)
	if err != nil {
		log.Fatal().Err(err).Msg("navigation failed")
	}
	log.Info().Str("outcome", string(decision.Outcome)).Msg("navigated to session")

	// Let the turn clock run briefly before tearing the view down.
	time.Sleep(2 * time.Second)
	engine.StopClock()
}

// seedDefinition creates a sample definition. The empty-template fallback in
// the resolver means the demo works without the real problem source.
func seedDefinition(ctx context.Context, st store.Store, home string) error {
	_, err := st.CreateDocument(ctx, "Euler Relay", []store.Node{
		{Text: "[[" + home + "]]"},
		schema.Setting(schema.KeySource),
		schema.Setting(schema.KeyParameters, "problem"),
	})
	return err
}
