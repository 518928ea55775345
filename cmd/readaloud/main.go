package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	raconfig "github.com/readaloud/readaloud/config"
	"github.com/readaloud/readaloud/internal/cache"
	"github.com/readaloud/readaloud/internal/connectutil"
	"github.com/readaloud/readaloud/internal/device"
	"github.com/readaloud/readaloud/internal/download"
	"github.com/readaloud/readaloud/internal/playback"
	"github.com/readaloud/readaloud/internal/reader/api"
	"github.com/readaloud/readaloud/internal/reader/handler"
	"github.com/readaloud/readaloud/internal/registry"
	"github.com/readaloud/readaloud/internal/speech/client"
	"github.com/readaloud/readaloud/internal/translate"
	"github.com/readaloud/readaloud/pkg/events"
	"github.com/readaloud/readaloud/pkg/voices"

	// Register TTS backends via init().
	_ "github.com/readaloud/readaloud/internal/speech/backends/elevenlabs"
	_ "github.com/readaloud/readaloud/internal/speech/backends/google"
	_ "github.com/readaloud/readaloud/internal/speech/backends/openai"
	_ "github.com/readaloud/readaloud/internal/speech/backends/piper"
	_ "github.com/readaloud/readaloud/internal/speech/backends/remote"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[raconfig.ReaderConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("readaloud"),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	authenticator := srv.SecurityManager().GetAuthenticator(ctx)

	pub := events.NewPublisher(srv.QueueManager(), "readaloud", eventRef)
	history := events.NewHistory(200)

	// --- Speech ---
	tts, err := registry.TTS.Create(cfg.TTSBackend, cfg.BackendConfig())
	if err != nil {
		log.Fatalf("creating %s TTS backend: %v", cfg.TTSBackend, err)
	}
	defer tts.Close()

	clientOpts := []client.Option{
		client.WithBackendName(cfg.TTSBackend),
		client.WithBreaker(client.NewBreaker(cfg.BreakerConfig())),
	}
	if cfg.AudioCacheEnabled {
		repo := cache.NewRepository(srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"))
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("migrating audio cache: %v", err)
		}
		clientOpts = append(clientOpts, client.WithCache(repo))
	}
	speech := client.New(tts, clientOpts...)

	// --- Voices ---
	catalog := voices.NewLoader(cfg.VoiceCatalogDir)
	if _, err := catalog.LoadAll(); err != nil {
		log.Printf("warning: loading voice catalogs: %v", err)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		if err := catalog.WatchAndReload(done); err != nil {
			slog.WarnContext(ctx, "voice catalog watch stopped", slog.String("error", err.Error()))
		}
	}()

	// --- Playback ---
	playbackCfg := cfg.PlaybackConfig()
	if v, err := catalog.Resolve(cfg.TTSBackend, playbackCfg.Voice); err == nil {
		playbackCfg.Voice = v
	} else {
		log.Printf("warning: default voice: %v", err)
	}
	player := device.NewProcessDevice(cfg.DeviceConfig())
	ctrl := playback.NewController(ctx, playbackCfg, speech, player, pool, pub)
	defer ctrl.Close()

	aggregator := download.NewAggregator(speech, cfg.DownloadConfig(), pub)
	translator := translate.New(cfg.TranslateEndpointURL, cfg.TranslateAPIKey)

	// --- HTTP Mux: RPC and REST on one server ---
	mux := http.NewServeMux()

	rpcOpts, err := connectutil.AuthenticatedOptions(ctx, authenticator)
	if err != nil {
		log.Fatalf("setting up auth interceptors: %v", err)
	}
	path, h := handler.NewPlaybackHandler(ctrl, catalog, cfg.TTSBackend).WithEvents(pub).Routes(rpcOpts...)
	mux.Handle(path, h)

	docHandler := api.NewHandler(api.Deps{
		Document:   ctrl,
		Downloader: aggregator,
		Translator: translator,
		Voices:     catalog,
		Events:     history,
		Backend:    cfg.TTSBackend,
		MaxUpload:  cfg.MaxUploadBytes(),
	})
	restMux := http.NewServeMux()
	docHandler.RegisterRoutes(restMux)
	mux.Handle("/api/", connectutil.AuthenticatedHTTPMiddleware(restMux, authenticator))

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".history", eventURL, history),
		frame.WithHTTPHandler(connectutil.H2CHandler(mux)),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
