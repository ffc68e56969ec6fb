package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/lipsync/internal/anim"
	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/config"
	"github.com/normanking/lipsync/internal/httpapi"
	"github.com/normanking/lipsync/internal/idle"
	"github.com/normanking/lipsync/internal/lipsync"
	"github.com/normanking/lipsync/internal/logging"
	"github.com/normanking/lipsync/internal/rig"
	"github.com/normanking/lipsync/internal/scheduler"
	"github.com/normanking/lipsync/internal/viewer"
)

var (
	serveListen   string
	serveMode     string
	serveInputWAV string
	serveNoWatch  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lip-sync server",
	Long: `Runs the frame loop, the HTTP control API and the viewer websocket.

The viewer page connects to /ws, reports the parameters of the model it
loaded, and receives batched parameter values every frame.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides viewer.listen)")
	serveCmd.Flags().StringVar(&serveMode, "mode", "", "lip-sync mode: tts, realtime or hybrid (overrides lipsync.mode)")
	serveCmd.Flags().StringVar(&serveInputWAV, "input-wav", "", "replay a WAV file as realtime input instead of the microphone")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not reload the config file on change")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	store, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := store.Config()

	logCfg := cfg.LoggerConfig()
	if logLevel != "" {
		logCfg.Level = logging.LogLevel(logLevel)
	}
	syslog, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer syslog.Close()

	log := syslog.Component("serve")
	zlogger := syslog.Zerolog()
	log.Info().Str("config", store.Path()).Str("version", Version).Msg("lipsync starting")

	settings := cfg.Settings()
	if serveMode != "" {
		mode, err := lipsync.ParseMode(serveMode)
		if err != nil {
			return err
		}
		settings.Mode = mode
	}
	listen := cfg.Viewer.Listen
	if serveListen != "" {
		listen = serveListen
	}

	table, err := cfg.Table()
	if err != nil {
		return err
	}

	eventBus := bus.NewEventBus()
	sched := scheduler.New(zlogger)

	hub := viewer.NewHub(rig.StandardSpecs(), zlogger, viewer.WithEvents(eventBus))
	hub.Forward(eventBus)

	arbiter := rig.NewArbiter(hub, rig.NewRegistry(), sched, cfg.ProtectionConfig(), zlogger, rig.WithEventBus(eventBus))

	engine, err := lipsync.NewEngine(arbiter, sched, table, cfg.AnalyzerConfig(), settings, zlogger,
		lipsync.WithEvents(eventBus),
		lipsync.WithRestoreOnClose(cfg.Protection.RestoreOnClose),
	)
	if err != nil {
		return err
	}

	idleMgr := idle.NewManager(sched, arbiter, cfg.IdleSettings(), zlogger, idle.WithEvents(eventBus))
	for _, kind := range cfg.IdleEnabled() {
		if err := idleMgr.Enable(kind, true); err != nil {
			return err
		}
	}

	hub.SetHandlers(viewer.Handlers{
		OnModel: func([]rig.ParameterSpec) {
			arbiter.ResetParameterCache()
		},
		OnUserParams: func(p rig.Params) {
			arbiter.Apply(p, rig.SourceUser)
		},
		OnBaseIdle: idleMgr.SetBaseIdleMotion,
	})

	library, err := anim.NewLibrary(cfg.Clips.Dir, table, settings.FPS, zlogger)
	if err != nil {
		return err
	}

	openSource, err := sourceFactory(store, syslog)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := httpapi.New(httpapi.Options{
		Engine:     engine,
		Idle:       idleMgr,
		Library:    library,
		Hub:        hub,
		Logs:       syslog,
		OpenSource: openSource,
		OnSettings: func(s lipsync.Settings) {
			next := *store.Config()
			next.SetSettings(s)
			if err := store.Save(&next); err != nil {
				log.Warn().Err(err).Msg("Failed to persist settings")
			}
		},
		Context: ctx,
		Debug:   logCfg.Level == logging.LevelDebug,
		Logger:  zlogger,
	})
	if err != nil {
		return err
	}

	if !serveNoWatch {
		store.Watch(zlogger, func(c *config.Config) {
			if err := engine.UpdateSettings(c.Settings()); err != nil {
				log.Warn().Err(err).Msg("Ignoring reloaded lip-sync settings")
			}
			if logLevel == "" {
				syslog.SetLevel(logging.LogLevel(c.Logging.Level))
			}
		})
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sched.Run(groupCtx, cfg.Viewer.FrameRate)
	})
	group.Go(func() error {
		log.Info().Str("addr", listen).Str("mode", string(settings.Mode)).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("Shutting down")
		engine.Stop()
		idleMgr.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return err
	}
	log.Info().Msg("lipsync stopped")
	return nil
}

// sourceFactory returns the realtime input: a paced WAV replay when
// --input-wav is set, otherwise the configured microphone.
func sourceFactory(store *config.Store, syslog *logging.Logger) (func() (audio.Source, error), error) {
	if serveInputWAV != "" {
		pcm, err := audio.ReadWAVFile(serveInputWAV)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", serveInputWAV, err)
		}
		bufferSize := store.Config().AudioConfig().BufferSize
		return func() (audio.Source, error) {
			return audio.NewFileSource(pcm, bufferSize, true), nil
		}, nil
	}
	return func() (audio.Source, error) {
		return audio.NewCapture(store.Config().AudioConfig(), syslog.Zerolog()), nil
	}, nil
}
