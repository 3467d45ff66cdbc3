package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	historyinadapter "tempo/internal/modules/history/adapter/in"
	historyoutadapter "tempo/internal/modules/history/adapter/out"
	historyin "tempo/internal/modules/history/port/in"
	historyservice "tempo/internal/modules/history/service"
	historyusecase "tempo/internal/modules/history/usecase"
	notifyoutadapter "tempo/internal/modules/notify/adapter/out"
	notifyout "tempo/internal/modules/notify/port/out"
	notifyservice "tempo/internal/modules/notify/service"
	outboxoutadapter "tempo/internal/modules/outbox/adapter/out"
	outboxin "tempo/internal/modules/outbox/port/in"
	outboxservice "tempo/internal/modules/outbox/service"
	outboxusecase "tempo/internal/modules/outbox/usecase"
	sessioninadapter "tempo/internal/modules/session/adapter/in"
	sessionoutadapter "tempo/internal/modules/session/adapter/out"
	sessionin "tempo/internal/modules/session/port/in"
	sessionservice "tempo/internal/modules/session/service"
	sessionusecase "tempo/internal/modules/session/usecase"
	"tempo/internal/platform/clock"
	"tempo/internal/platform/config"
	"tempo/internal/platform/docstore"
	"tempo/internal/platform/id"
	"tempo/internal/platform/tx"
	uiapp "tempo/internal/ui/app"
)

type App struct {
	SessionCLI sessioninadapter.CLIHandler
	HistoryCLI historyinadapter.CLIHandler
	Outbox     outboxin.Usecase

	session sessionin.Usecase
	history historyin.Usecase
	sync    *sessionservice.SyncRuntime
	client  *docstore.Client
	log     *logrus.Logger
}

func New(cfg config.Config) (*App, error) {
	clk := clock.SystemClock{}
	ids := id.RandomHex{}
	log := newLogger(cfg.DataDir)

	client, err := docstore.Dial(docstore.Options{
		Addr:        cfg.RemoteAddr,
		CallTimeout: cfg.WriteTimeout,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("dial remote store: %w", err)
	}

	mirrorCache, err := sessionoutadapter.NewSQLiteMirrorCache(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open mirror cache: %w", err)
	}
	recordCache, err := historyoutadapter.NewSQLiteRecordCache(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open record cache: %w", err)
	}
	queueStore, err := outboxoutadapter.NewSQLiteQueueStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open offline queue: %w", err)
	}

	outboxSvc := outboxservice.NewOutboxService(clk, queueStore, outboxoutadapter.NewDocStoreApplier(client), log)
	outboxUC := outboxusecase.NewInteractor(outboxSvc)

	notifier := notifyservice.NewDispatcher(clk, log, notifySinks(cfg, log)...)

	syncRt := sessionservice.NewSyncRuntime(cfg.UserID, client, mirrorCache, log)

	coordinator := historyservice.NewCoordinator(clk, ids, cfg.UserID, recordCache,
		historyoutadapter.NewDocStoreRecordStore(client), outboxUC, tx.NoopManager{}, notifier, log)
	historyUC := historyusecase.NewInteractor(coordinator)

	sessionSvc := sessionservice.NewSessionService(clk, ids, cfg.UserID, cfg.DeviceID)
	sessionUC := sessionusecase.NewInteractor(sessionSvc, syncRt,
		sessionoutadapter.NewDocStoreMirrorStore(client),
		sessionoutadapter.NewFileDraftStore(cfg.DataDir),
		historyUC, outboxUC, log)

	// Confirmed records and goals arriving over the watch stream fold
	// into the local projection; reconnects drain the offline queue.
	syncRt.OnRecord(coordinator.Reconcile)
	syncRt.OnOnline(func() {
		if _, err := outboxUC.Drain(context.Background()); err != nil {
			log.WithError(err).Warn("drain after reconnect failed")
		}
	})

	return &App{
		SessionCLI: sessioninadapter.NewCLIHandler(sessionUC),
		HistoryCLI: historyinadapter.NewCLIHandler(historyUC),
		Outbox:     outboxUC,
		session:    sessionUC,
		history:    historyUC,
		sync:       syncRt,
		client:     client,
		log:        log,
	}, nil
}

// StartSync launches the watch loop. It returns immediately; the loop
// stops when ctx is cancelled.
func (a *App) StartSync(ctx context.Context) {
	go func() {
		if err := a.sync.Run(ctx); err != nil {
			a.log.WithError(err).Warn("mirror sync stopped")
		}
	}()
}

// Prime loads the cached projection without touching the network, for
// one-shot CLI commands that should not wait for a dial.
func (a *App) Prime(ctx context.Context) error {
	return a.sync.Prime(ctx)
}

func (a *App) Close() error {
	return a.client.Close()
}

func notifySinks(cfg config.Config, log *logrus.Logger) []notifyout.Sink {
	sinks := []notifyout.Sink{notifyoutadapter.NewLogSink(log)}
	if cfg.PluginDir == "" {
		return sinks
	}
	manifests, err := notifyoutadapter.LoadManifests(cfg.PluginDir)
	if err != nil {
		log.WithError(err).Warn("notifier manifests unreadable")
		return sinks
	}
	for _, manifest := range manifests {
		sinks = append(sinks, notifyoutadapter.NewPluginSink(manifest))
	}
	return sinks
}

func newLogger(dataDir string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	// The TUI owns the terminal; logs go to a file or nowhere.
	f, err := os.OpenFile(filepath.Join(dataDir, "tempo.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.SetOutput(io.Discard)
		return log
	}
	log.SetOutput(f)
	return log
}

type outboxDrainer struct {
	outbox outboxin.Usecase
}

func (d outboxDrainer) Drain(ctx context.Context) (int, int, error) {
	out, err := d.outbox.Drain(ctx)
	if err != nil {
		return 0, 0, err
	}
	return out.Drained, out.Remaining, nil
}

func RunTUI(app *App) error {
	model := uiapp.NewModel(app.session, app.history, outboxDrainer{outbox: app.Outbox})
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
