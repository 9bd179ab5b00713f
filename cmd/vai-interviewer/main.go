package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-interviewer/internal/dotenv"
	"github.com/vango-go/vai-interviewer/pkg/config"
	"github.com/vango-go/vai-interviewer/pkg/events"
	"github.com/vango-go/vai-interviewer/pkg/interview/backend"
	"github.com/vango-go/vai-interviewer/pkg/providers"
	"github.com/vango-go/vai-interviewer/pkg/worker"
)

type workerDeps struct {
	loadConfig    func() (config.Config, error)
	connectEvents func(config.Config, *slog.Logger) (events.Publisher, error)
	newRunner     func(runnerDeps) worker.Runner
	signalNotify  func(chan<- os.Signal, ...os.Signal)
	signalStop    func(chan<- os.Signal)
}

// runnerDeps are the process-wide objects every session shares.
type runnerDeps struct {
	cfg      config.Config
	backend  *backend.Client
	selector *providers.Selector
	notifier *events.Notifier
	metrics  *worker.Metrics
	logger   *slog.Logger
}

func defaultWorkerDeps() workerDeps {
	return workerDeps{
		loadConfig:    config.LoadFromEnv,
		connectEvents: connectEvents,
		newRunner:     newSessionRunner,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func connectEvents(cfg config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		return events.Noop{}, nil
	}
	return events.ConnectNATS(cfg.NATSURL, "vai-interviewer", logger)
}

func newSessionRunner(d runnerDeps) worker.Runner {
	return &worker.SessionRunner{
		Config:   d.cfg,
		Backend:  d.backend,
		Selector: d.selector,
		Notifier: d.notifier,
		Metrics:  d.metrics,
		Logger:   d.logger,
	}
}

func runWorker(ctx context.Context, stderr io.Writer, deps workerDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.connectEvents == nil || deps.newRunner == nil {
		return errors.New("missing session dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger(stderr)

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()
	}
	logger = logger.With("worker_id", workerID)

	publisher, err := deps.connectEvents(cfg, logger)
	if err != nil {
		return fmt.Errorf("connect events: %w", err)
	}
	defer publisher.Close()

	metrics := worker.NewMetrics("interviewer")
	selector := providers.NewSelector(logger)
	selector.Recorder = metrics

	runner := deps.newRunner(runnerDeps{
		cfg:      cfg,
		backend:  backend.New(cfg.APIURL(), backend.WithTimeout(cfg.BackendTimeout)),
		selector: selector,
		notifier: &events.Notifier{Publisher: publisher, WorkerID: workerID, Logger: logger},
		metrics:  metrics,
		logger:   logger,
	})

	w := worker.New(worker.Options{
		ID:          workerID,
		MaxSessions: cfg.WorkerMaxSessions,
		Runner:      runner,
		Metrics:     metrics,
		Logger:      logger,
	})

	var dispatcher *worker.Dispatcher
	if cfg.Room == "" {
		dispatcher = &worker.Dispatcher{URL: cfg.DispatchURL, Worker: w, Logger: logger}
	}

	var checks []worker.ReadyCheck
	if dispatcher != nil {
		checks = append(checks, worker.DispatcherReady(dispatcher))
	}
	opsSrv := worker.NewOpsServer(cfg.OpsAddr, worker.NewOpsHandler(w, metrics, checks...))
	opsErrCh := make(chan error, 1)
	go func() {
		err := opsSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			opsErrCh <- err
			return
		}
		opsErrCh <- nil
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = opsSrv.Shutdown(shutdownCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	if dispatcher == nil {
		return runSingle(ctx, logger, cfg, w, sigCh, opsErrCh)
	}
	return runDispatched(ctx, logger, cfg, w, dispatcher, sigCh, opsErrCh)
}

// runSingle interviews in cfg.Room and exits. A signal cancels the session,
// which still persists its transcript before returning.
func runSingle(ctx context.Context, logger *slog.Logger, cfg config.Config, w *worker.Worker, sigCh <-chan os.Signal, opsErrCh <-chan error) error {
	logger.Info("starting single interview", "room", cfg.Room, "ops_addr", cfg.OpsAddr)

	type runResult struct {
		res worker.Result
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		res, err := w.RunOne(ctx, worker.Assignment{JobID: uuid.NewString(), Room: cfg.Room})
		done <- runResult{res, err}
	}()

	var r runResult
	select {
	case r = <-done:
	case err := <-opsErrCh:
		if err != nil {
			logger.Error("ops server failed", "error", err)
		}
		r = <-done
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
		if !drain(logger, cfg, w) {
			return errors.New("session did not finish within the shutdown grace period")
		}
		r = <-done
	}

	if r.err != nil {
		return fmt.Errorf("interview %s: %w", cfg.Room, r.err)
	}
	logger.Info("interview complete",
		"end_reason", r.res.Outcome.EndReason,
		"persisted", r.res.Outcome.Persisted,
	)
	return nil
}

// runDispatched serves dispatcher assignments until a signal or ctx ends,
// then drains running sessions before closing the dispatcher connection so
// their finished reports still go out.
func runDispatched(ctx context.Context, logger *slog.Logger, cfg config.Config, w *worker.Worker, d *worker.Dispatcher, sigCh <-chan os.Signal, opsErrCh <-chan error) error {
	logger.Info("starting worker",
		"dispatch_url", cfg.DispatchURL,
		"max_sessions", cfg.WorkerMaxSessions,
		"ops_addr", cfg.OpsAddr,
	)

	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()
	dispatchErrCh := make(chan error, 1)
	go func() { dispatchErrCh <- d.Run(dispatchCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-opsErrCh:
		if err != nil {
			runErr = fmt.Errorf("ops server: %w", err)
		}
	case err := <-dispatchErrCh:
		stopDispatch()
		drain(logger, cfg, w)
		if err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}
		return nil
	}

	drained := drain(logger, cfg, w)
	stopDispatch()
	if err := <-dispatchErrCh; err != nil && runErr == nil {
		runErr = fmt.Errorf("dispatcher: %w", err)
	}
	if !drained && runErr == nil {
		runErr = errors.New("sessions did not finish within the shutdown grace period")
	}

	logger.Info("worker stopped")
	return runErr
}

func drain(logger *slog.Logger, cfg config.Config, w *worker.Worker) bool {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	logger.Info("draining sessions", "active", w.Active(), "grace", cfg.ShutdownGracePeriod)
	return w.Shutdown(ctx)
}

func runMain(ctx context.Context, stderr io.Writer, deps workerDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}

	if err := dotenv.LoadFiles(".env.local", ".env"); err != nil {
		fmt.Fprintf(stderr, "vai-interviewer: %v\n", err)
		return 1
	}

	if err := runWorker(ctx, stderr, deps); err != nil {
		fmt.Fprintf(stderr, "vai-interviewer: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultWorkerDeps()))
}
