package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/timnaher/ds8r/internal/api"
	"github.com/timnaher/ds8r/internal/audit"
	"github.com/timnaher/ds8r/internal/auth"
	"github.com/timnaher/ds8r/internal/command"
	"github.com/timnaher/ds8r/internal/config"
	"github.com/timnaher/ds8r/internal/device"
	"github.com/timnaher/ds8r/internal/logging"
	"github.com/timnaher/ds8r/internal/metrics"
	"github.com/timnaher/ds8r/internal/stimulator"
	"github.com/timnaher/ds8r/internal/stimulator/fake"
	"github.com/timnaher/ds8r/internal/stimulator/proxy"
	"github.com/timnaher/ds8r/internal/tui"
)

// app holds the wired components for one invocation.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	manager *device.Manager
	orch    *command.Orchestrator
	metrics *metrics.Metrics
	audit   *audit.Logger
	closers []io.Closer
}

// newApp loads configuration and wires the adapter, device manager and orchestrator.
// In panel mode logs go to a rotated file so they do not draw over the screen.
func newApp(g globalFlags, stderr io.Writer, panel bool) (*app, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if g.proxy != "" {
		cfg.Proxy.Command = g.proxy
	}
	if g.dll != "" {
		cfg.Proxy.DLLPath = g.dll
	}

	a := &app{cfg: cfg}

	logOut := stderr
	if panel {
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Audit.Dir, "ds8r.log"),
			MaxSize:    cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAge:     cfg.Audit.MaxAgeDays,
		}
		a.closers = append(a.closers, lj)
		logOut = lj
	}
	a.logger, err = logging.New(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	logging.SetDefaultLogger(a.logger)

	var adapter stimulator.IStimulatorAdapter
	if g.dryRun {
		adapter = fake.NewFakeAdapter(cfg.Device.ID)
		a.logger.Info().Msg("dry run: using in-memory device")
	} else {
		adapter, err = proxy.New(proxy.Options{
			DeviceID:          cfg.Device.ID,
			Command:           cfg.Proxy.Command,
			DLLPath:           cfg.Proxy.DLLPath,
			StrictReturnCodes: cfg.Proxy.StrictReturnCodes,
			Logger:            a.logger,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.audit, err = audit.NewLogger(audit.Options{
		Dir:        cfg.Audit.Dir,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
		Compress:   cfg.Audit.Compress,
		Logger:     logging.Component("audit"),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	a.closers = append(a.closers, a.audit)

	a.metrics = metrics.New()
	a.manager = device.NewManager(cfg.Device.ID, adapter)
	a.orch = command.NewOrchestrator(a.manager, cfg)
	a.orch.SetAuditLogger(a.audit)
	a.orch.SetMetrics(a.metrics)
	a.orch.SetLogger(a.logger)
	return a, nil
}

// Close releases the audit and log files.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

// serve runs the HTTP API until ctx is cancelled.
func (a *app) serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	mw := auth.NewMiddleware()
	if a.cfg.Auth.Enabled() {
		v, err := auth.NewVerifier(auth.VerifierConfig{
			Algorithm:    a.cfg.Auth.Algorithm,
			SecretKey:    a.cfg.Auth.Secret,
			PublicKeyPEM: a.cfg.Auth.PublicKeyPEM,
			JWKSURL:      a.cfg.Auth.JWKSURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}
		mw = auth.NewMiddlewareWithVerifier(v)
	} else {
		a.logger.Warn().Str("addr", addr).Msg("serving without token verification")
	}

	// Offline at startup is reported, not fatal.
	if err := a.manager.Probe(ctx, a.cfg.Timing.GetState); err != nil {
		a.logger.Warn().Err(err).Msg("device probe failed")
	}

	api.Version = Version
	server := api.NewServerWithAuth(a.orch, a.manager, mw, a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.IdleTimeout)
	server.SetMetrics(a.metrics)
	server.SetAuditLog(a.audit)
	server.SetLogger(a.logger)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutdown requested")
	case err := <-serverErr:
		return err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		return err
	}
	if err := <-serverErr; err != nil {
		return err
	}
	a.logger.Info().Msg("server stopped")
	return nil
}

// runTUI opens the interactive panel.
func (a *app) runTUI() error {
	if err := a.manager.Probe(context.Background(), a.cfg.Timing.GetState); err != nil {
		a.logger.Warn().Err(err).Msg("device probe failed")
	}
	_, err := tea.NewProgram(tui.NewModel(a.orch, a.manager), tea.WithAltScreen()).Run()
	return err
}
