// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Command mediator runs the mediator process: it loads the XML
// configuration, starts the historian, the module supervisor and the API
// server, and keeps them running until SIGINT or SIGTERM.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/d-pohl/Mediator.Net/apiserver"
	"github.com/d-pohl/Mediator.Net/config"
	"github.com/d-pohl/Mediator.Net/internal/historian"
	"github.com/d-pohl/Mediator.Net/internal/historian/sqlite"
	"github.com/d-pohl/Mediator.Net/internal/supervisor"

	// Register the built-in module implementations.
	_ "github.com/d-pohl/Mediator.Net/modules/simulation"
)

var logger = loggo.GetLogger("mediator")

func main() {
	configPath := flag.String("config", "config.xml", "path of the XML configuration file")
	dataDir := flag.String("data-dir", ".", "directory for variable files and databases")
	logLevel := flag.String("log-level", "INFO", "root log level (TRACE|DEBUG|INFO|WARNING|ERROR)")
	flag.Parse()

	if err := run(*configPath, *dataDir, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "mediator: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, dataDir, logLevel string) error {
	if err := loggo.ConfigureLoggers("<root>=" + logLevel); err != nil {
		return errors.Annotate(err, "configuring logging")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Trace(err)
	}

	clk := clock.WallClock
	hub := pubsub.NewSimpleHub(nil)

	databases := make([]historian.Database, len(cfg.Historians))
	for i, h := range cfg.Historians {
		file := h.File
		if file != ":memory:" && !filepath.IsAbs(file) {
			file = filepath.Join(dataDir, file)
		}
		databases[i] = historian.Database{
			Name:            h.Name,
			PrioritizeReads: h.PrioritizeReadRequests(),
			Store:           sqlite.New(file),
		}
	}
	routes := make(map[string]string)
	for _, m := range cfg.EnabledModules() {
		routes[m.ID] = m.Historian
	}

	runner := worker.NewRunner(worker.RunnerParams{
		IsFatal:      func(error) bool { return true },
		RestartDelay: time.Second,
		Logger:       logger,
		Clock:        clk,
	})

	err = runner.StartWorker("historian", func() (worker.Worker, error) {
		return historian.NewManager(historian.ManagerConfig{
			Clock:            clk,
			Hub:              hub,
			TimestampWarning: cfg.TimestampCheckWarning.Value(),
			Databases:        databases,
			Routes:           routes,
		})
	})
	if err != nil {
		return errors.Annotate(err, "registering historian")
	}
	manager, err := waitStarted(runner, "historian")
	if err != nil {
		return errors.Trace(err)
	}

	err = runner.StartWorker("supervisor", func() (worker.Worker, error) {
		return supervisor.New(supervisor.Config{
			Mediator: cfg,
			Clock:    clk,
			Hub:      hub,
			History:  manager.(*historian.Manager),
			DataDir:  dataDir,
		})
	})
	if err != nil {
		return errors.Annotate(err, "registering supervisor")
	}
	core, err := waitStarted(runner, "supervisor")
	if err != nil {
		return errors.Trace(err)
	}

	err = runner.StartWorker("apiserver", func() (worker.Worker, error) {
		return apiserver.NewServer(apiserver.Config{
			Mediator:   cfg,
			Core:       core.(*supervisor.Supervisor),
			History:    manager.(*historian.Manager),
			Hub:        hub,
			Clock:      clk,
			Registerer: prometheus.DefaultRegisterer,
		})
	})
	if err != nil {
		return errors.Annotate(err, "registering apiserver")
	}
	if _, err := waitStarted(runner, "apiserver"); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("mediator listening on %s:%d", cfg.ClientListenHost, cfg.ClientListenPort)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)
	go func() {
		done <- runner.Wait()
	}()
	select {
	case sig := <-signals:
		logger.Infof("received %v, shutting down", sig)
		runner.Kill()
		return errors.Trace(worker.Stop(runner))
	case err := <-done:
		return errors.Trace(err)
	}
}

// waitStarted blocks until the named worker is running and returns it.
func waitStarted(runner *worker.Runner, name string) (worker.Worker, error) {
	w, err := runner.Worker(name, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "starting %s", name)
	}
	return w, nil
}
