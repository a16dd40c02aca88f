/*
lumen opens a window and clears it to a slowly cycling color, driving the
GPU through a fixed ring of frames in flight.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
)

func main() {
	configPath := flag.String("config", "", "path to a .toml or .yaml configuration file")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		core.LogFatal("%s", err)
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogFatal("%s", err)
	}

	p, err := platform.New()
	if err != nil {
		core.LogFatal("%s", err)
	}

	e, err := engine.New(cfg, p, func() (engine.Backend, error) {
		backend, err := vulkan.New(p, cfg.Renderer, cfg.Window.Title)
		if err != nil {
			return nil, err
		}
		return backend, nil
	})
	if err != nil {
		core.LogFatal("%s", err)
	}

	if err := e.Init(); err != nil {
		core.LogFatal("failed to initialize: %s", err)
	}

	if *configPath != "" {
		watcher, err := core.NewConfigWatcher(*configPath)
		if err != nil {
			core.LogWarn("config hot reload disabled: %s", err)
		} else {
			defer watcher.Close()
			e.WatchConfig(watcher.Updates())
		}
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Cleanup(); err != nil {
		core.LogError("cleanup: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}
