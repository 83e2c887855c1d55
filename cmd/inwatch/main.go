//go:build linux

// Command inwatch watches one or more directory trees and prints every
// filesystem event with its full path and decoded mask bits. Roots are taken
// from the command line, falling back to the configured defaults. An
// interrupt shuts the read loop down cleanly.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	internal "github.com/ZanzyTHEbar/inotify-watcher/inwatch"
	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/config"
	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/inotify"
	"github.com/ZanzyTHEbar/inotify-watcher/inwatch/watcher"
	"github.com/rs/zerolog"
)

func main() {
	logger := internal.GetLogger()

	cfg, err := config.LoadConfig(os.Getenv("INWATCH_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot load configuration")
	}

	roots := os.Args[1:]
	if len(roots) == 0 {
		roots = cfg.Watch.Roots
	}

	mask, err := inotify.ParseMask(cfg.Watch.Events)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid event configuration")
	}

	if watches, ok := inotify.MaxUserWatches(); ok {
		logger.Debug().Int("max_user_watches", watches).Msg("system watch limit")
	}

	var filter watcher.Filter
	if !cfg.Watch.AutoExtend {
		filter = func(watcher.Event) bool { return false }
	}
	w, err := watcher.NewAuto(filter)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create watcher")
	}
	defer w.Close()

	for _, root := range roots {
		report := func(err error) error {
			logger.Warn().Err(err).Str("root", root).Msg("cannot watch path")
			return nil
		}
		if cfg.Watch.Recursive {
			for range w.AddAll(root, mask, report) {
			}
		} else if _, err := w.Add(root, mask); err != nil {
			report(err)
		}
	}

	if w.Count() == 0 {
		logger.Error().Msg("no watch could be established")
		os.Exit(1)
	}
	logger.Info().Int("watches", w.Count()).Strs("roots", roots).Msg("watching")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		// Closing the session fails the blocking read and ends the loop.
		w.Close()
	}()

	probe := watcher.NewThreshold(w, cfg.Watch.Threshold)
	for {
		events, err := w.Read(true)
		printEvents(events)
		if err != nil {
			shutdown(logger, err)
			return
		}

		// Drain bursts without another blocking wakeup while the queue
		// still holds a meaningful amount of data.
		for {
			ready, probeErr := probe.Ready()
			if probeErr != nil || !ready {
				break
			}
			events, err = w.Read(false)
			printEvents(events)
			if err != nil {
				shutdown(logger, err)
				return
			}
		}
	}
}

func printEvents(events []watcher.Event) {
	for _, event := range events {
		fmt.Println(event.FullPath, strings.Join(inotify.DecodeMask(event.Mask), " | "))
	}
}

// shutdown treats a closed or interrupted session as the normal exit path.
func shutdown(logger zerolog.Logger, err error) {
	if errors.Is(err, inotify.ErrClosed) || errors.Is(err, inotify.ErrInterrupted) {
		logger.Info().Msg("interrupted, shutting down")
		return
	}
	logger.Fatal().Err(err).Msg("event read failed")
}
