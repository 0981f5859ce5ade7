// Command surfacelink-engine is a stand-in audio engine for developing
// and demonstrating surfaces without a real DAW backend.
//
// It listens on the stream port, accepts one subscribe line per
// connection, and emits synthetic telemetry frames for the requested
// endpoint at that endpoint's natural cadence. The service is
// advertised over mDNS so surfaces can discover it.
//
// Usage:
//
//	surfacelink-engine [flags]
//
// Flags:
//
//	-listen string    Listen address (default ":17800")
//	-name string      mDNS instance name (default host name)
//	-session string   Session ID to advertise (default "default")
//	-tempo float      Transport tempo in BPM (default 120)
//	-tracks int       Number of synthetic tracks (default 8)
//	-no-advertise     Skip mDNS advertisement
//	-version          Print the version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/surfacelink/surfacelink-go/pkg/discovery"
	"github.com/surfacelink/surfacelink-go/pkg/version"
)

func main() {
	listen := flag.String("listen", ":17800", "Listen address")
	name := flag.String("name", "", "mDNS instance name (default host name)")
	session := flag.String("session", "default", "Session ID to advertise")
	tempo := flag.Float64("tempo", 120, "Transport tempo in BPM")
	tracks := flag.Int("tracks", 8, "Number of synthetic tracks")
	noAdvertise := flag.Bool("no-advertise", false, "Skip mDNS advertisement")
	printVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Println("surfacelink-engine", version.Current)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(*listen, NewSynth(*tempo, *tracks), logger)
	if err != nil {
		logger.Error("listen failed", "addr", *listen, "err", err)
		os.Exit(1)
	}

	if !*noAdvertise {
		instance := *name
		if instance == "" {
			host, err := os.Hostname()
			if err != nil {
				host = "surfacelink"
			}
			instance = host
		}

		advertiser := discovery.NewAdvertiser(discovery.DefaultAdvertiserConfig())
		err := advertiser.Advertise(&discovery.EngineInfo{
			Name:      instance,
			Port:      server.Port(),
			SessionID: *session,
		})
		if err != nil {
			logger.Warn("mDNS advertise failed, continuing without discovery", "err", err)
		} else {
			defer advertiser.Stop()
			logger.Info("advertising engine", "instance", instance, "port", server.Port())
		}
	}

	logger.Info("engine listening", "addr", server.Addr(), "session", *session)
	if err := server.Serve(ctx); err != nil {
		logger.Error("serve failed", "err", err)
		os.Exit(1)
	}
}
