// Command echoserver is a plain TCP echo server built on this module's
// Server: it echoes every received payload back to its sender, logs
// connect/disconnect/error events, and reports session/byte metrics on a
// one-second ticker until SIGINT/SIGTERM.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/swiftcore/netio/reactor"
	"github.com/swiftcore/netio/server"
)

func main() {
	address := flag.String("address", "127.0.0.1", "listen address")
	port := flag.Int("port", 1111, "listen port")
	threads := flag.Int("threads", runtime.NumCPU(), "reactor worker thread count")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	log.Logger = logger

	svc := reactor.New(reactor.Config{Threads: *threads, Logger: &logger}, reactor.Hooks{
		OnErr: func(err error) { log.Error().Err(err).Msg("reactor task failed") },
	})
	svc.Start(false)
	defer svc.Stop()

	srv := server.New(svc, server.Config{
		Address: fmt.Sprintf("%s:%d", *address, *port),
	}, server.Hooks{
		OnConnect: func(sess *server.Session) {
			log.Info().Uint64("session", sess.ID()).Msg("connected")
		},
		OnDisconnect: func(sess *server.Session, cause error) {
			log.Info().Uint64("session", sess.ID()).Err(cause).Msg("disconnected")
		},
		OnReceive: func(sess *server.Session, buf []byte) {
			if err := sess.SendAsync(append([]byte(nil), buf...)); err != nil {
				log.Warn().Uint64("session", sess.ID()).Err(err).Msg("echo send failed")
			}
		},
		OnErr: func(sess *server.Session, err error) {
			log.Warn().Uint64("session", sess.ID()).Err(err).Msg("session error")
		},
	})

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
	log.Info().Str("addr", srv.ListenerAddr()).Msg("echoserver listening")
	defer srv.Stop()

	stopReporting := make(chan struct{})
	go reportMetrics(srv, stopReporting)
	defer close(stopReporting)

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh
	log.Info().Msg("shutdown signal received")
}

func reportMetrics(srv *server.Server, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			reg := srv.Control()
			metrics := reg.Metrics()
			log.Info().
				Int64("sessions", metrics["sessions"]).
				Int64("bytes_sent", metrics["bytes_sent"]).
				Int64("bytes_received", metrics["bytes_received"]).
				Msg("metrics")
		}
	}
}
