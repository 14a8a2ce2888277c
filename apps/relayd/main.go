// relayd is the development fan-out server for the socket transport. It
// speaks the room-tagged frame protocol and echoes message frames to every
// subscriber of the room, including the sender.
package main

import (
	"net/http"

	"github.com/duochat/duochat/pkg/auth"
	"github.com/duochat/duochat/pkg/config"
	"github.com/duochat/duochat/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Env).With().Str("service", "relayd").Logger()

	tokens := auth.NewManager(cfg.JWTSecret, 0)
	hub := NewHub(log)
	go hub.Run()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, tokens, w, r)
	})

	log.Info().Str("addr", cfg.RelaydAddr).Msg("relayd starting")
	if err := http.ListenAndServe(cfg.RelaydAddr, nil); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
