// Command client is the terminal chat client. It derives the room id for
// a two-party conversation, opens the room over the selected transport and
// keeps the local view in sync with live deliveries and history pages.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	stdsync "sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat/pkg/auth"
	"github.com/duochat/duochat/pkg/config"
	"github.com/duochat/duochat/pkg/db"
	"github.com/duochat/duochat/pkg/history"
	"github.com/duochat/duochat/pkg/localid"
	"github.com/duochat/duochat/pkg/logging"
	"github.com/duochat/duochat/pkg/model"
	"github.com/duochat/duochat/pkg/roomid"
	"github.com/duochat/duochat/pkg/roomlist"
	chatsync "github.com/duochat/duochat/pkg/sync"
	"github.com/duochat/duochat/pkg/transport"
)

func main() {
	userID := flag.String("user", "", "your participant id (generated when empty)")
	peerID := flag.String("peer", "", "peer participant id to chat with")
	roomFlag := flag.String("room", "", "open an existing room id (overrides -peer)")
	transportName := flag.String("transport", "relay", "live transport: relay, broker or socket")
	listRooms := flag.Bool("rooms", false, "list known room ids and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Env).With().Str("service", "client").Logger()

	rooms, err := roomlist.Open(filepath.Join(cfg.DataDir, "rooms"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open room list")
	}
	defer rooms.Close()

	if *listRooms {
		ids, err := rooms.All()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read room list")
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return
	}

	self := *userID
	if self == "" {
		self = generateUsername(4)
		log.Info().Str("user", self).Msg("generated username")
	}

	roomID := *roomFlag
	if roomID == "" {
		if *peerID == "" {
			log.Fatal().Msg("either -peer or -room is required")
		}
		roomID, err = roomid.Derive(self, *peerID)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot derive room id")
		}
		if err := rooms.Append(roomID); err != nil {
			log.Warn().Err(err).Msg("failed to record room id")
		}
	}
	log.Info().Str("room", roomID).Msg("opening room")

	ch, cleanup, err := buildChannel(*transportName, cfg, self, roomID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("transport setup failed")
	}
	defer cleanup()

	var hist chatsync.HistoryStore
	if session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace); err != nil {
		log.Warn().Err(err).Msg("history store unavailable, backfill disabled")
	} else {
		defer session.Close()
		if err := session.EnsureSchema(); err != nil {
			log.Warn().Err(err).Msg("history schema setup failed")
		}
		hist = history.NewStore(session)
	}

	node, err := localid.NewNode(1)
	if err != nil {
		log.Fatal().Err(err).Msg("localid setup failed")
	}

	render := newRenderer()
	var ctrl *chatsync.Controller
	ctrl = chatsync.NewController(roomID, ch, hist, node, chatsync.Options{
		SelfID: self,
		Logger: log,
		OnChange: func() {
			render.show(ctrl.Snapshot())
		},
		OnState: func(s chatsync.State) {
			if s == chatsync.StateReconnecting || s == chatsync.StateDisconnected {
				fmt.Printf("\r[%s]\n> ", s)
			}
		},
	})

	if err := ctrl.OpenRoom(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to open room")
	}
	defer ctrl.CloseRoom()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go repl(ctrl, done)

	select {
	case <-done:
	case <-interrupt:
		fmt.Println()
	}
}

// repl reads stdin: /older pages history backward, /quit exits, anything
// else is sent to the room.
func repl(ctrl *chatsync.Controller, done chan struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		switch text := scanner.Text(); text {
		case "/quit":
			return
		case "/older":
			if err := ctrl.LoadOlder(); err != nil {
				fmt.Printf("load older failed: %v\n", err)
			}
		default:
			if err := ctrl.Send(text); err != nil {
				fmt.Printf("send failed, message marked for retry: %v\n", err)
			}
		}
		fmt.Print("> ")
	}
}

// renderer prints messages it has not shown yet, keyed by id, so both live
// tails and backfilled pages show up exactly once. An optimistic entry that
// gets its authoritative id is not printed a second time.
type renderer struct {
	mu      stdsync.Mutex
	seen    map[string]bool
	pending map[string]bool
}

func newRenderer() *renderer {
	return &renderer{seen: make(map[string]bool), pending: make(map[string]bool)}
}

func (r *renderer) show(msgs []model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		if r.seen[m.ID] {
			continue
		}
		r.seen[m.ID] = true
		key := m.SenderID + "\x00" + m.Text
		if localid.IsTemp(m.ID) {
			r.pending[key] = true
		} else if r.pending[key] {
			delete(r.pending, key)
			continue
		}
		marker := ""
		if m.Pending {
			marker = " …"
		} else if m.Failed {
			marker = " [failed]"
		}
		fmt.Printf("\r%s %s: %s%s\n> ", m.Timestamp.Format("15:04:05"), m.SenderID, m.Text, marker)
	}
}

// buildChannel wires the selected transport variant with the connection
// parameters from config.
func buildChannel(name string, cfg config.Config, self, roomID string, log zerolog.Logger) (transport.Channel, func(), error) {
	switch name {
	case "relay":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return transport.NewRelayChannel(rdb, roomID, log), func() { rdb.Close() }, nil
	case "broker":
		ch := transport.NewBrokerChannel(transport.BrokerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: "chat-" + self,
		}, roomID, log)
		return ch, func() {}, nil
	case "socket":
		tokens := auth.NewManager(cfg.JWTSecret, 0)
		token, err := tokens.GenerateToken(self)
		if err != nil {
			return nil, nil, err
		}
		dialer := transport.NewSocketDialer(cfg.SocketURL, token, log)
		return dialer.Channel(roomID), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", name)
	}
}

func generateUsername(length int) string {
	const charset = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return "user_" + string(b)
}
