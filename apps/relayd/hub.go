package main

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat/pkg/model"
)

type subscription struct {
	client *client
	room   string
}

// Hub fans message frames out to every client subscribed to the frame's
// room, the sender included. The echo is what lets clients reconcile their
// optimistic entries.
type Hub struct {
	register    chan *client
	unregister  chan *client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan model.Frame

	clients map[*client]bool
	rooms   map[string]map[*client]bool
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		register:    make(chan *client),
		unregister:  make(chan *client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		broadcast:   make(chan model.Frame, 64),
		clients:     make(map[*client]bool),
		rooms:       make(map[string]map[*client]bool),
		log:         log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.log.Debug().Str("user", c.userID).Msg("client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			delete(h.clients, c)
			for room := range c.rooms {
				h.leave(c, room)
			}
			close(c.send)
			h.log.Debug().Str("user", c.userID).Msg("client disconnected")

		case s := <-h.subscribe:
			if h.rooms[s.room] == nil {
				h.rooms[s.room] = make(map[*client]bool)
			}
			h.rooms[s.room][s.client] = true
			s.client.rooms[s.room] = true

		case s := <-h.unsubscribe:
			h.leave(s.client, s.room)

		case frame := <-h.broadcast:
			raw, err := json.Marshal(frame)
			if err != nil {
				h.log.Error().Err(err).Msg("failed to marshal frame")
				continue
			}
			for c := range h.rooms[frame.Room] {
				select {
				case c.send <- raw:
				default:
					// Evict the stalled client from every room it joined,
					// not just this one, so no later broadcast sends on
					// its closed channel.
					delete(h.clients, c)
					for room := range c.rooms {
						h.leave(c, room)
					}
					close(c.send)
				}
			}
		}
	}
}

func (h *Hub) leave(c *client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}
