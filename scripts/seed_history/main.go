// Seeds a room with demo history so backward pagination can be exercised
// without a running broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/duochat/duochat/pkg/db"
	"github.com/duochat/duochat/pkg/history"
	"github.com/duochat/duochat/pkg/model"
	"github.com/duochat/duochat/pkg/roomid"
)

func main() {
	userA := flag.String("a", "11111111-1111-1111-1111-111111111111", "first participant id")
	userB := flag.String("b", "22222222-2222-2222-2222-222222222222", "second participant id")
	count := flag.Int("n", 120, "number of messages to seed")
	flag.Parse()

	roomID, err := roomid.Derive(*userA, *userB)
	if err != nil {
		log.Fatal(err)
	}

	session, err := db.NewSession([]string{"localhost:9042"}, "chat")
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()
	if err := session.EnsureSchema(); err != nil {
		log.Fatal(err)
	}

	store := history.NewStore(session)
	base := time.Now().Add(-time.Duration(*count) * time.Minute)
	senders := []string{*userA, *userB}

	for i := 0; i < *count; i++ {
		msg := model.Message{
			ID:        "seed-" + strconv.Itoa(i),
			RoomID:    roomID,
			SenderID:  senders[i%2],
			Text:      fmt.Sprintf("seed message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Save(context.Background(), msg); err != nil {
			log.Fatal(err)
		}
	}
	log.Printf("Seeded %d messages into room %s", *count, roomID)
}
