package main

import (
	"log"

	"github.com/duochat/duochat/pkg/db"
)

func main() {
	session, err := db.NewSession([]string{"localhost:9042"}, "chat")
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	log.Println("Dropping table room_messages...")
	if err := session.Query("DROP TABLE IF EXISTS room_messages").Exec(); err != nil {
		log.Fatalf("Failed to drop table: %v", err)
	}
	log.Println("Table dropped successfully.")
}
