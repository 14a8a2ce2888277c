// Creates the chat keyspace and history table for local development.
package main

import (
	"log"

	"github.com/gocql/gocql"

	"github.com/duochat/duochat/pkg/db"
)

func main() {
	cluster := gocql.NewCluster("localhost:9042")
	cluster.Keyspace = "system"
	cluster.Consistency = gocql.Quorum
	sys, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	err = sys.Query(`CREATE KEYSPACE IF NOT EXISTS chat WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	sys.Close()
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
	log.Println("Table room_messages created successfully")
}
