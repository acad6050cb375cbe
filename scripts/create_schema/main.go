package main

import (
	"flag"
	"log"
	"strings"

	"github.com/gocql/gocql"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id text PRIMARY KEY,
		name text,
		description text,
		created_at timestamp,
		updated_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS room_names (
		name text PRIMARY KEY,
		room_id text
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		room_id text,
		created_at timestamp,
		id text,
		username text,
		text_content text,
		image_url text,
		PRIMARY KEY (room_id, created_at, id)
	) WITH CLUSTERING ORDER BY (created_at DESC, id DESC)`,
}

func main() {
	hosts := flag.String("hosts", "localhost:9042", "comma separated scylla hosts")
	keyspace := flag.String("keyspace", "roomplus", "keyspace to create")
	flag.Parse()

	cluster := gocql.NewCluster(strings.Split(*hosts, ",")...)
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}

	err = session.Query(`
		CREATE KEYSPACE IF NOT EXISTS ` + *keyspace + `
		WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}
	`).Exec()
	if err != nil {
		log.Fatal(err)
	}
	session.Close()

	cluster.Keyspace = *keyspace
	session, err = cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	for _, stmt := range statements {
		if err := session.Query(stmt).Exec(); err != nil {
			log.Fatal(err)
		}
	}

	log.Printf("Keyspace %s and tables created successfully", *keyspace)
}
