package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/roomplus/roomplus/pkg/client"
	"github.com/roomplus/roomplus/pkg/model"
	"github.com/roomplus/roomplus/pkg/protocol"
)

func main() {
	serverAddr := flag.String("addr", "localhost:3000", "server address")
	username := flag.String("user", "user1", "username")
	room := flag.String("room", "", "room id to join on connect")
	flag.Parse()

	session := client.New(client.Config{
		ServerURL: fmt.Sprintf("ws://%s/ws", *serverAddr),
		APIURL:    fmt.Sprintf("http://%s", *serverAddr),
		Username:  *username,
		Notify: func(msg string) {
			fmt.Printf("\r* %s\n> ", msg)
		},
	})

	registerHandlers(session)

	// 1. Login for the REST surface (room deletion, uploads).
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := session.Login(ctx); err != nil {
		cancel()
		log.Fatal("login: ", err)
	}
	cancel()

	// 2. Connect and identify.
	log.Printf("connecting to ws://%s/ws as %s", *serverAddr, *username)
	if err := session.Connect(); err != nil {
		log.Fatal("dial: ", err)
	}
	defer session.Close()

	if *room != "" {
		session.JoinRoom(*room)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		session.Close()
		os.Exit(0)
	}()

	// 3. Read commands and messages from stdin.
	fmt.Println("commands: /rooms /create <name> /join <id> /more /img <path> /quit")
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			runCommand(session, line)
		}
		fmt.Print("> ")
	}
}

func runCommand(session *client.Session, line string) {
	if !strings.HasPrefix(line, "/") {
		session.StartTyping()
		session.SendMessage(line)
		return
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cmd {
	case "/rooms":
		rooms, err := session.Rooms(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		for _, r := range rooms {
			fmt.Printf("  %s  %s (%d messages)\n", r.ID, r.Name, r.MessageCount)
		}
	case "/create":
		if arg == "" {
			fmt.Println("usage: /create <name>")
			return
		}
		r, err := session.CreateRoom(ctx, arg, "")
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Printf("created %s (%s)\n", r.Name, r.ID)
	case "/join":
		if arg == "" {
			fmt.Println("usage: /join <room-id>")
			return
		}
		session.JoinRoom(arg)
	case "/more":
		older, err := session.Backfill(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if len(older) == 0 {
			fmt.Println("no older messages")
			return
		}
		for _, m := range older {
			printMessage(m)
		}
	case "/img":
		if arg == "" {
			fmt.Println("usage: /img <path>")
			return
		}
		url, err := session.UploadImage(ctx, arg)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		session.SendImage(url)
	case "/quit":
		session.Close()
		os.Exit(0)
	default:
		fmt.Println("unknown command:", cmd)
	}
}

func registerHandlers(session *client.Session) {
	session.On(protocol.EventRoomJoined, func(data json.RawMessage) {
		var p protocol.RoomJoined
		if json.Unmarshal(data, &p) != nil {
			return
		}
		fmt.Printf("\r* joined %s (%d users online)\n", p.Room.Name, len(p.Users))
		for _, m := range p.Messages {
			printMessage(m)
		}
		fmt.Print("> ")
	})
	session.On(protocol.EventReceiveMessage, func(data json.RawMessage) {
		var p protocol.ReceiveMessage
		if json.Unmarshal(data, &p) != nil {
			return
		}
		fmt.Print("\r")
		printMessage(p.Message)
		fmt.Print("> ")
	})
	session.On(protocol.EventTypingIndicator, func(data json.RawMessage) {
		var p protocol.TypingIndicator
		if json.Unmarshal(data, &p) != nil || !p.IsTyping {
			return
		}
		fmt.Printf("\r%s is typing...\n> ", p.Username)
	})
	session.On(protocol.EventUserJoinedRoom, func(data json.RawMessage) {
		var p protocol.UserJoinedRoom
		if json.Unmarshal(data, &p) == nil {
			fmt.Printf("\r* %s joined the room\n> ", p.Username)
		}
	})
	session.On(protocol.EventUserLeftRoom, func(data json.RawMessage) {
		var p protocol.UserLeftRoom
		if json.Unmarshal(data, &p) == nil {
			fmt.Printf("\r* %s left the room\n> ", p.Username)
		}
	})
	session.On(protocol.EventRoomCreated, func(data json.RawMessage) {
		var p protocol.RoomCreated
		if json.Unmarshal(data, &p) == nil {
			fmt.Printf("\r* room created: %s (%s)\n> ", p.Room.Name, p.Room.ID)
		}
	})
	session.On(protocol.EventRoomDeleted, func(data json.RawMessage) {
		var p protocol.RoomDeleted
		if json.Unmarshal(data, &p) == nil {
			fmt.Printf("\r* room deleted: %s\n> ", p.RoomID)
		}
	})
	session.On(protocol.EventError, func(data json.RawMessage) {
		var p protocol.ErrorEvent
		if json.Unmarshal(data, &p) == nil {
			fmt.Printf("\r! %s\n> ", p.Message)
		}
	})
}

func printMessage(m model.Message) {
	when := m.CreatedAt.Local().Format("15:04")
	if m.ImageURL != "" {
		fmt.Printf("[%s] %s: [image] %s\n", when, m.Username, m.ImageURL)
		return
	}
	fmt.Printf("[%s] %s: %s\n", when, m.Username, m.TextContent)
}
