// Projector client: passive viewer that renders the active slide to the
// terminal. Reconnects on transport loss and resynchronizes from the
// full-state frame the server sends on every (re)join.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"live-slide-sync-service/internal/protocol"
)

const reconnectDelay = 2 * time.Second

func main() {
	serverAddr := flag.String("server", "localhost:8080", "Server address")
	eventId := flag.String("event", "demo-event", "Event ID")
	flag.Parse()

	url := fmt.Sprintf("ws://%s/ws?role=projector", *serverAddr)

	for {
		if err := run(url, *eventId); err != nil {
			log.Printf("Connection lost: %v, reconnecting in %v", err, reconnectDelay)
		}
		time.Sleep(reconnectDelay)
	}
}

func run(url, eventId string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	start, err := json.Marshal(protocol.StartSession{
		Type:    protocol.TypeStartSession,
		EventID: eventId,
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, start); err != nil {
		return err
	}

	heartbeats := time.NewTicker(15 * time.Second)
	defer heartbeats.Stop()
	go func() {
		hb, _ := json.Marshal(protocol.Heartbeat{Type: protocol.TypeHeartbeat})
		for range heartbeats.C {
			if err := conn.WriteMessage(websocket.TextMessage, hb); err != nil {
				return
			}
		}
	}()

	// The first full-state frame renders without a transition; later
	// updates get a marker line standing in for the visual transition.
	resynced := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case protocol.TypeSessionStarted:
			var m protocol.SessionStarted
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}
			if m.ActiveItemIndex < len(m.Setlist) {
				group := m.Setlist[m.ActiveItemIndex]
				if m.ActiveSlide < len(group.Slides) {
					render(group.Title, group.Slides[m.ActiveSlide].Lines, false)
				}
			}
			resynced = true

		case protocol.TypeDisplayUpdate:
			var m protocol.DisplayUpdate
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}
			render(m.GroupTitle, m.Lines, resynced)

		case protocol.TypeSessionEnded:
			log.Printf("Session ended")
			return nil
		}
	}
}

func render(title string, lines []string, transition bool) {
	fmt.Println(strings.Repeat("=", 60))
	if transition {
		fmt.Println("~ fade ~")
	}
	fmt.Printf("  %s\n\n", title)
	for _, line := range lines {
		fmt.Printf("  %s\n", line)
	}
	fmt.Println(strings.Repeat("=", 60))
}
