// Operator client: interactive console that joins a session, streams
// microphone audio from a WAV file, mirrors transcripts, and issues
// slide commands from stdin (n=next, p=prev, e=end).
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/protocol"
)

// WAV header is 44 bytes for standard PCM files.
const wavHeaderSize = 44

// 100ms chunks at 16kHz 16-bit mono.
const chunkSize = 3200
const chunkInterval = 100 * time.Millisecond

func main() {
	serverAddr := flag.String("server", "localhost:8080", "Server address")
	eventId := flag.String("event", "demo-event", "Event ID")
	audioFile := flag.String("audio", "", "Optional WAV file (16kHz 16-bit mono) to stream as microphone audio")
	flag.Parse()

	url := fmt.Sprintf("ws://%s/ws?role=operator", *serverAddr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	writes := make(chan []byte, 16)
	binaryWrites := make(chan []byte, 16)
	go func() {
		for {
			select {
			case data := <-writes:
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Fatalf("Write failed: %v", err)
				}
			case data := <-binaryWrites:
				if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
					log.Fatalf("Audio write failed: %v", err)
				}
			}
		}
	}()

	send := func(msg any) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Fatalf("Marshal failed: %v", err)
		}
		writes <- data
	}

	send(protocol.StartSession{Type: protocol.TypeStartSession, EventID: *eventId})

	go func() {
		for range time.Tick(15 * time.Second) {
			send(protocol.Heartbeat{Type: protocol.TypeHeartbeat, SentAt: time.Now().UnixMilli()})
		}
	}()

	if *audioFile != "" {
		go streamAudio(*audioFile, binaryWrites)
	}

	go readLoop(conn)

	fmt.Println("Commands: n=next, p=prev, e=end session, f <font>=set font, q=quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "n":
			send(protocol.Command{Type: protocol.TypeNext})
		case line == "p":
			send(protocol.Command{Type: protocol.TypePrev})
		case line == "e":
			send(protocol.Command{Type: protocol.TypeEndSession})
		case len(line) > 2 && line[:2] == "f ":
			send(protocol.UpdateSettings{
				Type:     protocol.TypeUpdateSettings,
				Settings: models.EventSettings{DisplayFont: line[2:]},
			})
		case line == "q":
			return
		}
	}
}

func readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("Connection lost: %v", err)
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
			json.Unmarshal(data, &m)
			log.Printf("Joined session %s: %d items, slide %d/%d",
				m.EventID, len(m.Setlist), m.ActiveItemIndex, m.ActiveSlide)
		case protocol.TypeDisplayUpdate:
			var m protocol.DisplayUpdate
			json.Unmarshal(data, &m)
			log.Printf("Slide -> %s [%d:%d] rev=%d", m.GroupTitle, m.ActiveItemIndex, m.ActiveSlide, m.Revision)
		case protocol.TypeTranscript:
			var m protocol.Transcript
			json.Unmarshal(data, &m)
			marker := " "
			if m.IsFinal {
				marker = "*"
			}
			log.Printf("%s %q (%.2f)", marker, m.Text, m.Confidence)
		case protocol.TypeRecognitionDegraded:
			var m protocol.RecognitionDegraded
			json.Unmarshal(data, &m)
			log.Printf("Recognition degraded: provider=%s reason=%s", m.Provider, m.Reason)
		case protocol.TypeError:
			var m protocol.Error
			json.Unmarshal(data, &m)
			log.Printf("Error: %s %s", m.Code, m.Message)
		case protocol.TypeSessionEnded:
			log.Printf("Session ended")
			os.Exit(0)
		}
	}
}

// streamAudio sends WAV file audio in real-time-sized chunks as binary
// frames, the same shape a browser microphone capture would produce.
func streamAudio(path string, out chan<- []byte) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("Failed to open audio file: %v", err)
		return
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Printf("Failed to read WAV header: %v", err)
		return
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Printf("Not a valid WAV file: %s", path)
		return
	}

	ticker := time.NewTicker(chunkInterval)
	defer ticker.Stop()

	for range ticker.C {
		chunk := make([]byte, chunkSize)
		n, err := f.Read(chunk)
		if err == io.EOF {
			log.Printf("Audio file streamed completely")
			return
		}
		if err != nil {
			log.Printf("Audio read failed: %v", err)
			return
		}
		out <- chunk[:n]
	}
}
