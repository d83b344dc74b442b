// Interactive webchat client for exercising the websocket endpoint from
// a terminal. Type a message and hit enter; replies, typing indicators
// and quick-reply suggestions print as they arrive.
//
// Usage:
//
//	go run scripts/chat-client/main.go
//	WS_URL=ws://localhost:8080/chat/ws go run scripts/chat-client/main.go
//	go run scripts/chat-client/main.go --session <id>   # resume a session
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gorilla/websocket"
)

type inbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type outbound struct {
	Type         string    `json:"type"`
	Text         string    `json:"text,omitempty"`
	Role         string    `json:"role,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	QuickReplies []string  `json:"quick_replies,omitempty"`
	Messages     []history `json:"messages,omitempty"`
}

type history struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func main() {
	sessionFlag := flag.String("session", "", "resume an existing session id")
	flag.Parse()

	wsURL := os.Getenv("WS_URL")
	if wsURL == "" {
		wsURL = "ws://localhost:8080/chat/ws"
	}
	if *sessionFlag != "" {
		wsURL += "?session=" + *sessionFlag
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Printf("dial %s: %v\n", wsURL, err)
		os.Exit(1)
	}
	defer conn.Close()

	sessionID := make(chan string, 1)

	go func() {
		gotSession := false
		for {
			var msg outbound
			if err := conn.ReadJSON(&msg); err != nil {
				fmt.Printf("\nconnection closed: %v\n", err)
				os.Exit(0)
			}
			switch msg.Type {
			case "session":
				if !gotSession {
					gotSession = true
					sessionID <- msg.SessionID
				}
				fmt.Printf("[session %s]\n", msg.SessionID)
			case "history":
				for _, h := range msg.Messages {
					fmt.Printf("  (%s) %s\n", h.Role, h.Text)
				}
			case "typing":
				fmt.Println("  ...")
			case "message":
				fmt.Printf("< %s\n", msg.Text)
				if len(msg.QuickReplies) > 0 {
					fmt.Printf("  [%s]\n", strings.Join(msg.QuickReplies, " | "))
				}
			case "error":
				fmt.Printf("! %s\n", msg.Text)
			}
		}
	}()

	session := <-sessionID

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			fmt.Print("> ")
			continue
		}
		if text == "/quit" {
			return
		}
		payload, _ := json.Marshal(inbound{Type: "message", SessionID: session, Text: text})
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			fmt.Printf("write: %v\n", err)
			os.Exit(1)
		}
		fmt.Print("> ")
	}
}
