package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"db-agent-be/internal/dto"

	"github.com/fatih/color"
)

// ask sends questions to a running server and prints the streamed answer.
//
//	go run ./cmd/ask "how many flights left JFK?"
//	go run ./cmd/ask            # interactive
func main() {
	baseURL := flag.String("url", "http://localhost:8000", "server base URL")
	userID := flag.String("user", dto.DefaultUserID, "user id")
	sessionID := flag.String("session", dto.DefaultSessionID, "session id")
	flag.Parse()

	client := &http.Client{} // No timeout, answers stream
	send := func(message string) {
		req := dto.ChatRequest{UserID: *userID, SessionID: *sessionID, Message: message}
		if err := ask(client, *baseURL, req); err != nil {
			color.Red("Failed: %v", err)
		}
	}

	if flag.NArg() > 0 {
		send(strings.Join(flag.Args(), " "))
		return
	}

	color.Cyan("Ask about the database. Empty line or Ctrl-D to quit.")
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		message := strings.TrimSpace(in.Text())
		if message == "" {
			return
		}
		send(message)
	}
}

func ask(client *http.Client, baseURL string, req dto.ChatRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	resp, err := client.Post(strings.TrimRight(baseURL, "/")+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %s", resp.Status, e.Message)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}

		var frame dto.StreamFrame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			return fmt.Errorf("bad frame %q: %w", line, err)
		}

		switch {
		case frame.Complete:
			fmt.Println()
			return nil
		case frame.Thought != nil:
			if frame.Thought.Input != "" {
				color.Yellow("  ⚙ %s(%s)", frame.Thought.Tool, frame.Thought.Input)
			} else {
				color.Yellow("  ⚙ %s", frame.Thought.Tool)
			}
		default:
			fmt.Println(frame.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended without a complete frame")
}
