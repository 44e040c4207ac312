package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"db-agent-be/internal/config"
	"db-agent-be/pkg/events"
	pktNats "db-agent-be/pkg/nats"

	"github.com/fatih/color"
)

// audit follows TURN_COMPLETED events on NATS and prints one line per turn.
func main() {
	durable := flag.String("durable", "turn-audit-cli", "durable consumer name")
	flag.Parse()

	cfg := config.Load()
	if cfg.App.NatsURL == "" {
		log.Fatal("Error: NATS_URL is not set")
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL, logger)
	if err != nil {
		log.Fatal("Error: ", err)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc, err := sub.Subscribe(ctx, pktNats.Subject(events.TypeTurnCompleted), *durable, printTurn)
	if err != nil {
		log.Fatal("Error: ", err)
	}
	defer cc.Stop()

	<-ctx.Done()
}

func printTurn(ctx context.Context, event events.Event) error {
	p := event.Payload()
	line := color.New(color.FgGreen)
	if failed, _ := p["failed"].(bool); failed {
		line = color.New(color.FgRed)
	}

	tools, _ := json.Marshal(p["tools"])
	line.Printf("%s  %v/%v  %vms  %s\n", event.Timestamp().Format("15:04:05"), p["user_id"], p["session_id"], p["duration_ms"], tools)
	color.White("  Q: %v", p["message"])
	color.White("  A: %v", p["reply"])
	return nil
}
