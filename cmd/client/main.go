package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"quorum/client"
	"quorum/domain"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Group     string `env:"CHAT_GROUP,default=lobby"`
	Name      string `env:"CHAT_NAME"`
	Token     string `env:"CHAT_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins one room, prints it and sends every line typed on stdin.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	groupID, err := domain.ParseGroupID(config.Group)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, client.Options{
		BaseURL: config.ServerURL,
		Token:   config.Token,
		Name:    config.Name,
		Log:     log,
		OnMessage: func(msg domain.Message) {
			if msg.GroupID == groupID {
				printMessage(msg)
			}
		},
	})
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = c.Close() }()

	transcript, err := c.Join(ctx, groupID)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not join %s: %w", groupID, err)
	}
	for _, msg := range transcript.Messages() {
		printMessage(msg)
	}
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(">>> Connected to %s, room %s (Ctrl+C to quit)", config.ServerURL, groupID)))

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case <-c.Done():
			return exitRuntime, fmt.Errorf("connection lost: %w", c.Err())
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := c.Send(ctx, groupID, line, ""); err != nil {
				color.Red.Println(err.Error())
			}
		}
	}
}

func printMessage(msg domain.Message) {
	fmt.Printf("%s %s: %s\n",
		color.Gray.Render(msg.CreatedAt.Local().Format(time.TimeOnly)),
		color.Cyan.Render(msg.Sender),
		msg.Body,
	)
}
