package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"quorum/client"
	"quorum/domain"
	"time"

	colors "github.com/gookit/color"
)

var lines = []string{
	"Morning everyone",
	"Did anyone read the release notes?",
	"Yes, search is finally in",
	"Posting the dashboard screenshot below",
	"Thanks, looks good",
}

// Fills a running server with a short conversation and one image attachment.
func main() {
	server := flag.String("server", "http://localhost:8080", "Server base URL")
	group := flag.String("group", "lobby", "Room to fill")
	name := flag.String("name", "seeder", "Guest name to post under")
	rounds := flag.Int("rounds", 1, "How many times the conversation is replayed")
	flag.Parse()

	groupID, err := domain.ParseGroupID(*group)
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := client.Dial(ctx, client.Options{BaseURL: *server, Name: *name})
	if err != nil {
		log.Fatalf("Could not connect: %v", err)
	}
	defer func() { _ = c.Close() }()

	attachment, err := genImage(64, 48)
	if err != nil {
		log.Fatalf("Could not build the image: %v", err)
	}

	for round := 0; round < *rounds; round++ {
		for i, line := range lines {
			payload := ""
			if i == len(lines)-2 {
				payload = attachment
			}
			ack, err := c.Send(ctx, groupID, line, payload)
			if err != nil {
				log.Fatalf("Message %q refused: %v", line, err)
			}
			fmt.Printf("%s #%d delivered to %d\n", colors.Green.Render("sent"), ack.Sequence, ack.Delivery.Targets)
		}
	}
	fmt.Println(colors.Cyan.Render(fmt.Sprintf("%s filled with %d messages", groupID, *rounds*len(lines))))
}

// genImage draws a gradient PNG and returns it as a data URL.
func genImage(width, height int) (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / width), G: 100, B: 200, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
