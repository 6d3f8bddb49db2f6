package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/peer"
)

func main() {
	var (
		url     = pflag.StringP("url", "u", "ws://localhost:8080/ws", "signaling endpoint")
		room    = pflag.StringP("room", "r", "", "room id to join, or to create with --create")
		create  = pflag.BoolP("create", "c", false, "create the room instead of joining it")
		stun    = pflag.StringSlice("stun", nil, "STUN server URLs")
		verbose = pflag.BoolP("verbose", "v", false, "debug logging")
	)
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if !*create && *room == "" {
		fmt.Fprintln(os.Stderr, "either --create or --room is required")
		pflag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := peer.NewClient(peer.Options{
		URL:        *url,
		RoomID:     domain.RoomID(*room),
		Create:     *create,
		ICEServers: *stun,
	})
	client.OnAttached(func(room domain.RoomID, self domain.PeerID) {
		fmt.Printf("room %s (you are %s)\n", room, self)
	})
	client.OnMessage(func(from domain.PeerID, text string) {
		fmt.Printf("[%s] %s\n", from, text)
	})

	go func() {
		select {
		case <-client.Ready():
		case <-ctx.Done():
			return
		}
		fmt.Println("channel open, type to send")
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if err := client.Send(sc.Text()); err != nil {
				log.Warn().Err(err).Msg("send")
			}
		}
	}()

	if err := client.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("peer session failed")
	}
}
