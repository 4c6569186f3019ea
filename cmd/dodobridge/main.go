package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dodobot/serial-bridge/internal/bridge"
	"github.com/dodobot/serial-bridge/internal/server"
	"github.com/dodobot/serial-bridge/web"
)

func main() {
	configPath := flag.String("config", "/etc/dodobridge/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run against a simulated robot instead of a serial port")
	portPath := flag.String("port", "", "Override serial port path (e.g. /dev/ttyACM0)")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] dodobridge starting")

	cfg := server.LoadConfig(*configPath)
	if *demo {
		cfg.Robot.Demo = true
	}
	if *portPath != "" {
		cfg.Serial.PortPath = *portPath
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	srv := server.New(cfg, web.FS)

	var br *bridge.Bridge
	if cfg.Robot.Demo {
		sim := bridge.NewSimDevice("dodo")
		go sim.Run(ctx.Done())
		br = bridge.New(sim, cfg.Serial.PollHz, srv.Publish)
	} else {
		var err error
		br, err = bridge.Open(cfg.Serial, srv.Publish)
		if err != nil {
			log.Printf("[main] %v", err)
			os.Exit(1)
		}
	}
	defer br.Close()
	srv.AttachBridge(br)

	// Handshake first: a device that never reports ready is a fatal
	// setup error, not something to limp along without.
	if err := br.Setup(ctx); err != nil {
		log.Printf("[main] setup failed: %v", err)
		os.Exit(1)
	}

	go func() {
		if err := br.Run(ctx); err != nil {
			log.Printf("[main] bridge loop exited: %v", err)
			cancel()
		}
	}()

	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
		os.Exit(1)
	}
}
