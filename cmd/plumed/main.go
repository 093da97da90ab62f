// Command plumed runs a demo scene in real time and streams its updates to
// websocket observers.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akmonengine/plume"
	"github.com/akmonengine/plume/config"
	"github.com/akmonengine/plume/mass"
	"github.com/akmonengine/plume/stream"
	"github.com/akmonengine/plume/taint"
	"github.com/go-gl/mathgl/mgl64"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file, watched for changes")
		addr       = flag.String("addr", ":8080", "address of the websocket stream")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Config: %v", err)
		}
		cfg = loaded
	}

	// dry land one meter above the sea
	ground := cfg.Scene.WaterLevel + 1
	scene, err := plume.NewScene(cfg, plume.FlatEnvironment{Ground: ground, Water: cfg.Scene.WaterLevel})
	if err != nil {
		log.Fatalf("Scene: %v", err)
	}
	populate(scene, ground)

	hub := stream.NewHub(scene)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	server := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(c config.Config) {
				if err := scene.SetConfig(c); err != nil {
					log.Printf("Config: rejected: %v", err)
				}
			})
			if err != nil {
				log.Printf("Config: watch: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("Stream: listening on %s", *addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Stream: %v", err)
			stop()
		}
	}()

	if err := scene.Run(ctx); err != nil {
		log.Printf("Scene: %v", err)
	}

	hub.Close()
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdown); err != nil {
		log.Printf("Stream: shutdown: %v", err)
	}
}

// populate drops a small stack of crates next to a walking avatar.
func populate(scene *plume.Scene, ground float64) {
	base := mgl64.Vec3{128, 128, ground}

	for i := range 3 {
		position := base.Add(mgl64.Vec3{0, 0, 2 + float64(i)*1.5})
		p, err := scene.AddPrim("crate", position, mgl64.QuatIdent(), mass.Box(), mgl64.Vec3{1, 1, 1}, true)
		if err != nil {
			log.Printf("Scene: %v", err)
			continue
		}
		p.SubscribeEvents(500)
	}

	ball, err := scene.AddPrim("ball", base.Add(mgl64.Vec3{4, 0, 6}), mgl64.QuatIdent(), mass.Sphere(), mgl64.Vec3{1, 1, 1}, true)
	if err == nil {
		ball.SetHover(3, taint.HoverGround, 1)
	}

	avatar, err := scene.AddCharacter("walker", base.Add(mgl64.Vec3{-6, 0, scene.Config().Avatar.Height / 2}), scene.Config().Avatar.Height, false)
	if err != nil {
		log.Printf("Scene: %v", err)
		return
	}
	avatar.SetVelocity(mgl64.Vec3{1, 0, 0})
}
