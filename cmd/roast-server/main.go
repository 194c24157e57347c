package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"
	"uk.co.dudmesh.roastlive/internal/auth"
	"uk.co.dudmesh.roastlive/internal/boot"
	"uk.co.dudmesh.roastlive/internal/handlers"
	"uk.co.dudmesh.roastlive/internal/hub"
	"uk.co.dudmesh.roastlive/internal/scorer"
	"uk.co.dudmesh.roastlive/internal/store"
)

func openStore(config *boot.Config) *store.Store {
	var s *store.Store
	var err error
	if config.Server.DatabaseMemory {
		s, err = store.OpenMemory("roast")
	} else {
		if err := os.MkdirAll(config.DataDirectory(), 0o700); err != nil {
			log.Fatalf("creating data dir: %+v", err)
		}
		s, err = store.Open(config.DataDirectory())
	}
	if err != nil {
		log.Fatalf("opening store: %+v", err)
	}
	return s
}

func newScorer(config *boot.Config) *scorer.Scorer {
	if config.Server.WordList == "" {
		return scorer.New(scorer.DefaultTerms)
	}
	s, err := scorer.Load(config.Server.WordList)
	if err != nil {
		log.Fatalf("loading word list: %+v", err)
	}
	if err := s.Watch(); err != nil {
		log.Fatalf("watching word list: %+v", err)
	}
	return s
}

func main() {
	config, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}

	db := openStore(config)
	defer db.Close()

	key, err := auth.LoadOrCreateKey(config.DataDirectory())
	if err != nil {
		log.Fatalf("signing key: %+v", err)
	}
	log.Infof("signing with key %s", auth.KeyID(&key.PublicKey))

	changes := hub.New()
	wordScorer := newScorer(config)
	defer wordScorer.Close()

	server := echo.New()
	server.Use(middleware.BodyLimit("1M"))
	server.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	server.Use(echoprometheus.NewMiddleware("roastlive"))
	server.Use(middleware.Recover())

	server.Logger.SetLevel(log.INFO)
	if config.IsDevelopment() {
		log.SetLevel(log.DEBUG)
	}

	headers := []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization}
	server.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     config.Server.Origins,
		AllowHeaders:     headers,
		AllowCredentials: true,
	}))

	realtimeSettings := handlers.DefaultRealtimeSettings()
	realtimeSettings.Origins = config.Server.Origins

	handlers.Register(server, &handlers.Deps{
		Store:         db,
		Hub:           changes,
		Authenticator: auth.NewCredentials(db),
		Tokens:        auth.NewTokens(key, config.Server.SessionTTL),
		Scorer:        wordScorer,
		Realtime:      realtimeSettings,
	})

	go func() {
		metrics := echo.New()
		metrics.HideBanner = true
		metrics.GET("/metrics", echoprometheus.NewHandler())
		if err := metrics.Start(":" + config.Server.MetricsPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	go func() {
		if err := server.Start(":" + config.Server.Port); err != nil && err != http.ErrServerClosed {
			server.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// ends every realtime subscription so open websockets get an error frame
	changes.Close()
	if err := server.Shutdown(ctx); err != nil {
		server.Logger.Fatal(err)
	}
}
