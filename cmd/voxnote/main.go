package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/netutil"

	"github.com/voxnote/voxnote/internal/api"
	"github.com/voxnote/voxnote/internal/audio"
	"github.com/voxnote/voxnote/internal/config"
	"github.com/voxnote/voxnote/internal/notes"
	"github.com/voxnote/voxnote/internal/polish"
	"github.com/voxnote/voxnote/internal/realtime"
	"github.com/voxnote/voxnote/internal/storage/sqlite"
	"github.com/voxnote/voxnote/internal/websocket"
	"github.com/voxnote/voxnote/pkg/logger"
)

const defaultConfigPath = "voxnote.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Local development keeps the API key in a .env file
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting voxnote",
		logger.String("config_path", *configPath),
		logger.String("db_path", cfg.Storage.Path),
		logger.Bool("audio_enabled", cfg.Audio.Enabled))

	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	noteStorage, err := sqlite.NewNoteStorage(db, log)
	if err != nil {
		log.Error("Failed to initialize note storage", logger.Error(err))
		os.Exit(1)
	}
	noteService := notes.NewService(noteStorage, log)

	wsServer := websocket.NewServer(log)
	defer wsServer.Close()

	tokens := realtime.NewTokenClient(
		cfg.Realtime.APIKey,
		cfg.Realtime.TokenURL,
		realtime.SessionSettings{
			SampleRate:        cfg.Audio.SampleRate,
			Model:             cfg.Realtime.Model,
			Language:          cfg.Realtime.Language,
			VADThreshold:      cfg.Realtime.VADThreshold,
			PrefixPaddingMs:   cfg.Realtime.PrefixPaddingMs,
			SilenceDurationMs: cfg.Realtime.SilenceDurationMs,
		},
		time.Duration(cfg.Realtime.TimeoutSeconds)*time.Second,
		log,
	)

	// Server-side recorder, only when this host has a microphone to offer
	var recorder *realtime.Controller
	if cfg.Audio.Enabled {
		// Completed turns land in a note through the debounced auto-saver;
		// flushed on shutdown so the last recording's text survives
		sink := notes.NewTranscriptSink(noteService, notes.DefaultSaveDelay, log)
		defer sink.Close()
		recorder = realtime.NewController(
			realtime.Config{
				URL:           cfg.Realtime.URL,
				SampleRate:    cfg.Audio.SampleRate,
				FrameSize:     cfg.Audio.FrameSize,
				LevelGain:     cfg.Audio.LevelGain,
				StopGrace:     cfg.Realtime.StopGrace(),
				ErrorCooldown: cfg.Realtime.ErrorCooldown(),
			},
			tokens,
			audio.NewMalgoOpener(log),
			realtime.Callbacks{
				OnTranscriptDelta: func(delta string) {
					wsServer.Broadcast(&websocket.Message{
						Type: "transcript_delta",
						Data: map[string]interface{}{"delta": delta},
					})
				},
				OnTranscriptComplete: func(text string) {
					sink.Append(text)
					wsServer.Broadcast(&websocket.Message{
						Type: "transcript_complete",
						Data: map[string]interface{}{"text": text},
					})
				},
				OnError: func(msg string) {
					wsServer.Broadcast(&websocket.Message{
						Type: "recorder_error",
						Data: map[string]interface{}{"message": msg},
					})
				},
				OnStateChange: func(state realtime.State) {
					if state == realtime.StateIdle {
						sink.EndSession()
					}
					wsServer.Broadcast(&websocket.Message{
						Type: "recorder_state",
						Data: map[string]interface{}{"state": state.String()},
					})
				},
			},
			log,
		)
		defer recorder.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Level-meter feed for the UI while the recorder is live
	if recorder != nil {
		go broadcastAudioLevels(ctx, recorder, wsServer)
	}

	polisher := polish.NewPolisher(ctx, noteStorage, wsServer, polish.Config{
		Enabled:         cfg.Polish.Enabled,
		APIKey:          cfg.Realtime.APIKey,
		Model:           cfg.Polish.Model,
		IntervalSeconds: cfg.Polish.IntervalSeconds,
		BatchSize:       cfg.Polish.BatchSize,
	}, log)
	if err := polisher.Start(); err != nil {
		log.Error("Failed to start polisher", logger.Error(err))
		os.Exit(1)
	}
	defer polisher.Stop()

	router := api.NewRouter(noteService, tokens, recorder, wsServer, cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("Failed to listen", logger.String("addr", addr), logger.Error(err))
		os.Exit(1)
	}
	if cfg.Server.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.Server.MaxConnections)
	}

	server := &http.Server{
		Handler:           router.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	log.Info("HTTP server listening", logger.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", logger.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", logger.Error(err))
	}

	log.Info("Shutdown complete")
}

// broadcastAudioLevels pushes the smoothed mic level to UI clients while a
// recording is active
func broadcastAudioLevels(ctx context.Context, recorder *realtime.Controller, wsServer *websocket.Server) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if recorder.State() != realtime.StateRecording {
				continue
			}
			wsServer.Broadcast(&websocket.Message{
				Type: "audio_level",
				Data: map[string]interface{}{"level": recorder.AudioLevel()},
			})
		}
	}
}
