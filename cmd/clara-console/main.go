package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/PabloGalante/clara-companion/internal/client"
	"github.com/PabloGalante/clara-companion/internal/client/chat"
	"github.com/PabloGalante/clara-companion/internal/client/notify"
	"github.com/PabloGalante/clara-companion/internal/config"
	"github.com/PabloGalante/clara-companion/internal/console"
	"github.com/PabloGalante/clara-companion/internal/observability"
	"github.com/PabloGalante/clara-companion/internal/speech"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Console.APIBaseURL, "api", cfg.Console.APIBaseURL, "Clara API base URL")
	flag.StringVar(&cfg.Console.Recipient, "recipient", cfg.Console.Recipient, "Phone number replies are texted to")
	flag.DurationVar(&cfg.Console.AlertPollInterval, "alert-interval", cfg.Console.AlertPollInterval, "How often to check for alerts")
	flag.DurationVar(&cfg.Console.MessagePollInterval, "message-interval", cfg.Console.MessagePollInterval, "How often to refresh the conversation")
	flag.StringVar(&cfg.Console.STTCommand, "stt-command", cfg.Console.STTCommand, "Speech-to-text program printing one result per line (optional)")
	flag.Parse()

	// The terminal belongs to the UI; logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if cfg.Console.LogFile != "" {
		f, err := os.OpenFile(cfg.Console.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	log := observability.Init(logOut, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.Console.APIBaseURL)
	alerts := notify.NewDispatcher(api, cfg.Console.AlertPollInterval)
	orch := chat.New(api, cfg.Console.Recipient, cfg.Console.MessagePollInterval)

	var p *tea.Program

	// Observers may fire from inside Update, where a direct p.Send would
	// deadlock.
	fwdCtx, cancelFwd := context.WithCancel(ctx)
	defer cancelFwd()
	snapshots := forwardLatest(fwdCtx, func(s chat.Snapshot) { p.Send(console.SnapshotMsg(s)) })
	transcripts := forwardLatest(fwdCtx, func(t speech.Transcript) { p.Send(console.TranscriptMsg(t)) })

	var dictation console.Dictation
	if cfg.Console.STTCommand != "" {
		dictation = speech.NewSession(speech.NewCommandRecognizer(cfg.Console.STTCommand), transcripts.Put)
	}

	p = tea.NewProgram(console.New(ctx, orch, alerts, dictation), tea.WithAltScreen(), tea.WithContext(ctx))

	orch.Subscribe(snapshots.Put)
	alerts.Subscribe(orch.RaiseAlert)

	log.Info("console starting", "api", cfg.Console.APIBaseURL, "dictation", dictation != nil)

	started := make(chan struct{})
	go func() {
		defer close(started)
		orch.Start(ctx)
		alerts.Start(ctx)
	}()

	_, runErr := p.Run()

	<-started
	alerts.Stop()
	orch.Stop()

	if runErr != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error running Clara console: %v\n", runErr)
		os.Exit(1)
	}
}
