package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Appointment-Agent/agent/agents/assistant"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/backend"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/booking"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/knowledge"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/llm"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/runtime"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/sqldb"
	statex "github.com/tanpawarit/Chative-Appointment-Agent/agent/state"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/toolserver"
	configx "github.com/tanpawarit/Chative-Appointment-Agent/pkg/config"
	_ "github.com/tanpawarit/Chative-Appointment-Agent/pkg/logger/autoload"
)

const (
	modeChat  = "chat"
	modeTools = "tools"
)

type AppConfig struct {
	Mode       string `envconfig:"MODE" default:"chat"`
	ThreadID   string `envconfig:"THREAD_ID" split_words:"true"`
	ListenAddr string `envconfig:"LISTEN_ADDR" split_words:"true" default:":8090"`
}

func (c AppConfig) Validate() error {
	switch c.Mode {
	case modeChat, modeTools:
		return nil
	default:
		return fmt.Errorf("app mode must be %q or %q, got %q", modeChat, modeTools, c.Mode)
	}
}

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := runtime.New(ctx, runtime.Configs{
		LLM:        *configx.MustNew[llm.Config]("LLM"),
		Backend:    *configx.MustNew[backend.Config]("BACKEND"),
		Booking:    *configx.MustNew[booking.Config]("BOOKING"),
		Database:   *configx.MustNew[sqldb.Config]("DATABASE"),
		Knowledge:  *configx.MustNew[knowledge.Config]("KNOWLEDGE"),
		Memory:     *configx.MustNew[statex.Config]("MEMORY"),
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start session")
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Error().Err(err).Msg("session close")
		}
	}()

	switch appCfg.Mode {
	case modeTools:
		err = serveTools(ctx, session, appCfg.ListenAddr)
	default:
		threadID := appCfg.ThreadID
		if threadID == "" {
			threadID = uuid.NewString()
		}
		err = chat(ctx, session.Assistant, threadID, os.Stdin, os.Stdout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("mode", appCfg.Mode).Msg("exited with error")
	}
}

func serveTools(ctx context.Context, session *runtime.Session, addr string) error {
	srv, err := toolserver.New(session.Gateway, toolserver.Config{Addr: addr})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// chat runs the REPL. Piped input is answered line by line without prompts.
func chat(ctx context.Context, a *assistant.Assistant, threadID string, in *os.File, out io.Writer) error {
	interactive := isTerminal(in)
	if interactive {
		fmt.Fprintf(out, "thread %s, type exit to quit\n", threadID)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		if interactive {
			fmt.Fprint(out, "booking> ")
		}

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := a.HandleMessage(ctx, threadID, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error().Err(err).Str("thread_id", threadID).Msg("turn failed")
			fmt.Fprintln(out, "Desculpe, ocorreu um erro. Tente novamente.")
			continue
		}
		fmt.Fprintln(out, reply.Text)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
