package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/embedding"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Appointment-Agent/agent/agents/assistant"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/backend"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/booking"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/knowledge"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/llm"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/prompt"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/sqldb"
	statex "github.com/tanpawarit/Chative-Appointment-Agent/agent/state"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/tool"
	openrouterx "github.com/tanpawarit/Chative-Appointment-Agent/pkg/openrouter"
)

// Configs groups everything a Session is built from.
type Configs struct {
	LLM       llm.Config
	Backend   backend.Config
	Booking   booking.Config
	Database  sqldb.Config
	Knowledge knowledge.Config
	Memory    statex.Config

	// Registerer receives the booking metrics. Nil disables them.
	Registerer prometheus.Registerer
	// ChatModel overrides the model built from LLM.
	ChatModel einomodel.ToolCallingChatModel
	// Embedder overrides the embedder built from LLM.
	Embedder embedding.Embedder
	// SkipDatabase leaves the SQL tools out.
	SkipDatabase bool
}

// Session owns the process-wide collaborators of one assistant run.
type Session struct {
	Assistant *assistant.Assistant
	Gateway   *tool.Gateway
	Booking   *booking.Tool

	client *backend.Client
	db     *sqldb.DB
	store  statex.Store
}

func New(ctx context.Context, cfgs Configs) (_ *Session, err error) {
	s := &Session{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.client, err = backend.NewClient(cfgs.Backend)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	var opts []booking.Option
	if cfgs.Registerer != nil {
		opts = append(opts, booking.WithMetrics(booking.NewMetrics(cfgs.Registerer)))
	}
	s.Booking, err = booking.New(s.client, cfgs.Booking, opts...)
	if err != nil {
		return nil, err
	}

	deps := tool.Deps{Booker: s.Booking, RetrieveTopK: cfgs.Knowledge.TopK}
	vars := prompt.Vars("", cfgs.Database.TopK)

	if !cfgs.SkipDatabase {
		s.db, err = sqldb.Open(ctx, cfgs.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		deps.Database = s.db
		vars = prompt.Vars(s.db.DialectName(), cfgs.Database.TopK)
	}

	deps.Retriever, err = buildRetriever(ctx, cfgs)
	if err != nil {
		return nil, err
	}

	s.store, err = statex.NewStore(ctx, cfgs.Memory)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	s.Gateway = tool.NewGateway(deps)

	chatModel := cfgs.ChatModel
	if chatModel == nil {
		orCfg := cfgs.LLM.OpenRouter()
		chatModel, err = orCfg.New(ctx)
		if err != nil {
			return nil, err
		}
	}

	s.Assistant, err = assistant.New(ctx, chatModel, s.store, s.Gateway, assistant.Config{
		MaxToolRounds: cfgs.LLM.MaxToolRounds,
		PromptVars:    vars,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("tools", len(s.Gateway.Infos())).
		Str("memory_backend", cfgs.Memory.Backend).
		Bool("database", s.db != nil).
		Bool("knowledge", deps.Retriever != nil).
		Msg("session ready")
	return s, nil
}

// buildRetriever returns nil when no knowledge directory is configured.
func buildRetriever(ctx context.Context, cfgs Configs) (retriever.Retriever, error) {
	if cfgs.Knowledge.Dir == "" {
		return nil, nil
	}

	embedder := cfgs.Embedder
	if embedder == nil {
		client := openrouterx.NewClient(cfgs.LLM.OpenRouter())
		e, err := knowledge.NewOpenAIEmbedder(client, cfgs.LLM.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("knowledge embedder: %w", err)
		}
		embedder = e
	}

	store, err := knowledge.NewInMemoryStore(embedder, cfgs.Knowledge.TopK)
	if err != nil {
		return nil, err
	}
	n, err := knowledge.LoadDir(ctx, store, cfgs.Knowledge.Dir)
	if err != nil {
		return nil, fmt.Errorf("load knowledge %s: %w", cfgs.Knowledge.Dir, err)
	}
	log.Info().Str("dir", cfgs.Knowledge.Dir).Int("chunks", n).Msg("knowledge indexed")
	return store, nil
}

// Close releases the database handle, idle backend connections and the
// checkpoint store connection. It is safe on a partly built Session.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.client != nil {
		s.client.Close()
	}
	if c, ok := s.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
