package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Appointment-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/prompt"
	statex "github.com/tanpawarit/Chative-Appointment-Agent/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message text is empty")
	ErrInvalidSession = errors.New("thread id is empty")
)

const (
	defaultMaxToolRounds = 8

	// ExhaustedReply is returned when the model keeps calling tools past the
	// round limit.
	ExhaustedReply = "Desculpe, não consegui concluir seu pedido agora. Pode reformular ou tentar novamente em instantes?"
)

type Config struct {
	MaxToolRounds int
	// PromptVars formats the system prompt, see prompt.Vars.
	PromptVars map[string]any
}

type Reply struct {
	Text        string
	ToolResults []contractx.ToolResult
}

// Assistant runs one user turn at a time: the model answers or asks for
// tools, tool answers are fed back, and the transcript is checkpointed.
type Assistant struct {
	store  statex.Store
	tools  contractx.ToolGateway
	runner compose.Runnable[map[string]any, *schema.Message]

	maxRounds  int
	promptVars map[string]any
	now        func() time.Time
}

func New(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	store statex.Store,
	tools contractx.ToolGateway,
	cfg Config,
) (*Assistant, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	toolModel, err := chatModel.WithTools(tools.Infos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}
	runner, err := compileTurnGraph(ctx, toolModel, prompt.Assistant())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	vars := cfg.PromptVars
	if vars == nil {
		vars = prompt.Vars("", 0)
	}

	return &Assistant{
		store:      store,
		tools:      tools,
		runner:     runner,
		maxRounds:  maxRounds,
		promptVars: vars,
		now:        time.Now,
	}, nil
}

func (a *Assistant) HandleMessage(ctx context.Context, threadID string, text string) (Reply, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return Reply{}, ErrInvalidSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrInvalidMessage
	}

	transcript, err := a.store.Load(ctx, threadID)
	if errors.Is(err, statex.ErrStateNotFound) {
		transcript = statex.NewTranscript(threadID, a.now())
	} else if err != nil {
		return Reply{}, fmt.Errorf("load transcript: %w", err)
	}
	transcript.Append(schema.UserMessage(text))

	logger := log.With().Str("thread_id", threadID).Logger()

	var reply Reply
	answered := false
	for round := 0; round < a.maxRounds; round++ {
		msg, err := a.runner.Invoke(ctx, a.turnInput(transcript.Messages))
		if err != nil {
			return Reply{}, fmt.Errorf("%w: assistant turn: %v", contractx.ErrModelInvoke, err)
		}
		if msg == nil {
			return Reply{}, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
		}
		msg.Role = schema.Assistant

		if len(msg.ToolCalls) == 0 {
			transcript.Append(msg)
			reply.Text = strings.TrimSpace(msg.Content)
			answered = true
			break
		}

		for i := range msg.ToolCalls {
			if msg.ToolCalls[i].ID == "" {
				msg.ToolCalls[i].ID = uuid.NewString()
			}
		}
		transcript.Append(msg)

		for _, call := range msg.ToolCalls {
			result := a.runTool(ctx, call)
			reply.ToolResults = append(reply.ToolResults, result)
			transcript.Append(schema.ToolMessage(result.ModelContent(), call.ID))
			logger.Info().
				Int("round", round+1).
				Str("tool", result.Tool).
				Bool("failed", result.Failed()).
				Str("error_kind", result.ErrorKind).
				Msg("tool call handled")
		}
	}

	if !answered {
		logger.Warn().Int("max_rounds", a.maxRounds).Msg("tool rounds exhausted")
		reply.Text = ExhaustedReply
		transcript.Append(schema.AssistantMessage(ExhaustedReply, nil))
	}

	transcript.Touch(a.now())
	if err := a.store.Save(ctx, transcript); err != nil {
		return Reply{}, fmt.Errorf("save transcript: %w", err)
	}
	return reply, nil
}

func (a *Assistant) turnInput(history []*schema.Message) map[string]any {
	in := make(map[string]any, len(a.promptVars)+1)
	for k, v := range a.promptVars {
		in[k] = v
	}
	in[historyKey] = history
	return in
}

// runTool never fails the turn: bad arguments and unknown tools are reported
// back to the model as failed tool results.
func (a *Assistant) runTool(ctx context.Context, call schema.ToolCall) contractx.ToolResult {
	name := strings.TrimSpace(call.Function.Name)

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return contractx.ToolResult{
				Tool:      name,
				Error:     fmt.Sprintf("invalid tool arguments: %v", err),
				ErrorKind: "invalid_arguments",
			}
		}
	}

	result, err := a.tools.Execute(ctx, contractx.ToolRequest{CallID: call.ID, Tool: name, Args: args})
	if err != nil {
		kind := "tool_failed"
		if errors.Is(err, contractx.ErrToolUnavailable) {
			kind = "unknown_tool"
		}
		return contractx.ToolResult{Tool: name, Error: err.Error(), ErrorKind: kind}
	}
	if result.Tool == "" {
		result.Tool = name
	}
	return result
}
