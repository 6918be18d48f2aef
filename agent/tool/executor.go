package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Appointment-Agent/agent/booking"
	contractx "github.com/tanpawarit/Chative-Appointment-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/knowledge"
	"github.com/tanpawarit/Chative-Appointment-Agent/agent/sqldb"
)

const (
	kindInvalidArguments = "invalid_arguments"
	kindToolFailed       = "tool_failed"
	kindUnknownTool      = "unknown_tool"
)

type Executor func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error)

// Build returns the tool infos and the executor serving them.
func Build(deps Deps) ([]*schema.ToolInfo, Executor) {
	return infosFor(deps), NewExecutor(deps)
}

func NewExecutor(deps Deps) Executor {
	fallback := DefaultExecutor()
	return func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
		switch {
		case tool == ToolCreateAppointment && deps.Booker != nil:
			return executeBooking(ctx, deps.Booker, args), nil
		case tool == ToolRetrieve && deps.Retriever != nil:
			return executeRetrieve(ctx, deps.Retriever, deps.RetrieveTopK, args), nil
		case tool == ToolListTables && deps.Database != nil:
			return executeListTables(ctx, deps.Database), nil
		case tool == ToolSchema && deps.Database != nil:
			return executeSchema(ctx, deps.Database, args), nil
		case tool == ToolQuery && deps.Database != nil:
			return executeQuery(ctx, deps.Database, args), nil
		default:
			return fallback(ctx, tool, args)
		}
	}
}

func DefaultExecutor() Executor {
	return func(ctx context.Context, tool string, _ map[string]any) (contractx.ToolResult, error) {
		return contractx.ToolResult{
			Tool:      tool,
			Error:     fmt.Sprintf("tool=%s is unavailable", tool),
			ErrorKind: kindUnknownTool,
		}, nil
	}
}

func failed(tool, kind string, err error) contractx.ToolResult {
	return contractx.ToolResult{Tool: tool, Error: err.Error(), ErrorKind: kind}
}

func executeBooking(ctx context.Context, booker Booker, args map[string]any) contractx.ToolResult {
	var req booking.Request
	fields := map[string]*string{
		"customer_cpf":     &req.CustomerCPF,
		"customer_name":    &req.CustomerName,
		"service_name":     &req.ServiceName,
		"professional_cpf": &req.ProfessionalCPF,
		"date":             &req.Date,
		"time":             &req.Time,
	}
	for key, dst := range fields {
		v, err := stringArg(args, key)
		if err != nil {
			return failed(ToolCreateAppointment, string(booking.KindInvalidRequest), err)
		}
		*dst = v
	}

	res, err := booker.Book(ctx, req)
	if err != nil {
		var bookingErr *booking.Error
		if errors.As(err, &bookingErr) {
			return contractx.ToolResult{
				Tool:      ToolCreateAppointment,
				Error:     bookingErr.Error(),
				ErrorKind: string(bookingErr.Kind),
				Artifact:  bookingErr,
			}
		}
		return failed(ToolCreateAppointment, kindToolFailed, err)
	}

	return contractx.ToolResult{
		Tool:     ToolCreateAppointment,
		Content:  string(res.Confirmation),
		Artifact: res,
	}
}

func executeRetrieve(ctx context.Context, r retriever.Retriever, topK int, args map[string]any) contractx.ToolResult {
	query, err := stringArg(args, "query")
	if err == nil && strings.TrimSpace(query) == "" {
		err = errors.New("query is required")
	}
	if err != nil {
		return failed(ToolRetrieve, kindInvalidArguments, err)
	}
	if topK <= 0 {
		topK = knowledge.DefaultTopK
	}

	docs, err := r.Retrieve(ctx, query, retriever.WithTopK(topK))
	if err != nil {
		return failed(ToolRetrieve, kindToolFailed, err)
	}
	return contractx.ToolResult{
		Tool:     ToolRetrieve,
		Content:  FormatDocuments(docs),
		Artifact: docs,
	}
}

// FormatDocuments renders documents as "Source: <metadata>\nContent: <text>"
// blocks separated by a blank line.
func FormatDocuments(docs []*schema.Document) string {
	if len(docs) == 0 {
		return "No relevant documents found."
	}
	blocks := make([]string, 0, len(docs))
	for _, doc := range docs {
		meta, err := json.Marshal(doc.MetaData)
		if err != nil || doc.MetaData == nil {
			meta = []byte("{}")
		}
		blocks = append(blocks, fmt.Sprintf("Source: %s\nContent: %s", meta, doc.Content))
	}
	return strings.Join(blocks, "\n\n")
}

func executeListTables(ctx context.Context, db Database) contractx.ToolResult {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return failed(ToolListTables, kindToolFailed, err)
	}
	return contractx.ToolResult{
		Tool:     ToolListTables,
		Content:  strings.Join(tables, ", "),
		Artifact: tables,
	}
}

func executeSchema(ctx context.Context, db Database, args map[string]any) contractx.ToolResult {
	raw, err := stringArg(args, "table_names")
	if err != nil {
		return failed(ToolSchema, kindInvalidArguments, err)
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return failed(ToolSchema, kindInvalidArguments, errors.New("table_names is required"))
	}

	schemas, err := db.TableSchemas(ctx, names)
	if err != nil {
		return failed(ToolSchema, kindToolFailed, err)
	}
	rendered := make([]string, 0, len(schemas))
	for _, s := range schemas {
		rendered = append(rendered, s.Render())
	}
	return contractx.ToolResult{
		Tool:     ToolSchema,
		Content:  strings.Join(rendered, "\n\n"),
		Artifact: schemas,
	}
}

func executeQuery(ctx context.Context, db Database, args map[string]any) contractx.ToolResult {
	query, err := stringArg(args, "query")
	if err != nil {
		return failed(ToolQuery, kindInvalidArguments, err)
	}

	res, err := db.Query(ctx, query)
	if err != nil {
		kind := kindToolFailed
		if errors.Is(err, sqldb.ErrReadOnly) {
			kind = kindInvalidArguments
		}
		return failed(ToolQuery, kind, err)
	}

	body, err := json.Marshal(res.Rows)
	if err != nil {
		return failed(ToolQuery, kindToolFailed, fmt.Errorf("encode rows: %w", err))
	}
	content := string(body)
	if res.Truncated {
		content += fmt.Sprintf("\n(truncated to %d rows)", len(res.Rows))
	}
	return contractx.ToolResult{
		Tool:     ToolQuery,
		Content:  content,
		Artifact: res,
	}
}

// stringArg reads an optional string argument. Models occasionally send
// identifiers as JSON numbers, so those are accepted too.
func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%s must be a string", key)
	}
}

// Gateway serves a fixed tool set to a tool-calling loop.
type Gateway struct {
	infos []*schema.ToolInfo
	exec  Executor
	known map[string]bool
}

var _ contractx.ToolGateway = (*Gateway)(nil)

func NewGateway(deps Deps) *Gateway {
	infos, exec := Build(deps)
	known := make(map[string]bool, len(infos))
	for _, info := range infos {
		known[info.Name] = true
	}
	return &Gateway{infos: infos, exec: exec, known: known}
}

func (g *Gateway) Infos() []*schema.ToolInfo {
	return append([]*schema.ToolInfo(nil), g.infos...)
}

func (g *Gateway) Execute(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	if !g.known[req.Tool] {
		return contractx.ToolResult{}, fmt.Errorf("%w: %s", contractx.ErrToolUnavailable, req.Tool)
	}

	out, err := g.exec(ctx, req.Tool, req.Args)
	if err != nil {
		return contractx.ToolResult{}, err
	}
	ev := log.Debug().Str("tool", req.Tool).Str("call_id", req.CallID).Bool("failed", out.Failed())
	if out.Failed() {
		ev = ev.Str("error_kind", out.ErrorKind)
	}
	ev.Msg("tool executed")
	return out, nil
}
