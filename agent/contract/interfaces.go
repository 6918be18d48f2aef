package contract

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// ToolGateway exposes a tool set to a tool-calling loop. Tool failures are
// reported inside ToolResult; the error return is reserved for requests that
// cannot be dispatched at all.
type ToolGateway interface {
	Infos() []*schema.ToolInfo
	Execute(ctx context.Context, req ToolRequest) (ToolResult, error)
}
