package core

import (
	"context"
	"fmt"
)

// Tool is a callable helper exposed to candidates during evaluation. Only the
// name and description participate in optimization; Run is the live binding.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args map[string]interface{}) (string, error)
}

// SafeInvokeTool runs a tool and converts any failure into a textual error
// message suitable for embedding in the conversation, so a single broken tool
// call cannot abort an optimization run.
func SafeInvokeTool(ctx context.Context, tool Tool, args map[string]interface{}) string {
	if tool.Run == nil {
		return fmt.Sprintf("Tool %q failed: no implementation bound", tool.Name)
	}
	result, err := tool.Run(ctx, args)
	if err != nil {
		return fmt.Sprintf("Tool %q failed: %v", tool.Name, err)
	}
	return result
}
