package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrToolNameEmpty         = errors.New("tool name is empty")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
)

// ToolManager manages the available tools.
// Registration happens at startup; afterwards the manager is read-only and safe for concurrent use.
type ToolManager struct {
	tools map[string]Tool
	order []string
}

// NewToolManager creates a new ToolManager
func NewToolManager() *ToolManager {
	return &ToolManager{
		tools: make(map[string]Tool),
	}
}

// RegisterTool registers a new tool
func (m *ToolManager) RegisterTool(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return ErrToolNameEmpty
	}
	if _, exists := m.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, name)
	}
	m.tools[name] = tool
	m.order = append(m.order, name)
	return nil
}

// GetTool retrieves a tool by name
func (m *ToolManager) GetTool(name string) (Tool, error) {
	tool, ok := m.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// Names returns the registered tool names in registration order.
func (m *ToolManager) Names() []string {
	return append([]string(nil), m.order...)
}

// Count returns the number of registered tools.
func (m *ToolManager) Count() int { return len(m.order) }

// Declarations describes every registered tool for the model.
func (m *ToolManager) Declarations() []Declaration {
	return lo.Map(m.order, func(name string, _ int) Declaration {
		t := m.tools[name]
		return Declaration{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
	})
}

// Invoke runs the named tool. An unknown name yields ErrToolNotFound.
func (m *ToolManager) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	tool, err := m.GetTool(name)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	result := tool.Run(ctx, args)
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}
