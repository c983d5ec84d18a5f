package provider

import "context"

// Render refusal reasons. Both are soft failures: the delivery service
// decides what to do with them, they are never raised as errors.
const (
	RenderNoDataAccess = "no_data_access"
	RenderEmptyContent = "empty_content"
)

// Template is an opaque handle to a compiled template; the engine never
// inspects its internals.
type Template struct {
	ID      string
	Channel string
	Locale  string
}

// RenderResult is what rendering produced, or why it refused.
type RenderResult struct {
	HasContent bool
	Subject    string
	Text       string
	HTML       string
	Reason     string
}

// RenderOptions carries per-send rendering context.
type RenderOptions struct {
	Locale     string
	DataAccess DataAccessChecker
}

// TemplateProvider is the engine's view onto the template subsystem.
type TemplateProvider interface {
	GetTemplate(ctx context.Context, typeID, channelName, locale string) (*Template, error)
	GetFallbackTemplate(ctx context.Context, channelName string) (*Template, error)
	TemplateExists(ctx context.Context, typeID, channelName string) (bool, error)
	RenderTemplate(ctx context.Context, tmpl *Template, data map[string]any, opts RenderOptions) (RenderResult, error)
}
