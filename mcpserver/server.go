package mcpserver

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"marketing_post_refiner/generator"
	"marketing_post_refiner/logging"
	"marketing_post_refiner/research"
	"marketing_post_refiner/store"
	"marketing_post_refiner/styleguide"
	"marketing_post_refiner/trace"
)

// History is the part of the run store the tools use.
type History interface {
	Save(ctx context.Context, rec store.RunRecord) error
	Get(ctx context.Context, id string) (store.RunRecord, error)
	List(ctx context.Context, limit int) ([]store.Summary, error)
}

// Tools holds what the MCP tool handlers need. Guides, Searcher and History
// may be nil.
type Tools struct {
	Agent     *generator.Agent
	Guides    styleguide.Provider
	Searcher  research.Searcher
	History   History
	CostModel trace.CostModel
	Logger    *logging.Logger
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(t *Tools, version string) (*mcpsdk.Server, error) {
	if t == nil || t.Agent == nil {
		return nil, errors.New("mcp tools need an agent")
	}
	if t.CostModel == (trace.CostModel{}) {
		t.CostModel = trace.DefaultCostModel()
	}
	t.Logger = t.Logger.Named("mcp")

	server := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "marketing-post-refiner",
			Version: version,
		},
		nil,
	)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "generate_post",
		Description: "Generate a LinkedIn-style post through the outline, write, review and rewrite loop",
	}, t.generatePost)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_style_guides",
		Description: "List the brand style guidelines available to generate_post",
	}, t.listStyleGuides)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "get_run",
		Description: "Get a stored run by id, including its final post and trace summary",
	}, t.getRun)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_runs",
		Description: "List recent runs, newest first",
	}, t.listRuns)

	return server, nil
}

// RunStdio serves the tools over stdin/stdout until ctx ends.
func RunStdio(ctx context.Context, t *Tools, version string) error {
	server, err := NewServer(t, version)
	if err != nil {
		return err
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
