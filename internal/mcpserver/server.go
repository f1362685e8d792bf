// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notebook tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/davidcpage/research-notebook/internal/cardservice"
	"github.com/davidcpage/research-notebook/internal/storage"
)

// Server wraps the MCP server with notebook tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *cardservice.Service
	store storage.Provider
}

// New creates a new MCP server with all notebook tools registered.
func New(svc *cardservice.Service, store storage.Provider) *Server {
	s := &Server{svc: svc, store: store}

	s.mcp = server.NewMCPServer(
		"Research Notebook",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_sections",
		mcp.WithDescription("List the notebook sections in display order."),
	), s.listSections)

	s.mcp.AddTool(mcp.NewTool("list_cards",
		mcp.WithDescription("List cards, optionally restricted to one section."),
		mcp.WithString("section", mcp.Description("Optional section path (empty for all)")),
	), s.listCards)

	s.mcp.AddTool(mcp.NewTool("read_card",
		mcp.WithDescription("Read the full content of a card, including its fields and body."),
		mcp.WithString("ref", mcp.Required(), mcp.Description("Card path, id or exact title")),
	), s.readCard)

	s.mcp.AddTool(mcp.NewTool("create_card",
		mcp.WithDescription("Create a new card of a given type in a section. "+
			"Fields MUST match the card type's template schema. Read the contract "+
			"first via the get_card_contract tool or the notebook://card-format resource."),
		mcp.WithString("type_id", mcp.Required(), mcp.Description("Card type (note, bookmark, code, image)")),
		mcp.WithString("section", mcp.Required(), mcp.Description("Target section directory")),
		mcp.WithString("fields", mcp.Required(), mcp.Description(`Card fields as a JSON object, e.g. {"title": "My note"}`)),
		mcp.WithString("body", mcp.Description("Card body text (Markdown, code, caption...)")),
	), s.createCard)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all cards that reference the specified card."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Reference target (path, id or title)")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Download an image (or decode a data: URI) into the shared "+
			"assets directory and return a Markdown image snippet for card bodies."),
		mcp.WithString("url", mcp.Required(), mcp.Description("HTTP(S) URL or base64 data: URI of the asset")),
		mcp.WithString("filename", mcp.Description("Optional target filename (derived from the URL when empty)")),
	), s.uploadAsset)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns the canonical notebook card format contract. "+
			"Call this before creating or updating cards to ensure correct structure."),
	), s.getCardContract)

	// Resource: card format contract.
	s.mcp.AddResource(
		mcp.NewResource("notebook://card-format", "Card Format Contract",
			mcp.WithResourceDescription("Canonical card format that all cards must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sections, err := s.svc.ListSections(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var lines []string
	for _, sec := range sections {
		lines = append(lines, sec.Path)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) listCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	section := ""
	if v, err := req.RequireString("section"); err == nil {
		section = v
	}
	items, err := s.svc.ListCards(ctx, section)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("ref")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.svc.ResolveRef(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", ref)), nil
	}
	detail, err := s.svc.GetCard(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeID, err := req.RequireString("type_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	section, err := req.RequireString("section")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldsJSON, err := req.RequireString("fields")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fields must be a JSON object: %v", err)), nil
	}
	body := ""
	if v, reqErr := req.RequireString("body"); reqErr == nil {
		body = v
	}

	detail, err := s.svc.CreateCard(ctx, typeID, section, "", fields, body)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", detail.Path)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) getCardContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readCardFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "notebook://card-format",
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}
