// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the diary to LLM assistants via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/diary"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/timeline"
)

// Server wraps the MCP server with diary tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *diary.Service
	files storage.Provider
	loc   *time.Location
}

// New creates a new MCP server with all diary tools registered. Timeline
// days are computed in loc.
func New(svc *diary.Service, files storage.Provider, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{svc: svc, files: files, loc: loc}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List all diary records, newest first."),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("get_timeline",
		mcp.WithDescription("Diary records grouped by calendar day, as plain text."),
		mcp.WithString("tz", mcp.Description("Optional IANA time zone (e.g. Europe/Berlin)")),
	), s.getTimeline)

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Read one record by id."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record id")),
	), s.getRecord)

	s.mcp.AddTool(mcp.NewTool("rename_record",
		mcp.WithDescription("Change the title of a record. The creation time is kept."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New non-empty title")),
	), s.renameRecord)

	s.mcp.AddTool(mcp.NewTool("delete_record",
		mcp.WithDescription("Delete a record. Audio recorded by the app is removed too; "+
			"imported files are left in place."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Record id")),
	), s.deleteRecord)

	s.mcp.AddTool(mcp.NewTool("import_audio",
		mcp.WithDescription("Reference an existing audio file or http(s) URL as a new record. "+
			"The file is not copied. Read ansuz://record-format first."),
		mcp.WithString("location", mcp.Required(), mcp.Description("Absolute path or http(s) URL")),
		mcp.WithString("title", mcp.Description("Optional title, defaults to the file name")),
	), s.importAudio)

	s.mcp.AddTool(mcp.NewTool("upload_audio",
		mcp.WithDescription("Download audio from an http(s) URL or base64 data URI into the "+
			"diary's own storage and create a record for it."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:audio/...;base64,... URI")),
		mcp.WithString("title", mcp.Description("Optional title")),
	), s.uploadAudio)

	s.mcp.AddResource(
		mcp.NewResource(recordFormatURI, "Record Format",
			mcp.WithResourceDescription("Shape of diary records and the locators they carry."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
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

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listRecords(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := s.svc.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText("no records"), nil
	}
	return jsonResult(records), nil
}

func (s *Server) getTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc := s.loc
	if tz := req.GetString("tz", ""); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("unknown time zone: %s", tz)), nil
		}
		loc = l
	}
	items, err := s.svc.Timeline(ctx, loc)
	if err != nil {
		return toolError(err), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no records"), nil
	}
	return mcp.NewToolResultText(timeline.Text(items, loc)), nil
}

func (s *Server) getRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Get(ctx, int64(id))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) renameRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Rename(ctx, int64(id), title)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) deleteRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, int64(id)); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %d", id)), nil
}

func (s *Server) importAudio(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, err := req.RequireString("location")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.Import(ctx, loc, req.GetString("title", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) readRecordFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      recordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormat,
		},
	}, nil
}
