// Package mcpserver exposes the service to MCP clients.
//
// Tools:
//   - parse_reference: finds scripture citations in free text.
//   - lookup_verse: returns the text of a citation.
//   - queue_snapshot: lists pending and approved items and what is on screen.
//   - approve_item: approves a pending item.
//   - display_item: puts an item on the display surface.
//   - search_songs: matches lyrics or a title against the song library.
//
// [Server.Handler] serves the tools over streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/versecue/internal/bible"
	"github.com/MrWong99/versecue/internal/detect/parser"
	"github.com/MrWong99/versecue/internal/library"
	"github.com/MrWong99/versecue/internal/queue"
	"github.com/MrWong99/versecue/internal/scripture"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// Queue is the part of *queue.Queue the tools drive.
type Queue interface {
	Pending() []queue.Item
	Approved() []queue.Item
	Current() (queue.Item, bool)
	Stats() queue.Stats
	Approve(id string) (queue.Item, error)
	Display(ctx context.Context, id string) (queue.Item, error)
}

// SongSearcher matches a lyric snippet or title. *worship.Orchestrator
// implements it.
type SongSearcher interface {
	Search(ctx context.Context, transcript string) []library.Match
}

// Option configures a [Server].
type Option func(*Server)

// WithBible enables lookup_verse.
func WithBible(b bible.Provider) Option {
	return func(s *Server) { s.bible = b }
}

// WithSongs enables search_songs.
func WithSongs(ss SongSearcher) Option {
	return func(s *Server) { s.songs = ss }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server holds the MCP tool set.
type Server struct {
	queue Queue
	bible bible.Provider
	songs SongSearcher
	log   *slog.Logger

	mcp *mcpsdk.Server
}

// New builds the server and registers its tools. Tools whose backing
// dependency is missing are not registered.
func New(q Queue, opts ...Option) *Server {
	s := &Server{queue: q, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "versecue", Version: Version}, nil)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "parse_reference",
		Description: "Find Bible references such as 'John 3:16' or 'Romans chapter eight verse twenty eight' in text.",
	}, s.parseReference)
	if s.bible != nil {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        "lookup_verse",
			Description: "Return the text of a Bible reference.",
		}, s.lookupVerse)
	}
	if s.queue != nil {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        "queue_snapshot",
			Description: "List pending and approved queue items, the item on screen and session counters.",
		}, s.queueSnapshot)
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        "approve_item",
			Description: "Approve a pending queue item by id.",
		}, s.approveItem)
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        "display_item",
			Description: "Show a queue item on the display by id.",
		}, s.displayItem)
	}
	if s.songs != nil {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        "search_songs",
			Description: "Find worship songs by title or a lyric snippet.",
		}, s.searchSongs)
	}
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Handler serves the tools over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.mcp }, nil)
}

type parseArgs struct {
	Text string `json:"text" jsonschema:"free text that may contain Bible references"`
}

type parseResult struct {
	Candidates []scripture.Candidate `json:"candidates"`
}

func (s *Server) parseReference(_ context.Context, _ *mcpsdk.CallToolRequest, in parseArgs) (*mcpsdk.CallToolResult, any, error) {
	cands := parser.Parse(in.Text)
	if cands == nil {
		cands = []scripture.Candidate{}
	}
	return jsonResult(parseResult{Candidates: cands})
}

type lookupArgs struct {
	Reference string `json:"reference" jsonschema:"a Bible reference such as John 3:16-17"`
}

func (s *Server) lookupVerse(ctx context.Context, _ *mcpsdk.CallToolRequest, in lookupArgs) (*mcpsdk.CallToolResult, any, error) {
	cands := parser.Parse(in.Reference)
	if len(cands) == 0 {
		return nil, nil, fmt.Errorf("mcpserver: no valid reference in %q", in.Reference)
	}
	v, err := s.bible.Lookup(ctx, cands[0].Reference)
	if err != nil {
		return nil, nil, fmt.Errorf("mcpserver: lookup %s: %w", cands[0].Display, err)
	}
	return jsonResult(v)
}

type snapshotArgs struct{}

type snapshotResult struct {
	Pending  []queue.Item `json:"pending"`
	Approved []queue.Item `json:"approved"`
	Current  *queue.Item  `json:"current,omitempty"`
	Stats    queue.Stats  `json:"stats"`
}

func (s *Server) queueSnapshot(context.Context, *mcpsdk.CallToolRequest, snapshotArgs) (*mcpsdk.CallToolResult, any, error) {
	out := snapshotResult{
		Pending:  nonNil(s.queue.Pending()),
		Approved: nonNil(s.queue.Approved()),
		Stats:    s.queue.Stats(),
	}
	if cur, ok := s.queue.Current(); ok {
		out.Current = &cur
	}
	return jsonResult(out)
}

type itemArgs struct {
	ID string `json:"id" jsonschema:"queue item id"`
}

func (s *Server) approveItem(_ context.Context, _ *mcpsdk.CallToolRequest, in itemArgs) (*mcpsdk.CallToolResult, any, error) {
	it, err := s.queue.Approve(in.ID)
	if err != nil {
		return nil, nil, itemError("approve", in.ID, err)
	}
	s.log.Info("mcp approved item", "id", it.ID, "label", it.Label())
	return jsonResult(it)
}

func (s *Server) displayItem(ctx context.Context, _ *mcpsdk.CallToolRequest, in itemArgs) (*mcpsdk.CallToolResult, any, error) {
	it, err := s.queue.Display(ctx, in.ID)
	if err != nil {
		return nil, nil, itemError("display", in.ID, err)
	}
	s.log.Info("mcp displayed item", "id", it.ID, "label", it.Label())
	return jsonResult(it)
}

func itemError(op, id string, err error) error {
	return fmt.Errorf("mcpserver: %s %q: %w", op, id, err)
}

// jsonResult renders v as JSON text content.
func jsonResult(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}}}, nil, nil
}

type songArgs struct {
	Query string `json:"query" jsonschema:"a song title or a line of lyrics"`
}

type songResult struct {
	Matches []library.Match `json:"matches"`
}

func (s *Server) searchSongs(ctx context.Context, _ *mcpsdk.CallToolRequest, in songArgs) (*mcpsdk.CallToolResult, any, error) {
	matches := s.songs.Search(ctx, in.Query)
	if matches == nil {
		matches = []library.Match{}
	}
	return jsonResult(songResult{Matches: matches})
}

func nonNil(items []queue.Item) []queue.Item {
	if items == nil {
		return []queue.Item{}
	}
	return items
}
