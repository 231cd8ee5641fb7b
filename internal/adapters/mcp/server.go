package mcpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
	"github.com/kirillkom/scripture-rag/internal/core/retrieval"
)

const serverName = "scripture-rag"

// Server exposes retrieval and grounded answering as MCP tools.
type Server struct {
	retriever ports.Retriever
	answerer  ports.QuestionAnswerer
	mcp       *server.MCPServer
}

func NewServer(version string, retriever ports.Retriever, answerer ports.QuestionAnswerer) *Server {
	s := &Server{
		retriever: retriever,
		answerer:  answerer,
		mcp:       server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(
		mcp.NewTool("retrieve_passages",
			mcp.WithDescription("Find Bible passages for a question using literal and semantic search."),
			mcp.WithString("question", mcp.Required(), mcp.Description("Question in Portuguese")),
			mcp.WithString("mode",
				mcp.Description("AUTO or LITERAL_ONLY; derived from the question when omitted"),
				mcp.Enum(string(domain.ModeAuto), string(domain.ModeLiteralOnly)),
			),
		),
		s.handleRetrieve,
	)
	s.mcp.AddTool(
		mcp.NewTool("ask_bible",
			mcp.WithDescription("Answer a question using only retrieved Bible passages, citing references."),
			mcp.WithString("question", mcp.Required(), mcp.Description("Question in Portuguese")),
		),
		s.handleAsk,
	)
	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over the given streams until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

type retrieveResult struct {
	Retrieval *domain.Retrieval    `json:"retrieval"`
	Guard     domain.GuardDecision `json:"guard"`
}

func (s *Server) handleRetrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	mode := retrieval.ModeFor(s.retriever.Analyze(question))
	if raw := strings.ToUpper(strings.TrimSpace(req.GetString("mode", ""))); raw != "" {
		parsed, ok := domain.ParseRetrievalMode(raw)
		if !ok {
			return mcp.NewToolResultError("mode must be AUTO or LITERAL_ONLY"), nil
		}
		mode = parsed
	}

	result, err := s.retriever.Retrieve(ctx, question, mode)
	if err != nil {
		slog.Error("mcp_retrieve_failed", "error", err)
		return mcp.NewToolResultErrorFromErr("retrieval failed", err), nil
	}

	payload, err := json.MarshalIndent(retrieveResult{
		Retrieval: result,
		Guard:     retrieval.Guard(result.Query, result.Candidates),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	answer, err := s.answerer.Answer(ctx, question)
	if err != nil {
		slog.Error("mcp_answer_failed", "error", err)
		return mcp.NewToolResultErrorFromErr("answer failed", err), nil
	}
	return mcp.NewToolResultText(formatAnswer(answer)), nil
}

func formatAnswer(answer *domain.Answer) string {
	if len(answer.Sources) == 0 {
		return answer.Text
	}
	var b strings.Builder
	b.WriteString(answer.Text)
	b.WriteString("\n\nFontes:")
	for _, p := range answer.Sources {
		b.WriteString("\n- ")
		b.WriteString(p.Reference())
	}
	return b.String()
}
