package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/soocke/vision-bot-go/config"
	"github.com/soocke/vision-bot-go/domain/bot"
	"github.com/soocke/vision-bot-go/domain/browser"
	"github.com/soocke/vision-bot-go/domain/capture"
	"github.com/soocke/vision-bot-go/domain/vision"
	"github.com/soocke/vision-bot-go/internal/images"
)

// mcpServer wraps the MCP server with a lazily started browser session and
// the bot driving it. One session serves all tool calls; the mutex keeps the
// single-caller contract of the bot.
type mcpServer struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	session *browser.Session
	bot     *bot.Bot

	mcp *mcpserver.MCPServer
}

func newMCPServer(cfg *config.Config, logger *slog.Logger) *mcpServer {
	s := &mcpServer{cfg: cfg, logger: logger}
	s.mcp = mcpserver.NewMCPServer("vision-bot", "1.0.0")
	s.registerTools()
	return s
}

func (s *mcpServer) serve(transport string, port int) error {
	switch transport {
	case "stdio":
		return mcpserver.ServeStdio(s.mcp)
	case "streamable-http":
		httpServer := mcpserver.NewStreamableHTTPServer(s.mcp)
		return httpServer.Start(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport: %s (use stdio or streamable-http)", transport)
	}
}

func (s *mcpServer) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
		s.bot = nil
	}
}

// ensureBot starts the browser on first use.
func (s *mcpServer) ensureBot(ctx context.Context) (*bot.Bot, error) {
	if s.bot != nil {
		return s.bot, nil
	}
	session, err := browser.Start(ctx, browser.Options{
		Headless:    s.cfg.Headless,
		Width:       s.cfg.WindowWidth,
		Height:      s.cfg.WindowHeight,
		UserAgent:   s.cfg.UserAgent,
		DownloadDir: s.cfg.DownloadDir,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	s.session = session
	s.bot = bot.New(s.cfg, capture.NewMeter(session, s.logger), s.logger)
	return s.bot, nil
}

func (s *mcpServer) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool("navigate",
			mcp.WithDescription("Navigate the managed browser to a URL and wait for the document body"),
			mcp.WithString("url", mcp.Description("URL to open"), mcp.Required()),
		),
		s.handleNavigate,
	)

	s.mcp.AddTool(
		mcp.NewTool("find",
			mcp.WithDescription("Locate a needle image on the current page using template matching, polling until found or timeout"),
			mcp.WithString("needle", mcp.Description("Filesystem path of the reference image"), mcp.Required()),
			mcp.WithNumber("confidence", mcp.Description("Minimum NCC score 0..1 (default 0.9)")),
			mcp.WithBoolean("grayscale", mcp.Description("Correlate on luminance only")),
			mcp.WithNumber("timeout", mcp.Description("Polling budget in ms (default 10000)")),
			mcp.WithBoolean("all", mcp.Description("Return every deduplicated match instead of the best one")),
			mcp.WithNumber("x", mcp.Description("Search region left")),
			mcp.WithNumber("y", mcp.Description("Search region top")),
			mcp.WithNumber("width", mcp.Description("Search region width")),
			mcp.WithNumber("height", mcp.Description("Search region height")),
		),
		s.handleFind,
	)

	s.mcp.AddTool(
		mcp.NewTool("screenshot",
			mcp.WithDescription("Capture the current page. Saves to a file when 'out' is given, otherwise returns the PNG inline."),
			mcp.WithString("out", mcp.Description("Output PNG path")),
		),
		s.handleScreenshot,
	)

	s.mcp.AddTool(
		mcp.NewTool("wait_download",
			mcp.WithDescription("Wait until the configured download directory has no in-progress downloads"),
			mcp.WithNumber("timeout", mcp.Description("Budget in ms (default 120000)")),
		),
		s.handleWaitDownload,
	)
}

func (s *mcpServer) handleNavigate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	url := stringParam(params, "url", "")
	if url == "" {
		return mcp.NewToolResultError("url is required"), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ensureBot(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.session.Navigate(ctx, url); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, _ := s.session.Title(ctx)
	return mcp.NewToolResultText(resultToText(map[string]any{
		"ok": true, "action": "navigate", "url": url, "title": title,
	})), nil
}

func (s *mcpServer) handleFind(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	needle := stringParam(params, "needle", "")
	if needle == "" {
		return mcp.NewToolResultError("needle is required"), nil
	}
	opts := bot.FindOptions{
		Region: vision.Region{
			Left:   intParam(params, "x", 0),
			Top:    intParam(params, "y", 0),
			Width:  intParam(params, "width", 0),
			Height: intParam(params, "height", 0),
		},
		Matching:    floatParam(params, "confidence", 0),
		Grayscale:   boolParam(params, "grayscale", false),
		WaitingTime: time.Duration(intParam(params, "timeout", 0)) * time.Millisecond,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.ensureBot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	const label = "needle"
	b.AddImage(label, needle)

	var matches []vision.Match
	if boolParam(params, "all", false) {
		matches, err = b.FindAll(ctx, label, opts)
	} else {
		var m *vision.Match
		m, err = b.FindUntil(ctx, label, opts)
		if m != nil {
			matches = []vision.Match{*m}
		}
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resultToText(map[string]any{
		"ok": true, "action": "find", "needle": needle,
		"matches": matches, "total": len(matches),
	})), nil
}

func (s *mcpServer) handleScreenshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	out := stringParam(params, "out", "")

	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.ensureBot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	img, err := b.Screenshot(ctx, out, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if out != "" {
		return mcp.NewToolResultText(resultToText(map[string]any{
			"ok": true, "action": "screenshot", "path": out,
			"width": img.Bounds().Dx(), "height": img.Bounds().Dy(),
		})), nil
	}
	data := base64.StdEncoding.EncodeToString(images.EncodePNG(images.ScaleToFit(img, 1280, 1280)))
	return mcp.NewToolResultImage("screenshot", data, "image/png"), nil
}

func (s *mcpServer) handleWaitDownload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	timeout := time.Duration(intParam(params, "timeout", 0)) * time.Millisecond

	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.ensureBot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	done, err := b.WaitForDownloads(ctx, timeout)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resultToText(map[string]any{
		"ok": true, "action": "wait_download", "completed": done,
	})), nil
}

// resultToText serializes a tool result to YAML for the MCP response.
func resultToText(v any) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("ok: false\nerror: %v", err)
	}
	return string(b)
}

// Tool argument helpers; MCP arguments arrive as loosely typed JSON values.

func stringParam(params map[string]interface{}, key, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}

func boolParam(params map[string]interface{}, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func intParam(params map[string]interface{}, key string, def int) int {
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return def
}

func floatParam(params map[string]interface{}, key string, def float64) float64 {
	if v, ok := params[key].(float64); ok {
		return v
	}
	return def
}
