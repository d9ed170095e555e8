// Package main provides the lanes-mcp binary — MCP server for AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/FilipeJesus/lanes-sub004/pkg/mcpserver"
	"github.com/FilipeJesus/lanes-sub004/pkg/session"
)

var version = "dev"

func main() {
	gw := &mcpserver.Gateway{Store: session.NewStore(os.Getenv("LANES_SESSIONS_DIR"))}
	s := mcpserver.NewServer(version, gw)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
