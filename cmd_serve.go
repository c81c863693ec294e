package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/skolmuirgheasa/resquared-automation/api"
	"github.com/skolmuirgheasa/resquared-automation/mcp"
)

func newServeCmd() *cobra.Command {
	var port, host string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, metrics and MCP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			// 优先级: 命令行参数 > 环境变量 > 配置文件
			if port != "" {
				cfg.Server.Port = port
			} else if envPort := os.Getenv("PORT"); envPort != "" {
				cfg.Server.Port = envPort
			}
			if host != "" {
				cfg.Server.Host = host
			} else if envHost := os.Getenv("HOST"); envHost != "" {
				cfg.Server.Host = envHost
			}

			a, err := newApp(context.Background(), cfg)
			if err != nil {
				return err
			}

			// 浏览器启动失败不阻止服务启动,首次运行时会再尝试
			if err := a.browser.Start(context.Background()); err != nil {
				log.Printf("Warning: Failed to start browser: %v", err)
			} else {
				log.Printf("✓ Browser started (driver: %s)", cfg.Browser.Driver)
			}

			mcpServer := mcp.NewMCPServer(a.runner, a.db, Version, cfg.Snapshot.MaxDepth)
			log.Println("✓ MCP server initialized successfully")

			handler := api.NewHandler(a.runner, a.db, a.browser)
			router := api.SetupRouter(handler, mcpServer, cfg.Debug)

			setupGracefulShutdown(a)

			addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
			log.Printf("🚀 Server started at http://%s", addr)
			log.Printf("📝 Health: http://%s/health, MCP: http://%s/api/v1/mcp/message", addr, addr)

			return router.Run(addr)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Server port (default: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "Server host (default: 0.0.0.0)")
	return cmd
}
