package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshp123/catgenie/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "setup":
		setupCmd(args)
	case "devices":
		devicesCmd(args)
	case "status":
		statusCmd(args)
	case "operate":
		operateCmd(args)
	case "plugins":
		pluginsCmd(args)
	case "health":
		healthCmd(args)
	case "services":
		servicesCmd()
	case "describe":
		describeCmd(args)
	case "archive":
		archiveCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func configPath() string {
	if value := os.Getenv("CATGENIE_CONFIG"); value != "" {
		return value
	}
	for _, path := range configSearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return config.DefaultPath
}

func configSearchPaths() []string {
	paths := []string{config.DefaultPath}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "catgenie", "config.yaml"))
	}
	return paths
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil
	}
	return cfg
}

func resolveHTTPAddr() string {
	if value := os.Getenv("CATGENIE_HTTP_ADDR"); value != "" {
		return dialAddr(value)
	}
	if cfg := loadConfig(); cfg != nil {
		return dialAddr(cfg.Core.HTTPAddr)
	}
	return dialAddr(config.DefaultHTTPAddr)
}

func resolveGRPCAddr() string {
	if value := os.Getenv("CATGENIE_GRPC_ADDR"); value != "" {
		return dialAddr(value)
	}
	if cfg := loadConfig(); cfg != nil {
		return dialAddr(cfg.Core.GRPCAddr)
	}
	return dialAddr(config.DefaultGRPCAddr)
}

// dialAddr turns a listen address into one a client can dial.
func dialAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	switch {
	case strings.HasPrefix(addr, ":"):
		return "127.0.0.1" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		return "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	case strings.HasPrefix(addr, "[::]:"):
		return "127.0.0.1" + strings.TrimPrefix(addr, "[::]")
	}
	return addr
}

func usage() {
	fmt.Println("catgenie-cli <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  setup --name <name> --token <refresh_token> [--token-out file | --agenix-repo dir] [--dry-run]")
	fmt.Println("  devices [--json]")
	fmt.Println("  status <device> [--json]")
	fmt.Println("  operate <device> <on|off|resume|full_clean>")
	fmt.Println("  plugins [plugin_id]")
	fmt.Println("  health [service]")
	fmt.Println("  services")
	fmt.Println("  describe <symbol>")
	fmt.Println("  archive <device>")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
