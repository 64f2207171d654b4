package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joshp123/catgenie/internal/config"
	"github.com/joshp123/catgenie/internal/logging"
	"github.com/joshp123/catgenie/internal/secrets"
	"github.com/joshp123/catgenie/plugins/catgenie"
)

// setupCmd validates a refresh token against the vendor and stores the
// entry in the config file.
func setupCmd(args []string) {
	flags := flag.NewFlagSet("setup", flag.ExitOnError)
	name := flags.String("name", "", "display name for this account")
	token := flags.String("token", "", "CatGenie refresh token")
	tokenFile := flags.String("token-file", "", "read the refresh token from a file")
	baseURL := flags.String("base-url", "", "override the vendor API base URL")
	path := flags.String("config", configPath(), "config file to update")
	dryRun := flags.Bool("dry-run", false, "validate only; do not write the config")
	tokenOut := flags.String("token-out", "", "store the token in this 0600 file instead of the config")
	agenixRepo := flags.String("agenix-repo", "", "encrypt the token into this nix-secrets repo")
	agenixSecret := flags.String("agenix-secret", "catgenie-refresh-token", "agenix secret name")
	agenixPath := flags.String("agenix-path", "", "runtime path of the decrypted secret")
	_ = flags.Parse(args)

	refreshToken := strings.TrimSpace(*token)
	if refreshToken == "" && *tokenFile != "" {
		data, err := os.ReadFile(*tokenFile)
		if err != nil {
			fatal("read token file", err)
		}
		refreshToken = strings.TrimSpace(string(data))
	}
	if refreshToken == "" {
		fatal("setup", fmt.Errorf("--token or --token-file is required"))
	}

	logger, err := logging.New(os.Stderr, "warn", logging.FormatConsole)
	if err != nil {
		fatal("logging", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	devices, formErr, err := catgenie.ValidateEntry(ctx, catgenie.Config{
		Name:         strings.TrimSpace(*name),
		RefreshToken: refreshToken,
		BaseURL:      strings.TrimRight(strings.TrimSpace(*baseURL), "/"),
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed (%s): %v\n", formErr, err)
		os.Exit(1)
	}

	rows := [][]string{{"ID", "NAME", "FIRMWARE", "STATUS"}}
	for _, id := range devices.Order {
		device := devices.ByID[id]
		rows = append(rows, []string{id, device.DisplayName(), orDash(device.FirmwareVersion), orDash(device.ReportedStatus)})
	}
	newOutput(false).table(rows)

	if *dryRun {
		return
	}
	entry := config.CatGenieConfig{
		Name:         strings.TrimSpace(*name),
		RefreshToken: refreshToken,
		BaseURL:      strings.TrimRight(strings.TrimSpace(*baseURL), "/"),
	}
	var writer secrets.Writer
	switch {
	case *agenixRepo != "":
		writer = secrets.AgenixWriter{RepoPath: *agenixRepo, SecretName: *agenixSecret, RuntimePath: *agenixPath}
	case *tokenOut != "":
		writer = secrets.FileWriter{Path: *tokenOut}
	}
	if writer != nil {
		secretPath, err := writer.Write(ctx, []byte(refreshToken))
		if err != nil {
			fatal("store token", err)
		}
		entry.RefreshToken = ""
		entry.RefreshTokenFile = secretPath
	}
	if err := config.WriteEntry(*path, entry); err != nil {
		fatal("write config", err)
	}
	fmt.Printf("saved %s to %s\n", strings.TrimSpace(*name), *path)
}
