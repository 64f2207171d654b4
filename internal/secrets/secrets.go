// Package secrets reads and writes credential files such as the CatGenie
// refresh token.
package secrets

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Writer persists a secret and returns the path the daemon should read it from.
type Writer interface {
	Write(ctx context.Context, plaintext []byte) (string, error)
}

// ReadFile returns the trimmed contents of a secret file.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// FileWriter stores the secret as a 0600 plaintext file.
type FileWriter struct {
	Path string
}

func (w FileWriter) Write(_ context.Context, plaintext []byte) (string, error) {
	if strings.TrimSpace(w.Path) == "" {
		return "", fmt.Errorf("secret path is required")
	}
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o700); err != nil {
		return "", fmt.Errorf("create secret dir: %w", err)
	}
	if err := os.WriteFile(w.Path, append(bytes.TrimSpace(plaintext), '\n'), 0o600); err != nil {
		return "", fmt.Errorf("write secret: %w", err)
	}
	return w.Path, nil
}

// AgenixWriter encrypts the secret into a nix-secrets repo. RuntimePath is
// where the decrypted secret appears on the host, e.g.
// /run/agenix/catgenie-refresh-token.
type AgenixWriter struct {
	RepoPath    string
	RulesPath   string
	SecretName  string
	RuntimePath string
	Recipients  []string
	Exec        string
}

func (w AgenixWriter) Write(ctx context.Context, plaintext []byte) (string, error) {
	if w.RepoPath == "" {
		return "", fmt.Errorf("agenix repo path is required")
	}
	name := w.SecretName
	if name == "" {
		name = "catgenie-refresh-token"
	}
	name = strings.TrimSuffix(name, ".age") + ".age"

	rules := w.RulesPath
	if rules == "" {
		rules = filepath.Join(w.RepoPath, "secrets.nix")
	}

	recipients := w.Recipients
	if len(recipients) == 0 {
		var err error
		if recipients, err = Recipients(rules); err != nil {
			return "", err
		}
	}
	if err := EnsureEntry(rules, name, recipients); err != nil {
		return "", err
	}

	execName := w.Exec
	if execName == "" {
		execName = "agenix"
	}
	cmd := exec.CommandContext(ctx, execName, "-e", filepath.Join(w.RepoPath, name))
	cmd.Dir = w.RepoPath
	cmd.Env = append(os.Environ(), "RULES="+rules, "EDITOR=cp /dev/stdin")
	cmd.Stdin = bytes.NewReader(bytes.TrimSpace(plaintext))
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("agenix: %w: %s", err, strings.TrimSpace(string(output)))
	}

	if w.RuntimePath != "" {
		return w.RuntimePath, nil
	}
	return filepath.Join("/run/agenix", strings.TrimSuffix(name, ".age")), nil
}

// EnsureEntry adds name to secrets.nix unless it is already declared.
func EnsureEntry(rulesPath, name string, recipients []string) error {
	info, err := os.Stat(rulesPath)
	if err != nil {
		return fmt.Errorf("stat secrets.nix: %w", err)
	}
	content, err := os.ReadFile(rulesPath)
	if err != nil {
		return fmt.Errorf("read secrets.nix: %w", err)
	}
	declared := regexp.MustCompile(regexp.QuoteMeta(`"`+name+`"`) + `\s*\.publicKeys`)
	if declared.Match(content) {
		return nil
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients available for %s", name)
	}

	idx := bytes.LastIndex(content, []byte("\n}"))
	if idx == -1 {
		return fmt.Errorf("secrets.nix missing closing brace")
	}
	entry := fmt.Sprintf("  %q.publicKeys = [ %s ];\n", name, strings.Join(recipients, " "))
	updated := string(content[:idx]) + "\n" + entry + string(content[idx:])
	return os.WriteFile(rulesPath, []byte(updated), info.Mode().Perm()|0o600)
}

var (
	catgenieEntry = regexp.MustCompile(`"catgenie-[^"]+\.age"\s*\.publicKeys\s*=\s*\[([^\]]+)\]`)
	anyEntry      = regexp.MustCompile(`"[^"]+\.age"\s*\.publicKeys\s*=\s*\[([^\]]+)\]`)
)

// Recipients borrows the key list of an existing catgenie secret, falling
// back to the first secret declared in the file.
func Recipients(rulesPath string) ([]string, error) {
	content, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("read secrets.nix: %w", err)
	}
	match := catgenieEntry.FindSubmatch(content)
	if match == nil {
		match = anyEntry.FindSubmatch(content)
	}
	if match == nil {
		return nil, fmt.Errorf("no recipients found in %s", rulesPath)
	}
	fields := strings.Fields(string(match[1]))
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty recipient list in %s", rulesPath)
	}
	return fields, nil
}
