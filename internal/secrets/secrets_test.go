package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rules = `let
  host = "ssh-ed25519 AAAAhost";
  admin = "age1admin";
in
{
  "grafana-admin.age".publicKeys = [ admin ];
  "catgenie-mqtt-password.age".publicKeys = [ host admin ];
}
`

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.nix")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadFileTrims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  abc\n"), 0o600))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	got, err := FileWriter{Path: path}.Write(context.Background(), []byte("abc \n"))
	require.NoError(t, err)
	assert.Equal(t, path, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc\n", string(data))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = FileWriter{}.Write(context.Background(), []byte("abc"))
	assert.Error(t, err)
}

func TestRecipientsPrefersCatGenieEntry(t *testing.T) {
	got, err := Recipients(writeRules(t, rules))
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "admin"}, got)

	got, err = Recipients(writeRules(t, "{\n  \"other.age\".publicKeys = [ admin ];\n}\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, got)

	_, err = Recipients(writeRules(t, "{\n}\n"))
	assert.Error(t, err)
}

func TestEnsureEntry(t *testing.T) {
	path := writeRules(t, rules)
	require.NoError(t, EnsureEntry(path, "catgenie-refresh-token.age", []string{"host", "admin"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"catgenie-refresh-token.age".publicKeys = [ host admin ];`)

	require.NoError(t, EnsureEntry(path, "catgenie-refresh-token.age", nil))
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(content), string(again))

	assert.Error(t, EnsureEntry(path, "new.age", nil))
}

func TestAgenixWriter(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "secrets.nix"), []byte(rules), 0o644))
	fake := filepath.Join(t.TempDir(), "agenix")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\ncat > \"$2\"\n"), 0o755))

	got, err := AgenixWriter{RepoPath: repo, Exec: fake}.Write(context.Background(), []byte("abc\n"))
	require.NoError(t, err)
	assert.Equal(t, "/run/agenix/catgenie-refresh-token", got)

	data, err := os.ReadFile(filepath.Join(repo, "catgenie-refresh-token.age"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}
