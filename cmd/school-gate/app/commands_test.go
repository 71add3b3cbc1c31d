package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Commands bind into the global viper instance, so these tests do not run in
// parallel.

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(viper.Reset)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "school-gate "))
}

func TestClassifyCmd_DefaultPatterns(t *testing.T) {
	out, err := execute(t, "classify", "--format", "json",
		"/about", "/admin/news", "/api/admin/users", "/dashboard", "/admin/logo.png")
	require.NoError(t, err)

	var results []ClassifyResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))

	assert.Equal(t, []ClassifyResult{
		{Path: "/about", Classification: "public", Gated: true},
		{Path: "/admin/news", Classification: "admin_page", Gated: true},
		{Path: "/api/admin/users", Classification: "admin_api", Gated: true},
		{Path: "/dashboard", Classification: "protected", Gated: true},
		{Path: "/admin/logo.png", Classification: "admin_page", Gated: false},
	}, results)
}

func TestClassifyCmd_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gate:
  routes:
    public:
      - "/"
      - "/dashboard"
`), 0o600))

	out, err := execute(t, "classify", "--config", path, "/dashboard", "/about")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"PATH", "CLASSIFICATION", "GATED"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"/dashboard", "public", "true"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"/about", "protected", "true"}, strings.Fields(lines[2]))
}

func TestClassifyCmd_Errors(t *testing.T) {
	_, err := execute(t, "classify")
	require.Error(t, err, "at least one path is required")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gate:\n  routes:\n    adminApi: [\"/api/admin([\"]\n"), 0o600))

	_, err = execute(t, "classify", "--config", path, "/about")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestDebugFlagLowersLogLevel(t *testing.T) {
	prev := LogLevel.Level()
	t.Cleanup(func() { LogLevel.Set(prev) })
	LogLevel.Set(0)

	_, err := execute(t, "--debug", "version", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", LogLevel.Level().String())
}
