package ghoutput

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseOutput re-derives the key->value map a GITHUB_ACTIONS runner would
// see after reading this file back, so tests can assert R3 (multiline
// values round-trip) without depending on any third-party parser.
func parseOutput(t *testing.T, content string) map[string]string {
	t.Helper()

	out := make(map[string]string)
	lines := strings.Split(content, "\n")

	for i := 0; i < len(lines); {
		line := lines[i]
		if line == "" {
			i++
			continue
		}

		key, delimiter, found := strings.Cut(line, "<<")
		require.True(t, found, "expected KEY<<DELIM header, got %q", line)

		i++

		var valueLines []string

		for i < len(lines) && lines[i] != delimiter {
			valueLines = append(valueLines, lines[i])
			i++
		}

		require.Less(t, i, len(lines), "closing delimiter %q not found", delimiter)

		out[key] = strings.Join(valueLines, "\n")
		i++ // skip the closing delimiter line
	}

	return out
}

func TestWrite_NoGithubOutputIsNoop(t *testing.T) {
	t.Setenv("GITHUB_OUTPUT", "")

	err := Write("deployment-id", "1001")
	require.NoError(t, err)
}

func TestWrite_SimpleValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	t.Setenv("GITHUB_OUTPUT", path)

	require.NoError(t, Write("deployment-id", "1001"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	got := parseOutput(t, string(content))
	assert.Equal(t, "1001", got["deployment-id"])
}

func TestWrite_MultilineValueRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	t.Setenv("GITHUB_OUTPUT", path)

	value := "{\n  \"id\": 1001,\n  \"component\": \"api\"\n}"

	require.NoError(t, Write("active-outliers", value))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	got := parseOutput(t, string(content))
	assert.Equal(t, value, got["active-outliers"])
}

func TestWrite_AppendsMultipleKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	t.Setenv("GITHUB_OUTPUT", path)

	require.NoError(t, Write("deployment-id", "1001"))
	require.NoError(t, Write("active-outliers", "[]"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	got := parseOutput(t, string(content))
	assert.Equal(t, "1001", got["deployment-id"])
	assert.Equal(t, "[]", got["active-outliers"])
}

func TestWrite_UsesDistinctDelimitersPerCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	t.Setenv("GITHUB_OUTPUT", path)

	require.NoError(t, Write("a", "x"))
	require.NoError(t, Write("b", "y"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Len(t, lines, 6)

	firstDelim := strings.SplitN(lines[0], "<<", 2)[1]
	secondDelim := strings.SplitN(lines[3], "<<", 2)[1]
	assert.NotEqual(t, firstDelim, secondDelim)
}
