package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsidx.io/statsidx/internal/domain"
	"statsidx.io/statsidx/internal/indexer"
	"statsidx.io/statsidx/internal/service"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "sqlite:\n  path: " + filepath.Join(dir, "cli.db") + "\n" +
		"scheduler:\n  driver: none\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// run executes one statsctl invocation and returns stdout.
func run(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := run(t, cfgPath, "", args...)
	require.NoError(t, err, out)
	return out
}

func TestCLI_SamplesReindexAndRead(t *testing.T) {
	cfg := writeConfig(t, "")

	out := mustRun(t, cfg, "generate-data", "--samples")
	assert.Contains(t, out, "Inserted 3 sample products")

	var res service.ReindexResult
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "reindex")), &res))
	assert.Equal(t, "full", res.Kind)
	assert.Equal(t, 3, res.Rows)

	var row domain.IndexRow
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "get", "1")), &row))
	assert.Equal(t, domain.TierHigh, row.Tier)
	assert.Equal(t, int64(1500), row.Counters.ViewCount)
	assert.Equal(t, "20", row.ConversionRate.String())

	var top []domain.IndexRow
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "top", "--tier", "medium")), &top))
	require.Len(t, top, 1)
	assert.Equal(t, int64(2), top[0].NaturalID)

	var report statsReport
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "show-stats")), &report))
	assert.Equal(t, int64(3), report.SourceCount)
	assert.Equal(t, int64(3), report.IndexCount)
	assert.Len(t, report.Summary, 3)

	table := mustRun(t, cfg, "top-converters")
	assert.Contains(t, table, "Product ID")
	assert.Contains(t, table, "$15000.00")
}

func TestCLI_ScheduledModeAndDrain(t *testing.T) {
	cfg := writeConfig(t, "")
	mustRun(t, cfg, "generate-data", "--samples")
	mustRun(t, cfg, "reindex")

	assert.Contains(t, mustRun(t, cfg, "set-mode", "scheduled"), "mode set to scheduled")
	mustRun(t, cfg, "increment", "3", "--views", "100")

	var row domain.IndexRow
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "get", "3")), &row))
	assert.Equal(t, int64(50), row.Counters.ViewCount, "scheduled mode defers the index refresh")

	var reports []domain.IndexStatusReport
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "status")), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, domain.ModeScheduled, reports[0].Mode)
	assert.Equal(t, domain.HealthStale, reports[0].Health)
	assert.Equal(t, int64(1), reports[0].PendingCount)

	var drained indexer.DrainResult
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "drain")), &drained))
	assert.Equal(t, 1, drained.Reindexed)

	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "get", "3")), &row))
	assert.Equal(t, int64(150), row.Counters.ViewCount)
	assert.Equal(t, domain.TierMedium, row.Tier)
}

func TestCLI_DemoImmediate(t *testing.T) {
	cfg := writeConfig(t, "")
	mustRun(t, cfg, "generate-data", "--samples")
	mustRun(t, cfg, "reindex")

	out := mustRun(t, cfg, "demo")
	assert.Contains(t, out, "Batch updated 3 of 3 products")
	assert.Contains(t, out, "statsctl demo --id 1 --views 100")

	out = mustRun(t, cfg, "demo", "--id", "2", "--revenue", "99.50")
	assert.Contains(t, out, "Recorded purchase of $99.50 for product 2 (51 purchases)")

	var row domain.IndexRow
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "get", "2")), &row))
	assert.Equal(t, int64(520), row.Counters.ViewCount)
	assert.Equal(t, int64(51), row.Counters.PurchaseCount)
}

func TestCLI_GenerateAndPartialReindex(t *testing.T) {
	cfg := writeConfig(t, "")

	out := mustRun(t, cfg, "generate-data", "250")
	assert.Contains(t, out, "inserted 250/250")
	assert.Contains(t, out, "Generated 250 products")

	var res service.ReindexResult
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "reindex", "--ids", "1001,1002")), &res))
	assert.Equal(t, "list", res.Kind)
	assert.Equal(t, 2, res.Requested)

	var reports []domain.IndexStatusReport
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "status")), &reports))
	assert.Equal(t, int64(250), reports[0].SourceCount)
	assert.Equal(t, int64(2), reports[0].IndexCount)

	_, err := run(t, cfg, "", "generate-data", "zero")
	assert.Error(t, err)
}

func TestCLI_ClearData(t *testing.T) {
	cfg := writeConfig(t, "")
	mustRun(t, cfg, "generate-data", "--samples")

	out, err := run(t, cfg, "n\n", "clear-data")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	out, err = run(t, cfg, "yes\n", "clear-data")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	var reports []domain.IndexStatusReport
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "status")), &reports))
	assert.Zero(t, reports[0].SourceCount)
	assert.Equal(t, domain.HealthNeverBuilt, reports[0].Health)
}

func TestCLI_Errors(t *testing.T) {
	cfg := writeConfig(t, "")

	_, err := run(t, cfg, "", "-o", "xml", "status")
	assert.ErrorContains(t, err, "invalid --output")

	_, err = run(t, cfg, "", "--index", "missing", "drain")
	assert.Error(t, err)

	_, err = run(t, cfg, "", "set-mode", "hourly")
	assert.Error(t, err)

	_, err = run(t, cfg, "", "increment", "1")
	assert.ErrorIs(t, err, domain.ErrEmptyDelta)

	_, err = run(t, cfg, "", "top", "--tier", "viral")
	assert.Error(t, err)
}

func TestCLI_AdminToken(t *testing.T) {
	_, err := run(t, writeConfig(t, ""), "", "admin-token")
	assert.ErrorContains(t, err, "admin_jwt_key")

	cfg := writeConfig(t, "security:\n  admin_jwt_key: cli-test-key\n")
	var tok tokenResponse
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, cfg, "-o", "json", "admin-token", "--subject", "ops")), &tok))
	assert.Equal(t, "ops", tok.Subject)
	assert.Equal(t, 3, strings.Count(tok.Token, ".")+1)
	assert.False(t, tok.ExpiresAt.IsZero())
}
