package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/testing/memstore"
)

func newPeriodsCLI(t *testing.T) *PeriodsCLI {
	t.Helper()
	store := memstore.New()
	svc := periods.NewService(store.Periods(), store, nil, nil, nil)
	c, err := NewPeriodsCLI(svc)
	require.NoError(t, err)
	return c
}

func run(c *PeriodsCLI, args ...string) (int, string, string) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.Run(context.Background(), args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func TestCreateYearJSON(t *testing.T) {
	c := newPeriodsCLI(t)
	code, out, errOut := run(c, "create-year", "--start", "2026-01-01", "--user", "1", "--json")
	require.Zero(t, code, errOut)

	var year YearSummary
	require.NoError(t, json.Unmarshal([]byte(out), &year))
	require.Equal(t, "FY2026", year.Code)
	require.Len(t, year.Periods, 12)
	require.Equal(t, "2026-03", year.Periods[2].Code)
	require.Equal(t, "OPEN", year.Periods[2].Status)
}

func TestCloseReopenForLocation(t *testing.T) {
	c := newPeriodsCLI(t)
	code, out, _ := run(c, "create-year", "--start", "2026-01-01", "--user", "1", "--json")
	require.Zero(t, code)
	var year YearSummary
	require.NoError(t, json.Unmarshal([]byte(out), &year))
	march := year.Periods[2].ID

	code, out, errOut := run(c, "close", "--period", itoa(march), "--user", "2", "--location", "7", "--json")
	require.Zero(t, code, errOut)
	var snap PeriodSummary
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Equal(t, "CLOSED", snap.Status)
	require.NotNil(t, snap.LocationID)
	require.Equal(t, int64(7), *snap.LocationID)

	code, _, errOut = run(c, "reopen", "--period", itoa(march), "--user", "2", "--location", "7")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "reason")

	code, out, errOut = run(c, "reopen", "--period", itoa(march), "--user", "2", "--location", "7", "--reason", "late invoice")
	require.Zero(t, code, errOut)
	require.Contains(t, out, "OPEN")
	require.Contains(t, out, "location 7")
}

func TestLockRejectsLocation(t *testing.T) {
	c := newPeriodsCLI(t)
	code, _, errOut := run(c, "lock", "--period", "1", "--user", "1", "--location", "3")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "every location")
}

func TestPeriodsUsageErrors(t *testing.T) {
	c := newPeriodsCLI(t)

	code, _, errOut := run(c)
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "usage")

	code, _, errOut = run(c, "create-year", "--start", "2026/01/01", "--user", "1")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "expected YYYY-MM-DD")

	code, _, _ = run(c, "close", "--user", "1")
	require.Equal(t, 2, code)

	code, _, errOut = run(c, "purge")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "unknown command")
}

func TestNewPeriodsCLIRequiresService(t *testing.T) {
	_, err := NewPeriodsCLI(nil)
	require.Error(t, err)
}

func TestNewJobsCLIRequiresAddress(t *testing.T) {
	_, err := NewJobsCLI(asynq.RedisClientOpt{})
	require.Error(t, err)
}

func TestJobsTriggerRejectsUnknownTask(t *testing.T) {
	c, err := NewJobsCLI(asynq.RedisClientOpt{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	require.Equal(t, 1, c.Run(context.Background(), []string{"trigger", "mail:send"}, stdout, stderr))
	require.Contains(t, stderr.String(), "unsupported job")

	require.Equal(t, 2, c.Run(context.Background(), []string{"trigger"}, stdout, stderr))
	require.Equal(t, 2, c.Run(context.Background(), nil, stdout, stderr))
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
