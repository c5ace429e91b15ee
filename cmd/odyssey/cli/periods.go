package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/periods"
)

// PeriodAdmin is the fiscal calendar surface used by the periods command.
type PeriodAdmin interface {
	CreateFiscalYear(ctx context.Context, startDate time.Time, userID int64) (periods.FiscalYear, error)
	ListPeriods(ctx context.Context, fiscalYearID int64) ([]periods.Period, error)
	ClosePeriod(ctx context.Context, periodID, userID int64, locationID *int64) (periods.Snapshot, error)
	ReopenPeriod(ctx context.Context, periodID, userID int64, reason string, locationID *int64) (periods.Snapshot, error)
	LockPeriod(ctx context.Context, periodID, userID int64) (periods.Snapshot, error)
	CloseFiscalYear(ctx context.Context, id, userID int64) (periods.FiscalYear, error)
}

// PeriodsCLI offers operational helpers to manage the fiscal calendar.
type PeriodsCLI struct {
	admin PeriodAdmin
}

// NewPeriodsCLI constructs a new helper instance.
func NewPeriodsCLI(admin PeriodAdmin) (*PeriodsCLI, error) {
	if admin == nil {
		return nil, errors.New("periods cli: calendar service required")
	}
	return &PeriodsCLI{admin: admin}, nil
}

// PeriodSummary is the JSON shape of one period.
type PeriodSummary struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Status     string `json:"status"`
	LocationID *int64 `json:"location_id,omitempty"`
}

// YearSummary is the JSON shape of a fiscal year.
type YearSummary struct {
	ID      int64           `json:"id"`
	Code    string          `json:"code"`
	Status  string          `json:"status"`
	Periods []PeriodSummary `json:"periods,omitempty"`
}

const periodsUsage = `usage: odyssey periods <command> [flags]

commands:
  create-year --start YYYY-MM-DD --user ID
  list        --year ID
  close       --period ID --user ID [--location ID]
  reopen      --period ID --user ID --reason TEXT [--location ID]
  lock        --period ID --user ID
  close-year  --year ID --user ID

every command accepts --json`

// Run parses args and executes one periods command, returning the exit code.
func (c *PeriodsCLI) Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, periodsUsage)
		return 2
	}
	command := args[0]
	fs := flag.NewFlagSet("periods "+command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	start := fs.String("start", "", "fiscal year start date (YYYY-MM-DD)")
	yearID := fs.Int64("year", 0, "fiscal year id")
	periodID := fs.Int64("period", 0, "period id")
	userID := fs.Int64("user", 0, "acting user id")
	location := fs.Int64("location", 0, "location id for a per-location override")
	reason := fs.String("reason", "", "reopen reason")
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	var locationID *int64
	if *location > 0 {
		locationID = location
	}

	var (
		out any
		err error
	)
	switch command {
	case "create-year":
		var startDate time.Time
		startDate, err = time.Parse("2006-01-02", strings.TrimSpace(*start))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "periods create-year: invalid --start %q (expected YYYY-MM-DD)\n", *start)
			return 2
		}
		if *userID <= 0 {
			return usageError(stderr, command, "--user is required")
		}
		var year periods.FiscalYear
		year, err = c.admin.CreateFiscalYear(ctx, startDate, *userID)
		out = summariseYear(year, year.Periods)
	case "list":
		if *yearID <= 0 {
			return usageError(stderr, command, "--year is required")
		}
		var list []periods.Period
		list, err = c.admin.ListPeriods(ctx, *yearID)
		rows := make([]PeriodSummary, 0, len(list))
		for _, p := range list {
			rows = append(rows, summarisePeriod(p, p.Status, nil))
		}
		out = rows
	case "close", "reopen", "lock":
		if *periodID <= 0 || *userID <= 0 {
			return usageError(stderr, command, "--period and --user are required")
		}
		var snap periods.Snapshot
		switch command {
		case "close":
			snap, err = c.admin.ClosePeriod(ctx, *periodID, *userID, locationID)
		case "reopen":
			snap, err = c.admin.ReopenPeriod(ctx, *periodID, *userID, *reason, locationID)
		default:
			if locationID != nil {
				return usageError(stderr, command, "lock applies to every location; drop --location")
			}
			snap, err = c.admin.LockPeriod(ctx, *periodID, *userID)
		}
		out = summarisePeriod(snap.Period, snap.Effective, locationID)
	case "close-year":
		if *yearID <= 0 || *userID <= 0 {
			return usageError(stderr, command, "--year and --user are required")
		}
		var year periods.FiscalYear
		year, err = c.admin.CloseFiscalYear(ctx, *yearID, *userID)
		out = summariseYear(year, nil)
	default:
		_, _ = fmt.Fprintf(stderr, "periods: unknown command %q\n%s\n", command, periodsUsage)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "periods %s: %v\n", command, err)
		return 1
	}
	if *jsonOut {
		if err := json.NewEncoder(stdout).Encode(out); err != nil {
			_, _ = fmt.Fprintf(stderr, "periods %s: encode json: %v\n", command, err)
			return 1
		}
		return 0
	}
	renderHuman(stdout, out)
	return 0
}

func usageError(stderr io.Writer, command, msg string) int {
	_, _ = fmt.Fprintf(stderr, "periods %s: %s\n", command, msg)
	return 2
}

func summarisePeriod(p periods.Period, status periods.PeriodStatus, locationID *int64) PeriodSummary {
	return PeriodSummary{
		ID:         p.ID,
		Code:       p.Code,
		StartDate:  p.StartDate.Format("2006-01-02"),
		EndDate:    p.EndDate.Format("2006-01-02"),
		Status:     string(status),
		LocationID: locationID,
	}
}

func summariseYear(year periods.FiscalYear, list []periods.Period) YearSummary {
	out := YearSummary{ID: year.ID, Code: year.Code, Status: string(year.Status)}
	for _, p := range list {
		out.Periods = append(out.Periods, summarisePeriod(p, p.Status, nil))
	}
	return out
}

func renderHuman(w io.Writer, out any) {
	switch v := out.(type) {
	case PeriodSummary:
		renderPeriod(w, v)
	case []PeriodSummary:
		for _, p := range v {
			renderPeriod(w, p)
		}
	case YearSummary:
		_, _ = fmt.Fprintf(w, "fiscal year %s (id %d) %s\n", v.Code, v.ID, v.Status)
		for _, p := range v.Periods {
			renderPeriod(w, p)
		}
	}
}

func renderPeriod(w io.Writer, p PeriodSummary) {
	scope := "all locations"
	if p.LocationID != nil {
		scope = fmt.Sprintf("location %d", *p.LocationID)
	}
	_, _ = fmt.Fprintf(w, "%-8s id=%-4d %s..%s %-6s %s\n", p.Code, p.ID, p.StartDate, p.EndDate, p.Status, scope)
}
