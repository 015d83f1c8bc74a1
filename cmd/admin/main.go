// Package main implements the dispatch-admin operator CLI, which runs
// AdminService operations directly against the database: listing
// tasks, aggregate statistics, and retention cleanup.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jparker/dispatch-api/internal/config"
	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/platform/postgres"
	"github.com/jparker/dispatch-api/internal/service"
	"github.com/jparker/dispatch-api/internal/task"
)

const usage = `Usage: dispatch-admin <command> [flags]

Commands:
  list-tasks       List tasks, optionally filtered by status and type
  task-stats       Show aggregate task counts and average completion time
  clear-completed  Delete old completed tasks

Run "dispatch-admin <command> -h" for per-command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	switch command {
	case "list-tasks":
		return runListTasks(args)
	case "task-stats":
		return runTaskStats(args)
	case "clear-completed":
		return runClearCompleted(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// newAdminService loads configuration, connects to the database, and
// builds an AdminService. The returned cleanup closes the connection.
func newAdminService() (*service.AdminService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// CLI runs are short-lived and interactive; keep log noise down.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adminService, err := service.NewAdminService(postgres.NewPostgresTaskStore(db), nil, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create admin service: %w", err)
	}

	return adminService, func() { _ = db.Close() }, nil
}

func runListTasks(args []string) error {
	fs := flag.NewFlagSet("list-tasks", flag.ExitOnError)
	status := fs.String("status", "", "filter by status (pending|running|completed|failed|cancelled)")
	taskType := fs.String("task-type", "", "filter by task type")
	limit := fs.Int("limit", 50, "maximum number of tasks to print")
	verbose := fs.Bool("verbose", false, "include payloads and untruncated errors")
	asJSON := fs.Bool("json", false, "print full task records as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := task.TaskFilter{
		TaskType: *taskType,
		Limit:    *limit,
	}
	if *status != "" {
		parsed, err := domain.ParseTaskStatus(*status)
		if err != nil {
			return err
		}
		filter.Status = &parsed
	}

	adminService, cleanup, err := newAdminService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tasks, err := adminService.ListTasks(ctx, filter)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(tasks)
	}

	if err := printTaskTable(os.Stdout, tasks, *verbose); err != nil {
		return err
	}
	fmt.Printf("\n%d task(s)\n", len(tasks))
	return nil
}

// printTaskTable renders tasks as an aligned table. Verbose output adds
// a payload column and leaves last errors untruncated.
func printTaskTable(out io.Writer, tasks []*domain.Task, verbose bool) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	header := "ID\tTYPE\tSTATUS\tPRIORITY\tATTEMPTS\tNEXT RUN\tLAST ERROR"
	if verbose {
		header += "\tPAYLOAD"
	}
	fmt.Fprintln(w, header)
	for _, t := range tasks {
		lastError := t.LastError
		if !verbose {
			lastError = truncate(lastError, 60)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s",
			t.ID,
			t.TaskType,
			t.Status,
			t.Priority,
			t.AttemptCount,
			t.MaxAttempts,
			t.NextRunAt.Format(time.RFC3339),
			lastError,
		)
		if verbose {
			payload, err := json.Marshal(t.Payload)
			if err != nil {
				return fmt.Errorf("failed to marshal payload for task %s: %w", t.ID, err)
			}
			fmt.Fprintf(w, "\t%s", payload)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func runTaskStats(args []string) error {
	fs := flag.NewFlagSet("task-stats", flag.ExitOnError)
	tag := fs.String("tag", "", "scope the stats to one task type")
	asJSON := fs.Bool("json", false, "print stats as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	adminService, cleanup, err := newAdminService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := adminService.TaskStats(ctx, *tag)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(stats)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, status := range []domain.TaskStatus{
		domain.TaskStatusPending,
		domain.TaskStatusRunning,
		domain.TaskStatusCompleted,
		domain.TaskStatusFailed,
		domain.TaskStatusCancelled,
	} {
		fmt.Fprintf(w, "%s\t%d\n", status, stats.CountsByStatus[status])
	}
	fmt.Fprintf(w, "total\t%d\n", stats.TotalCount())
	if err := w.Flush(); err != nil {
		return err
	}

	if stats.AvgCompletion != nil {
		fmt.Printf("\nAverage completion time: %s\n", stats.AvgCompletion.Round(time.Millisecond))
	} else {
		fmt.Println("\nAverage completion time: n/a (no completed tasks)")
	}
	return nil
}

func runClearCompleted(args []string) error {
	fs := flag.NewFlagSet("clear-completed", flag.ExitOnError)
	olderThanDays := fs.Int("older-than-days", 7, "delete completed tasks older than this many days")
	dryRun := fs.Bool("dry-run", false, "report eligible tasks without deleting them")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	adminService, cleanup, err := newAdminService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := adminService.ClearCompleted(ctx, *olderThanDays, *dryRun)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(result)
	}

	if result.DryRun {
		fmt.Printf("Dry run: %d completed task(s) older than %s would be deleted\n",
			result.Count, result.Cutoff.Format(time.RFC3339))
		for _, id := range result.TaskIDs {
			fmt.Println(id)
		}
		return nil
	}

	fmt.Printf("Deleted %d completed task(s) older than %s\n",
		result.Count, result.Cutoff.Format(time.RFC3339))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
