// Command batchadmin inspects and repairs batch jobs directly against the
// database. It bypasses owner scoping; keep it off user-facing machines.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
	"github.com/Simplereally/bloomstudio-sub005/internal/sqlinline"
)

func main() {
	var (
		idFlag     string
		actionFlag string
	)

	flag.StringVar(&idFlag, "id", "", "batch job ID (UUID)")
	flag.StringVar(&actionFlag, "action", "show", "action: show, cancel, requeue")
	flag.Parse()

	_ = godotenv.Load()

	jobID := strings.TrimSpace(idFlag)
	if jobID == "" {
		exitWithError(errors.New("-id is required"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "batchadmin")
	runner := infra.NewSQLRunner(pool, logger)

	switch strings.ToLower(actionFlag) {
	case "show":
		err = show(ctx, runner, jobID)
	case "cancel":
		err = cancelBatch(ctx, runner, jobID)
	case "requeue":
		err = requeue(ctx, runner, jobID)
	default:
		err = fmt.Errorf("unsupported action %q", actionFlag)
	}
	if err != nil {
		exitWithError(err)
	}
}

func show(ctx context.Context, runner *infra.SQLRunner, jobID string) error {
	row := runner.QueryRow(ctx, sqlinline.QGetBatch, jobID)
	var (
		id, ownerID, status, errorMessage          string
		total, completed, failed, current, attempt int
		params                                     []byte
		nextRunAt, createdAt, updatedAt            time.Time
		artifactIDs                                []string
	)
	if err := row.Scan(&id, &ownerID, &status, &total, &completed, &failed,
		&current, &attempt, &params, &errorMessage, &nextRunAt, &createdAt,
		&updatedAt, &artifactIDs); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("batch %s not found", jobID)
		}
		return fmt.Errorf("failed to load batch: %w", err)
	}

	fmt.Printf("id=%s owner=%s status=%s\n", id, ownerID, status)
	fmt.Printf("progress: %d/%d completed, %d failed, index=%d attempt=%d\n",
		completed, total, failed, current, attempt)
	fmt.Printf("next_run_at=%s created_at=%s updated_at=%s\n",
		nextRunAt.Format(time.RFC3339), createdAt.Format(time.RFC3339), updatedAt.Format(time.RFC3339))
	if errorMessage != "" {
		fmt.Printf("last_error=%s\n", errorMessage)
	}
	fmt.Printf("artifacts=%d\n", len(artifactIDs))

	var pretty map[string]any
	if err := json.Unmarshal(params, &pretty); err == nil {
		if encoded, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			fmt.Printf("params:\n%s\n", encoded)
		}
	}
	return nil
}

func cancelBatch(ctx context.Context, runner *infra.SQLRunner, jobID string) error {
	row := runner.QueryRow(ctx, sqlinline.QAdminCancelBatch, jobID)
	var id, status string
	if err := row.Scan(&id, &status); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("batch %s is not cancellable (missing or already terminal)", jobID)
		}
		return fmt.Errorf("failed to cancel batch: %w", err)
	}
	fmt.Printf("batch %s cancelled\n", id)
	return nil
}

func requeue(ctx context.Context, runner *infra.SQLRunner, jobID string) error {
	row := runner.QueryRow(ctx, sqlinline.QAdminRequeueBatch, jobID)
	var (
		id, status string
		nextRunAt  time.Time
	)
	if err := row.Scan(&id, &status, &nextRunAt); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("batch %s is not requeueable (missing, paused, or terminal)", jobID)
		}
		return fmt.Errorf("failed to requeue batch: %w", err)
	}
	fmt.Printf("batch %s requeued (status=%s, next_run_at=%s)\n", id, status, nextRunAt.Format(time.RFC3339))
	return nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
