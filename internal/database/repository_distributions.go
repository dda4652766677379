package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fund-admin-backend/internal/waterfall"
)

// CreateDistribution inserts a new Draft distribution and fills in its
// generated id and timestamps.
func (r *Repository) CreateDistribution(ctx context.Context, d *waterfall.Distribution) error {
	query := `
		INSERT INTO distributions (id, structure_id, total_amount, status, waterfall_applied)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING created_at, updated_at`

	if d.Status == "" {
		d.Status = waterfall.StatusDraft
	}
	d.ID = uuid.NewString()
	err := r.db.Pool.QueryRow(ctx, query, d.ID, d.StructureID, d.TotalAmount, string(d.Status)).
		Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create distribution: %w", err)
	}
	return nil
}

// GetDistribution returns a distribution by id.
func (r *Repository) GetDistribution(ctx context.Context, id string) (*waterfall.Distribution, error) {
	query := `
		SELECT id, structure_id, total_amount, status, waterfall_applied, created_at, updated_at
		FROM distributions WHERE id = $1`

	var (
		d      waterfall.Distribution
		status string
	)
	err := r.db.Pool.QueryRow(ctx, query, id).
		Scan(&d.ID, &d.StructureID, &d.TotalAmount, &status, &d.WaterfallApplied, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &waterfall.NotFoundError{Resource: "distribution", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution: %w", err)
	}
	d.Status = waterfall.DistributionStatus(status)
	return &d, nil
}

// SaveDistribution updates the status and waterfall_applied flag of an
// existing distribution. The waterfall_applied flag can only move from
// false to true; the commit path owns that transition.
func (r *Repository) SaveDistribution(ctx context.Context, d *waterfall.Distribution) error {
	query := `
		UPDATE distributions
		SET status = $2, waterfall_applied = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, d.ID, string(d.Status), d.WaterfallApplied)
	if err != nil {
		return fmt.Errorf("failed to save distribution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &waterfall.NotFoundError{Resource: "distribution", ID: d.ID}
	}
	return nil
}

// ListDistributions returns the distributions of a structure, newest first.
func (r *Repository) ListDistributions(ctx context.Context, structureID string) ([]waterfall.Distribution, error) {
	query := `
		SELECT id, structure_id, total_amount, status, waterfall_applied, created_at, updated_at
		FROM distributions
		WHERE structure_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, structureID)
	if err != nil {
		return nil, fmt.Errorf("failed to query distributions: %w", err)
	}
	defer rows.Close()

	var out []waterfall.Distribution
	for rows.Next() {
		var (
			d      waterfall.Distribution
			status string
		)
		if err := rows.Scan(&d.ID, &d.StructureID, &d.TotalAmount, &status,
			&d.WaterfallApplied, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		d.Status = waterfall.DistributionStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListAllocations returns the committed allocation lines of a distribution.
func (r *Repository) ListAllocations(ctx context.Context, distributionID string) ([]waterfall.AllocationLine, error) {
	query := `
		SELECT distribution_id, tier_number, investor_id, amount, is_gp
		FROM distribution_allocations
		WHERE distribution_id = $1
		ORDER BY tier_number, investor_id`

	rows, err := r.db.Pool.Query(ctx, query, distributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var out []waterfall.AllocationLine
	for rows.Next() {
		var line waterfall.AllocationLine
		if err := rows.Scan(&line.DistributionID, &line.TierNumber,
			&line.InvestorID, &line.Amount, &line.IsGP); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// ListByDistribution implements waterfall.AllocationRepository.
func (r *Repository) ListByDistribution(ctx context.Context, distributionID string) ([]waterfall.AllocationLine, error) {
	return r.ListAllocations(ctx, distributionID)
}

// DistributionStore adapts the repository to the engine's distribution
// contract without exposing the wider repository surface.
type DistributionStore struct {
	repo *Repository
}

// NewDistributionStore creates a distribution store over the repository.
func NewDistributionStore(repo *Repository) *DistributionStore {
	return &DistributionStore{repo: repo}
}

// Get implements waterfall.DistributionRepository.
func (s *DistributionStore) Get(ctx context.Context, id string) (*waterfall.Distribution, error) {
	return s.repo.GetDistribution(ctx, id)
}

// Save implements waterfall.DistributionRepository.
func (s *DistributionStore) Save(ctx context.Context, d *waterfall.Distribution) error {
	return s.repo.SaveDistribution(ctx, d)
}

// WaterfallCommitter persists a computed waterfall run as one transaction.
// The structure row is locked first, serializing commits per structure, then
// the distribution row is re-read FOR UPDATE and compare-and-set on
// waterfall_applied. Each tier-state row is re-read under the same locks and
// compared against the Prior snapshot the run was computed from; a mismatch
// means another distribution of the structure committed in between, and the
// whole run is rejected with *ConflictError so the caller recomputes against
// fresh state. A timed-out or failed transaction leaves every table
// untouched.
type WaterfallCommitter struct {
	db *DB
}

// NewWaterfallCommitter creates a committer over the database.
func NewWaterfallCommitter(db *DB) *WaterfallCommitter {
	return &WaterfallCommitter{db: db}
}

// CommitWaterfall implements waterfall.Committer.
func (c *WaterfallCommitter) CommitWaterfall(ctx context.Context, commit *waterfall.CommitSet) error {
	tx, err := c.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the structure row so concurrent commits over the same structure
	// queue up here instead of racing on the tier-state upserts below.
	var structureID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM structures WHERE id = $1 FOR UPDATE`,
		commit.Distribution.StructureID,
	).Scan(&structureID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &waterfall.NotFoundError{Resource: "structure", ID: commit.Distribution.StructureID}
	}
	if err != nil {
		return fmt.Errorf("failed to lock structure: %w", err)
	}

	// Compare-and-set guard: lock the row, then flip waterfall_applied only
	// if it is still false and the status is still Draft. A concurrent
	// writer that got here first makes this update match zero rows.
	var (
		applied bool
		status  string
	)
	err = tx.QueryRow(ctx,
		`SELECT waterfall_applied, status FROM distributions WHERE id = $1 FOR UPDATE`,
		commit.Distribution.ID,
	).Scan(&applied, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return &waterfall.NotFoundError{Resource: "distribution", ID: commit.Distribution.ID}
	}
	if err != nil {
		return fmt.Errorf("failed to lock distribution: %w", err)
	}
	if applied || waterfall.DistributionStatus(status) != waterfall.StatusDraft {
		return &waterfall.ConflictError{
			DistributionID: commit.Distribution.ID,
			Reason:         "waterfall already applied",
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE distributions SET status = $2, waterfall_applied = TRUE, updated_at = NOW() WHERE id = $1`,
		commit.Distribution.ID, string(commit.Distribution.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update distribution: %w", err)
	}

	for _, inc := range commit.Increments {
		// The run was computed against a snapshot of cumulative state; if
		// the stored amount moved since, applying this increment would let
		// a capped tier exceed its threshold.
		var current int64
		err = tx.QueryRow(ctx,
			`SELECT amount_allocated FROM tier_cumulative_state
			 WHERE structure_id = $1 AND tier_number = $2 FOR UPDATE`,
			inc.StructureID, inc.TierNumber,
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			current = 0
		} else if err != nil {
			return fmt.Errorf("failed to lock tier state: %w", err)
		}
		if current != inc.Prior {
			return &waterfall.ConflictError{
				DistributionID: commit.Distribution.ID,
				Reason: fmt.Sprintf("tier %d cumulative state changed since computation (had %d, found %d)",
					inc.TierNumber, inc.Prior, current),
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO tier_cumulative_state (structure_id, tier_number, amount_allocated)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (structure_id, tier_number)
			 DO UPDATE SET amount_allocated = tier_cumulative_state.amount_allocated + EXCLUDED.amount_allocated,
			               updated_at = NOW()`,
			inc.StructureID, inc.TierNumber, inc.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to increment tier state: %w", err)
		}
	}

	for _, line := range commit.Allocations {
		_, err = tx.Exec(ctx,
			`INSERT INTO distribution_allocations (distribution_id, tier_number, investor_id, amount, is_gp)
			 VALUES ($1, $2, $3, $4, $5)`,
			line.DistributionID, line.TierNumber, line.InvestorID, line.Amount, line.IsGP,
		)
		if err != nil {
			return fmt.Errorf("failed to insert allocation line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit waterfall: %w", err)
	}
	return nil
}
