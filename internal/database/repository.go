package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fund-admin-backend/internal/waterfall"
)

// Repository provides data access methods over the connection pool. It
// implements the repository contracts consumed by the waterfall engine;
// pgx.ErrNoRows is mapped to *waterfall.NotFoundError at this edge.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// --- STRUCTURES ---

// CreateStructure inserts a new structure and fills in its generated id.
func (r *Repository) CreateStructure(ctx context.Context, s *Structure) error {
	query := `
		INSERT INTO structures (id, name, currency)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	s.ID = uuid.NewString()
	err := r.db.Pool.QueryRow(ctx, query, s.ID, s.Name, s.Currency).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create structure: %w", err)
	}
	return nil
}

// GetStructure returns a structure by id.
func (r *Repository) GetStructure(ctx context.Context, id string) (*Structure, error) {
	query := `SELECT id, name, currency, created_at, updated_at FROM structures WHERE id = $1`

	var s Structure
	err := r.db.Pool.QueryRow(ctx, query, id).
		Scan(&s.ID, &s.Name, &s.Currency, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &waterfall.NotFoundError{Resource: "structure", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get structure: %w", err)
	}
	return &s, nil
}

// --- TIERS ---

// CreateTier inserts one waterfall tier for a structure.
func (r *Repository) CreateTier(ctx context.Context, t *waterfall.Tier) error {
	query := `
		INSERT INTO waterfall_tiers
			(structure_id, tier_number, tier_type, lp_share_percent, gp_share_percent, threshold_amount, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Pool.Exec(ctx, query,
		t.StructureID, t.TierNumber, string(t.TierType),
		t.LPSharePercent.String(), t.GPSharePercent.String(),
		t.ThresholdAmount, t.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create tier: %w", err)
	}
	return nil
}

// GetTiers returns all tiers of a structure, active or not, in tier-number
// order. Tier set validation happens in the engine, not here.
func (r *Repository) GetTiers(ctx context.Context, structureID string) ([]waterfall.Tier, error) {
	query := `
		SELECT structure_id, tier_number, tier_type,
		       lp_share_percent::text, gp_share_percent::text,
		       threshold_amount, is_active
		FROM waterfall_tiers
		WHERE structure_id = $1
		ORDER BY tier_number`

	rows, err := r.db.Pool.Query(ctx, query, structureID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	defer rows.Close()

	var tiers []waterfall.Tier
	for rows.Next() {
		var (
			t        waterfall.Tier
			tierType string
			lpText   string
			gpText   string
		)
		if err := rows.Scan(&t.StructureID, &t.TierNumber, &tierType,
			&lpText, &gpText, &t.ThresholdAmount, &t.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		t.TierType = waterfall.TierType(tierType)
		if t.LPSharePercent, err = decimal.NewFromString(lpText); err != nil {
			return nil, fmt.Errorf("invalid lp_share_percent %q: %w", lpText, err)
		}
		if t.GPSharePercent, err = decimal.NewFromString(gpText); err != nil {
			return nil, fmt.Errorf("invalid gp_share_percent %q: %w", gpText, err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tiers: %w", err)
	}
	if len(tiers) == 0 {
		return nil, &waterfall.NotFoundError{Resource: "tiers for structure", ID: structureID}
	}
	return tiers, nil
}

// --- INVESTOR POSITIONS ---

// CreateInvestorPosition inserts one investor position for a structure.
func (r *Repository) CreateInvestorPosition(ctx context.Context, structureID, investorID string, weight decimal.Decimal) error {
	query := `
		INSERT INTO investor_positions (structure_id, investor_id, weight)
		VALUES ($1, $2, $3)`

	_, err := r.db.Pool.Exec(ctx, query, structureID, investorID, weight.String())
	if err != nil {
		return fmt.Errorf("failed to create investor position: %w", err)
	}
	return nil
}

// GetInvestorWeights returns the active investor weights of a structure in
// investor-id order.
func (r *Repository) GetInvestorWeights(ctx context.Context, structureID string) ([]waterfall.InvestorWeight, error) {
	query := `
		SELECT investor_id, weight::text
		FROM investor_positions
		WHERE structure_id = $1 AND is_active = TRUE
		ORDER BY investor_id`

	rows, err := r.db.Pool.Query(ctx, query, structureID)
	if err != nil {
		return nil, fmt.Errorf("failed to query investor positions: %w", err)
	}
	defer rows.Close()

	var weights []waterfall.InvestorWeight
	for rows.Next() {
		var (
			w          waterfall.InvestorWeight
			weightText string
		)
		if err := rows.Scan(&w.InvestorID, &weightText); err != nil {
			return nil, fmt.Errorf("failed to scan investor position: %w", err)
		}
		if w.Weight, err = decimal.NewFromString(weightText); err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", weightText, err)
		}
		weights = append(weights, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read investor positions: %w", err)
	}
	return weights, nil
}

// --- TIER CUMULATIVE STATE ---

// GetTierState returns the amount already allocated to a tier across all
// committed distributions. Missing rows read as zero; rows are created
// lazily on first commit.
func (r *Repository) GetTierState(ctx context.Context, structureID string, tierNumber int) (int64, error) {
	query := `
		SELECT amount_allocated FROM tier_cumulative_state
		WHERE structure_id = $1 AND tier_number = $2`

	var amount int64
	err := r.db.Pool.QueryRow(ctx, query, structureID, tierNumber).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get tier state: %w", err)
	}
	return amount, nil
}

// TierStateReader adapts the repository to the engine's read-only tier state
// contract.
type TierStateReader struct {
	repo *Repository
}

// NewTierStateReader creates a tier state reader over the repository.
func NewTierStateReader(repo *Repository) *TierStateReader {
	return &TierStateReader{repo: repo}
}

// Get implements waterfall.TierStateRepository.
func (t *TierStateReader) Get(ctx context.Context, structureID string, tierNumber int) (int64, error) {
	return t.repo.GetTierState(ctx, structureID, tierNumber)
}
