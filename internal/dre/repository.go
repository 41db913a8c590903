package dre

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/platform/db"
)

// Repository reads the statement configuration from Postgres.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository over a pool or a transaction.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: dre: %s: %w", ledger.ErrUpstreamFetch, op, err)
}

// ListAccounts returns every account ordered by display order.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	const query = `
		SELECT id, nome, ordem, conta_pai_id, ativo
		FROM dre_configuracao
		ORDER BY ordem, nome, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, upstream("list accounts", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			acc        Account
			id, parent pgtype.UUID
			order      int32
		)
		if err := rows.Scan(&id, &acc.Name, &order, &parent, &acc.Active); err != nil {
			return nil, upstream("scan account", err)
		}
		acc.ID = db.UUIDValue(id)
		acc.Order = int(order)
		acc.ParentID = db.UUIDPtr(parent)
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate accounts", err)
	}
	return accounts, nil
}

// ListActivations returns the activation rows of company.
func (r *Repository) ListActivations(ctx context.Context, companyID uuid.UUID) ([]Activation, error) {
	const query = `
		SELECT conta_id, empresa_id, ativo
		FROM dre_contas_empresa
		WHERE empresa_id = $1`
	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, upstream("list activations", err)
	}
	defer rows.Close()

	var activations []Activation
	for rows.Next() {
		var (
			a                Activation
			account, company pgtype.UUID
		)
		if err := rows.Scan(&account, &company, &a.Active); err != nil {
			return nil, upstream("scan activation", err)
		}
		a.AccountID = db.UUIDValue(account)
		a.CompanyID = db.UUIDValue(company)
		activations = append(activations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate activations", err)
	}
	return activations, nil
}

// ListComponents returns the components of the given accounts in declared order.
func (r *Repository) ListComponents(ctx context.Context, accountIDs []uuid.UUID) ([]Component, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	const query = `
		SELECT id, conta_id, categoria_id, indicador_id, simbolo, ordem
		FROM dre_conta_componentes
		WHERE conta_id = ANY($1)
		ORDER BY conta_id, ordem, id`
	rows, err := r.db.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, upstream("list components", err)
	}
	defer rows.Close()

	var components []Component
	for rows.Next() {
		var (
			c                       Component
			id, account             pgtype.UUID
			categoryID, indicatorID pgtype.UUID
			sign                    string
			order                   int32
		)
		if err := rows.Scan(&id, &account, &categoryID, &indicatorID, &sign, &order); err != nil {
			return nil, upstream("scan component", err)
		}
		ref, err := ledger.RefFromColumns(db.UUIDPtr(categoryID), db.UUIDPtr(indicatorID), nil)
		if err != nil {
			return nil, upstream("map component", err)
		}
		if c.Sign, err = ParseSign(sign); err != nil {
			return nil, upstream("map component", err)
		}
		c.ID = db.UUIDValue(id)
		c.AccountID = db.UUIDValue(account)
		c.Ref = ref
		c.Order = int(order)
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate components", err)
	}
	return components, nil
}

// Structure is the company-scoped account set with its components.
type Structure struct {
	Accounts   []Account
	Components []Component
}

// StructureStore reads the statement structure inside one read-only
// transaction so accounts, activations and components agree with each other.
type StructureStore struct {
	pool *pgxpool.Pool
}

// NewStructureStore constructs the store.
func NewStructureStore(pool *pgxpool.Pool) *StructureStore {
	return &StructureStore{pool: pool}
}

// ReadStructure returns the accounts activated for companyID and their components.
func (s *StructureStore) ReadStructure(ctx context.Context, companyID uuid.UUID) (Structure, error) {
	var out Structure
	err := db.WithReadTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewRepository(tx)
		accounts, err := repo.ListAccounts(ctx)
		if err != nil {
			return err
		}
		activations, err := repo.ListActivations(ctx, companyID)
		if err != nil {
			return err
		}
		out.Accounts = ActiveFor(companyID, accounts, activations)
		ids := make([]uuid.UUID, len(out.Accounts))
		for i, acc := range out.Accounts {
			ids[i] = acc.ID
		}
		out.Components, err = repo.ListComponents(ctx, ids)
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrUpstreamFetch) {
			return Structure{}, err
		}
		return Structure{}, upstream("read structure", err)
	}
	return out, nil
}
