package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/finboard/finboard/internal/platform/db"
)

// EntryFilter scopes ledger reads to one company and a set of months/years.
type EntryFilter struct {
	CompanyID uuid.UUID
	Years     []int
	Months    []int
}

// Repository reads postings and reference data from Postgres.
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
	return fmt.Errorf("%w: %s: %w", ErrUpstreamFetch, op, err)
}

// ListEntries returns the company's postings whose year and month are in the filter sets.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	const query = `
		SELECT id, empresa_id, categoria_id, indicador_id, cliente_id, mes, ano, valor, tipo
		FROM lancamentos
		WHERE empresa_id = $1 AND ano = ANY($2) AND mes = ANY($3)
		ORDER BY ano, mes, created_at, id`
	rows, err := r.db.Query(ctx, query, filter.CompanyID, filter.Years, filter.Months)
	if err != nil {
		return nil, upstream("list entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id, companyID                     pgtype.UUID
			categoryID, indicatorID, clientID pgtype.UUID
			month, year                       int32
			amount                            pgtype.Numeric
			kind                              string
		)
		if err := rows.Scan(&id, &companyID, &categoryID, &indicatorID, &clientID, &month, &year, &amount, &kind); err != nil {
			return nil, upstream("scan entry", err)
		}
		subject, err := RefFromColumns(db.UUIDPtr(categoryID), db.UUIDPtr(indicatorID), db.UUIDPtr(clientID))
		if err != nil {
			return nil, upstream("map entry subject", err)
		}
		k, err := ParseKind(kind)
		if err != nil {
			return nil, upstream("map entry kind", err)
		}
		entries = append(entries, Entry{
			ID:        db.UUIDValue(id),
			CompanyID: db.UUIDValue(companyID),
			Subject:   subject,
			Month:     int(month),
			Year:      int(year),
			Amount:    db.Decimal(amount),
			Kind:      k,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate entries", err)
	}
	return entries, nil
}

// ListCategories returns every category, active or not.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, codigo, nome, ativo FROM categorias ORDER BY codigo`)
	if err != nil {
		return nil, upstream("list categories", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Active); err != nil {
			return nil, upstream("scan category", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate categories", err)
	}
	return out, nil
}

// ListClients returns every client, active or not.
func (r *Repository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.db.Query(ctx, `SELECT id, razao_social, ativo FROM clientes ORDER BY razao_social`)
	if err != nil {
		return nil, upstream("list clients", err)
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, upstream("scan client", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate clients", err)
	}
	return out, nil
}

// ListIndicators returns every indicator definition.
func (r *Repository) ListIndicators(ctx context.Context) ([]Indicator, error) {
	rows, err := r.db.Query(ctx, `SELECT id, codigo, nome, tipo, tipo_dado, ativo FROM indicadores ORDER BY codigo`)
	if err != nil {
		return nil, upstream("list indicators", err)
	}
	defer rows.Close()
	var out []Indicator
	for rows.Next() {
		var (
			ind            Indicator
			kind, dataKind string
		)
		if err := rows.Scan(&ind.ID, &ind.Code, &ind.Name, &kind, &dataKind, &ind.Active); err != nil {
			return nil, upstream("scan indicator", err)
		}
		ind.Type = ParseIndicatorType(kind)
		ind.DataKind = ParseDataKind(dataKind)
		out = append(out, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate indicators", err)
	}
	return out, nil
}

// ListCompositions returns every indicator composition link.
func (r *Repository) ListCompositions(ctx context.Context) ([]CompositionLink, error) {
	const query = `
		SELECT id, indicador_id, componente_indicador_id, componente_categoria_id, ordem
		FROM indicador_composicoes
		ORDER BY indicador_id, ordem, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, upstream("list compositions", err)
	}
	defer rows.Close()
	var out []CompositionLink
	for rows.Next() {
		var (
			link                    CompositionLink
			indicatorID, categoryID pgtype.UUID
			order                   int32
		)
		if err := rows.Scan(&link.ID, &link.IndicatorID, &indicatorID, &categoryID, &order); err != nil {
			return nil, upstream("scan composition", err)
		}
		ref, err := RefFromColumns(db.UUIDPtr(categoryID), db.UUIDPtr(indicatorID), nil)
		if err != nil {
			return nil, upstream("map composition", err)
		}
		link.Ref = ref
		link.Order = int(order)
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate compositions", err)
	}
	return out, nil
}

// CreateEntry inserts a posting and returns it with its generated id.
func (r *Repository) CreateEntry(ctx context.Context, e Entry) (Entry, error) {
	categoryID, indicatorID, clientID := e.Subject.Columns()
	const query = `
		INSERT INTO lancamentos (empresa_id, categoria_id, indicador_id, cliente_id, mes, ano, valor, tipo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	var id pgtype.UUID
	err := r.db.QueryRow(ctx, query,
		e.CompanyID,
		db.PgUUID(categoryID),
		db.PgUUID(indicatorID),
		db.PgUUID(clientID),
		e.Month,
		e.Year,
		db.Numeric(e.Amount),
		string(e.Kind),
	).Scan(&id)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: create entry: %w", err)
	}
	e.ID = db.UUIDValue(id)
	return e, nil
}

// DeleteEntry removes a posting owned by companyID.
func (r *Repository) DeleteEntry(ctx context.Context, companyID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM lancamentos WHERE id = $1 AND empresa_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("ledger: delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// CompanyExists reports whether the company id is registered and active.
func (r *Repository) CompanyExists(ctx context.Context, companyID uuid.UUID) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx, `SELECT ativa FROM empresas WHERE id = $1`, companyID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, upstream("load company", err)
	}
	return active, nil
}

// ActiveCompanies lists ids of active companies.
func (r *Repository) ActiveCompanies(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM empresas WHERE ativa ORDER BY razao_social`)
	if err != nil {
		return nil, upstream("list companies", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, upstream("scan company", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate companies", err)
	}
	return ids, nil
}
