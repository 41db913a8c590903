package dashboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/platform/db"
)

// Repository reads visualization configs from Postgres.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository over a pool or a transaction.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: dashboard: %s: %w", ledger.ErrUpstreamFetch, op, err)
}

// ListConfigs returns the company's active configs of surface ordered by
// position, each with its components in declared order.
func (r *Repository) ListConfigs(ctx context.Context, companyID uuid.UUID, surface Surface) ([]Config, error) {
	const query = `
		SELECT id, empresa_id, superficie, posicao, titulo, tipo_visualizacao,
		       COALESCE(tipo_grafico, ''), COALESCE(tipo_lista, ''), COALESCE(limite_lista, 0), ativo
		FROM visualizacao_config
		WHERE empresa_id = $1 AND superficie = $2 AND ativo
		ORDER BY posicao, id`
	rows, err := r.db.Query(ctx, query, companyID, string(surface))
	if err != nil {
		return nil, upstream("list configs", err)
	}
	defer rows.Close()

	var (
		configs []Config
		ids     []uuid.UUID
	)
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			cfg                                 Config
			id, company                         pgtype.UUID
			surfaceRaw, display, chart, listRaw string
			position, limit                     int32
		)
		if err := rows.Scan(&id, &company, &surfaceRaw, &position, &cfg.Title, &display, &chart, &listRaw, &limit, &cfg.Active); err != nil {
			return nil, upstream("scan config", err)
		}
		cfg.ID = db.UUIDValue(id)
		cfg.CompanyID = db.UUIDValue(company)
		cfg.Surface = Surface(surfaceRaw)
		cfg.Position = int(position)
		cfg.DisplayType = DisplayType(display)
		cfg.ChartType = ChartType(chart)
		cfg.ListSubject = parseListSubject(listRaw)
		cfg.ListLimit = int(limit)
		index[cfg.ID] = len(configs)
		configs = append(configs, cfg)
		ids = append(ids, cfg.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream("iterate configs", err)
	}
	if len(ids) == 0 {
		return configs, nil
	}

	const componentsQuery = `
		SELECT id, config_id, categoria_id, indicador_id, cliente_id, ordem, COALESCE(cor, '')
		FROM visualizacao_componentes
		WHERE config_id = ANY($1)
		ORDER BY config_id, ordem, id`
	compRows, err := r.db.Query(ctx, componentsQuery, ids)
	if err != nil {
		return nil, upstream("list components", err)
	}
	defer compRows.Close()
	for compRows.Next() {
		var (
			comp                              Component
			id, configID                      pgtype.UUID
			categoryID, indicatorID, clientID pgtype.UUID
			order                             int32
		)
		if err := compRows.Scan(&id, &configID, &categoryID, &indicatorID, &clientID, &order, &comp.Color); err != nil {
			return nil, upstream("scan component", err)
		}
		ref, err := ledger.RefFromColumns(db.UUIDPtr(categoryID), db.UUIDPtr(indicatorID), db.UUIDPtr(clientID))
		if err != nil {
			return nil, upstream("map component", err)
		}
		comp.ID = db.UUIDValue(id)
		comp.ConfigID = db.UUIDValue(configID)
		comp.Ref = ref
		comp.Order = int(order)
		if i, ok := index[comp.ConfigID]; ok {
			configs[i].Components = append(configs[i].Components, comp)
		}
	}
	if err := compRows.Err(); err != nil {
		return nil, upstream("iterate components", err)
	}
	return configs, nil
}
