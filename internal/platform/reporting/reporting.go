// Package reporting serves the clinic's predefined reports. Each report is a
// fixed read-only query per database engine; rows come back as JSON objects
// keyed by column name.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/abejo/dental-clinic/internal/platform/apierr"
	"github.com/abejo/dental-clinic/internal/platform/datefmt"
	"github.com/abejo/dental-clinic/internal/platform/db"
)

// Definition describes a report and the query behind it for each engine.
type Definition struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Columns     []string          `json:"columns"`
	Queries     map[string]string `json:"-"`
	DateColumns []string          `json:"-"`
}

// Definitions is the list of available reports.
var Definitions = []Definition{
	{
		ID:          "appointments",
		Name:        "Appointment Report",
		Description: "Confirmed, completed and cancelled appointments, latest date first",
		Columns:     []string{"name", "date", "time", "gender", "treatment", "status"},
		DateColumns: []string{"date"},
		Queries: map[string]string{
			db.DriverPostgres: `SELECT concat_ws(' ', first_name, NULLIF(middle_name, ''), last_name) AS name,
				to_char(appointment_date, 'YYYY-MM-DD') AS date,
				to_char(appointment_time, 'HH24:MI:SS') AS time,
				gender, treatment_id AS treatment, status
			FROM appointments
			WHERE status IN ('confirmed', 'completed', 'cancelled')
			ORDER BY appointment_date DESC, appointment_time DESC, id DESC`,
			db.DriverMySQL: `SELECT CONCAT_WS(' ', first_name, NULLIF(middle_name, ''), last_name) AS name,
				DATE_FORMAT(appointment_date, '%Y-%m-%d') AS date,
				TIME_FORMAT(appointment_time, '%H:%i:%s') AS time,
				gender, treatment_id AS treatment, CAST(status AS CHAR) AS status
			FROM appointments
			WHERE status IN ('confirmed', 'completed', 'cancelled')
			ORDER BY appointment_date DESC, appointment_time DESC, id DESC`,
		},
	},
	{
		ID:          "patients",
		Name:        "Patient Report",
		Description: "Treatments on record per patient, latest first",
		Columns:     []string{"name", "date", "time", "treatment", "status"},
		DateColumns: []string{"date"},
		Queries: map[string]string{
			db.DriverPostgres: `SELECT concat_ws(' ', p.first_name, NULLIF(p.middle_name, ''), p.last_name) AS name,
				to_char(ph.treatment_date, 'YYYY-MM-DD') AS date,
				to_char(ph.treatment_time, 'HH24:MI:SS') AS time,
				ph.treatment, ph.status
			FROM patient_history ph
			JOIN patients p ON ph.patient_id = p.id
			ORDER BY ph.treatment_date DESC, ph.treatment_time DESC, ph.id DESC`,
			db.DriverMySQL: `SELECT CONCAT_WS(' ', p.first_name, NULLIF(p.middle_name, ''), p.last_name) AS name,
				DATE_FORMAT(ph.treatment_date, '%Y-%m-%d') AS date,
				TIME_FORMAT(ph.treatment_time, '%H:%i:%s') AS time,
				ph.treatment, CAST(ph.status AS CHAR) AS status
			FROM patient_history ph
			JOIN patients p ON ph.patient_id = p.id
			ORDER BY ph.treatment_date DESC, ph.treatment_time DESC, ph.id DESC`,
		},
	},
	{
		ID:          "inventory",
		Name:        "Inventory Report",
		Description: "Stock on hand by category and name",
		Columns:     []string{"name", "category", "stock"},
		Queries: map[string]string{
			db.DriverPostgres: `SELECT name, category, stock FROM inventory ORDER BY category, name, id`,
			db.DriverMySQL:    `SELECT name, CAST(category AS CHAR) AS category, stock FROM inventory ORDER BY CAST(category AS CHAR), name, id`,
		},
	},
}

// Find looks up a report by id.
func Find(id string) *Definition {
	for i := range Definitions {
		if Definitions[i].ID == id {
			return &Definitions[i]
		}
	}
	return nil
}

// Source executes a report query on one database engine.
type Source interface {
	Driver() string
	Rows(ctx context.Context, query string) ([]map[string]interface{}, error)
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	source Source
}

func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports", h.List)
	api.GET("/reports/:id", h.Run)
}

// List returns all report definitions.
func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, Definitions)
}

// Run executes a report and returns its rows.
func (h *Handler) Run(c echo.Context) error {
	def := Find(c.Param("id"))
	if def == nil {
		return apierr.NotFound("Report not found")
	}
	rows, err := Run(c.Request().Context(), h.source, def)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

// Run executes def against source and normalizes its date columns.
func Run(ctx context.Context, source Source, def *Definition) ([]map[string]interface{}, error) {
	query, ok := def.Queries[source.Driver()]
	if !ok {
		return nil, fmt.Errorf("report %s has no query for %s", def.ID, source.Driver())
	}
	rows, err := source.Rows(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", def.ID, err)
	}
	for _, row := range rows {
		for _, col := range def.DateColumns {
			s, ok := row[col].(string)
			if !ok {
				continue
			}
			if d, ok := datefmt.Normalize(s); ok {
				row[col] = d
			} else {
				row[col] = nil
			}
		}
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// PostgreSQL
// ---------------------------------------------------------------------------

type pgSource struct{ pool *pgxpool.Pool }

func NewPgSource(pool *pgxpool.Pool) Source { return &pgSource{pool: pool} }

func (s *pgSource) Driver() string { return db.DriverPostgres }

func (s *pgSource) Rows(ctx context.Context, query string) ([]map[string]interface{}, error) {
	rows, err := db.PgQuerier(ctx, s.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// ---------------------------------------------------------------------------
// MySQL
// ---------------------------------------------------------------------------

type sqlSource struct{ db *sql.DB }

func NewSQLSource(sqlDB *sql.DB) Source { return &sqlSource{db: sqlDB} }

func (s *sqlSource) Driver() string { return db.DriverMySQL }

func (s *sqlSource) Rows(ctx context.Context, query string) ([]map[string]interface{}, error) {
	rows, err := db.SQLQuerierFrom(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col.Name()] = convertValue(values[i], col.DatabaseTypeName())
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// convertValue turns the raw bytes the MySQL text protocol returns into
// JSON-friendly values.
func convertValue(v interface{}, dbType string) interface{} {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	switch t := strings.ToUpper(dbType); {
	case strings.Contains(t, "INT"):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case t == "DECIMAL" || t == "FLOAT" || t == "DOUBLE":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
