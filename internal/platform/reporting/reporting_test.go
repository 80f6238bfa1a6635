package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/abejo/dental-clinic/internal/platform/apierr"
	"github.com/abejo/dental-clinic/internal/platform/db"
)

type stubSource struct {
	driver string
	rows   []map[string]interface{}
	err    error
	query  string
}

func (s *stubSource) Driver() string { return s.driver }

func (s *stubSource) Rows(_ context.Context, query string) ([]map[string]interface{}, error) {
	s.query = query
	return s.rows, s.err
}

func TestDefinitions(t *testing.T) {
	expectedIDs := []string{"appointments", "patients", "inventory"}
	if len(Definitions) != len(expectedIDs) {
		t.Fatalf("expected %d reports, got %d", len(expectedIDs), len(Definitions))
	}
	for i, id := range expectedIDs {
		if Definitions[i].ID != id {
			t.Errorf("expected report[%d].ID = %s, got %s", i, id, Definitions[i].ID)
		}
	}
}

func TestDefinitions_HaveQueriesForEveryEngine(t *testing.T) {
	for _, d := range Definitions {
		for _, driver := range []string{db.DriverPostgres, db.DriverMySQL} {
			q := d.Queries[driver]
			if q == "" {
				t.Errorf("report %s has no %s query", d.ID, driver)
				continue
			}
			if !strings.HasPrefix(strings.TrimSpace(q), "SELECT") {
				t.Errorf("report %s %s query must be a SELECT", d.ID, driver)
			}
			for _, col := range d.Columns {
				if !strings.Contains(q, col) {
					t.Errorf("report %s %s query does not select %s", d.ID, driver, col)
				}
			}
		}
		if d.Name == "" || d.Description == "" {
			t.Errorf("report %s needs a name and description", d.ID)
		}
	}
}

func TestFind(t *testing.T) {
	if d := Find("inventory"); d == nil || d.Name != "Inventory Report" {
		t.Errorf("unexpected lookup result %+v", d)
	}
	if Find("revenue") != nil {
		t.Error("expected nil for unknown report")
	}
}

func TestRun_NormalizesDates(t *testing.T) {
	src := &stubSource{driver: db.DriverPostgres, rows: []map[string]interface{}{
		{"name": "Ana Cruz", "date": "2025-06-02T00:00:00Z"},
		{"name": "Ben Cruz", "date": "garbage"},
		{"name": "Cy Cruz", "date": nil},
	}}
	rows, err := Run(context.Background(), src, Find("appointments"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0]["date"] != "2025-06-02" {
		t.Errorf("expected normalized date, got %v", rows[0]["date"])
	}
	if rows[1]["date"] != nil || rows[2]["date"] != nil {
		t.Errorf("unparseable and missing dates must be null, got %v / %v", rows[1]["date"], rows[2]["date"])
	}
	if src.query != Find("appointments").Queries[db.DriverPostgres] {
		t.Error("expected the postgres query to run")
	}
}

func TestRun_UnknownDriver(t *testing.T) {
	if _, err := Run(context.Background(), &stubSource{driver: "sqlite"}, Find("inventory")); err == nil {
		t.Error("expected error for a driver without a query")
	}
}

func TestHandler_List(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/reports", nil), rec)

	if err := NewHandler(&stubSource{driver: db.DriverPostgres}).List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var defs []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &defs); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	if _, leaked := defs[0]["Queries"]; leaked {
		t.Error("queries must not be exposed")
	}
}

func TestHandler_Run(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/reports/inventory", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("inventory")

	src := &stubSource{driver: db.DriverMySQL, rows: []map[string]interface{}{
		{"name": "Gauze", "category": "Supply", "stock": int64(40)},
	}}
	if err := NewHandler(src).Run(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rows []map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &rows)
	if len(rows) != 1 || rows[0]["stock"] != float64(40) {
		t.Errorf("unexpected rows: %s", rec.Body.String())
	}
}

func TestHandler_Run_NotFound(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("revenue")

	if err := NewHandler(&stubSource{driver: db.DriverPostgres}).Run(c); !apierr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHandler_Run_SourceError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("patients")

	src := &stubSource{driver: db.DriverPostgres, err: errors.New("relation does not exist")}
	err := NewHandler(src).Run(c)
	if err == nil || apierr.IsNotFound(err) {
		t.Errorf("expected infrastructure error, got %v", err)
	}
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		in     interface{}
		dbType string
		want   interface{}
	}{
		{[]byte("42"), "INT", int64(42)},
		{[]byte("42"), "UNSIGNED INT", int64(42)},
		{[]byte("1.5"), "DECIMAL", 1.5},
		{[]byte("Supply"), "VARCHAR", "Supply"},
		{[]byte("x"), "BIGINT", "x"},
		{nil, "VARCHAR", nil},
		{int64(7), "BIGINT", int64(7)},
	}
	for _, tt := range tests {
		if got := convertValue(tt.in, tt.dbType); got != tt.want {
			t.Errorf("convertValue(%v, %s) = %#v, want %#v", tt.in, tt.dbType, got, tt.want)
		}
	}
}
