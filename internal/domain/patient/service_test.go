package patient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/abejo/dental-clinic/internal/platform/apierr"
)

// -- Mock Repository --

type mockRepo struct {
	patients map[int64]*Patient
	history  []*History
	nextID   int64
	lookups  int
	failList error
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[int64]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) FindByIdentity(_ context.Context, ident Identity) (int64, bool, error) {
	m.lookups++
	for id := int64(1); id <= m.nextID; id++ {
		p, ok := m.patients[id]
		if !ok || p.ContactNumber == nil || ident.ContactNumber == nil {
			continue
		}
		if p.FirstName == ident.FirstName && p.LastName == ident.LastName && *p.ContactNumber == *ident.ContactNumber {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (m *mockRepo) List(_ context.Context) ([]*ListRow, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	var rows []*ListRow
	for id := m.nextID; id >= 1; id-- {
		p, ok := m.patients[id]
		if !ok {
			continue
		}
		row := &ListRow{Patient: *p}
		for i := len(m.history) - 1; i >= 0; i-- {
			if m.history[i].PatientID == id {
				t, d := m.history[i].Treatment, m.history[i].TreatmentDate
				row.SelectedTreatment, row.AppointmentDate = &t, &d
				break
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *mockRepo) AddHistory(_ context.Context, h *History) error {
	h.ID = int64(len(m.history) + 1)
	h.CreatedAt = time.Now()
	m.history = append(m.history, h)
	return nil
}

func (m *mockRepo) ListHistory(_ context.Context) ([]*HistoryRow, error) {
	var rows []*HistoryRow
	for i := len(m.history) - 1; i >= 0; i-- {
		h := m.history[i]
		p := m.patients[h.PatientID]
		rows = append(rows, &HistoryRow{History: *h, PatientName: FullName(p.FirstName, p.MiddleName, p.LastName)})
	}
	return rows, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func strPtr(s string) *string { return &s }

func TestService_Resolve_CreatesNewPatient(t *testing.T) {
	svc, repo := newTestService()
	p := &Patient{FirstName: "Ana", LastName: "Cruz", ContactNumber: strPtr("09171234567")}

	id, created, err := svc.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || id == 0 {
		t.Errorf("expected a new patient, got id=%d created=%v", id, created)
	}
	if len(repo.patients) != 1 {
		t.Errorf("expected 1 patient, got %d", len(repo.patients))
	}
}

func TestService_Resolve_ReusesMatchingPatient(t *testing.T) {
	svc, repo := newTestService()
	first := &Patient{FirstName: "Ana", LastName: "Cruz", ContactNumber: strPtr("09171234567")}
	id1, _, _ := svc.Resolve(context.Background(), first)

	again := &Patient{FirstName: "Ana", LastName: "Cruz", ContactNumber: strPtr("09171234567"), Email: strPtr("ana@example.com")}
	id2, created, err := svc.Resolve(context.Background(), again)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || id2 != id1 {
		t.Errorf("expected reuse of patient %d, got %d (created=%v)", id1, id2, created)
	}
	if len(repo.patients) != 1 {
		t.Errorf("expected 1 patient, got %d", len(repo.patients))
	}
}

func TestService_Resolve_DifferentContactCreatesNew(t *testing.T) {
	svc, repo := newTestService()
	svc.Resolve(context.Background(), &Patient{FirstName: "Ana", LastName: "Cruz", ContactNumber: strPtr("1")})
	svc.Resolve(context.Background(), &Patient{FirstName: "Ana", LastName: "Cruz", ContactNumber: strPtr("2")})
	if len(repo.patients) != 2 {
		t.Errorf("expected 2 patients, got %d", len(repo.patients))
	}
}

func TestService_Resolve_NullContactNeverMatches(t *testing.T) {
	svc, repo := newTestService()
	for i := 0; i < 2; i++ {
		_, created, err := svc.Resolve(context.Background(), &Patient{FirstName: "Ana", LastName: "Cruz"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !created {
			t.Error("a patient without a contact number must not match")
		}
	}
	if len(repo.patients) != 2 {
		t.Errorf("expected 2 patients, got %d", len(repo.patients))
	}
	if repo.lookups != 0 {
		t.Errorf("expected no identity lookups for a null contact, got %d", repo.lookups)
	}
}

func TestService_Resolve_RequiresNames(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Resolve(context.Background(), &Patient{FirstName: "Ana"})
	if !apierr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_RecordHistory(t *testing.T) {
	svc, repo := newTestService()
	apptID := int64(7)
	h := &History{
		PatientID:     1,
		AppointmentID: &apptID,
		TreatmentDate: "2025-06-02T00:00:00.000Z",
		TreatmentTime: "10:00:00",
		Treatment:     "Extraction",
		Status:        HistoryCompleted,
	}
	if err := svc.RecordHistory(context.Background(), h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.history) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(repo.history))
	}
	if repo.history[0].TreatmentDate != "2025-06-02" {
		t.Errorf("expected normalized date, got %s", repo.history[0].TreatmentDate)
	}
}

func TestService_RecordHistory_Invalid(t *testing.T) {
	svc, repo := newTestService()
	tests := []struct {
		name string
		h    *History
	}{
		{"no patient", &History{TreatmentDate: "2025-06-02", Status: HistoryCompleted}},
		{"bad status", &History{PatientID: 1, TreatmentDate: "2025-06-02", Status: "pending"}},
		{"bad date", &History{PatientID: 1, TreatmentDate: "not a date", Status: HistoryCompleted}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.RecordHistory(context.Background(), tt.h); err == nil {
				t.Error("expected error")
			}
		})
	}
	if len(repo.history) != 0 {
		t.Errorf("expected no history rows, got %d", len(repo.history))
	}
}

func TestService_List(t *testing.T) {
	svc, repo := newTestService()
	id, _, _ := svc.Resolve(context.Background(), &Patient{FirstName: "Ana", MiddleName: strPtr("Reyes"), LastName: "Cruz", ContactNumber: strPtr("1")})
	repo.AddHistory(context.Background(), &History{PatientID: id, TreatmentDate: "2025-06-02T00:00:00Z", Treatment: "Extraction", Status: HistoryCompleted})

	rows, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].FullName != "Ana Reyes Cruz" {
		t.Errorf("unexpected full name %q", rows[0].FullName)
	}
	if rows[0].SelectedTreatment == nil || *rows[0].SelectedTreatment != "Extraction" {
		t.Errorf("unexpected selected treatment %v", rows[0].SelectedTreatment)
	}
	if rows[0].AppointmentDate == nil || *rows[0].AppointmentDate != "2025-06-02" {
		t.Errorf("expected normalized appointment date, got %v", rows[0].AppointmentDate)
	}
}

func TestService_List_Error(t *testing.T) {
	svc, repo := newTestService()
	repo.failList = fmt.Errorf("connection reset")
	if _, err := svc.List(context.Background()); err == nil {
		t.Error("expected repository error to propagate")
	}
}

func TestService_ListHistory(t *testing.T) {
	svc, _ := newTestService()
	id, _, _ := svc.Resolve(context.Background(), &Patient{FirstName: "Ana", LastName: "Cruz", ContactNumber: strPtr("1")})
	svc.RecordHistory(context.Background(), &History{PatientID: id, TreatmentDate: "2025-06-01", TreatmentTime: "09:00:00", Treatment: "Cleaning", Status: HistoryCompleted})
	svc.RecordHistory(context.Background(), &History{PatientID: id, TreatmentDate: "2025-06-02", TreatmentTime: "10:00:00", Treatment: "Extraction", Status: HistoryCompleted})

	rows, err := svc.ListHistory(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[0].Treatment != "Extraction" {
		t.Fatalf("expected newest treatment first, got %+v", rows)
	}
	if rows[0].PatientName != "Ana Cruz" {
		t.Errorf("unexpected patient name %q", rows[0].PatientName)
	}
}
