package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/abejo/dental-clinic/internal/domain/patient"
	"github.com/abejo/dental-clinic/internal/platform/apierr"
	"github.com/abejo/dental-clinic/internal/platform/blobstore"
)

// -- In-memory store --

// memStore implements Repository and PatientDirectory over maps so the
// completion workflow can be exercised end to end, including rollback.
type memStore struct {
	appts    map[int64]*Appointment
	nextAppt int64
	patients []*patient.Patient
	history  []*patient.History

	failCreate  error
	failHistory error
	failList    error
}

func newMemStore() *memStore {
	return &memStore{appts: make(map[int64]*Appointment)}
}

type snapshot struct {
	appts    map[int64]Appointment
	nextAppt int64
	patients int
	history  int
}

func (m *memStore) snapshot() snapshot {
	s := snapshot{appts: make(map[int64]Appointment, len(m.appts)), nextAppt: m.nextAppt,
		patients: len(m.patients), history: len(m.history)}
	for id, a := range m.appts {
		s.appts[id] = *a
	}
	return s
}

func (m *memStore) restore(s snapshot) {
	m.appts = make(map[int64]*Appointment, len(s.appts))
	for id, a := range s.appts {
		a := a
		m.appts[id] = &a
	}
	m.nextAppt = s.nextAppt
	m.patients = m.patients[:s.patients]
	m.history = m.history[:s.history]
}

func (m *memStore) Create(_ context.Context, a *Appointment) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.nextAppt++
	a.ID = m.nextAppt
	a.CreatedAt = time.Now().Add(time.Duration(m.nextAppt) * time.Millisecond)
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *memStore) SetStatus(_ context.Context, id int64, status Status) (int64, error) {
	a, ok := m.appts[id]
	if !ok {
		return 0, nil
	}
	a.Status = status
	return 1, nil
}

func (m *memStore) MarkCompleted(_ context.Context, id int64, patientID int64) error {
	a, ok := m.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = StatusCompleted
	a.PatientID = &patientID
	return nil
}

func (m *memStore) ListByStatus(_ context.Context, order Order, statuses ...Status) ([]*Appointment, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	want := map[Status]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	var out []*Appointment
	for _, a := range m.appts {
		if want[a.Status] {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch order {
		case OrderChronological:
			if a.AppointmentDate != b.AppointmentDate {
				return a.AppointmentDate < b.AppointmentDate
			}
			return a.AppointmentTime < b.AppointmentTime
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return out, nil
}

func (m *memStore) Resolve(_ context.Context, p *patient.Patient) (int64, bool, error) {
	if p.ContactNumber != nil {
		for _, existing := range m.patients {
			if existing.ContactNumber != nil && existing.FirstName == p.FirstName &&
				existing.LastName == p.LastName && *existing.ContactNumber == *p.ContactNumber {
				return existing.ID, false, nil
			}
		}
	}
	p.ID = int64(len(m.patients) + 1)
	m.patients = append(m.patients, p)
	return p.ID, true, nil
}

func (m *memStore) RecordHistory(_ context.Context, h *patient.History) error {
	if m.failHistory != nil {
		return m.failHistory
	}
	h.ID = int64(len(m.history) + 1)
	m.history = append(m.history, h)
	return nil
}

// memTx commits by keeping changes and rolls back by restoring a snapshot.
type memTx struct {
	store     *memStore
	commits   int
	rollbacks int
}

func (t *memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

type fixture struct {
	svc    *Service
	store  *memStore
	tx     *memTx
	photos *blobstore.MemoryStore
}

func newFixture() *fixture {
	store := newMemStore()
	tx := &memTx{store: store}
	photos := blobstore.NewMemoryStore()
	return &fixture{
		svc:    NewService(store, store, tx, photos, zerolog.Nop()),
		store:  store,
		tx:     tx,
		photos: photos,
	}
}

func validRequest() CreateRequest {
	return CreateRequest{
		FirstName:     "Ana",
		LastName:      "Cruz",
		Gender:        "Female",
		ContactNumber: "09171234567",
		Email:         "ana@example.com",
		Date:          "2025-06-02T00:00:00.000Z",
		Time:          "10:00",
		TreatmentID:   "Extraction",
	}
}

func (f *fixture) book(t *testing.T, req CreateRequest) *Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a
}

func (f *fixture) bookConfirmed(t *testing.T, req CreateRequest) *Appointment {
	t.Helper()
	a := f.book(t, req)
	if _, err := f.svc.Confirm(context.Background(), a.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	return a
}

// -- Create --

func TestService_Create(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.MiddleName = "Reyes"

	a, err := f.svc.Create(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == 0 || a.Status != StatusPending {
		t.Errorf("unexpected appointment %+v", a)
	}
	if a.AppointmentDate != "2025-06-02" {
		t.Errorf("expected normalized date 2025-06-02, got %s", a.AppointmentDate)
	}
	if a.AppointmentTime != "10:00:00" {
		t.Errorf("expected normalized time 10:00:00, got %s", a.AppointmentTime)
	}
	if a.FullName != "Ana Reyes Cruz" {
		t.Errorf("unexpected full name %q", a.FullName)
	}
	if a.Suffix != nil || a.PatientID != nil {
		t.Error("blank optional fields must be stored as null")
	}
}

func TestService_Create_MissingRequired(t *testing.T) {
	for _, field := range []string{"firstName", "lastName", "date", "time", "treatmentId"} {
		t.Run(field, func(t *testing.T) {
			f := newFixture()
			req := validRequest()
			switch field {
			case "firstName":
				req.FirstName = " "
			case "lastName":
				req.LastName = ""
			case "date":
				req.Date = ""
			case "time":
				req.Time = ""
			case "treatmentId":
				req.TreatmentID = ""
			}

			_, err := f.svc.Create(context.Background(), req, nil)
			e, ok := apierr.As(err)
			if !ok || e.Kind != apierr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(e.Required) != 5 {
				t.Errorf("expected the required field list, got %v", e.Required)
			}
			if len(f.store.appts) != 0 {
				t.Error("nothing must be persisted")
			}
		})
	}
}

func TestService_Create_InvalidDateAndTime(t *testing.T) {
	f := newFixture()

	req := validRequest()
	req.Date = "someday"
	_, err := f.svc.Create(context.Background(), req, nil)
	if e, ok := apierr.As(err); !ok || e.Message != "Invalid date format. Please use YYYY-MM-DD format." {
		t.Errorf("unexpected error for bad date: %v", err)
	}

	req = validRequest()
	req.Time = "25:99"
	_, err = f.svc.Create(context.Background(), req, nil)
	if !apierr.IsValidation(err) {
		t.Errorf("expected validation error for bad time, got %v", err)
	}
	if len(f.store.appts) != 0 {
		t.Error("nothing must be persisted")
	}
}

func TestService_Create_FieldTooLong(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.ContactNumber = "012345678901234567890"
	if _, err := f.svc.Create(context.Background(), req, nil); !apierr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_Create_RemovesPhotoWhenInsertFails(t *testing.T) {
	f := newFixture()
	f.store.failCreate = errors.New("insert failed")

	fh := photoHeader(t, "ana.png", pngHeader)
	if _, err := f.svc.Create(context.Background(), validRequest(), fh); err == nil {
		t.Fatal("expected insert error")
	}
	if f.photos.Len() != 0 {
		t.Errorf("expected orphaned photo to be removed, %d left", f.photos.Len())
	}
}

func TestService_Create_RejectsNonImagePhoto(t *testing.T) {
	f := newFixture()
	fh := photoHeader(t, "notes.txt", []byte("just some text"))
	_, err := f.svc.Create(context.Background(), validRequest(), fh)
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.store.appts) != 0 {
		t.Error("nothing must be persisted")
	}
}

// -- Confirm / Cancel --

func TestService_Confirm(t *testing.T) {
	f := newFixture()
	a := f.book(t, validRequest())

	res, err := f.svc.Confirm(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Applied || res.AffectedRows != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if f.store.appts[a.ID].Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", f.store.appts[a.ID].Status)
	}

	res, err = f.svc.Confirm(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if res.Outcome != Noop || res.AffectedRows != 0 {
		t.Errorf("re-confirm should be a noop, got %+v", res)
	}
}

func TestService_Confirm_NotFound(t *testing.T) {
	f := newFixture()
	a := f.book(t, validRequest())

	_, err := f.svc.Confirm(context.Background(), a.ID+100)
	if !apierr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != "Appointment not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if f.store.appts[a.ID].Status != StatusPending {
		t.Error("existing appointments must not change")
	}
}

func TestService_Confirm_CompletedIsConflict(t *testing.T) {
	f := newFixture()
	a := f.bookConfirmed(t, validRequest())
	if _, err := f.svc.Complete(context.Background(), a.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err := f.svc.Confirm(context.Background(), a.ID)
	if !apierr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.store.appts[a.ID].Status != StatusCompleted {
		t.Error("completed appointment must stay completed")
	}
}

func TestService_Cancel(t *testing.T) {
	f := newFixture()
	pending := f.book(t, validRequest())
	confirmed := f.bookConfirmed(t, validRequest())

	for _, id := range []int64{pending.ID, confirmed.ID} {
		res, err := f.svc.Cancel(context.Background(), id)
		if err != nil {
			t.Fatalf("Cancel(%d): %v", id, err)
		}
		if res.Outcome != Applied || f.store.appts[id].Status != StatusCancelled {
			t.Errorf("appointment %d not cancelled: %+v", id, res)
		}
	}
	if len(f.store.history) != 0 {
		t.Error("cancelling must not write history")
	}

	if _, err := f.svc.Cancel(context.Background(), 999); !apierr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_Cancel_CompletedIsConflict(t *testing.T) {
	f := newFixture()
	a := f.bookConfirmed(t, validRequest())
	f.svc.Complete(context.Background(), a.ID)

	if _, err := f.svc.Cancel(context.Background(), a.ID); !apierr.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}

// -- Complete --

func TestService_Complete_CreatesPatientAndHistory(t *testing.T) {
	f := newFixture()
	a := f.bookConfirmed(t, validRequest())

	res, err := f.svc.Complete(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Applied || !res.PatientCreated || res.PatientID == 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.AppointmentDate != "2025-06-02" {
		t.Errorf("expected normalized date, got %s", res.AppointmentDate)
	}

	stored := f.store.appts[a.ID]
	if stored.Status != StatusCompleted || stored.PatientID == nil || *stored.PatientID != res.PatientID {
		t.Errorf("appointment not attached: %+v", stored)
	}
	if len(f.store.patients) != 1 {
		t.Fatalf("expected 1 patient, got %d", len(f.store.patients))
	}
	p := f.store.patients[0]
	if p.FirstName != "Ana" || p.Email == nil || *p.Email != "ana@example.com" {
		t.Errorf("patient not built from the booking snapshot: %+v", p)
	}

	if len(f.store.history) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(f.store.history))
	}
	h := f.store.history[0]
	if h.Status != patient.HistoryCompleted || h.TreatmentDate != "2025-06-02" ||
		h.TreatmentTime != "10:00:00" || h.Treatment != "Extraction" || *h.AppointmentID != a.ID {
		t.Errorf("unexpected history row %+v", h)
	}
	if f.tx.commits == 0 {
		t.Error("expected the completion to commit")
	}
}

func TestService_Complete_ReusesMatchingPatient(t *testing.T) {
	f := newFixture()
	first := f.bookConfirmed(t, validRequest())
	second := f.bookConfirmed(t, validRequest())

	r1, err := f.svc.Complete(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	r2, err := f.svc.Complete(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if r2.PatientCreated || r2.PatientID != r1.PatientID {
		t.Errorf("expected reuse of patient %d, got %+v", r1.PatientID, r2)
	}
	if len(f.store.patients) != 1 || len(f.store.history) != 2 {
		t.Errorf("expected 1 patient and 2 history rows, got %d and %d", len(f.store.patients), len(f.store.history))
	}
}

func TestService_Complete_NullContactCreatesNewPatient(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.ContactNumber = ""
	a1 := f.bookConfirmed(t, req)
	a2 := f.bookConfirmed(t, req)

	f.svc.Complete(context.Background(), a1.ID)
	f.svc.Complete(context.Background(), a2.ID)
	if len(f.store.patients) != 2 {
		t.Errorf("expected 2 patients for contactless bookings, got %d", len(f.store.patients))
	}
}

func TestService_Complete_Idempotent(t *testing.T) {
	f := newFixture()
	a := f.bookConfirmed(t, validRequest())
	first, _ := f.svc.Complete(context.Background(), a.ID)

	again, err := f.svc.Complete(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("re-complete: %v", err)
	}
	if again.Outcome != Noop || again.PatientID != first.PatientID || again.PatientCreated {
		t.Errorf("re-complete should be a noop returning patient %d, got %+v", first.PatientID, again)
	}
	if len(f.store.history) != 1 || len(f.store.patients) != 1 {
		t.Error("re-complete must not write anything")
	}
}

func TestService_Complete_PendingIsConflict(t *testing.T) {
	f := newFixture()
	a := f.book(t, validRequest())

	_, err := f.svc.Complete(context.Background(), a.ID)
	if !apierr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.store.patients) != 0 || len(f.store.history) != 0 {
		t.Error("nothing must be written")
	}
}

func TestService_Complete_NotFound(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Complete(context.Background(), 12345); !apierr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if len(f.store.patients) != 0 {
		t.Error("no patient must be created")
	}
}

func TestService_Complete_RollsBackOnFailure(t *testing.T) {
	f := newFixture()
	a := f.bookConfirmed(t, validRequest())
	f.store.failHistory = fmt.Errorf("duplicate key value violates unique constraint")

	if _, err := f.svc.Complete(context.Background(), a.ID); err == nil {
		t.Fatal("expected error")
	}
	if f.tx.rollbacks != 1 {
		t.Errorf("expected one rollback, got %d", f.tx.rollbacks)
	}
	stored := f.store.appts[a.ID]
	if stored.Status != StatusConfirmed || stored.PatientID != nil {
		t.Errorf("appointment must be unchanged after rollback: %+v", stored)
	}
	if len(f.store.patients) != 0 || len(f.store.history) != 0 {
		t.Error("patient and history writes must be rolled back")
	}
}

// -- Lists --

func TestService_Lists(t *testing.T) {
	f := newFixture()
	late := validRequest()
	late.Date, late.Time = "2025-06-03", "09:00"
	early := validRequest()
	early.Date, early.Time = "2025-06-02", "14:30"
	early.FirstName = "Ben"

	pending := f.book(t, validRequest())
	c1 := f.bookConfirmed(t, late)
	c2 := f.bookConfirmed(t, early)
	done := f.bookConfirmed(t, validRequest())
	f.svc.Complete(context.Background(), done.ID)

	p, err := f.svc.ListPending(context.Background())
	if err != nil || len(p) != 1 || p[0].ID != pending.ID {
		t.Fatalf("ListPending = %v, %v", p, err)
	}

	c, err := f.svc.ListConfirmed(context.Background())
	if err != nil || len(c) != 2 {
		t.Fatalf("ListConfirmed = %v, %v", c, err)
	}
	if c[0].ID != c2.ID || c[1].ID != c1.ID {
		t.Errorf("confirmed list not chronological: %d, %d", c[0].ID, c[1].ID)
	}

	sched, err := f.svc.Schedule(context.Background())
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(sched) != 3 {
		t.Fatalf("expected 3 schedule rows, got %d", len(sched))
	}
	if sched[0].Status != StatusCompleted || sched[0].Patient != "Ana Cruz" || sched[0].Time != "10:00:00" {
		t.Errorf("unexpected first schedule row %+v", sched[0])
	}
	if sched[1].Patient != "Ben Cruz" || sched[1].Type != "Extraction" || sched[1].Date != "2025-06-02" {
		t.Errorf("unexpected second schedule row %+v", sched[1])
	}
}

func TestService_List_Error(t *testing.T) {
	f := newFixture()
	f.store.failList = errors.New("connection refused")
	if _, err := f.svc.Schedule(context.Background()); err == nil {
		t.Error("expected error")
	}
}

// Booking through completion, as the front desk does it.
func TestService_Lifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a := f.book(t, validRequest())
	pending, _ := f.svc.ListPending(ctx)
	if len(pending) != 1 || pending[0].AppointmentDate != "2025-06-02" {
		t.Fatalf("expected booking in pending list, got %+v", pending)
	}

	f.svc.Confirm(ctx, a.ID)
	confirmed, _ := f.svc.ListConfirmed(ctx)
	if len(confirmed) != 1 {
		t.Fatalf("expected booking in confirmed list, got %d", len(confirmed))
	}

	if _, err := f.svc.Complete(ctx, a.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	confirmed, _ = f.svc.ListConfirmed(ctx)
	if len(confirmed) != 0 {
		t.Error("completed appointment must leave the confirmed list")
	}
	if len(f.store.history) != 1 || f.store.history[0].Status != patient.HistoryCompleted {
		t.Error("expected one completed history row")
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
