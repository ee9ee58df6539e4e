package visit

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func newTestReconciler() (*Reconciler, *memStore, *fakeCatalog, *Visit) {
	store := newMemStore()
	cat := newFakeCatalog()
	v := &Visit{DoctorID: uuid.New(), PatientID: uuid.New()}
	_ = store.Create(context.Background(), v)
	return NewReconciler(store, cat), store, cat, v
}

func quantities(lines []*Line) map[string]int {
	out := make(map[string]int, len(lines))
	for _, l := range lines {
		out[l.ServiceName] = l.Quantity
	}
	return out
}

func TestReconcile_Merge(t *testing.T) {
	r, _, cat, v := newTestReconciler()
	cat.add(v.DoctorID, "Consult", "100")
	cat.add(v.DoctorID, "X-ray", "50")
	cat.add(v.DoctorID, "Bandage", "2.50")
	ctx := context.Background()

	if _, _, err := r.Reconcile(ctx, v, []LineRequest{{"Consult", 1}, {"X-ray", 2}}); err != nil {
		t.Fatal(err)
	}
	lines, total, err := r.Reconcile(ctx, v, []LineRequest{{"X-ray", 0}, {"Bandage", 4}, {"Consult", 3}})
	if err != nil {
		t.Fatal(err)
	}
	got := quantities(lines)
	if len(got) != 2 || got["Consult"] != 3 || got["Bandage"] != 4 {
		t.Errorf("unexpected lines %v", got)
	}
	if !total.Equal(dec("310")) {
		t.Errorf("expected total 310, got %s", total)
	}
	if lines[0].ServiceName != "Bandage" {
		t.Error("lines should be sorted by service name")
	}
}

func TestReconcile_KeepsUnmentionedLines(t *testing.T) {
	r, _, cat, v := newTestReconciler()
	cat.add(v.DoctorID, "Consult", "100")
	cat.add(v.DoctorID, "X-ray", "50")
	ctx := context.Background()

	if _, _, err := r.Reconcile(ctx, v, []LineRequest{{"Consult", 1}}); err != nil {
		t.Fatal(err)
	}
	lines, total, err := r.Reconcile(ctx, v, []LineRequest{{"X-ray", 1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || !total.Equal(dec("150")) {
		t.Errorf("expected both lines and total 150, got %v %s", quantities(lines), total)
	}
}

func TestReconcile_ZeroForMissingLineIsNoop(t *testing.T) {
	r, store, cat, v := newTestReconciler()
	cat.add(v.DoctorID, "Consult", "100")
	writes := store.writes

	lines, total, err := r.Reconcile(context.Background(), v, []LineRequest{{"Consult", 0}})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 || !total.IsZero() || store.writes != writes {
		t.Errorf("expected no lines and no writes, got %v", quantities(lines))
	}
}

func TestReconcile_UnchangedQuantitySkipsWrite(t *testing.T) {
	r, store, cat, v := newTestReconciler()
	cat.add(v.DoctorID, "Consult", "100")
	ctx := context.Background()
	if _, _, err := r.Reconcile(ctx, v, []LineRequest{{"Consult", 2}}); err != nil {
		t.Fatal(err)
	}
	writes := store.writes
	if _, _, err := r.Reconcile(ctx, v, []LineRequest{{"Consult", 2}}); err != nil {
		t.Fatal(err)
	}
	if store.writes != writes {
		t.Error("identical request should not write")
	}
}

func TestReconcile_DuplicateNamesLastWins(t *testing.T) {
	r, _, cat, v := newTestReconciler()
	cat.add(v.DoctorID, "Consult", "100")

	lines, total, err := r.Reconcile(context.Background(), v, []LineRequest{{"Consult", 1}, {" Consult ", 4}})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0].Quantity != 4 || !total.Equal(dec("400")) {
		t.Errorf("expected one line of 4, got %v total %s", quantities(lines), total)
	}
}

func TestReconcile_RejectsBeforeWriting(t *testing.T) {
	tests := []struct {
		name string
		req  []LineRequest
		kind apperr.Kind
	}{
		{"blank name", []LineRequest{{"Consult", 1}, {"  ", 1}}, apperr.KindValidation},
		{"negative", []LineRequest{{"Consult", 1}, {"Consult", -2}}, apperr.KindValidation},
		{"unknown", []LineRequest{{"Consult", 1}, {"Surgery", 1}}, apperr.KindNotFound},
		{"quantity out of range", []LineRequest{{"Consult", 1}, {"Consult", maxQuantity + 1}}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, cat, v := newTestReconciler()
			cat.add(v.DoctorID, "Consult", "100")
			writes := store.writes

			_, _, err := r.Reconcile(context.Background(), v, tt.req)
			if apperr.KindOf(err) != tt.kind {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if store.writes != writes {
				t.Error("rejected request must not write")
			}
		})
	}
}

func TestReconcile_TotalOutOfRange(t *testing.T) {
	r, _, cat, v := newTestReconciler()
	cat.add(v.DoctorID, "Implant", "9999999999.99")

	if _, total, err := r.Reconcile(context.Background(), v, []LineRequest{{"Implant", 100}}); err != nil || !total.Equal(dec("999999999999")) {
		t.Fatalf("expected total just below the limit, got %s %v", total, err)
	}
	_, _, err := r.Reconcile(context.Background(), v, []LineRequest{{"Implant", 101}})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation, got %v", err)
	}
}

func TestPrice_UsesLiveCatalog(t *testing.T) {
	r, _, cat, v := newTestReconciler()
	cat.add(v.DoctorID, "Consult", "100")
	ctx := context.Background()
	if _, _, err := r.Reconcile(ctx, v, []LineRequest{{"Consult", 2}}); err != nil {
		t.Fatal(err)
	}
	cat.setPrice(v.DoctorID, "Consult", "150")

	lines, _ := r.lines.ListLines(ctx, v.ID)
	total, err := r.Price(ctx, lines)
	if err != nil {
		t.Fatal(err)
	}
	if !total.Equal(dec("300")) || !lines[0].UnitPrice.Equal(dec("150")) {
		t.Errorf("expected repriced total 300, got %s", total)
	}
}

func TestPrice_MissingService(t *testing.T) {
	r, _, _, v := newTestReconciler()
	_, err := r.Price(context.Background(), []*Line{{VisitID: v.ID, ServiceID: uuid.New(), Quantity: 1}})
	if apperr.KindOf(err) != apperr.KindInternal || err == nil {
		t.Errorf("expected internal error, got %v", err)
	}
}
