package visit

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/domain/catalog"
	"github.com/clinic/clinic/internal/platform/apperr"
)

// ServiceCatalog is the live source of service names and prices.
// *catalog.Catalog implements it.
type ServiceCatalog interface {
	GetService(ctx context.Context, doctorID uuid.UUID, name string) (*catalog.Service, error)
	ServicesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Service, error)
}

// Reconciler merges a requested line list into a visit's persisted lines.
//
// The merge is additive: lines for services missing from the request are
// kept. A requested quantity overwrites the stored one; an explicit 0 removes
// an existing line and is a no-op for a service with no line. When a service
// is named more than once the last entry wins. Every pair is resolved and
// validated before the first write, and all writes go through the
// transaction carried by ctx.
type Reconciler struct {
	lines   LineRepository
	catalog ServiceCatalog
}

func NewReconciler(lines LineRepository, catalog ServiceCatalog) *Reconciler {
	return &Reconciler{lines: lines, catalog: catalog}
}

// Column bounds of visit_service_line.quantity and visit.total_cost.
const maxQuantity = math.MaxInt32

var maxTotal = decimal.New(1, 12) // exclusive, NUMERIC(14,2)

type plannedLine struct {
	serviceID uuid.UUID
	quantity  int
}

// resolve validates requested against the doctor's catalog and collapses
// duplicates, preserving first-seen order.
func (r *Reconciler) resolve(ctx context.Context, doctorID uuid.UUID, requested []LineRequest) ([]plannedLine, error) {
	index := make(map[uuid.UUID]int, len(requested))
	var plan []plannedLine
	for _, req := range requested {
		name := strings.TrimSpace(req.Service)
		if name == "" {
			return nil, apperr.Validation("service name is required")
		}
		if req.Quantity < 0 {
			return nil, apperr.Validation("quantity for %q must not be negative, got %d", name, req.Quantity)
		}
		if req.Quantity > maxQuantity {
			return nil, apperr.Validation("quantity for %q must be at most %d, got %d", name, maxQuantity, req.Quantity)
		}
		svc, err := r.catalog.GetService(ctx, doctorID, name)
		if err != nil {
			return nil, err
		}
		if i, ok := index[svc.ID]; ok {
			plan[i].quantity = req.Quantity
			continue
		}
		index[svc.ID] = len(plan)
		plan = append(plan, plannedLine{serviceID: svc.ID, quantity: req.Quantity})
	}
	return plan, nil
}

// Reconcile applies requested to v's lines and returns the resulting line set
// priced at current catalog prices, together with its total.
func (r *Reconciler) Reconcile(ctx context.Context, v *Visit, requested []LineRequest) ([]*Line, decimal.Decimal, error) {
	existing, err := r.lines.ListLines(ctx, v.ID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	current := make(map[uuid.UUID]int, len(existing))
	for _, l := range existing {
		current[l.ServiceID] = l.Quantity
	}

	plan, err := r.resolve(ctx, v.DoctorID, requested)
	if err != nil {
		return nil, decimal.Zero, err
	}

	for _, p := range plan {
		qty, has := current[p.serviceID]
		switch {
		case has && p.quantity == 0:
			err = r.lines.DeleteLine(ctx, v.ID, p.serviceID)
		case has && qty == p.quantity:
			continue
		case p.quantity > 0:
			err = r.lines.UpsertLine(ctx, v.ID, p.serviceID, p.quantity)
		default:
			continue
		}
		if err != nil {
			return nil, decimal.Zero, err
		}
	}

	// Prices are read after all writes so the total reflects the catalog now.
	lines, err := r.lines.ListLines(ctx, v.ID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	total, err := r.Price(ctx, lines)
	if err != nil {
		return nil, decimal.Zero, err
	}
	// The writes above are undone by the caller's transaction.
	if total.GreaterThanOrEqual(maxTotal) {
		return nil, decimal.Zero, apperr.Validation("visit total %s exceeds the maximum of %s", total, maxTotal)
	}
	return lines, total, nil
}

// Price fills each line's ServiceName and UnitPrice from the catalog and
// returns the sum of the subtotals. Lines come back sorted by service name.
func (r *Reconciler) Price(ctx context.Context, lines []*Line) (decimal.Decimal, error) {
	if len(lines) == 0 {
		return decimal.Zero, nil
	}
	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		ids[i] = l.ServiceID
	}
	services, err := r.catalog.ServicesByID(ctx, ids)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, l := range lines {
		svc, ok := services[l.ServiceID]
		if !ok {
			return decimal.Zero, apperr.Internal(nil, "line references missing service "+l.ServiceID.String())
		}
		l.ServiceName = svc.Name
		l.UnitPrice = svc.Price
		total = total.Add(l.Subtotal())
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ServiceName < lines[j].ServiceName })
	return total, nil
}
