package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/geo"
)

func squareBoundary() []geo.Point {
	return []geo.Point{
		{Lon: -17.46, Lat: 14.68}, {Lon: -17.40, Lat: 14.68},
		{Lon: -17.40, Lat: 14.72}, {Lon: -17.46, Lat: 14.72},
	}
}

func TestZoneCreate_ValidationAndClosure(t *testing.T) {
	db := newServiceDB(t)
	svc := newZoneService(db)

	if _, err := svc.Create(context.Background(), CreateZoneInput{Name: " ", Boundary: squareBoundary()}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("blank name must be rejected, got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateZoneInput{
		Name:     "ligne",
		Boundary: []geo.Point{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 1}},
	}); !errors.Is(err, ErrInvalidBoundary) {
		t.Fatalf("degenerate boundary must be rejected, got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateZoneInput{
		Name:      "bad risk",
		RiskLevel: "extreme",
		Boundary:  squareBoundary(),
	}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("unknown risk level must be rejected, got %v", err)
	}

	z, err := svc.Create(context.Background(), CreateZoneInput{Name: "medina", Boundary: squareBoundary()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !z.Boundary.Closed() {
		t.Fatalf("open boundary must be closed on create: %+v", z.Boundary)
	}
	if z.RiskLevel != domain.RiskMedium {
		t.Fatalf("risk level must default to medium, got %q", z.RiskLevel)
	}

	if _, err := svc.Create(context.Background(), CreateZoneInput{Name: "medina", Boundary: squareBoundary()}); !errors.Is(err, ErrZoneExists) {
		t.Fatalf("duplicate name must be rejected, got %v", err)
	}
}

func TestZoneContaining(t *testing.T) {
	db := newServiceDB(t)
	svc := newZoneService(db)

	z, err := svc.Create(context.Background(), CreateZoneInput{Name: "medina", Boundary: squareBoundary()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	inside, err := svc.Containing(context.Background(), geo.Point{Lon: -17.43, Lat: 14.70})
	if err != nil {
		t.Fatalf("Containing: %v", err)
	}
	if len(inside) != 1 || inside[0].ID != z.ID {
		t.Fatalf("expected the square zone, got %+v", inside)
	}

	outside, err := svc.Containing(context.Background(), geo.Point{Lon: -17.30, Lat: 14.70})
	if err != nil {
		t.Fatalf("Containing: %v", err)
	}
	if len(outside) != 0 {
		t.Fatalf("expected no zones, got %+v", outside)
	}
}

func TestZoneListPage_InspectionFlags(t *testing.T) {
	db := newServiceDB(t)
	svc := newZoneService(db)

	fresh, err := svc.Create(context.Background(), CreateZoneInput{Name: "plateau", RiskLevel: domain.RiskLow, Boundary: squareBoundary()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.MarkInspected(context.Background(), fresh.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkInspected: %v", err)
	}

	// Never inspected: always due.
	if _, err := svc.Create(context.Background(), CreateZoneInput{Name: "medina", RiskLevel: domain.RiskCritical, Boundary: squareBoundary()}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	page, total, err := svc.ListPage(context.Background(), "", 1, 10)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 2 || len(page) != 2 {
		t.Fatalf("expected 2 zones, got total=%d len=%d", total, len(page))
	}
	// Critical-first ordering puts medina ahead of plateau.
	if page[0].Zone.Name != "medina" || !page[0].NeedsInspection {
		t.Fatalf("never-inspected critical zone must lead and be due: %+v", page[0])
	}
	if page[1].Zone.Name != "plateau" || page[1].NeedsInspection {
		t.Fatalf("freshly inspected low zone must not be due: %+v", page[1])
	}

	if _, _, err := svc.ListPage(context.Background(), "extreme", 1, 10); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("unknown risk filter must be rejected, got %v", err)
	}

	if err := svc.MarkInspected(context.Background(), "missing", time.Now().UTC()); !errors.Is(err, ErrZoneNotFound) {
		t.Fatalf("expected ErrZoneNotFound, got %v", err)
	}
}

func TestZoneRecordAlert(t *testing.T) {
	db := newServiceDB(t)
	svc := newZoneService(db)

	z, err := svc.Create(context.Background(), CreateZoneInput{Name: "medina", Boundary: squareBoundary()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	at := time.Now().UTC()
	hit, err := svc.RecordAlert(context.Background(), geo.Point{Lon: -17.43, Lat: 14.70}, at)
	if err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	if len(hit) != 1 || hit[0] != z.ID {
		t.Fatalf("expected hit on %s, got %v", z.ID, hit)
	}

	got, err := svc.Get(context.Background(), z.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AlertCount != 1 || got.LastAlertDate == nil {
		t.Fatalf("counter not moved: count=%d date=%v", got.AlertCount, got.LastAlertDate)
	}

	none, err := svc.RecordAlert(context.Background(), geo.Point{Lon: 0, Lat: 0}, at)
	if err != nil {
		t.Fatalf("RecordAlert (outside): %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no hits, got %v", none)
	}
}

func TestZoneHotspots_AnnotatesContainingZones(t *testing.T) {
	db := newServiceDB(t)
	zones := newZoneService(db)
	ingest := newIngestionService(db)

	if _, err := zones.Create(context.Background(), CreateZoneInput{Name: "medina", RiskLevel: domain.RiskHigh, Boundary: squareBoundary()}); err != nil {
		t.Fatalf("create zone: %v", err)
	}

	// Five alerts within ~0.5 km of each other inside the square zone.
	offsets := []float64{0, 0.001, 0.002, 0.003, 0.004}
	for i, d := range offsets {
		p := validIngestPayload(spotID(i))
		p.Location.Coordinates = [2]float64{-17.43 + d, 14.70}
		if _, err := ingest.Ingest(context.Background(), originService, p); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	spots, err := zones.Hotspots(context.Background())
	if err != nil {
		t.Fatalf("Hotspots: %v", err)
	}
	if len(spots) == 0 {
		t.Fatalf("expected at least one hotspot")
	}
	if spots[0].Density < 5 {
		t.Fatalf("expected density >= 5, got %d", spots[0].Density)
	}
	if len(spots[0].Zones) != 1 || spots[0].Zones[0].Name != "medina" {
		t.Fatalf("hotspot must be annotated with its containing zone: %+v", spots[0].Zones)
	}
}

func TestZoneHotspots_EmptySnapshot(t *testing.T) {
	db := newServiceDB(t)
	svc := newZoneService(db)

	spots, err := svc.Hotspots(context.Background())
	if err != nil {
		t.Fatalf("Hotspots: %v", err)
	}
	if len(spots) != 0 {
		t.Fatalf("expected no hotspots, got %+v", spots)
	}
}

func spotID(i int) string {
	return "spot-" + string(rune('a'+i))
}
