package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/geo"
	"github.com/iburossy/bolle-backend/internal/relay"
	"github.com/iburossy/bolle-backend/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(
		&domain.Alert{}, &domain.Proof{}, &domain.StatusChange{}, &domain.AlertComment{},
		&domain.DomainAlert{}, &domain.Attachment{}, &domain.DomainComment{},
		&domain.Zone{}, &domain.Service{}, &domain.OutboxMessage{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// Repo shims proxying the free functions, mirroring the wiring in router.go.

type alertRepoShim struct{}

func (alertRepoShim) CreateAlert(ctx context.Context, db *gorm.DB, a *domain.Alert) error {
	return repo.CreateAlert(ctx, db, a)
}
func (alertRepoShim) GetAlert(ctx context.Context, db *gorm.DB, id string) (*domain.Alert, error) {
	return repo.GetAlert(ctx, db, id)
}
func (alertRepoShim) CountAlertsByCitizen(ctx context.Context, db *gorm.DB, citizenID string) (int64, error) {
	return repo.CountAlertsByCitizen(ctx, db, citizenID)
}
func (alertRepoShim) ListAlertsByCitizenPage(ctx context.Context, db *gorm.DB, citizenID string, offset, limit int) ([]domain.Alert, error) {
	return repo.ListAlertsByCitizenPage(ctx, db, citizenID, offset, limit)
}
func (alertRepoShim) ListAlertsInBox(ctx context.Context, db *gorm.DB, minLat, maxLat, minLon, maxLon float64, limit int) ([]domain.Alert, error) {
	return repo.ListAlertsInBox(ctx, db, minLat, maxLat, minLon, maxLon, limit)
}
func (alertRepoShim) AppendAlertComment(ctx context.Context, db *gorm.DB, alertID, author, text string, fromService bool) (*domain.AlertComment, error) {
	return repo.AppendAlertComment(ctx, db, alertID, author, text, fromService)
}
func (alertRepoShim) AppendStatusChange(ctx context.Context, db *gorm.DB, alertID string, status domain.AlertStatus, comment, actor string) error {
	return repo.AppendStatusChange(ctx, db, alertID, status, comment, actor)
}
func (alertRepoShim) SetRelayReference(ctx context.Context, db *gorm.DB, alertID, reference string) error {
	return repo.SetRelayReference(ctx, db, alertID, reference)
}

type directoryShim struct{}

func (directoryShim) GetService(ctx context.Context, db *gorm.DB, id string) (*domain.Service, error) {
	return repo.GetService(ctx, db, id)
}
func (directoryShim) FindServiceByCategory(ctx context.Context, db *gorm.DB, category string) (*domain.Service, error) {
	return repo.FindServiceByCategory(ctx, db, category)
}

type domainAlertRepoShim struct{}

func (domainAlertRepoShim) CreateDomainAlert(ctx context.Context, db *gorm.DB, rec *domain.DomainAlert) error {
	return repo.CreateDomainAlert(ctx, db, rec)
}
func (domainAlertRepoShim) FindByOriginRef(ctx context.Context, db *gorm.DB, originServiceID, originAlertID string) (*domain.DomainAlert, error) {
	return repo.FindByOriginRef(ctx, db, originServiceID, originAlertID)
}
func (domainAlertRepoShim) GetDomainAlert(ctx context.Context, db *gorm.DB, id string) (*domain.DomainAlert, error) {
	return repo.GetDomainAlert(ctx, db, id)
}
func (domainAlertRepoShim) CountDomainAlerts(ctx context.Context, db *gorm.DB, status domain.DomainStatus, category string) (int64, error) {
	return repo.CountDomainAlerts(ctx, db, status, category)
}
func (domainAlertRepoShim) ListDomainAlertsPage(ctx context.Context, db *gorm.DB, status domain.DomainStatus, category string, offset, limit int) ([]domain.DomainAlert, error) {
	return repo.ListDomainAlertsPage(ctx, db, status, category, offset, limit)
}
func (domainAlertRepoShim) UpdateDomainStatus(ctx context.Context, db *gorm.DB, id string, status domain.DomainStatus) error {
	return repo.UpdateDomainStatus(ctx, db, id, status)
}
func (domainAlertRepoShim) AppendDomainComment(ctx context.Context, db *gorm.DB, domainAlertID, author, text string) (*domain.DomainComment, error) {
	return repo.AppendDomainComment(ctx, db, domainAlertID, author, text)
}
func (domainAlertRepoShim) MarkZoneUpdated(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	return repo.MarkZoneUpdated(ctx, db, id)
}

type zoneRepoShim struct{}

func (zoneRepoShim) CreateZone(ctx context.Context, db *gorm.DB, z *domain.Zone) error {
	return repo.CreateZone(ctx, db, z)
}
func (zoneRepoShim) GetZone(ctx context.Context, db *gorm.DB, id string) (*domain.Zone, error) {
	return repo.GetZone(ctx, db, id)
}
func (zoneRepoShim) CountZones(ctx context.Context, db *gorm.DB, risk domain.RiskLevel) (int64, error) {
	return repo.CountZones(ctx, db, risk)
}
func (zoneRepoShim) ListZonesPage(ctx context.Context, db *gorm.DB, risk domain.RiskLevel, offset, limit int) ([]domain.Zone, error) {
	return repo.ListZonesPage(ctx, db, risk, offset, limit)
}
func (zoneRepoShim) ListAllZones(ctx context.Context, db *gorm.DB) ([]domain.Zone, error) {
	return repo.ListAllZones(ctx, db)
}
func (zoneRepoShim) IncrementZoneAlert(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return repo.IncrementZoneAlert(ctx, db, id, at)
}
func (zoneRepoShim) TouchInspection(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return repo.TouchInspection(ctx, db, id, at)
}

type coordShim struct{}

func (coordShim) ListDomainAlertCoordinates(ctx context.Context, db *gorm.DB) ([]geo.Point, error) {
	return repo.ListDomainAlertCoordinates(ctx, db)
}

type outboxShim struct{}

func (outboxShim) EnqueueOutbox(ctx context.Context, db *gorm.DB, msg *domain.OutboxMessage) error {
	return repo.EnqueueOutbox(ctx, db, msg)
}

// fakePusher is a recording stand-in for the relay client.
type fakePusher struct {
	ref string
	err error

	alerts   []relay.AlertPayload
	comments []relay.CommentPayload
	statuses []relay.StatusPayload
}

func (f *fakePusher) PushAlert(_ context.Context, _ string, p relay.AlertPayload) (string, error) {
	f.alerts = append(f.alerts, p)
	if f.err != nil {
		return "", f.err
	}
	return f.ref, nil
}

func (f *fakePusher) PushComment(_ context.Context, _, _ string, p relay.CommentPayload) error {
	f.comments = append(f.comments, p)
	return f.err
}

func (f *fakePusher) PushStatus(_ context.Context, _ string, p relay.StatusPayload) error {
	f.statuses = append(f.statuses, p)
	return f.err
}

func seedDirectory(t *testing.T, db *gorm.DB, id, category string, active bool) *domain.Service {
	t.Helper()
	s := &domain.Service{
		ID:        id,
		Name:      "Service " + category,
		Category:  category,
		BaseURL:   "http://" + id + ".local",
		IsActive:  active,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed service: %v", err)
	}
	return s
}

func newAlertService(db *gorm.DB, push *fakePusher) *AlertService {
	return &AlertService{
		DB:           db,
		Repo:         alertRepoShim{},
		Directory:    directoryShim{},
		Relay:        push,
		Outbox:       outboxShim{},
		NearbyMaxKm:  5,
		RetryBackoff: 30 * time.Second,
		Log:          zerolog.Nop(),
	}
}

func newZoneService(db *gorm.DB) *ZoneService {
	return &ZoneService{
		DB:               db,
		Repo:             zoneRepoShim{},
		Coords:           coordShim{},
		HotspotRadiusKm:  1,
		HotspotMinPoints: 5,
		Log:              zerolog.Nop(),
	}
}

func newIngestionService(db *gorm.DB) *IngestionService {
	return &IngestionService{
		DB:    db,
		Repo:  domainAlertRepoShim{},
		Zones: newZoneService(db),
		Log:   zerolog.Nop(),
	}
}

func newBridgeService(db *gorm.DB, push *fakePusher) *BridgeService {
	return &BridgeService{
		DB:           db,
		Repo:         domainAlertRepoShim{},
		Directory:    directoryShim{},
		Relay:        push,
		Outbox:       outboxShim{},
		RetryBackoff: 30 * time.Second,
		Log:          zerolog.Nop(),
	}
}

func validCreateInput() CreateAlertInput {
	return CreateAlertInput{
		CitizenID:   "citizen-1",
		Category:    "hygiene",
		Description: "depot d'ordures pres du marche",
		Lon:         -17.43,
		Lat:         14.70,
		Address:     "Marche Tilene",
		Proofs:      []ProofInput{{Kind: domain.ProofImage, URL: "https://cdn.example/p1.jpg"}},
	}
}

func validIngestPayload(alertID string) relay.AlertPayload {
	return relay.AlertPayload{
		AlertID:     alertID,
		Category:    "hygiene",
		Description: "depot d'ordures pres du marche",
		Location: &relay.GeoPoint{
			Type:        "Point",
			Coordinates: [2]float64{-17.43, 14.70},
			Address:     "Marche Tilene",
		},
		Proofs:    []relay.ProofPayload{{Type: "photo", URL: "https://cdn.example/p1.jpg"}},
		CitizenID: "citizen-1",
		CreatedAt: time.Now().UTC(),
	}
}
