// Package store persists tenant domain records in SQLite through GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

// ErrInvalidTransition is returned when a status update is not allowed by
// the domain status machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// domainRow is the table layout for domain.Record.
type domainRow struct {
	ID              string  `gorm:"primaryKey;type:text"`
	TenantID        string  `gorm:"not null;uniqueIndex:idx_tenant_domain"`
	Domain          string  `gorm:"not null;uniqueIndex:idx_tenant_domain"`
	Status          string  `gorm:"not null;default:'pending';index"`
	HostingVerified bool    `gorm:"not null;default:false"`
	ErrorMessage    *string `gorm:"type:text"`
	HostingSiteID   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (domainRow) TableName() string {
	return "domain_records"
}

func (r domainRow) toRecord() domain.Record {
	return domain.Record{
		ID:              r.ID,
		TenantID:        r.TenantID,
		Domain:          r.Domain,
		Status:          domain.Status(r.Status),
		HostingVerified: r.HostingVerified,
		ErrorMessage:    r.ErrorMessage,
		HostingSiteID:   r.HostingSiteID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Store is the Domain Record Store.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens (or creates) the SQLite database at path and migrates the schema.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, &domain.PersistenceError{Operation: "open", Err: err}
	}

	s.logger.Debug("migrating database", slog.String("path", path))
	if err := db.AutoMigrate(&domainRow{}); err != nil {
		return nil, &domain.PersistenceError{Operation: "migrate", Err: err}
	}

	s.db = db
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &domain.PersistenceError{Operation: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &domain.PersistenceError{Operation: "ping", Err: err}
	}
	return nil
}

// List returns the tenant's records that are not removed, sorted by domain.
func (s *Store) List(ctx context.Context, tenantID string) ([]domain.Record, error) {
	var rows []domainRow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND status <> ?", tenantID, string(domain.StatusRemoved)).
		Order("domain").
		Find(&rows).Error
	if err != nil {
		return nil, &domain.PersistenceError{Operation: "list", Err: err}
	}

	records := make([]domain.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toRecord())
	}
	return records, nil
}

// Tenants returns every tenant that has at least one active record.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	var tenants []string
	err := s.db.WithContext(ctx).Model(&domainRow{}).
		Where("status <> ?", string(domain.StatusRemoved)).
		Distinct().Order("tenant_id").
		Pluck("tenant_id", &tenants).Error
	if err != nil {
		return nil, &domain.PersistenceError{Operation: "list tenants", Err: err}
	}
	return tenants, nil
}

// Get returns the record for tenantID and d, including removed records.
// A missing record yields an error matching domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, tenantID, d string) (domain.Record, error) {
	d = domain.Normalize(d)
	row, err := s.find(s.db.WithContext(ctx), tenantID, d)
	if err != nil {
		return domain.Record{}, err
	}
	return row.toRecord(), nil
}

// Create inserts a new record. The domain is normalized and the record
// invariants are checked. Creating a domain whose previous record was
// removed replaces that record.
func (s *Store) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	d, err := domain.NormalizeAndValidate(rec.Domain)
	if err != nil {
		return domain.Record{}, err
	}
	rec.Domain = d
	if rec.Status == "" {
		rec.Status = domain.StatusPending
	}
	if err := checkInvariants(rec); err != nil {
		return domain.Record{}, err
	}

	var out domainRow
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.find(tx, rec.TenantID, d)
		revive := err == nil
		switch {
		case revive && existing.Status != string(domain.StatusRemoved):
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, d)
		case revive:
			out = existing
		case !domain.IsNotFound(err):
			return err
		default:
			out = domainRow{ID: uuid.NewString(), TenantID: rec.TenantID, Domain: d}
		}

		out.Status = string(rec.Status)
		out.HostingVerified = rec.HostingVerified
		out.ErrorMessage = rec.ErrorMessage
		out.HostingSiteID = rec.HostingSiteID
		if revive {
			return tx.Save(&out).Error
		}
		return tx.Create(&out).Error
	})
	if err != nil {
		return domain.Record{}, s.wrap("create", err)
	}

	s.logger.Debug("domain record created",
		slog.String("tenant", rec.TenantID),
		slog.String("domain", d),
		slog.String("status", string(rec.Status)),
	)
	return out.toRecord(), nil
}

// StatusUpdate describes a status transition and the fields written with it.
type StatusUpdate struct {
	Status          domain.Status
	HostingVerified bool
	// ErrorMessage is required when Status is error and cleared otherwise.
	ErrorMessage string
	// HostingSiteID is written when non-empty.
	HostingSiteID string
}

// SetStatus applies a status transition to an existing record. Transitions
// not allowed by domain.CanTransition return ErrInvalidTransition.
func (s *Store) SetStatus(ctx context.Context, tenantID, d string, upd StatusUpdate) (domain.Record, error) {
	d = domain.Normalize(d)

	var out domainRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.find(tx, tenantID, d)
		if err != nil {
			return err
		}

		from := domain.Status(row.Status)
		if !domain.CanTransition(from, upd.Status) {
			return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, from, upd.Status, d)
		}

		rec := row.toRecord()
		rec.Status = upd.Status
		rec.HostingVerified = upd.HostingVerified
		rec.ErrorMessage = nil
		if upd.Status == domain.StatusError && upd.ErrorMessage != "" {
			msg := upd.ErrorMessage
			rec.ErrorMessage = &msg
		}
		if err := checkInvariants(rec); err != nil {
			return err
		}

		row.Status = string(rec.Status)
		row.HostingVerified = rec.HostingVerified
		row.ErrorMessage = rec.ErrorMessage
		if upd.HostingSiteID != "" {
			row.HostingSiteID = upd.HostingSiteID
		}
		out = row
		return tx.Save(&out).Error
	})
	if err != nil {
		return domain.Record{}, s.wrap("set status", err)
	}

	s.logger.Debug("domain status updated",
		slog.String("tenant", tenantID),
		slog.String("domain", d),
		slog.String("status", string(upd.Status)),
	)
	return out.toRecord(), nil
}

// MarkRemoved soft-deletes a record by setting its status to removed.
func (s *Store) MarkRemoved(ctx context.Context, tenantID, d string) (domain.Record, error) {
	return s.SetStatus(ctx, tenantID, d, StatusUpdate{Status: domain.StatusRemoved})
}

// Delete permanently deletes a record.
func (s *Store) Delete(ctx context.Context, tenantID, d string) error {
	d = domain.Normalize(d)
	res := s.db.WithContext(ctx).
		Where("tenant_id = ? AND domain = ?", tenantID, d).
		Delete(&domainRow{})
	if res.Error != nil {
		return &domain.PersistenceError{Operation: "delete", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, d)
	}
	return nil
}

func (s *Store) find(tx *gorm.DB, tenantID, d string) (domainRow, error) {
	var row domainRow
	err := tx.Where("tenant_id = ? AND domain = ?", tenantID, d).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainRow{}, fmt.Errorf("%w: %s", domain.ErrNotFound, d)
	}
	if err != nil {
		return domainRow{}, &domain.PersistenceError{Operation: "get", Err: err}
	}
	return row, nil
}

// wrap leaves taxonomy errors untouched and converts everything else into
// a *domain.PersistenceError.
func (s *Store) wrap(operation string, err error) error {
	var per *domain.PersistenceError
	switch {
	case errors.As(err, &per),
		domain.IsNotFound(err),
		domain.IsValidation(err),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, ErrInvalidTransition):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
	default:
		return &domain.PersistenceError{Operation: operation, Err: err}
	}
}

func checkInvariants(rec domain.Record) error {
	if strings.TrimSpace(rec.TenantID) == "" {
		return &domain.ValidationError{Field: "tenantId", Message: "required"}
	}
	if !rec.Status.Valid() {
		return &domain.ValidationError{Field: "status", Value: string(rec.Status), Message: "unknown status"}
	}
	if rec.Status == domain.StatusError && !rec.HasError() {
		return &domain.ValidationError{Field: "errorMessage", Message: "required when status is error"}
	}
	return nil
}
