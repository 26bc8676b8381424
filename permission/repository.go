package permission

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KOMKZ/go-accessctl-framework/storage"
)

// StoredPermission one persisted row, keyed by qualified service name
type StoredPermission struct {
	Service string
	Subject string
	Allow   bool
}

// Repository persistence interface for permission rows
type Repository interface {
	// Get returns the row for (service, subject), nil when absent
	Get(ctx context.Context, svc, subject string) (*StoredPermission, error)

	// Upsert writes the row, overwriting any existing value
	Upsert(ctx context.Context, svc, subject string, allow bool) error

	// Delete removes the row, reporting whether it existed
	Delete(ctx context.Context, svc, subject string) (bool, error)

	// ListByService returns all rows stored for a service
	ListByService(ctx context.Context, svc string) ([]StoredPermission, error)

	// ListBySubject returns all rows stored for a subject
	ListBySubject(ctx context.Context, subject string) ([]StoredPermission, error)

	// ListAll returns every stored row
	ListAll(ctx context.Context) ([]StoredPermission, error)
}

// GormRepository Repository backed by the storage manager
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a gorm-backed permission repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Get implements Repository
func (r *GormRepository) Get(ctx context.Context, svc, subject string) (*StoredPermission, error) {
	var row storage.PermissionModel
	err := r.db.WithContext(ctx).
		Where("service = ? AND subject = ?", svc, subject).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &StoredPermission{Service: row.Service, Subject: row.Subject, Allow: row.Allow}, nil
}

// Upsert implements Repository
func (r *GormRepository) Upsert(ctx context.Context, svc, subject string, allow bool) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "service"}, {Name: "subject"}},
			DoUpdates: clause.AssignmentColumns([]string{"allow"}),
		}).
		Create(&storage.PermissionModel{Service: svc, Subject: subject, Allow: allow}).Error
}

// Delete implements Repository
func (r *GormRepository) Delete(ctx context.Context, svc, subject string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("service = ? AND subject = ?", svc, subject).
		Delete(&storage.PermissionModel{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByService implements Repository
func (r *GormRepository) ListByService(ctx context.Context, svc string) ([]StoredPermission, error) {
	var rows []storage.PermissionModel
	if err := r.db.WithContext(ctx).Where("service = ?", svc).Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromModels(rows), nil
}

// ListBySubject implements Repository
func (r *GormRepository) ListBySubject(ctx context.Context, subject string) ([]StoredPermission, error) {
	var rows []storage.PermissionModel
	if err := r.db.WithContext(ctx).Where("subject = ?", subject).Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromModels(rows), nil
}

// ListAll implements Repository
func (r *GormRepository) ListAll(ctx context.Context) ([]StoredPermission, error) {
	var rows []storage.PermissionModel
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromModels(rows), nil
}

func fromModels(rows []storage.PermissionModel) []StoredPermission {
	out := make([]StoredPermission, len(rows))
	for i, row := range rows {
		out[i] = StoredPermission{Service: row.Service, Subject: row.Subject, Allow: row.Allow}
	}
	return out
}
