package postgres

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rolePermission struct {
	ID         int64     `gorm:"primaryKey"`
	Role       string    `gorm:"column:role;uniqueIndex:idx_role_permission;not null"`
	Permission string    `gorm:"column:permission;uniqueIndex:idx_role_permission;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (rolePermission) TableName() string {
	return "role_permissions"
}

// bootstrapMark records one-time initialization steps durably, so seeding
// stays idempotent across restarts and multiple process instances.
type bootstrapMark struct {
	Name        string    `gorm:"primaryKey;column:name"`
	CompletedAt time.Time `gorm:"column:completed_at"`
}

func (bootstrapMark) TableName() string {
	return "bootstrap_marks"
}

const permissionSeedMark = "permission_matrix_seed"

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Seed inserts the default matrix exactly once. The claim on the bootstrap
// mark decides the winner when several instances race; losers observe the
// existing mark and load the store as-is.
func (s *Store) Seed(defaults map[string][]string) (bool, error) {
	seeded := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		mark := bootstrapMark{Name: permissionSeedMark, CompletedAt: time.Now()}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&mark)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var rows []rolePermission
		for permission, roles := range defaults {
			for _, role := range roles {
				rows = append(rows, rolePermission{Role: role, Permission: permission})
			}
		}
		if len(rows) == 0 {
			seeded = true
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return err
		}
		seeded = true
		return nil
	})
	return seeded, err
}

// LoadAll returns the matrix keyed by permission name.
func (s *Store) LoadAll() (map[string][]string, error) {
	var rows []rolePermission
	if err := s.db.Order("permission, role").Find(&rows).Error; err != nil {
		return nil, err
	}

	matrix := make(map[string][]string)
	for _, row := range rows {
		matrix[row.Permission] = append(matrix[row.Permission], row.Role)
	}
	return matrix, nil
}

// ReplaceForRole swaps every permission row for one role in a single
// transaction.
func (s *Store) ReplaceForRole(role string, permissions []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role = ?", role).Delete(&rolePermission{}).Error; err != nil {
			return err
		}
		if len(permissions) == 0 {
			return nil
		}
		rows := make([]rolePermission, 0, len(permissions))
		for _, permission := range permissions {
			rows = append(rows, rolePermission{Role: role, Permission: permission})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
}
