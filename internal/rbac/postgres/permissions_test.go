package postgres_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	rbacPostgres "github.com/operio-app/operio/internal/rbac/postgres"
)

func TestRBACPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RBAC Postgres Suite")
}

// SQLite-compatible models for testing
type SQLiteRolePermission struct {
	ID         int64     `gorm:"primaryKey"`
	Role       string    `gorm:"column:role;uniqueIndex:idx_role_permission;not null"`
	Permission string    `gorm:"column:permission;uniqueIndex:idx_role_permission;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (SQLiteRolePermission) TableName() string {
	return "role_permissions"
}

type SQLiteBootstrapMark struct {
	Name        string    `gorm:"primaryKey;column:name"`
	CompletedAt time.Time `gorm:"column:completed_at"`
}

func (SQLiteBootstrapMark) TableName() string {
	return "bootstrap_marks"
}

var _ = Describe("Permission PostgreSQL Store", func() {
	var (
		db    *gorm.DB
		store *rbacPostgres.Store
	)

	defaults := map[string][]string{
		"crm.leads.read": {"sales", "manager"},
		"sessions.admin": {"admin", "master"},
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteRolePermission{}, &SQLiteBootstrapMark{})
		Expect(err).NotTo(HaveOccurred())

		store = rbacPostgres.NewStore(db)
	})

	Describe("Seed", func() {
		It("should insert the defaults on first run", func() {
			seeded, err := store.Seed(defaults)
			Expect(err).NotTo(HaveOccurred())
			Expect(seeded).To(BeTrue())

			matrix, err := store.LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(matrix["crm.leads.read"]).To(Equal([]string{"manager", "sales"}))
			Expect(matrix["sessions.admin"]).To(Equal([]string{"admin", "master"}))
		})

		It("should be a no-op on a second run", func() {
			_, err := store.Seed(defaults)
			Expect(err).NotTo(HaveOccurred())

			seeded, err := store.Seed(defaults)
			Expect(err).NotTo(HaveOccurred())
			Expect(seeded).To(BeFalse())

			var count int64
			Expect(db.Model(&SQLiteRolePermission{}).Count(&count).Error).To(Succeed())
			Expect(count).To(Equal(int64(4)))
		})

		It("should not overwrite operator edits on restart", func() {
			_, err := store.Seed(defaults)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.ReplaceForRole("sales", nil)).To(Succeed())

			seeded, err := store.Seed(defaults)
			Expect(err).NotTo(HaveOccurred())
			Expect(seeded).To(BeFalse())

			matrix, err := store.LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(matrix["crm.leads.read"]).To(Equal([]string{"manager"}))
		})
	})

	Describe("ReplaceForRole", func() {
		It("should swap the role's rows without touching other roles", func() {
			_, err := store.Seed(defaults)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.ReplaceForRole("manager", []string{"sessions.admin"})).To(Succeed())

			matrix, err := store.LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(matrix["crm.leads.read"]).To(Equal([]string{"sales"}))
			Expect(matrix["sessions.admin"]).To(ContainElements("admin", "master", "manager"))
		})

		It("should allow clearing a role entirely", func() {
			_, err := store.Seed(defaults)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.ReplaceForRole("admin", nil)).To(Succeed())

			matrix, err := store.LoadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(matrix["sessions.admin"]).To(Equal([]string{"master"}))
		})
	})
})
