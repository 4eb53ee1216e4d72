package cmd

import (
	"fmt"
	"log"

	"github.com/operio-app/operio/internal/rbac"
	rbacPostgres "github.com/operio-app/operio/internal/rbac/postgres"
	"github.com/operio-app/operio/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample users per role and the default permission matrix.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: db.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open gorm connection: %v", err)
		}

		if clearData {
			fmt.Println("clearing sessions and role_permissions")
			if err := gormDB.Exec("DELETE FROM sessions").Error; err != nil {
				log.Fatalf("failed to clear sessions: %v", err)
			}
			if err := gormDB.Exec("DELETE FROM role_permissions").Error; err != nil {
				log.Fatalf("failed to clear role_permissions: %v", err)
			}
			if err := gormDB.Exec("DELETE FROM bootstrap_marks").Error; err != nil {
				log.Fatalf("failed to clear bootstrap_marks: %v", err)
			}
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), cfg.Security.BCryptCost)

		seedUsers := []struct {
			Email string
			Name  string
			Role  rbac.Role
		}{
			{"tech@operio.local", "Sample Technician", rbac.RoleTechnician},
			{"agent@operio.local", "Sample Agent", rbac.RoleAgent},
			{"sales@operio.local", "Sample Sales", rbac.RoleSales},
			{"manager@operio.local", "Sample Manager", rbac.RoleManager},
			{"admin@operio.local", "Sample Admin", rbac.RoleAdmin},
			{"master@operio.local", "Sample Master", rbac.RoleMaster},
		}

		for _, su := range seedUsers {
			var exists int
			row := gormDB.Raw("SELECT 1 FROM users WHERE email = ?", su.Email).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Printf("user %s already exists; skipping\n", su.Email)
				continue
			}

			err := gormDB.Exec(
				"INSERT INTO users (email, name, password_hash, role, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, true, now(), now())",
				su.Email, su.Name, string(hash), string(su.Role),
			).Error
			if err != nil {
				log.Fatalf("failed to insert user %s: %v", su.Email, err)
			}
			fmt.Printf("seeded user %s (%s)\n", su.Email, su.Role)
		}

		matrix := rbac.NewMatrix(rbacPostgres.NewStore(gormDB), logger.L())
		if err := matrix.Bootstrap(); err != nil {
			log.Fatalf("failed to seed permission matrix: %v", err)
		}
		fmt.Println("permission matrix ready")
	},
}
