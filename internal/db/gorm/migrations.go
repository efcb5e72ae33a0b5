// Package gorm provides GORM-based database operations for clusterd.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: articles table
		{
			ID: "001_articles",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Article{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("articles")
			},
		},

		// Migration 002: clusters table
		{
			ID: "002_clusters",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Cluster{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("clusters")
			},
		},
	})

	return m.Migrate()
}
