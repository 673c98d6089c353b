// cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/leadflow-backend/internal/auth"
	"github.com/unclebandit/leadflow-backend/internal/config"
	"github.com/unclebandit/leadflow-backend/internal/db"
	"github.com/unclebandit/leadflow-backend/internal/model"
)

// The seeder applies the schema, loads demo data and upserts an admin user.
func main() {
	schemaOnly := flag.Bool("schema-only", false, "apply migrations without demo data")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DSN(), db.Options{MaxIdleConns: 1, MaxOpenConns: 1})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer conn.Close()

	seedFiles := []string{"migrations/schema.sql"}
	if !*schemaOnly {
		seedFiles = append(seedFiles, "seed/demo.sql")
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			logrus.WithError(err).Fatalf("failed to read %s", file)
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			logrus.WithError(err).Fatalf("failed to execute %s", file)
		}
		logrus.WithField("file", file).Info("Seeded")
	}

	if *schemaOnly {
		return
	}
	if err := upsertAdmin(ctx, conn); err != nil {
		logrus.WithError(err).Fatal("Failed to create admin user")
	}
	logrus.Info("Database seeding completed successfully!")
}

func upsertAdmin(ctx context.Context, conn *sql.DB) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		logrus.Info("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin user")
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	var orgID string
	err = conn.QueryRowContext(ctx, `SELECT id FROM organizations ORDER BY created_at LIMIT 1`).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.New("no organization to attach the admin to")
	}
	if err != nil {
		return err
	}

	_, err = conn.ExecContext(ctx, `
        INSERT INTO users (org_id, email, password_hash, role)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role
    `, orgID, email, hash, model.RoleAdmin)
	if err != nil {
		return err
	}
	logrus.WithField("email", email).Info("Admin user ready")
	return nil
}
