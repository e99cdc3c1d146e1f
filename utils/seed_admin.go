package utils

import (
	"context"
	"fmt"

	"github.com/princinho/eldercarebackend/logging"
	"github.com/princinho/eldercarebackend/services"
	"go.uber.org/zap"
)

// SeedAdminUser creates the bootstrap admin account if its email is not
// registered yet.
func SeedAdminUser(ctx context.Context, users *services.UserService, email, password, name string, log *zap.Logger) error {
	if email == "" || password == "" {
		return fmt.Errorf("missing ADMIN_EMAIL or ADMIN_PASSWORD env vars")
	}

	created, err := users.EnsureAdmin(ctx, email, password, name)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if created {
		log.Info("Admin user seeded", zap.String("email", logging.MaskEmail(email)))
	} else {
		log.Info("Admin user already exists", zap.String("email", logging.MaskEmail(email)))
	}
	return nil
}
