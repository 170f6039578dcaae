package utils

import "time"

const (
	// AdminRole is the JWT role claim required on admin payment routes.
	AdminRole = "admin"

	HealthCheckInterval = 60 * time.Second
	AdminTokenTTL       = 12 * time.Hour
)
