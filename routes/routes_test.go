package routes

import (
	"io"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadflow/notify"
)

func registeredPaths(t *testing.T) map[string]bool {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := fiber.New()
	SetupRoutes(app, db, notify.NewHub(nil, logger), logger)

	paths := make(map[string]bool)
	for _, routes := range app.Stack() {
		for _, route := range routes {
			path := route.Path
			if len(path) > 1 {
				path = strings.TrimSuffix(path, "/")
			}
			paths[route.Method+" "+path] = true
		}
	}
	return paths
}

func TestCoreRoutesRegistered(t *testing.T) {
	paths := registeredPaths(t)

	for _, want := range []string{
		"POST /api/auth/login",
		"POST /api/logout",
		"POST /api/auth/logout",
		"GET /api/auth/me",
		"GET /api/leads",
		"GET /api/leads/export",
		"POST /api/leads/:id/assign",
		"POST /api/leads/:id/pass-to-accounts",
		"GET /api/history/all",
		"POST /api/upload-leads",
		"POST /api/classes/:id/attendance",
		"GET /api/dashboard/stats",
		"GET /ws/notifications",
		"GET /health",
	} {
		assert.True(t, paths[want], "missing route %s", want)
	}
}
