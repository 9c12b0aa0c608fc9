package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/auth"
	"github.com/alexberardi/jarvis-recipes-server/internal/extract"
	"github.com/alexberardi/jarvis-recipes-server/internal/handler"
	"github.com/alexberardi/jarvis-recipes-server/internal/middleware"
	"github.com/alexberardi/jarvis-recipes-server/internal/queue"
	"github.com/alexberardi/jarvis-recipes-server/internal/service"
	"github.com/alexberardi/jarvis-recipes-server/internal/store"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *store.Store
}

// setupApp creates a Fiber app identical to main.go but with a temp
// SQLite database and unconfigured external clients (no LLM, no OCR,
// no object storage).
func setupApp(t *testing.T) *testApp {
	t.Helper()

	logger := zap.NewNop()

	st, err := store.Open(filepath.Join(t.TempDir(), "e2e.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	// Redis (localhost — must be running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	// Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	publisher := queue.NewPublisher(asynqClient, logger)
	validate := validator.New()

	// Extraction chain without the model fallback
	fetcher := extract.NewFetcher("jarvis-recipes-e2e", "", logger)
	orchestrator := extract.NewOrchestrator(fetcher, nil, logger)

	// Services — nil storage client: image uploads are not exercised here
	ingestService := service.NewIngestService(st, publisher, orchestrator, fetcher, nil, logger)
	mealPlanService := service.NewMealPlanService(st, publisher, logger)

	// Handlers
	recipesHandler := handler.NewRecipesHandler(ingestService, validate, 3)
	mealPlanHandler := handler.NewMealPlanHandler(mealPlanService, validate)

	// Auth middleware — legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 80 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"llm":     false,
				"ocr":     false,
				"storage": false,
				"auth":    true,
			},
		})
	})

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	recipes := api.Group("/recipes")
	recipes.Post("/import/url", rateLimiter.ImportLimit(10000), recipesHandler.ImportURL)
	recipes.Post("/import/preflight", rateLimiter.PreflightLimit(10000), recipesHandler.Preflight)
	recipes.Post("/ingest", rateLimiter.IngestLimit(10000), recipesHandler.Ingest)

	jobs := recipes.Group("/jobs", rateLimiter.JobReadLimit(10000))
	jobs.Get("/:jobId", recipesHandler.Status)
	jobs.Get("/:jobId/result", recipesHandler.Result)
	jobs.Post("/:jobId/cancel", recipesHandler.Cancel)
	jobs.Post("/:jobId/commit", recipesHandler.Commit)
	jobs.Post("/:jobId/retry", recipesHandler.Retry)

	mealplan := api.Group("/mealplan", rateLimiter.MealPlanLimit(10000))
	mealplan.Post("/generate", mealPlanHandler.Generate)

	return &testApp{app: app, store: st}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: testUserID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "jarvis-recipes-server",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
