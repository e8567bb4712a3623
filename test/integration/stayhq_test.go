package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/stayhq/reservations/internal/adapters/mongo"
	"github.com/stayhq/reservations/internal/adapters/postgres"
	"github.com/stayhq/reservations/internal/adapters/rabbit"
	redisadapter "github.com/stayhq/reservations/internal/adapters/redis"
	"github.com/stayhq/reservations/internal/booking"
	"github.com/stayhq/reservations/internal/config"
	"github.com/stayhq/reservations/internal/domain"
	"github.com/stayhq/reservations/internal/expiry"
	httphandler "github.com/stayhq/reservations/internal/http"
	"github.com/stayhq/reservations/internal/idempotency"
	"github.com/stayhq/reservations/internal/notify"
	"github.com/stayhq/reservations/internal/observability"
	"github.com/stayhq/reservations/internal/payments"
	"github.com/stayhq/reservations/internal/pricing"
	"github.com/stayhq/reservations/internal/rateLimit"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const callbackToken = "test-callback-token"

func TestIntegration_ReservationLifecycle(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16",
			Env:          map[string]string{"POSTGRES_PASSWORD": "test", "POSTGRES_DB": "stayhq"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pgContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongosh", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	pgHost, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}
	mongoHost, err := mongoContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatal(err)
	}
	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}
	rabbitHost, err := rabbitContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rabbitPort, err := rabbitContainer.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		DatabaseDSN:   "postgresql://postgres:test@" + pgHost + ":" + pgPort.Port() + "/stayhq?sslmode=disable",
		MongoURI:      "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:     redisHost + ":" + redisPort.Port(),
		RabbitURL:     "amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/",
		CallbackToken: callbackToken,
		HoldTTL:       300 * time.Second,
		OTLPEndpoint:  "", // Skip otel for test
	}

	// Setup dependencies
	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	schema, err := os.ReadFile("../../scripts/schema.sql")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatal(err)
	}
	repo := postgres.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	logger := observability.NewLogger()
	auditor := mongoadapter.NewAuditLogger(mongoClient.Database("stayhq"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}

	sweeper := expiry.NewSweeper(repo, logger)
	pricer := pricing.NewCalculator(repo)
	notifier := notify.NewRabbitNotifier(rabbitPub)
	svc := booking.NewService(repo, pricer, sweeper, notifier, auditor, nil, cfg.HoldTTL, logger)
	reconciler := payments.NewReconciler(repo, cfg.CallbackToken, logger)

	handlers := httphandler.NewHandlers(cfg, svc, repo, sweeper, reconciler, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{Addr: ":8081", Handler: r}
	go func() {
		srv.ListenAndServe()
	}()
	defer srv.Shutdown(ctx)
	time.Sleep(200 * time.Millisecond)

	// Seed one property with one bookable room type.
	ownerID := uuid.New()
	guestID := uuid.New()
	propertyID := uuid.New()
	roomTypeID := uuid.New()
	if _, err := pool.Exec(ctx, `
		INSERT INTO properties (id, owner_id, name, rental_mode)
		VALUES ($1, $2, 'Seaview', 'ROOM_BY_ROOM')
	`, propertyID, ownerID); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO room_types (id, property_id, name, base_rate, total_capacity)
		VALUES ($1, $2, 'Standard', 100, 2)
	`, roomTypeID, propertyID); err != nil {
		t.Fatal(err)
	}

	base := "http://localhost:8081"

	// Create a manual-transfer reservation.
	createReq := map[string]interface{}{
		"property_id":    propertyID.String(),
		"room_type_id":   roomTypeID.String(),
		"start_date":     "2026-03-10",
		"end_date":       "2026-03-13",
		"payment_method": "MANUAL_TRANSFER",
	}
	createBody, _ := json.Marshal(createReq)
	req, _ := http.NewRequest("POST", base+"/v1/reservations", bytes.NewReader(createBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	req.Header.Set("X-User-ID", guestID.String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create failed: %v, status: %d", err, resp.StatusCode)
	}
	var created struct {
		ReservationID uuid.UUID `json:"reservation_id"`
		Status        string    `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	if created.Status != "PENDING_PAYMENT" {
		t.Fatalf("expected PENDING_PAYMENT, got %s", created.Status)
	}

	// Submit payment proof.
	proofBody, _ := json.Marshal(map[string]string{"proof_ref": "upload/transfer-001"})
	req, _ = http.NewRequest("POST", base+"/v1/reservations/"+created.ReservationID.String()+"/payment-proof", bytes.NewReader(proofBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", guestID.String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("payment proof failed: %v, status: %d", err, resp.StatusCode)
	}

	// Owner confirms.
	req, _ = http.NewRequest("POST", base+"/v1/reservations/"+created.ReservationID.String()+"/confirm", nil)
	req.Header.Set("X-User-ID", ownerID.String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm failed: %v, status: %d", err, resp.StatusCode)
	}
	var confirmed struct {
		Status string `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&confirmed)
	if confirmed.Status != "CONFIRMED" {
		t.Errorf("expected CONFIRMED, got %s", confirmed.Status)
	}

	// Second reservation lapses and the sweep reclaims it.
	req, _ = http.NewRequest("POST", base+"/v1/reservations", bytes.NewReader(createBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	req.Header.Set("X-User-ID", guestID.String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("second create failed: %v, status: %d", err, resp.StatusCode)
	}
	var lapsed struct {
		ReservationID uuid.UUID `json:"reservation_id"`
	}
	json.NewDecoder(resp.Body).Decode(&lapsed)

	if _, err := pool.Exec(ctx, `
		UPDATE reservations SET expires_at = now() - interval '1 minute' WHERE id = $1
	`, lapsed.ReservationID); err != nil {
		t.Fatal(err)
	}

	req, _ = http.NewRequest("POST", base+"/v1/admin/sweep", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("sweep failed: %v, status: %d", err, resp.StatusCode)
	}
	var sweepResp struct {
		Cancelled []uuid.UUID `json:"cancelled"`
	}
	json.NewDecoder(resp.Body).Decode(&sweepResp)
	if len(sweepResp.Cancelled) != 1 || sweepResp.Cancelled[0] != lapsed.ReservationID {
		t.Errorf("expected lapsed reservation swept, got %v", sweepResp.Cancelled)
	}

	// Capacity freed by the sweep is visible again.
	req, _ = http.NewRequest("GET", base+"/v1/room-types/"+roomTypeID.String()+"/availability?start=2026-03-10&end=2026-03-13", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("availability failed: %v, status: %d", err, resp.StatusCode)
	}
	var avail struct {
		Days []struct {
			Day            string `json:"day"`
			AvailableCount int    `json:"available_count"`
		} `json:"days"`
	}
	json.NewDecoder(resp.Body).Decode(&avail)
	if len(avail.Days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(avail.Days))
	}
	for _, d := range avail.Days {
		if d.AvailableCount != 1 {
			t.Errorf("day %s: expected 1 remaining, got %d", d.Day, d.AvailableCount)
		}
	}
}

func TestIntegration_GatewayCallbackSettles(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16",
			Env:          map[string]string{"POSTGRES_PASSWORD": "test", "POSTGRES_DB": "stayhq"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pgContainer.Terminate(ctx)

	pgHost, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, "postgresql://postgres:test@"+pgHost+":"+pgPort.Port()+"/stayhq?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	schema, err := os.ReadFile("../../scripts/schema.sql")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatal(err)
	}
	repo := postgres.NewRepository(pool)
	logger := observability.NewLogger()
	reconciler := payments.NewReconciler(repo, callbackToken, logger)

	ownerID := uuid.New()
	propertyID := uuid.New()
	roomTypeID := uuid.New()
	if _, err := pool.Exec(ctx, `
		INSERT INTO properties (id, owner_id, name, rental_mode)
		VALUES ($1, $2, 'Seaview', 'ROOM_BY_ROOM')
	`, propertyID, ownerID); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO room_types (id, property_id, name, base_rate, total_capacity)
		VALUES ($1, $2, 'Standard', 100, 2)
	`, roomTypeID, propertyID); err != nil {
		t.Fatal(err)
	}

	res := domain.NewReservation(uuid.New(), propertyID, roomTypeID,
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), 300*time.Second)
	pay := domain.NewPayment(res.ID, 200, domain.MethodGateway)
	if err := repo.CreateReservation(ctx, res, pay); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetInvoice(ctx, pay.ID, "inv-42"); err != nil {
		t.Fatal(err)
	}

	body := []byte(`{"invoice_id":"inv-42","status":"paid","paid_at":"2026-03-10T12:00:00Z"}`)
	if err := reconciler.Process(ctx, body, callbackToken); err != nil {
		t.Fatal(err)
	}
	// Redelivery of the same notification lands in the same state.
	if err := reconciler.Process(ctx, body, callbackToken); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetReservation(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Errorf("expected CONFIRMED after settlement, got %s", got.Status)
	}
}
