package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/auth"
	"github.com/hackgods/telehealth-booking/internal/config"
	"github.com/hackgods/telehealth-booking/internal/db"
	"github.com/hackgods/telehealth-booking/internal/logger"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type seeder struct {
	pool  *pgxpool.Pool
	faker *gofakeit.Faker
	log   *zap.Logger
}

func main() {
	doctors := flag.Int("doctors", 50, "number of doctors")
	patients := flag.Int("patients", 2000, "number of patients")
	days := flag.Int("days", 14, "days of availability to publish per doctor")
	slotLen := flag.Duration("slot", 30*time.Minute, "slot length")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := cfg.RequirePostgres(); err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logg, err := logger.New(cfg.LogLevel, "console", "seed")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		logg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logg.Fatal("migrate", zap.Error(err))
	}

	// seed 0 picks a random seed
	s := &seeder{pool: pool, faker: gofakeit.New(0), log: logg}

	admin, err := s.seedUsers(ctx, auth.RoleAdmin, 1)
	if err != nil {
		logg.Fatal("seed admin", zap.Error(err))
	}
	doctorIDs, err := s.seedUsers(ctx, auth.RoleDoctor, *doctors)
	if err != nil {
		logg.Fatal("seed doctors", zap.Error(err))
	}
	patientIDs, err := s.seedUsers(ctx, auth.RolePatient, *patients)
	if err != nil {
		logg.Fatal("seed patients", zap.Error(err))
	}

	n, err := s.seedSlots(ctx, doctorIDs, *days, *slotLen)
	if err != nil {
		logg.Fatal("seed slots", zap.Error(err))
	}

	logg.Info("seed complete",
		zap.Int("doctors", len(doctorIDs)),
		zap.Int("patients", len(patientIDs)),
		zap.Int64("slots", n),
	)

	if cfg.JWTSecret == "" {
		return
	}

	// Sample tokens for poking at the API by hand.
	v := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	printToken(v, "admin", auth.Actor{UserID: admin[0], Role: auth.RoleAdmin})
	if len(doctorIDs) > 0 {
		printToken(v, "doctor", auth.Actor{UserID: doctorIDs[0], Role: auth.RoleDoctor})
	}
	if len(patientIDs) > 0 {
		printToken(v, "patient", auth.Actor{UserID: patientIDs[0], Role: auth.RolePatient})
	}
}

func printToken(v *auth.Verifier, label string, a auth.Actor) {
	token, err := v.Sign(a, 24*time.Hour)
	if err != nil {
		log.Printf("sign %s token: %v", label, err)
		return
	}
	fmt.Printf("%-8s %s\n         %s\n", label, a.UserID, token)
}

func (s *seeder) seedUsers(ctx context.Context, role auth.Role, count int) ([]uuid.UUID, error) {
	s.log.Info("seeding users", zap.String("role", string(role)), zap.Int("count", count))

	const batchSize = 500
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			id := uuid.New()
			ids = append(ids, id)

			var specialty *string
			if role == auth.RoleDoctor {
				sp := specialties[s.faker.Number(0, len(specialties)-1)]
				specialty = &sp
			}

			// the uuid prefix keeps emails unique across reruns
			email := fmt.Sprintf("%s.%s@%s", id.String()[:8], s.faker.Username(), s.faker.DomainName())

			batch.Queue(`
				INSERT INTO users (id, role, first_name, last_name, email, specialty)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, id, string(role), s.faker.FirstName(), s.faker.LastName(), email, specialty)
		}

		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("insert %s users: %w", role, err)
		}
	}

	return ids, nil
}

// seedSlots publishes back-to-back slots on weekdays between 09:00 and 17:00
// UTC, starting tomorrow.
func (s *seeder) seedSlots(ctx context.Context, doctorIDs []uuid.UUID, days int, slotLen time.Duration) (int64, error) {
	if slotLen <= 0 {
		return 0, fmt.Errorf("slot length must be positive")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	now := time.Now().UTC()

	var rows [][]any
	for _, doctorID := range doctorIDs {
		for d := 1; d <= days; d++ {
			day := today.AddDate(0, 0, d)
			if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}

			open := day.Add(9 * time.Hour)
			closeAt := day.Add(17 * time.Hour)
			for start := open; !start.Add(slotLen).After(closeAt); start = start.Add(slotLen) {
				rows = append(rows, []any{uuid.New(), doctorID, start, start.Add(slotLen), false, now})
			}
		}
	}

	s.log.Info("seeding slots", zap.Int("count", len(rows)))

	return s.pool.CopyFrom(ctx,
		pgx.Identifier{"availability_slots"},
		[]string{"id", "doctor_id", "start_at", "end_at", "is_recurring", "created_at"},
		pgx.CopyFromRows(rows),
	)
}
