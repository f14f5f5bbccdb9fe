package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/telehealth-booking/internal/auth"
	"github.com/hackgods/telehealth-booking/internal/config"
	"github.com/hackgods/telehealth-booking/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
	PostgresDSN  string
	JWTSecret    string
	JWTIssuer    string
}

type openSlot struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

type booked struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []openSlot

	mu           sync.RWMutex
	appointments []booked
	tokens       map[uuid.UUID]string
	verifier     *auth.Verifier
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

// Token signs lazily and caches one token per user for the run.
func (dp *DataPool) Token(id uuid.UUID, role auth.Role) string {
	dp.mu.RLock()
	t, ok := dp.tokens[id]
	dp.mu.RUnlock()
	if ok {
		return t
	}

	t, err := dp.verifier.Sign(auth.Actor{UserID: id, Role: role}, time.Hour)
	if err != nil {
		log.Printf("sign token: %v", err)
		return ""
	}

	dp.mu.Lock()
	dp.tokens[id] = t
	dp.mu.Unlock()
	return t
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95), pct(99)
}

type Metrics struct {
	Booking     OperationMetrics
	Confirm     OperationMetrics
	Cancel      OperationMetrics
	ReadByID    OperationMetrics
	Upcoming    OperationMetrics
	SlotListing OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f confirm=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.ConfirmRatio, cfg.CancelRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d open slots", len(dataPool.Patients), len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}
	if err := baseCfg.RequirePostgres(); err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.45),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 500),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
		JWTIssuer:    baseCfg.JWTIssuer,
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to sign simulator tokens")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{
		tokens:   make(map[uuid.UUID]string),
		verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
	}

	rows, err := pool.Query(ctx, `
		SELECT id FROM users WHERE role = 'PATIENT' LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	// A small slot pool on purpose: many workers contend for the same slots.
	rows, err = pool.Query(ctx, `
		SELECT s.id, s.doctor_id
		FROM availability_slots s
		WHERE s.start_at > now()
		  AND NOT EXISTS (SELECT 1 FROM appointments a WHERE a.slot_id = s.id AND a.active)
		ORDER BY s.start_at
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var s openSlot
		if err := rows.Scan(&s.ID, &s.DoctorID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}
	rows.Close()

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no open slots loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var g errgroup.Group
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(ctx, workerID)
			return nil
		})
	}
	_ = g.Wait()

	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case r < c.BookingRatio+c.ConfirmRatio+c.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doUpcoming(ctx, rng)
			case 2:
				s.doSlotListing(ctx, rng)
			}
		}
	}
}

// call sends one request and reports the status code, or 0 on a transport
// error. out may be nil.
func (s *Simulator) call(ctx context.Context, method, path, token string, body any, out any) (int, time.Duration) {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, rdr)
	if err != nil {
		return 0, 0
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	modalities := []string{"online", "in_person", "hybrid"}
	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	code, latency := s.call(ctx, http.MethodPost, "/appointments",
		s.pool.Token(patientID, auth.RolePatient),
		map[string]string{
			"doctor_id": slot.DoctorID.String(),
			"slot_id":   slot.ID.String(),
			"modality":  modalities[rng.Intn(len(modalities))],
		}, &resp)
	if ctx.Err() != nil {
		return
	}

	if code == http.StatusCreated && resp.ID != uuid.Nil {
		s.pool.AddAppointment(booked{ID: resp.ID, PatientID: patientID, DoctorID: slot.DoctorID})
	}
	s.metrics.Booking.Record(latency, code == http.StatusCreated, code == http.StatusConflict)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	code, latency := s.call(ctx, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status",
		s.pool.Token(appt.DoctorID, auth.RoleDoctor),
		map[string]string{"status": "CONFIRMED"}, nil)
	if ctx.Err() != nil {
		return
	}

	// 400 here is a lost race: the appointment already moved on.
	s.metrics.Confirm.Record(latency, code == http.StatusOK, code == http.StatusBadRequest)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	code, latency := s.call(ctx, http.MethodPatch, "/appointments/"+appt.ID.String()+"/cancel",
		s.pool.Token(appt.PatientID, auth.RolePatient),
		map[string]string{"cancel_reason": "simulated"}, nil)
	if ctx.Err() != nil {
		return
	}

	s.metrics.Cancel.Record(latency, code == http.StatusOK, code == http.StatusBadRequest)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	code, latency := s.call(ctx, http.MethodGet, "/appointments/"+appt.ID.String(),
		s.pool.Token(appt.PatientID, auth.RolePatient), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ReadByID.Record(latency, code == http.StatusOK, false)
}

func (s *Simulator) doUpcoming(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	code, latency := s.call(ctx, http.MethodGet, "/appointments/upcoming",
		s.pool.Token(patientID, auth.RolePatient), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Upcoming.Record(latency, code == http.StatusOK, false)
}

func (s *Simulator) doSlotListing(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	code, latency := s.call(ctx, http.MethodGet, "/doctors/"+slot.DoctorID.String()+"/availability",
		s.pool.Token(patientID, auth.RolePatient), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.SlotListing.Record(latency, code == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Upcoming", &s.metrics.Upcoming)
	printOperationReport("Doctor availability", &s.metrics.SlotListing)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
