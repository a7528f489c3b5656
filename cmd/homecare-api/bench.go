package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type benchConfig struct {
	BaseURL     string
	DSN         string
	RedisAddr   string
	Seed        bool
	Strict      bool
	Timeout     time.Duration
	Concurrency int
	Duration    time.Duration
	Date        string
}

func benchCmd() *cobra.Command {
	var cfg benchConfig
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Smoke-test a running API: connectivity, endpoints, booking race and load",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			results := newBenchRunner(cfg).RunAll(ctx)
			fails, skipped := 0, 0
			for _, r := range results {
				switch r.Status {
				case statusFail:
					fails++
				case statusSkip:
					skipped++
				}
			}
			fmt.Printf("\n== Summary ==\nTOTAL=%d FAIL=%d SKIP=%d\n", len(results), fails, skipped)
			if fails > 0 || (cfg.Strict && skipped > 0) {
				return fmt.Errorf("bench: %d failed, %d skipped", fails, skipped)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "base-url", "http://localhost:5001", "API base URL")
	f.StringVar(&cfg.DSN, "dsn", "", "Postgres DSN used to seed bench fixtures (skips DB cases when empty)")
	f.StringVar(&cfg.RedisAddr, "redis", "", "Redis address to check (skipped when empty)")
	f.BoolVar(&cfg.Seed, "seed", true, "Insert bench doctors and patients before running")
	f.BoolVar(&cfg.Strict, "strict", false, "Treat skipped cases as failures")
	f.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "Total timeout")
	f.IntVar(&cfg.Concurrency, "concurrency", 20, "Concurrent clients for race and load cases")
	f.DurationVar(&cfg.Duration, "duration", 10*time.Second, "Duration of the load case")
	f.StringVar(&cfg.Date, "date", "2099-01-01", "Visit date used for bench bookings")
	return cmd
}

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"

	benchDoctor = "bench_d1"
)

type benchResult struct {
	Status  string
	Latency time.Duration
	Note    string
}

type benchCase struct {
	Name string
	Run  func(ctx context.Context, r *benchRunner) benchResult
}

type benchRunner struct {
	cfg   benchConfig
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

func newBenchRunner(cfg benchConfig) *benchRunner {
	return &benchRunner{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
}

func (r *benchRunner) RunAll(ctx context.Context) []benchResult {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	cases := r.cases()
	results := make([]benchResult, 0, len(cases))
	for _, tc := range cases {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *benchRunner) patientID(i int) string {
	return fmt.Sprintf("bench_p%d", i)
}

func (r *benchRunner) cases() []benchCase {
	base := r.cfg.BaseURL
	slot := r.cfg.Date + " 10:00"
	return []benchCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *benchRunner) benchResult {
			if r.db == nil {
				return benchResult{Status: statusSkip, Note: "no --dsn"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return benchResult{Status: statusFail, Note: err.Error()}
			}
			return benchResult{Status: statusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *benchRunner) benchResult {
			if r.redis == nil {
				return benchResult{Status: statusSkip, Note: "no --redis"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return benchResult{Status: statusFail, Note: err.Error()}
			}
			return benchResult{Status: statusPass}
		}},
		{Name: "Seed: bench doctor and patients", Run: func(ctx context.Context, r *benchRunner) benchResult {
			return r.seed(ctx)
		}},
		httpCase("HTTP: health", http.MethodGet, base+"/health", nil, http.StatusOK),
		httpCase("HTTP: check availability", http.MethodPost, base+"/api/check-availability",
			map[string]any{"patientId": r.patientID(0), "doctorId": benchDoctor, "newTime": slot}, http.StatusOK),
		httpCase("HTTP: find available doctors", http.MethodPost, base+"/api/find-available-doctors",
			map[string]any{"patientId": r.patientID(0), "newTime": slot}, http.StatusOK),
		httpCase("HTTP: unknown patient is 404", http.MethodPost, base+"/api/appointments",
			map[string]any{"patientId": "bench_nobody", "doctorId": benchDoctor, "time": slot}, http.StatusNotFound),
		{Name: "Race: concurrent bookings of one slot", Run: func(ctx context.Context, r *benchRunner) benchResult {
			return concurrentBooking(ctx, r, base+"/api/appointments", slot)
		}},
		{Name: "Perf: find available doctors", Run: func(ctx context.Context, r *benchRunner) benchResult {
			return perfLoad(ctx, r, base+"/api/find-available-doctors",
				map[string]any{"patientId": r.patientID(0), "newTime": r.cfg.Date + " 15:00"})
		}},
	}
}

// seed resets the bench doctor's day so the race case starts from an empty schedule.
func (r *benchRunner) seed(ctx context.Context) benchResult {
	if r.db == nil || !r.cfg.Seed {
		return benchResult{Status: statusSkip, Note: "seeding disabled or no --dsn"}
	}
	stmts := []string{
		`INSERT INTO doctors (id, name, status) VALUES ('` + benchDoctor + `', 'Bench Doctor', 'Available')
		 ON CONFLICT (id) DO UPDATE SET status = 'Available'`,
		`DELETE FROM appointment_events WHERE appointment_id IN (SELECT id FROM appointments WHERE doctor_id = '` + benchDoctor + `')`,
		`DELETE FROM appointments WHERE doctor_id = '` + benchDoctor + `' OR patient_id LIKE 'bench_p%'`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return benchResult{Status: statusFail, Note: err.Error()}
		}
	}
	for i := 0; i < r.cfg.Concurrency; i++ {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO patients (id, name, lat, lng, address) VALUES ($1, $2, $3, $4, 'bench')
			 ON CONFLICT (id) DO NOTHING`,
			r.patientID(i), fmt.Sprintf("Bench Patient %d", i), 25.03+float64(i)*0.001, 121.56,
		); err != nil {
			return benchResult{Status: statusFail, Note: err.Error()}
		}
	}
	return benchResult{Status: statusPass, Note: fmt.Sprintf("patients=%d", r.cfg.Concurrency)}
}

func httpCase(name, method, url string, body any, okStatuses ...int) benchCase {
	return benchCase{
		Name: name,
		Run: func(ctx context.Context, r *benchRunner) benchResult {
			start := time.Now()
			status, err := r.send(ctx, method, url, body)
			latency := time.Since(start)
			if err != nil {
				return benchResult{Status: statusFail, Note: err.Error()}
			}
			for _, ok := range okStatuses {
				if status == ok {
					return benchResult{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
				}
			}
			return benchResult{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
		},
	}
}

func (r *benchRunner) send(ctx context.Context, method, url string, body any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

// concurrentBooking sends one booking per bench patient for the same doctor
// and slot. Exactly one may be created; the rest must be rejected with 409.
func concurrentBooking(ctx context.Context, r *benchRunner, url, slot string) benchResult {
	if r.db == nil || !r.cfg.Seed {
		return benchResult{Status: statusSkip, Note: "needs seeded fixtures"}
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
		other    []int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, err := r.send(ctx, http.MethodPost, url, map[string]any{
				"patientId": r.patientID(i), "doctorId": benchDoctor, "time": slot, "duration": 30,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				other = append(other, 0)
			case status == http.StatusCreated:
				created++
			case status == http.StatusConflict:
				rejected++
			default:
				other = append(other, status)
			}
		}(i)
	}
	wg.Wait()

	note := fmt.Sprintf("created=%d rejected=%d other=%v", created, rejected, other)
	if created != 1 || len(other) > 0 {
		return benchResult{Status: statusFail, Note: note}
	}
	return benchResult{Status: statusPass, Note: note}
}

func perfLoad(ctx context.Context, r *benchRunner, url string, payload any) benchResult {
	end := time.Now().Add(r.cfg.Duration)
	var (
		mu       sync.Mutex
		count    int64
		errCount int64
		wg       sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, err := r.send(ctx, http.MethodPost, url, payload)
				mu.Lock()
				if err != nil || status >= 500 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return benchResult{Status: statusFail, Note: fmt.Sprintf("no requests completed, errors=%d", errCount)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return benchResult{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}
