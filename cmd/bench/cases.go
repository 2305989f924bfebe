// README: Scenario checks: environment, ride/booking flow over HTTP, DB and index consistency, contention and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ridepool/internal/http/middleware"
	"ridepool/internal/modules/location"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

var (
	benchStart = map[string]any{
		"address":     "University of Bahrain, Sakhir",
		"coordinates": map[string]float64{"lat": 26.05, "lng": 50.51},
	}
	benchDest = map[string]any{
		"address":     "Manama",
		"coordinates": map[string]float64{"lat": 26.2285, "lng": 50.586},
	}
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// Flow state carried between consecutive cases.
	runID     string
	driver    string
	passenger string
	rideID    string
	bookingID string
	riderCode string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

type apiResponse struct {
	Code    int
	Body    []byte
	Latency time.Duration
}

func NewRunner(cfg Config) *Runner {
	runID := uuid.NewString()[:8]
	return &Runner{
		cfg:       cfg,
		httpc:     &http.Client{Timeout: 10 * time.Second},
		runID:     runID,
		driver:    "bench-driver-" + runID,
		passenger: "bench-passenger-" + runID,
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
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

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "DB reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "Redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "Apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: statusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "Every table in the migration exists",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusSkip, Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: statusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name:  "API: health",
			Focus: "Server answers",
			Run: func(ctx context.Context, r *Runner) Result {
				resp, err := r.call(ctx, http.MethodGet, "/health", "", nil)
				return expect(resp, err, http.StatusOK)
			},
		},

		// Ride and booking flow
		{
			Name:  "Flow: driver creates ride",
			Focus: "POST /api/rides",
			Run: func(ctx context.Context, r *Runner) Result {
				id, resp, err := r.createRide(ctx, r.driver, 2)
				r.rideID = id
				return expect(resp, err, http.StatusCreated)
			},
		},
		{
			Name:  "Flow: passenger requests booking",
			Focus: "POST /api/rides/:id/bookings",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: statusSkip, Note: "no ride"}
				}
				resp, err := r.call(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/bookings", r.passenger, map[string]any{"seats_booked": 1})
				if res := expect(resp, err, http.StatusCreated); res.Status != statusPass {
					return res
				}
				var out struct {
					Booking struct {
						ID            string `json:"id"`
						RiderSafeCode string `json:"rider_safe_code"`
					} `json:"booking"`
				}
				if err := json.Unmarshal(resp.Body, &out); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				r.bookingID, r.riderCode = out.Booking.ID, out.Booking.RiderSafeCode
				return Result{Status: statusPass, Latency: resp.Latency}
			},
		},
		r.flowCase("Flow: duplicate request rejected", http.MethodPost, func(r *Runner) string { return "/api/rides/" + r.rideID + "/bookings" },
			func(r *Runner) string { return r.passenger }, map[string]any{"seats_booked": 1}, http.StatusUnprocessableEntity),
		r.flowCase("Flow: stranger cannot read booking", http.MethodGet, func(r *Runner) string { return "/api/bookings/" + r.bookingID },
			func(r *Runner) string { return "bench-stranger-" + r.runID }, nil, http.StatusForbidden),
		r.flowCase("Flow: driver accepts", http.MethodPost, func(r *Runner) string { return "/api/bookings/" + r.bookingID + "/accept" },
			func(r *Runner) string { return r.driver }, nil, http.StatusOK),
		{
			Name:  "Index: scheduled ride is in the GEO index",
			Focus: "Redis ZSCORE",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.checkIndexed(ctx, true)
			},
		},
		{
			Name:  "Search: nearby finds the ride",
			Focus: "GET /api/rides",
			Run: func(ctx context.Context, r *Runner) Result {
				resp, err := r.call(ctx, http.MethodGet, "/api/rides?lat=26.05&lng=50.51&radius=4000&limit=100", r.passenger, nil)
				if res := expect(resp, err, http.StatusOK); res.Status != statusPass {
					return res
				}
				if !bytes.Contains(resp.Body, []byte(r.rideID)) {
					return Result{Status: statusFail, Latency: resp.Latency, Note: "ride missing from results"}
				}
				return Result{Status: statusPass, Latency: resp.Latency}
			},
		},
		r.flowCase("Flow: pickup with wrong code", http.MethodPost, func(r *Runner) string { return "/api/bookings/" + r.bookingID + "/pickup" },
			func(r *Runner) string { return r.driver }, map[string]any{"rider_code": "0000"}, http.StatusUnprocessableEntity),
		r.flowCase("Flow: driver starts ride", http.MethodPost, func(r *Runner) string { return "/api/rides/" + r.rideID + "/start" },
			func(r *Runner) string { return r.driver }, nil, http.StatusOK),
		{
			Name:  "Flow: pickup with rider code",
			Focus: "POST /api/bookings/:id/pickup",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.bookingID == "" {
					return Result{Status: statusSkip, Note: "no booking"}
				}
				resp, err := r.call(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/pickup", r.driver, map[string]any{"rider_code": r.riderCode})
				return expect(resp, err, http.StatusOK)
			},
		},
		r.flowCase("Flow: driver completes ride", http.MethodPost, func(r *Runner) string { return "/api/rides/" + r.rideID + "/complete" },
			func(r *Runner) string { return r.driver }, nil, http.StatusOK),
		{
			Name:  "Index: completed ride left the GEO index",
			Focus: "Redis ZSCORE",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.checkIndexed(ctx, false)
			},
		},
		r.flowCase("Flow: driver marks paid", http.MethodPost, func(r *Runner) string { return "/api/bookings/" + r.bookingID + "/paid" },
			func(r *Runner) string { return r.driver }, map[string]any{"payment_method": "cash"}, http.StatusOK),
		r.flowCase("Flow: paying twice rejected", http.MethodPost, func(r *Runner) string { return "/api/bookings/" + r.bookingID + "/paid" },
			func(r *Runner) string { return r.driver }, nil, http.StatusConflict),

		// Data consistency
		{
			Name:  "Consistency: seat invariant holds in DB",
			Focus: "available = total - seats held",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.checkSeatInvariant(ctx, r.rideID)
			},
		},
		{
			Name:  "Consistency: ride audit trail",
			Focus: "scheduled -> in_progress -> completed",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.checkRideTrail(ctx)
			},
		},

		// Concurrency
		{
			Name:  "Concurrency: accepts racing for the last seat",
			Focus: "Exactly one accept wins",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.lastSeatContention(ctx)
			},
		},
		{
			Name:  "Concurrency: duplicate requests by one passenger",
			Focus: "Exactly one live booking",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.duplicateRequests(ctx)
			},
		},

		manualCase("Error: DB down -> 500", "stop Postgres and watch responses"),
		manualCase("Error: maps down -> 502 on create, start keeps planned route", "revoke the maps key and retry"),
		manualCase("Sweeper: stale pending expire after departure", "create a ride departing in a minute and wait one sweep"),

		// Performance
		{
			Name:  "Perf: nearby search throughput",
			Focus: "GET /api/rides under load",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, func(ctx context.Context, i int64) (apiResponse, error) {
					return r.call(ctx, http.MethodGet, "/api/rides?lat=26.05&lng=50.51", r.passenger, nil)
				})
			},
		},
		{
			Name:  "Perf: booking request throughput",
			Focus: "POST /api/rides/:id/bookings under load",
			Run: func(ctx context.Context, r *Runner) Result {
				rideID, resp, err := r.createRide(ctx, r.driver, 8)
				if res := expect(resp, err, http.StatusCreated); res.Status != statusPass {
					return res
				}
				return perfLoad(ctx, r, func(ctx context.Context, i int64) (apiResponse, error) {
					user := fmt.Sprintf("bench-load-%s-%d", r.runID, i)
					return r.call(ctx, http.MethodPost, "/api/rides/"+rideID+"/bookings", user, map[string]any{"seats_booked": 1})
				})
			},
		},
	}
}

// flowCase issues one request that depends on state from earlier cases.
func (r *Runner) flowCase(name, method string, path, user func(*Runner) string, body any, want int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			if r.rideID == "" || (strings.Contains(path(r), "/bookings/") && r.bookingID == "") {
				return Result{Status: statusSkip, Note: "earlier step failed"}
			}
			resp, err := r.call(ctx, method, path(r), user(r), body)
			return expect(resp, err, want)
		},
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: statusSkip, Note: note}
		},
	}
}

func (r *Runner) call(ctx context.Context, method, path, user string, body any) (apiResponse, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apiResponse{}, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return apiResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.DevUserHeader, user)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return apiResponse{Code: resp.StatusCode, Body: b, Latency: time.Since(start)}, err
}

func (r *Runner) createRide(ctx context.Context, driver string, seats int) (string, apiResponse, error) {
	resp, err := r.call(ctx, http.MethodPost, "/api/rides", driver, map[string]any{
		"start":          benchStart,
		"destination":    benchDest,
		"departure_time": time.Now().Add(2 * time.Hour),
		"total_seats":    seats,
	})
	if err != nil || resp.Code != http.StatusCreated {
		return "", resp, err
	}
	var out struct {
		Ride struct {
			ID string `json:"id"`
		} `json:"ride"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", resp, err
	}
	return out.Ride.ID, resp, nil
}

func expect(resp apiResponse, err error, want int) Result {
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	note := fmt.Sprintf("status=%d", resp.Code)
	if resp.Code != want {
		return Result{Status: statusFail, Latency: resp.Latency, Note: fmt.Sprintf("%s want=%d body=%s", note, want, truncate(resp.Body))}
	}
	return Result{Status: statusPass, Latency: resp.Latency, Note: note}
}

func (r *Runner) checkIndexed(ctx context.Context, want bool) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	if r.rideID == "" {
		return Result{Status: statusSkip, Note: "no ride"}
	}
	err := r.redis.ZScore(ctx, location.RideGeoKey, r.rideID).Err()
	switch {
	case err == nil && want, errors.Is(err, redis.Nil) && !want:
		return Result{Status: statusPass}
	case err != nil && !errors.Is(err, redis.Nil):
		return Result{Status: statusFail, Note: err.Error()}
	default:
		return Result{Status: statusFail, Note: fmt.Sprintf("indexed=%t want=%t", err == nil, want)}
	}
}

func (r *Runner) checkSeatInvariant(ctx context.Context, rideID string) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	if rideID == "" {
		return Result{Status: statusSkip, Note: "no ride"}
	}
	var total, available, held int
	err := r.db.QueryRow(ctx, `
		SELECT r.total_seats, r.available_seats, COALESCE(SUM(b.seats_booked), 0)
		FROM rides r
		LEFT JOIN bookings b ON b.ride_id = r.id
			AND b.status IN ('confirmed', 'picked_up', 'no_show', 'completed')
		WHERE r.id = $1
		GROUP BY r.id`, rideID,
	).Scan(&total, &available, &held)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if available != total-held {
		return Result{Status: statusFail, Note: fmt.Sprintf("total=%d available=%d held=%d", total, available, held)}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("total=%d available=%d", total, available)}
}

func (r *Runner) checkRideTrail(ctx context.Context) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	if r.rideID == "" {
		return Result{Status: statusSkip, Note: "no ride"}
	}
	rows, err := r.db.Query(ctx,
		"SELECT to_status FROM ride_events WHERE entity_type = 'ride' AND entity_id = $1 ORDER BY id",
		r.rideID,
	)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	defer rows.Close()
	var trail []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		trail = append(trail, s)
	}
	if err := rows.Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	got := strings.Join(trail, ">")
	if got != "scheduled>in_progress>completed" {
		return Result{Status: statusFail, Note: "trail=" + got}
	}
	return Result{Status: statusPass}
}

// lastSeatContention requests a one-seat ride from many passengers and
// accepts all of them at once.
func (r *Runner) lastSeatContention(ctx context.Context) Result {
	rideID, resp, err := r.createRide(ctx, r.driver, 1)
	if res := expect(resp, err, http.StatusCreated); res.Status != statusPass {
		return res
	}
	bookingIDs := make([]string, 0, r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		user := fmt.Sprintf("bench-seat-%s-%d", r.runID, i)
		resp, err := r.call(ctx, http.MethodPost, "/api/rides/"+rideID+"/bookings", user, map[string]any{"seats_booked": 1})
		if res := expect(resp, err, http.StatusCreated); res.Status != statusPass {
			return res
		}
		var out struct {
			Booking struct {
				ID string `json:"id"`
			} `json:"booking"`
		}
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		bookingIDs = append(bookingIDs, out.Booking.ID)
	}

	succ, conflicts := r.concurrently(ctx, len(bookingIDs), func(i int) (apiResponse, error) {
		return r.call(ctx, http.MethodPost, "/api/bookings/"+bookingIDs[i]+"/accept", r.driver, nil)
	})
	if succ != 1 {
		return Result{Status: statusFail, Note: fmt.Sprintf("success=%d conflicts=%d", succ, conflicts)}
	}
	if res := r.checkSeatInvariant(ctx, rideID); res.Status == statusFail {
		return res
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("success=%d conflicts=%d", succ, conflicts)}
}

func (r *Runner) duplicateRequests(ctx context.Context) Result {
	rideID, resp, err := r.createRide(ctx, r.driver, 4)
	if res := expect(resp, err, http.StatusCreated); res.Status != statusPass {
		return res
	}
	user := "bench-dup-" + r.runID
	succ, rejected := r.concurrently(ctx, r.cfg.Concurrency, func(int) (apiResponse, error) {
		return r.call(ctx, http.MethodPost, "/api/rides/"+rideID+"/bookings", user, map[string]any{"seats_booked": 1})
	})
	if succ != 1 {
		return Result{Status: statusFail, Note: fmt.Sprintf("success=%d rejected=%d", succ, rejected)}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("success=%d rejected=%d", succ, rejected)}
}

// concurrently runs n calls at once and counts 2xx and 4xx answers.
func (r *Runner) concurrently(ctx context.Context, n int, fn func(i int) (apiResponse, error)) (succ, rejected int) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			resp, err := fn(i)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case resp.Code >= 200 && resp.Code < 300:
				succ++
			case resp.Code >= 400 && resp.Code < 500:
				rejected++
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return succ, rejected
}

func perfLoad(ctx context.Context, r *Runner, fn func(ctx context.Context, i int64) (apiResponse, error)) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount, seq atomic.Int64
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				resp, err := fn(ctx, seq.Add(1))
				if err != nil || resp.Code >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func truncate(b []byte) string {
	const limit = 120
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
