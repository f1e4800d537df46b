// README: Smoke cases for the booking lifecycle plus DB, Redis, race and throughput checks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"campusride/internal/pgtest"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// Ride flow state carried between sequential cases.
	bookingID string
	offerID   string
	driverID  string
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

type bookingView struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	DriverID string `json:"driverId"`
}

type response struct {
	status  int
	header  http.Header
	body    []byte
	latency time.Duration
}

func (resp response) note() string {
	return fmt.Sprintf("status=%d", resp.status)
}

func (resp response) decode(v any) error {
	return json.Unmarshal(resp.body, v)
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
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

func (r *Runner) do(ctx context.Context, method, path, token string, body any, header map[string]string) (response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return response{}, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, header: resp.Header, body: payload, latency: time.Since(start)}, nil
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "audit database reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "dispatch pool and idempotency store reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusFail, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "apply migrations/*.sql",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: StatusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				if err := pgtest.ApplyMigrations(ctx, r.db); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables from the migration file are present",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: StatusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: StatusPass, Note: strings.Join(tables, ",")}
			},
		},
		{
			Name:  "API: health",
			Focus: "server reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodGet, "/health", "", nil, nil))(http.StatusOK)
			},
		},
		{
			Name:  "API: metrics exposed",
			Focus: "prometheus scrape endpoint",
			Run: func(ctx context.Context, r *Runner) Result {
				resp, err := r.do(ctx, http.MethodGet, "/metrics", "", nil, nil)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if resp.status != http.StatusOK || !bytes.Contains(resp.body, []byte("http_requests_total")) {
					return Result{Status: StatusFail, Latency: resp.latency, Note: resp.note()}
				}
				return Result{Status: StatusPass, Latency: resp.latency}
			},
		},
		{
			Name:  "Auth: missing token -> 401",
			Focus: "api group requires a bearer token",
			Run: func(ctx context.Context, r *Runner) Result {
				return expect(r.do(ctx, http.MethodGet, "/api/bookings", "", nil, nil))(http.StatusUnauthorized)
			},
		},
		{
			Name:  "Fare: quote",
			Focus: "suggested fare within bounds",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.CustomerToken == "" {
					return Result{Status: StatusSkip, Note: "customer-token not set"}
				}
				return expect(r.do(ctx, http.MethodGet, quotePath, r.cfg.CustomerToken, nil, nil))(http.StatusOK)
			},
		},
		customerCase("Booking: clear active booking", func(ctx context.Context, r *Runner) Result {
			if err := r.clearActive(ctx); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			return Result{Status: StatusPass}
		}),
		customerCase("Booking: create", func(ctx context.Context, r *Runner) Result {
			key := uuid.NewString()
			resp, err := r.do(ctx, http.MethodPost, "/api/bookings", r.cfg.CustomerToken, bookingBody, map[string]string{
				"Idempotency-Key": key,
			})
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			if resp.status != http.StatusCreated {
				return Result{Status: StatusFail, Latency: resp.latency, Note: resp.note()}
			}
			var b bookingView
			if err := resp.decode(&b); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			r.bookingID = b.ID

			replay, err := r.do(ctx, http.MethodPost, "/api/bookings", r.cfg.CustomerToken, bookingBody, map[string]string{
				"Idempotency-Key": key,
			})
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			if replay.header.Get("Idempotent-Replayed") != "true" {
				return Result{Status: StatusFail, Note: "retry with same key was not replayed: " + replay.note()}
			}
			return Result{Status: StatusPass, Latency: resp.latency, Note: "booking=" + b.ID}
		}),
		customerCase("Booking: second active booking -> 409", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodPost, "/api/bookings", r.cfg.CustomerToken, bookingBody, nil))(http.StatusConflict)
		}),
		flowCase("Matching: driver goes available", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodPut, "/api/drivers/me/location", r.cfg.DriverToken, map[string]any{
				"lat": 3.1201, "lng": 101.6544,
			}, nil))(http.StatusOK)
		}),
		flowCase("Offer: driver sees open booking", func(ctx context.Context, r *Runner) Result {
			resp, err := r.do(ctx, http.MethodGet, "/api/bookings/open", r.cfg.DriverToken, nil, nil)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			var out struct {
				Bookings []bookingView `json:"bookings"`
			}
			if err := resp.decode(&out); err != nil {
				return Result{Status: StatusFail, Note: resp.note()}
			}
			for _, b := range out.Bookings {
				if b.ID == r.bookingID {
					return Result{Status: StatusPass, Latency: resp.latency}
				}
			}
			return Result{Status: StatusFail, Latency: resp.latency, Note: "booking not listed as open"}
		}),
		flowCase("Offer: driver submits offer", func(ctx context.Context, r *Runner) Result {
			resp, err := r.do(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/offers", r.cfg.DriverToken, map[string]any{
				"fare":    6.5,
				"vehicle": map[string]any{"brand": "Perodua", "color": "Silver", "plate": "WXY 1234", "type": "4-Seat"},
			}, nil)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			if resp.status != http.StatusCreated {
				return Result{Status: StatusFail, Latency: resp.latency, Note: resp.note()}
			}
			var o struct {
				ID string `json:"id"`
			}
			if err := resp.decode(&o); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			r.offerID = o.ID
			return Result{Status: StatusPass, Latency: resp.latency, Note: "offer=" + o.ID}
		}),
		flowCase("Offer: customer accepts", func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return Result{Status: StatusSkip, Note: "no offer"}
			}
			resp, err := r.do(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/offers/"+r.offerID+"/accept", r.cfg.CustomerToken, nil, nil)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			var b bookingView
			if resp.status != http.StatusOK || resp.decode(&b) != nil || b.Status != "ACCEPTED" {
				return Result{Status: StatusFail, Latency: resp.latency, Note: resp.note()}
			}
			r.driverID = b.DriverID
			return Result{Status: StatusPass, Latency: resp.latency}
		}),
		flowCase("Booking: driver arrived", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/arrived", r.cfg.DriverToken, nil, nil))(http.StatusOK)
		}),
		flowCase("Booking: driver starts ride", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/status", r.cfg.DriverToken, map[string]any{
				"status": "ONGOING",
			}, nil))(http.StatusOK)
		}),
		flowCase("Booking: cancel ongoing -> 409", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/cancel", r.cfg.CustomerToken, nil, nil))(http.StatusConflict)
		}),
		flowCase("Settlement: driver completes", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/complete", r.cfg.DriverToken, nil, nil))(http.StatusOK)
		}),
		flowCase("Settlement: journey visible", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodGet, "/api/bookings/"+r.bookingID+"/journey", r.cfg.CustomerToken, nil, nil))(http.StatusOK)
		}),
		flowCase("Rating: customer rates driver", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodPost, "/api/bookings/"+r.bookingID+"/rating", r.cfg.CustomerToken, map[string]any{
				"rating": 4.5, "comment": "smooth ride",
			}, nil))(http.StatusCreated)
		}),
		flowCase("Earnings: driver weekly summary", func(ctx context.Context, r *Runner) Result {
			if r.driverID == "" {
				return Result{Status: StatusSkip, Note: "driver id unknown"}
			}
			return expect(r.do(ctx, http.MethodGet, "/api/drivers/"+r.driverID+"/earnings?period=week", r.cfg.DriverToken, nil, nil))(http.StatusOK)
		}),
		flowCase("Matching: driver goes offline", func(ctx context.Context, r *Runner) Result {
			return expect(r.do(ctx, http.MethodDelete, "/api/drivers/me/location", r.cfg.DriverToken, nil, nil))(http.StatusOK)
		}),
		customerCase("Concurrency: one active booking per customer", func(ctx context.Context, r *Runner) Result {
			return concurrentCreate(ctx, r)
		}),
		{
			Name:  "Perf: driver location throughput",
			Focus: "location updates per second",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.DriverToken == "" {
					return Result{Status: StatusSkip, Note: "driver-token not set"}
				}
				return perfLoad(ctx, r, http.MethodPut, "/api/drivers/me/location", r.cfg.DriverToken, map[string]any{
					"lat": 3.1201, "lng": 101.6544,
				})
			},
		},
		{
			Name:  "Perf: fare quote throughput",
			Focus: "quotes per second",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.CustomerToken == "" {
					return Result{Status: StatusSkip, Note: "customer-token not set"}
				}
				return perfLoad(ctx, r, http.MethodGet, quotePath, r.cfg.CustomerToken, nil)
			},
		},
	}
}

const quotePath = "/api/fares/quote?fromLat=3.1201&fromLng=101.6544&toLat=3.1290&toLng=101.6505"

var bookingBody = map[string]any{
	"pickup":        map[string]any{"label": "Faculty of Engineering", "lat": 3.1201, "lng": 101.6544},
	"dropoff":       map[string]any{"label": "Residential College 12", "lat": 3.1290, "lng": 101.6505},
	"seatType":      "4-Seat",
	"paymentMethod": "CASH",
}

func customerCase(name string, run func(ctx context.Context, r *Runner) Result) TestCase {
	return TestCase{
		Name:  name,
		Focus: "customer flow",
		Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.CustomerToken == "" {
				return Result{Status: StatusSkip, Note: "customer-token not set"}
			}
			return run(ctx, r)
		},
	}
}

// flowCase runs only once a booking exists and both tokens are configured.
func flowCase(name string, run func(ctx context.Context, r *Runner) Result) TestCase {
	return TestCase{
		Name:  name,
		Focus: "ride flow",
		Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.CustomerToken == "" || r.cfg.DriverToken == "" {
				return Result{Status: StatusSkip, Note: "customer-token and driver-token required"}
			}
			if r.bookingID == "" {
				return Result{Status: StatusSkip, Note: "no booking created"}
			}
			return run(ctx, r)
		},
	}
}

func expect(resp response, err error) func(codes ...int) Result {
	return func(codes ...int) Result {
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if contains(codes, resp.status) {
			return Result{Status: StatusPass, Latency: resp.latency, Note: resp.note()}
		}
		return Result{Status: StatusFail, Latency: resp.latency, Note: resp.note()}
	}
}

// clearActive cancels a leftover booking from an earlier run.
func (r *Runner) clearActive(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodGet, "/api/bookings/active", r.cfg.CustomerToken, nil, nil)
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound {
		return nil
	}
	var b bookingView
	if resp.status != http.StatusOK || resp.decode(&b) != nil {
		return fmt.Errorf("active booking lookup: %s", resp.note())
	}
	cancelled, err := r.do(ctx, http.MethodPost, "/api/bookings/"+b.ID+"/cancel", r.cfg.CustomerToken, nil, nil)
	if err != nil {
		return err
	}
	if cancelled.status != http.StatusOK {
		return fmt.Errorf("booking %s is %s and cannot be cancelled", b.ID, b.Status)
	}
	return nil
}

func concurrentCreate(ctx context.Context, r *Runner) Result {
	if err := r.clearActive(ctx); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   []string
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := r.do(ctx, http.MethodPost, "/api/bookings", r.cfg.CustomerToken, bookingBody, nil)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch resp.status {
			case http.StatusCreated:
				var b bookingView
				if resp.decode(&b) == nil {
					created = append(created, b.ID)
				}
			case http.StatusConflict:
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	for _, id := range created {
		_, _ = r.do(ctx, http.MethodPost, "/api/bookings/"+id+"/cancel", r.cfg.CustomerToken, nil, nil)
	}
	note := fmt.Sprintf("created=%d conflicts=%d", len(created), conflicts)
	if len(created) != 1 {
		return Result{Status: StatusFail, Note: note}
	}
	return Result{Status: StatusPass, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, method, path, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count    int64
		errCount int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				resp, err := r.do(ctx, method, path, token, payload, nil)
				mu.Lock()
				if err != nil || resp.status >= 400 {
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
		return Result{Status: StatusFail, Note: fmt.Sprintf("no requests succeeded, errors=%d", errCount)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
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
