// Command claimload drives concurrent claims against a running discount API
// and then checks that the store stayed consistent: no more codes than the
// quota, no claimant holding two codes, and availability matching the count
// of issued codes.
//
// The target must expose POST /auth/token (AUTH_TOKEN_ENDPOINT=true).
//
//	claimload -base http://localhost:8080/api/v1 -users 500 -quota 100 -rps 300
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type options struct {
	Base     string
	Users    int
	Quota    int
	Attempts int
	Workers  int
	RPS      float64
	Timeout  time.Duration

	// VerifyTimeout bounds the consistency check, which runs even after
	// Timeout has cut the load short.
	VerifyTimeout time.Duration
}

const defaultVerifyTimeout = 30 * time.Second

// report aggregates outcomes. Counters are updated atomically from workers.
type report struct {
	Issued      int64
	Already     int64
	Exhausted   int64
	Unavailable int64
	Limited     int64
	Failed      int64

	mu        sync.Mutex
	latencies []time.Duration
	holders   map[string][]string // claimant -> codes
}

func main() {
	var o options
	flag.StringVar(&o.Base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.IntVar(&o.Users, "users", 200, "distinct claimants")
	flag.IntVar(&o.Quota, "quota", 50, "campaign quota")
	flag.IntVar(&o.Attempts, "attempts", 2, "claims per user")
	flag.IntVar(&o.Workers, "workers", 32, "concurrent workers")
	flag.Float64Var(&o.RPS, "rps", 200, "aggregate request rate")
	flag.DurationVar(&o.Timeout, "timeout", 2*time.Minute, "deadline for the load phase")
	flag.DurationVar(&o.VerifyTimeout, "verify-timeout", defaultVerifyTimeout, "deadline for the consistency check")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()

	hc := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        o.Workers * 4,
			MaxIdleConnsPerHost: o.Workers * 4,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 30 * time.Second,
	}
	if err := run(ctx, newAPIClient(o.Base, hc), o, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "claimload: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, api *apiClient, o options, out io.Writer) error {
	if o.Users < 1 || o.Quota < 1 || o.Attempts < 1 || o.Workers < 1 || o.RPS <= 0 {
		return errors.New("users, quota, attempts, workers and rps must be positive")
	}

	brand, err := api.token(ctx, "claimload-brand", "brand")
	if err != nil {
		return fmt.Errorf("brand token: %w", err)
	}
	camp, err := api.createCampaign(ctx, brand, fmt.Sprintf("claimload %s", time.Now().UTC().Format(time.RFC3339)), 10, o.Quota)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}

	tokens := make([]string, o.Users)
	for i := range tokens {
		if tokens[i], err = api.token(ctx, fmt.Sprintf("claimload-user-%d", i), "user"); err != nil {
			return fmt.Errorf("user token %d: %w", i, err)
		}
	}

	fmt.Fprintf(out, "campaign %d: quota=%d users=%d attempts=%d workers=%d rps=%.0f\n",
		camp.ID, o.Quota, o.Users, o.Attempts, o.Workers, o.RPS)

	rep := &report{holders: make(map[string][]string)}
	limiter := rate.NewLimiter(rate.Limit(o.RPS), max(1, int(o.RPS)/o.Workers))
	jobs := make(chan int)

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < o.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				claimOnce(ctx, api, camp.ID, fmt.Sprintf("claimload-user-%d", u), tokens[u], rep)
			}
		}()
	}
feed:
	for a := 0; a < o.Attempts; a++ {
		for u := 0; u < o.Users; u++ {
			select {
			case jobs <- u:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	rep.print(out, elapsed)
	if ctx.Err() != nil {
		fmt.Fprintf(out, "load stopped early: %v\n", ctx.Err())
	}

	vt := o.VerifyTimeout
	if vt <= 0 {
		vt = defaultVerifyTimeout
	}
	vctx, vcancel := context.WithTimeout(context.WithoutCancel(ctx), vt)
	defer vcancel()
	return verify(vctx, api, brand, camp.ID, o.Quota, rep, out)
}

func claimOnce(ctx context.Context, api *apiClient, campaignID int64, user, token string, rep *report) {
	start := time.Now()
	code, err := api.claim(ctx, token, campaignID)
	lat := time.Since(start)

	var ae *apiError
	switch {
	case err == nil:
		atomic.AddInt64(&rep.Issued, 1)
		rep.mu.Lock()
		rep.holders[user] = append(rep.holders[user], code)
		rep.latencies = append(rep.latencies, lat)
		rep.mu.Unlock()
	case errors.As(err, &ae) && ae.Status == http.StatusConflict:
		atomic.AddInt64(&rep.Already, 1)
	case errors.As(err, &ae) && ae.Status == http.StatusGone:
		atomic.AddInt64(&rep.Exhausted, 1)
	case errors.As(err, &ae) && ae.Status == http.StatusServiceUnavailable:
		atomic.AddInt64(&rep.Unavailable, 1)
	case errors.As(err, &ae) && ae.Status == http.StatusTooManyRequests:
		atomic.AddInt64(&rep.Limited, 1)
	default:
		atomic.AddInt64(&rep.Failed, 1)
	}
}

func (r *report) print(out io.Writer, elapsed time.Duration) {
	total := r.Issued + r.Already + r.Exhausted + r.Unavailable + r.Limited + r.Failed
	fmt.Fprintf(out, "requests=%d in %.2fs (%.1f req/s)\n", total, elapsed.Seconds(), float64(total)/elapsed.Seconds())
	fmt.Fprintf(out, "issued=%d already_claimed=%d exhausted=%d unavailable=%d rate_limited=%d failed=%d\n",
		r.Issued, r.Already, r.Exhausted, r.Unavailable, r.Limited, r.Failed)
	if p := percentile(r.latencies, 0.95); p > 0 {
		fmt.Fprintf(out, "p50=%v p95=%v (issued claims)\n", percentile(r.latencies, 0.50), p)
	}
}

func percentile(lat []time.Duration, q float64) time.Duration {
	if len(lat) == 0 {
		return 0
	}
	s := append([]time.Duration(nil), lat...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	idx := int(float64(len(s)) * q)
	if idx >= len(s) {
		idx = len(s) - 1
	}
	return s[idx]
}

// verify compares what the clients saw with what the server reports.
func verify(ctx context.Context, api *apiClient, brand string, campaignID int64, quota int, rep *report, out io.Writer) error {
	camp, err := api.getCampaign(ctx, brand, campaignID)
	if err != nil {
		return fmt.Errorf("get campaign: %w", err)
	}
	codes, err := api.listCodes(ctx, brand, campaignID)
	if err != nil {
		return fmt.Errorf("list codes: %w", err)
	}

	var problems []string
	if len(codes) > quota {
		problems = append(problems, fmt.Sprintf("over-issued: %d codes for quota %d", len(codes), quota))
	}
	// A claim that failed on the client side (deadline, dropped connection)
	// may still have been issued by the server.
	if n := int64(len(codes)); n < rep.Issued || n > rep.Issued+rep.Failed {
		problems = append(problems, fmt.Sprintf("server has %d codes, clients received %d (%d unknown)", n, rep.Issued, rep.Failed))
	}
	if camp.Available != quota-len(codes) {
		problems = append(problems, fmt.Sprintf("available=%d, want %d", camp.Available, quota-len(codes)))
	}
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if seen[c.Claimant] {
			problems = append(problems, fmt.Sprintf("claimant %s holds more than one code", c.Claimant))
		}
		seen[c.Claimant] = true
	}
	for user, held := range rep.holders {
		if len(held) > 1 {
			problems = append(problems, fmt.Sprintf("%s received %d codes", user, len(held)))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(out, "FAIL:", p)
		}
		return fmt.Errorf("%d consistency problems", len(problems))
	}
	fmt.Fprintf(out, "OK: %d/%d codes issued, one per claimant\n", len(codes), quota)
	return nil
}
