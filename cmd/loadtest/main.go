// Command loadtest drives concurrent search traffic against a running search
// service and, for a share of successful searches, rates one of the returned
// results. It prints throughput, latency percentiles and status codes per
// endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RateRatio   float64
	Queries     []string
}

var defaultQueries = []string{
	"Diebstahl einer fremden Sache",
	"Mord aus Habgier",
	"Totschlag",
	"Kündigungsfrist Mietvertrag",
	"Schadensersatz wegen Pflichtverletzung",
	"Betrug Vermögensschaden",
	"Körperverletzung mit Todesfolge",
	"Verjährung von Ansprüchen",
	"Eigentumsvorbehalt",
	"Notwehr",
	"Unterhaltspflicht Verwandte",
	"Widerruf Verbrauchervertrag",
	"Urheberrecht Vervielfältigung",
	"Hausfriedensbruch",
	"Steuerhinterziehung",
}

// Stats aggregates outcomes for one endpoint.
type Stats struct {
	name          string
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats(name string) *Stats {
	return &Stats{
		name:        name,
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

type searchResponse struct {
	QueryID string `json:"query_id"`
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rateRatio := flag.Float64("rate-ratio", 0.2, "share of successful searches followed by a rating")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		RateRatio:   *rateRatio,
		Queries:     defaultQueries,
	}

	fmt.Println("=== Statute Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Printf("Rate ratio:  %.2f\n", cfg.RateRatio)
	fmt.Println()

	search, rate := runLoadTest(cfg)
	printReport(search, cfg.Duration)
	printReport(rate, cfg.Duration)

	if search.totalRequests.Load() == 0 {
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func runLoadTest(cfg Config) (search, rate *Stats) {
	search, rate = NewStats("search"), NewStats("rate")
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID
			for ctx.Err() == nil {
				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				resp, ok := doSearch(ctx, client, cfg.BaseURL, query, search)
				if !ok || len(resp.Results) == 0 || rand.Float64() >= cfg.RateRatio {
					continue
				}
				pick := resp.Results[rand.IntN(len(resp.Results))]
				doRate(ctx, client, cfg.BaseURL, resp.QueryID, pick.ID, rate)
			}
		}(w)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return search, rate
}

func doSearch(ctx context.Context, client *http.Client, baseURL, query string, stats *Stats) (searchResponse, bool) {
	target := fmt.Sprintf("%s/api/search?q=%s", baseURL, url.QueryEscape(query))
	var out searchResponse

	start := time.Now()
	resp, err := client.Do(mustNewRequest(ctx, target))
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordRequest(duration, 0, err)
		}
		return out, false
	}
	defer resp.Body.Close()
	stats.RecordRequest(duration, resp.StatusCode, nil)

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return out, false
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, false
	}
	return out, true
}

func doRate(ctx context.Context, client *http.Client, baseURL, queryID string, resultID int, stats *Stats) {
	rating := "positive"
	if rand.IntN(2) == 0 {
		rating = "negative"
	}
	params := url.Values{
		"id":  {strconv.Itoa(resultID)},
		"qid": {queryID},
		"r":   {rating},
	}

	start := time.Now()
	resp, err := client.Do(mustNewRequest(ctx, baseURL+"/api/rate?"+params.Encode()))
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordRequest(duration, 0, err)
		}
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	stats.RecordRequest(duration, resp.StatusCode, nil)
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errs := stats.errorCount.Load()

	fmt.Printf("=== %s ===\n", stats.name)
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errs)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println("Latency:")
		fmt.Printf("  Min:    %s\n", latencies[0])
		fmt.Printf("  Avg:    %s\n", avg)
		fmt.Printf("  P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("  P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("  P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("  Max:    %s\n", latencies[len(latencies)-1])
	}

	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	fmt.Println("Status Codes:")
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
