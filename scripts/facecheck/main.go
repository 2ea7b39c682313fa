// Command facecheck probes every configured face recognition endpoint and
// reports reachability and latency. Exit code 1 means no endpoint answered,
// which is what the API's verification failover would experience.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type probe struct {
	Endpoint string
	Status   int
	Duration time.Duration
	Err      error
}

func main() {
	var (
		endpoints string
		timeout   time.Duration
	)

	flag.StringVar(&endpoints, "endpoints", "http://localhost:5000", "Comma-separated face service base URLs")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout per endpoint")
	flag.Parse()

	client := &http.Client{Timeout: timeout}
	var (
		probes  []probe
		healthy int
	)

	for _, base := range strings.Split(endpoints, ",") {
		base = strings.TrimSpace(base)
		if base == "" {
			continue
		}
		p := check(client, base)
		if p.Err == nil && p.Status < 300 {
			healthy++
		}
		probes = append(probes, p)
	}

	printReport(probes)

	fmt.Printf("Healthy endpoints: %d/%d\n", healthy, len(probes))
	if healthy == 0 {
		os.Exit(1)
	}
}

func check(client *http.Client, base string) probe {
	p := probe{Endpoint: base}
	start := time.Now()
	resp, err := client.Get(base + "/health")
	p.Duration = time.Since(start)
	if err != nil {
		p.Err = err
		return p
	}
	defer resp.Body.Close() //nolint:errcheck
	p.Status = resp.StatusCode
	return p
}

func printReport(probes []probe) {
	for _, p := range probes {
		if p.Err != nil {
			fmt.Printf("FAIL %-40s %v\n", p.Endpoint, p.Err)
			continue
		}
		state := "OK  "
		if p.Status >= 300 {
			state = "WARN"
		}
		fmt.Printf("%s %-40s status=%d latency=%s\n", state, p.Endpoint, p.Status, p.Duration.Round(time.Millisecond))
	}
}
