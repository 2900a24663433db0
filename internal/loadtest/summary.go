package loadtest

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// Summary aggregates a finished run. Latency fields cover successful requests
// only. StdDev is the sample standard deviation and is zero with fewer than
// two samples.
type Summary struct {
	Total      int
	Successful int
	Failed     []Result
	TotalTime  time.Duration
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	StdDev     time.Duration
	RPS        float64
}

func Summarize(results []Result, total time.Duration) Summary {
	s := Summary{Total: len(results), TotalTime: total}

	var times []float64
	for _, r := range results {
		if !r.Success() {
			s.Failed = append(s.Failed, r)
			continue
		}
		times = append(times, r.Elapsed.Seconds())
	}
	s.Successful = len(times)
	if len(times) == 0 {
		return s
	}

	lo, hi, sum := times[0], times[0], 0.0
	for _, t := range times {
		lo = math.Min(lo, t)
		hi = math.Max(hi, t)
		sum += t
	}
	mean := sum / float64(len(times))
	s.Min = seconds(lo)
	s.Max = seconds(hi)
	s.Mean = seconds(mean)

	if len(times) > 1 {
		var sq float64
		for _, t := range times {
			sq += (t - mean) * (t - mean)
		}
		s.StdDev = seconds(math.Sqrt(sq / float64(len(times)-1)))
	}
	if total > 0 {
		s.RPS = float64(len(times)) / total.Seconds()
	}
	return s
}

// ExitCode is zero only when every request succeeded.
func (s Summary) ExitCode() int {
	if len(s.Failed) > 0 || s.Successful != s.Total {
		return 1
	}
	return 0
}

func (s Summary) Print(w io.Writer) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\nSUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(w, "Total requests:     %d\n", s.Total)
	fmt.Fprintf(w, "Successful:         %d\n", s.Successful)
	fmt.Fprintf(w, "Failed:             %d\n", len(s.Failed))
	fmt.Fprintf(w, "Total time:         %.2fs\n", s.TotalTime.Seconds())

	if s.Successful > 0 {
		fmt.Fprintf(w, "\nResponse times (successful requests):\n")
		fmt.Fprintf(w, "  Min:              %.2fs\n", s.Min.Seconds())
		fmt.Fprintf(w, "  Max:              %.2fs\n", s.Max.Seconds())
		fmt.Fprintf(w, "  Average:          %.2fs\n", s.Mean.Seconds())
		if s.Successful > 1 {
			fmt.Fprintf(w, "  Std Dev:          %.2fs\n", s.StdDev.Seconds())
		}
		fmt.Fprintf(w, "  Requests/sec:     %.2f\n", s.RPS)
	}

	if len(s.Failed) > 0 {
		fmt.Fprintf(w, "\nFailed requests:\n")
		for _, r := range s.Failed {
			fmt.Fprintf(w, "  - %s...\n", truncate(r.Query, 50))
			if r.Err != nil {
				fmt.Fprintf(w, "    Error: %v\n", r.Err)
			}
		}
	}
}

// PrintDetails writes every response body, for verbose runs.
func PrintDetails(w io.Writer, results []Result) {
	rule := strings.Repeat("-", 60)
	fmt.Fprintf(w, "\n%s\nDETAILED RESPONSES\n%s\n", rule, rule)
	for _, r := range results {
		fmt.Fprintf(w, "\nQuery: %s\n", r.Query)
		fmt.Fprintf(w, "Status: %d, Time: %.2fs\n", r.StatusCode, r.Elapsed.Seconds())
		if r.Body != "" {
			fmt.Fprintf(w, "Response: %s\n", r.Body)
		}
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
