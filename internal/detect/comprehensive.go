package detect

import (
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	mstats "github.com/montanaflynn/stats"

	"github.com/jaykumar/telemetry-anomaly-pipeline/internal/event"
)

// DefaultIPTrackingCapacity bounds the Comprehensive Detector's per-IP
// tracking table. comprehensive_detector.py uses an unbounded
// collections.defaultdict for ip_requests; spec.md §9 requires this be
// capped in a long-running process, so an LRU replaces it (10k entries,
// oldest-evicted-first under pressure rather than growing without bound).
const DefaultIPTrackingCapacity = 10_000

// Severity mirrors the Python source's plain severity strings.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Finding is one rule hit from any of the four detection passes.
type Finding struct {
	AnomalyType string
	Severity    Severity
	Score       float64
	Fields      map[string]any
}

// ComprehensiveResult is the aggregate output of Detect.
type ComprehensiveResult struct {
	IsAnomaly    bool
	AnomalyScore float64
	AnomalyType  string
	Severity     Severity
	Top          *Finding
	All          []Finding
}

type ipTrackEntry struct {
	count      int
	endpoints  map[string]struct{}
	userAgents map[string]struct{}
	lastSeen   time.Time
	timestamps []time.Time // bounded to 100, oldest first
}

// ComprehensiveDetector is the rule-based detector of spec §4.7: HTTP-error,
// performance, resource, and security passes, grounded on
// original_source/src/anomaly/comprehensive_detector.py.
type ComprehensiveDetector struct {
	responseTimeHistory []float64
	rpsHistory          []float64
	errorRateHistory    []float64
	cpuHistory          []float64
	memoryHistory       []float64

	ipRequests *lru.Cache[string, *ipTrackEntry]
}

// NewComprehensiveDetector builds a detector with the bounded IP table.
func NewComprehensiveDetector() *ComprehensiveDetector {
	cache, _ := lru.New[string, *ipTrackEntry](DefaultIPTrackingCapacity)
	return &ComprehensiveDetector{ipRequests: cache}
}

func pushBounded(slice []float64, v float64, maxLen int) []float64 {
	slice = append(slice, v)
	if len(slice) > maxLen {
		slice = slice[len(slice)-maxLen:]
	}
	return slice
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

var httpServerErrorMessages = map[int]string{
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

var httpClientErrorMessages = map[int]string{
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	408: "Request Timeout",
	429: "Too Many Requests",
}

// DetectHTTPErrors flags 4xx/5xx status codes: 5xx is always critical
// (score 1.0), 4xx is warning (0.7 for 429, else 0.5).
func (d *ComprehensiveDetector) DetectHTTPErrors(e event.Event) *Finding {
	code, ok := e.StatusCode.Get()
	if !ok {
		return nil
	}

	if code >= 500 {
		msg, known := httpServerErrorMessages[code]
		if !known {
			msg = fmt.Sprintf("Server Error %d", code)
		}
		return &Finding{
			AnomalyType: "http_server_error",
			Severity:    SeverityCritical,
			Score:       1.0,
			Fields: map[string]any{
				"status_code":   code,
				"error_message": msg,
				"endpoint":      e.Endpoint,
				"timestamp":     e.TimestampString(),
			},
		}
	}
	if code >= 400 {
		score := 0.5
		if code == 429 {
			score = 0.7
		}
		msg, known := httpClientErrorMessages[code]
		if !known {
			msg = fmt.Sprintf("Client Error %d", code)
		}
		return &Finding{
			AnomalyType: "http_client_error",
			Severity:    SeverityWarning,
			Score:       score,
			Fields: map[string]any{
				"status_code":   code,
				"error_message": msg,
				"endpoint":      e.Endpoint,
				"timestamp":     e.TimestampString(),
			},
		}
	}
	return nil
}

// DetectPerformanceAnomalies flags response-time spikes, P99 latency
// spikes, RPS spikes/drops, and error-rate spikes, maintaining the
// detector's rolling histories as a side effect (matching
// comprehensive_detector.py's stateful deques).
func (d *ComprehensiveDetector) DetectPerformanceAnomalies(e event.Event, recentEvents []event.Event) []Finding {
	var findings []Finding

	if rt, ok := e.ResponseTime.Get(); ok && rt > 0 {
		d.responseTimeHistory = pushBounded(d.responseTimeHistory, rt, 1000)

		if n := len(d.responseTimeHistory); n >= 10 {
			recentAvg := meanOf(d.responseTimeHistory[n-10:])
			historicalAvg := recentAvg
			if n > 10 {
				historicalAvg = meanOf(d.responseTimeHistory[:n-10])
			}

			if historicalAvg > 0 && recentAvg > historicalAvg*2 {
				findings = append(findings, Finding{
					AnomalyType: "response_time_spike",
					Severity:    SeverityWarning,
					Score:       math.Min(1.0, (recentAvg/historicalAvg-1)*0.5),
					Fields: map[string]any{
						"current_avg":    recentAvg,
						"historical_avg": historicalAvg,
						"increase_ratio": recentAvg / historicalAvg,
					},
				})
			}

			if n >= 20 {
				p95, _ := mstats.Percentile(d.responseTimeHistory, 95)
				p99, _ := mstats.Percentile(d.responseTimeHistory, 99)
				if p99 > historicalAvg*3 {
					findings = append(findings, Finding{
						AnomalyType: "p99_latency_spike",
						Severity:    SeverityCritical,
						Score:       0.9,
						Fields: map[string]any{
							"p99": p99, "p95": p95, "avg": historicalAvg,
						},
					})
				}
			}
		}
	}

	if len(recentEvents) >= 10 {
		window := recentEvents[len(recentEvents)-10:]
		first, last := window[0].Timestamp, window[len(window)-1].Timestamp
		if !first.IsZero() && !last.IsZero() {
			span := last.Sub(first).Seconds()
			if span > 0 {
				currentRPS := float64(len(window)) / span
				d.rpsHistory = pushBounded(d.rpsHistory, currentRPS, 100)

				if n := len(d.rpsHistory); n >= 5 {
					recentAvg := meanOf(d.rpsHistory[n-3:])
					historicalAvg := meanOf(d.rpsHistory[:n-3])

					switch {
					case historicalAvg > 0 && recentAvg > historicalAvg*2:
						findings = append(findings, Finding{
							AnomalyType: "rps_spike",
							Severity:    SeverityWarning,
							Score:       math.Min(1.0, (recentAvg/historicalAvg-1)*0.3),
							Fields: map[string]any{
								"current_rps": recentAvg, "historical_rps": historicalAvg,
							},
						})
					case historicalAvg > 0 && recentAvg < historicalAvg*0.3:
						findings = append(findings, Finding{
							AnomalyType: "rps_drop",
							Severity:    SeverityCritical,
							Score:       0.8,
							Fields: map[string]any{
								"current_rps": recentAvg, "historical_rps": historicalAvg,
							},
						})
					}
				}
			}
		}
	}

	if len(recentEvents) >= 10 {
		var errCount, total int
		for _, ev := range recentEvents {
			if _, ok := ev.StatusCode.Get(); ok {
				total++
			}
		}
		_ = total
		for _, ev := range recentEvents {
			if ev.IsNumericError() {
				errCount++
			}
		}
		currentErrorRate := float64(errCount) / float64(len(recentEvents))
		d.errorRateHistory = pushBounded(d.errorRateHistory, currentErrorRate, 100)

		if n := len(d.errorRateHistory); n >= 5 {
			recentRate := meanOf(d.errorRateHistory[n-3:])
			historicalRate := meanOf(d.errorRateHistory[:n-3])

			if historicalRate < 0.1 && recentRate > 0.2 {
				severity := SeverityWarning
				if recentRate > 0.5 {
					severity = SeverityCritical
				}
				findings = append(findings, Finding{
					AnomalyType: "error_rate_spike",
					Severity:    severity,
					Score:       math.Min(1.0, recentRate*2),
					Fields: map[string]any{
						"current_error_rate":    recentRate,
						"historical_error_rate": historicalRate,
					},
				})
			}
		}
	}

	return findings
}

// DetectResourceAnomalies flags CPU spikes/saturation and memory
// leaks/OOM-imminent conditions.
func (d *ComprehensiveDetector) DetectResourceAnomalies(e event.Event) []Finding {
	var findings []Finding

	if cpu, ok := e.CPUUsage.Get(); ok && cpu > 0 {
		d.cpuHistory = pushBounded(d.cpuHistory, cpu, 500)

		if n := len(d.cpuHistory); n >= 5 {
			recent := d.cpuHistory[n-3:]
			historical := d.cpuHistory[:n-3]
			if len(historical) > 0 {
				recentAvg := meanOf(recent)
				historicalAvg := meanOf(historical)

				if recentAvg > historicalAvg*1.5 && recentAvg > 70 {
					severity := SeverityWarning
					if recentAvg >= 90 {
						severity = SeverityCritical
					}
					findings = append(findings, Finding{
						AnomalyType: "cpu_spike",
						Severity:    severity,
						Score:       math.Min(1.0, (recentAvg-70)/30),
						Fields: map[string]any{
							"current_cpu": recentAvg, "historical_cpu": historicalAvg,
						},
					})
				}
				if recentAvg >= 95 {
					findings = append(findings, Finding{
						AnomalyType: "cpu_saturated",
						Severity:    SeverityCritical,
						Score:       1.0,
						Fields:      map[string]any{"cpu_usage": recentAvg},
					})
				}
			}
		}
	}

	if mem, ok := e.MemoryUsage.Get(); ok && mem > 0 {
		d.memoryHistory = pushBounded(d.memoryHistory, mem, 500)

		if n := len(d.memoryHistory); n >= 10 {
			recent := d.memoryHistory[n-5:]
			historical := d.memoryHistory[:n-5]
			if len(historical) > 0 {
				recentAvg := meanOf(recent)
				historicalAvg := meanOf(historical)

				if recentAvg > historicalAvg*1.2 && recentAvg > 80 {
					severity := SeverityWarning
					if recentAvg >= 90 {
						severity = SeverityCritical
					}
					findings = append(findings, Finding{
						AnomalyType: "memory_leak",
						Severity:    severity,
						Score:       math.Min(1.0, (recentAvg-80)/20),
						Fields: map[string]any{
							"current_memory": recentAvg, "historical_memory": historicalAvg,
						},
					})
				}
				if recentAvg >= 95 {
					findings = append(findings, Finding{
						AnomalyType: "oom_imminent",
						Severity:    SeverityCritical,
						Score:       1.0,
						Fields:      map[string]any{"memory_usage": recentAvg},
					})
				}
			}
		}
	}

	return findings
}

// DetectSecurityAnomalies flags high-volume single-IP activity, rapid
// repeated requests from one IP, and concentrated attacks on a single
// endpoint, grounded on comprehensive_detector.py's detect_security_anomalies.
func (d *ComprehensiveDetector) DetectSecurityAnomalies(e event.Event, recentEvents []event.Event) []Finding {
	var findings []Finding

	ip := e.IP
	if ip == "" {
		ip = "unknown"
	}
	if ip != "unknown" {
		entry, ok := d.ipRequests.Get(ip)
		if !ok {
			entry = &ipTrackEntry{
				endpoints:  make(map[string]struct{}),
				userAgents: make(map[string]struct{}),
			}
		}
		entry.count++
		entry.endpoints[e.Endpoint] = struct{}{}
		entry.userAgents[e.UserAgent] = struct{}{}
		entry.lastSeen = time.Now()
		entry.timestamps = append(entry.timestamps, e.Timestamp)
		if len(entry.timestamps) > 100 {
			entry.timestamps = entry.timestamps[len(entry.timestamps)-100:]
		}
		d.ipRequests.Add(ip, entry)

		if entry.count > 50 {
			findings = append(findings, Finding{
				AnomalyType: "suspicious_ip_activity",
				Severity:    SeverityWarning,
				Score:       math.Min(1.0, float64(entry.count)/100),
				Fields: map[string]any{
					"ip":                ip,
					"request_count":     entry.count,
					"endpoints_accessed": len(entry.endpoints),
				},
			})
		}

		if len(entry.timestamps) >= 10 {
			window := entry.timestamps[len(entry.timestamps)-10:]
			first, last := window[0], window[len(window)-1]
			if !first.IsZero() && !last.IsZero() {
				span := last.Sub(first).Seconds()
				if span > 0 && span < 10 {
					rps := 10 / span
					if rps > 5 {
						findings = append(findings, Finding{
							AnomalyType: "rapid_request_pattern",
							Severity:    SeverityWarning,
							Score:       math.Min(1.0, rps/10),
							Fields:      map[string]any{"ip": ip, "rps": rps},
						})
					}
				}
			}
		}
	}

	endpointCounts := make(map[string]int)
	tail := recentEvents
	if len(tail) > 50 {
		tail = tail[len(tail)-50:]
	}
	for _, ev := range tail {
		endpointCounts[ev.Endpoint]++
	}
	for ep, count := range endpointCounts {
		if count > 30 {
			findings = append(findings, Finding{
				AnomalyType: "endpoint_attack",
				Severity:    SeverityWarning,
				Score:       math.Min(1.0, float64(count)/50),
				Fields: map[string]any{
					"endpoint": ep, "request_count": count,
				},
			})
		}
	}

	return findings
}

// Detect runs all four passes and returns the single most severe finding
// (critical findings win over any other severity; ties broken by score),
// matching comprehensive_detector.py's detect aggregation.
func (d *ComprehensiveDetector) Detect(e event.Event, recentEvents []event.Event) ComprehensiveResult {
	var all []Finding

	if f := d.DetectHTTPErrors(e); f != nil {
		all = append(all, *f)
	}
	all = append(all, d.DetectPerformanceAnomalies(e, recentEvents)...)
	all = append(all, d.DetectResourceAnomalies(e)...)
	all = append(all, d.DetectSecurityAnomalies(e, recentEvents)...)

	if len(all) == 0 {
		return ComprehensiveResult{AnomalyType: "normal", Severity: SeverityInfo}
	}

	best := pickMostSevere(all)
	return ComprehensiveResult{
		IsAnomaly:    true,
		AnomalyScore: best.Score,
		AnomalyType:  best.AnomalyType,
		Severity:     best.Severity,
		Top:          &best,
		All:          all,
	}
}

func pickMostSevere(findings []Finding) Finding {
	var critical []Finding
	for _, f := range findings {
		if f.Severity == SeverityCritical {
			critical = append(critical, f)
		}
	}
	pool := findings
	if len(critical) > 0 {
		pool = critical
	}
	best := pool[0]
	for _, f := range pool[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	return best
}
