// Relife Gateway - Authentication and Authorization for the Relife AI Parameters API
// Copyright 2026 Coolhgg
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Coolhgg/relife-gateway

package metrics

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecordAPIRequest tests API request metric recording
func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode string
		duration   time.Duration
	}{
		{
			name:       "successful parameter read",
			method:     "GET",
			endpoint:   "/api/ai-parameters",
			statusCode: "200",
			duration:   25 * time.Millisecond,
		},
		{
			name:       "successful login",
			method:     "POST",
			endpoint:   "/api/auth/login",
			statusCode: "200",
			duration:   150 * time.Millisecond,
		},
		{
			name:       "unauthorized request",
			method:     "PUT",
			endpoint:   "/api/ai-parameters",
			statusCode: "401",
			duration:   5 * time.Millisecond,
		},
		{
			name:       "forbidden request",
			method:     "POST",
			endpoint:   "/api/admin/api-keys",
			statusCode: "403",
			duration:   8 * time.Millisecond,
		},
		{
			name:       "rate limited request",
			method:     "PUT",
			endpoint:   "/api/ai-parameters",
			statusCode: "429",
			duration:   1 * time.Millisecond,
		},
		{
			name:       "validation failure",
			method:     "PUT",
			endpoint:   "/api/ai-parameters",
			statusCode: "400",
			duration:   3 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Record the request - should not panic
			RecordAPIRequest(tt.method, tt.endpoint, tt.statusCode, tt.duration)
		})
	}
}

// TestTrackActiveRequest tests active request gauge tracking
func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+2 {
		t.Errorf("APIActiveRequests = %v, want %v", got, before+2)
	}

	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("APIActiveRequests = %v, want %v", got, before)
	}
}

// TestRecordAuthAttempt tests authentication attempt recording
func TestRecordAuthAttempt(t *testing.T) {
	tests := []struct {
		method string
		result string
	}{
		{"jwt", "success"},
		{"jwt", "failure"},
		{"api_key", "success"},
		{"api_key", "failure"},
		{"password", "success"},
		{"none", "failure"},
	}

	for _, tt := range tests {
		t.Run(tt.method+"_"+tt.result, func(t *testing.T) {
			before := testutil.ToFloat64(AuthAttemptsTotal.WithLabelValues(tt.method, tt.result))
			RecordAuthAttempt(tt.method, tt.result)
			after := testutil.ToFloat64(AuthAttemptsTotal.WithLabelValues(tt.method, tt.result))
			if after != before+1 {
				t.Errorf("AuthAttemptsTotal{%s,%s} = %v, want %v", tt.method, tt.result, after, before+1)
			}
		})
	}
}

// TestRecordRateLimitRejection tests per-class rejection counting
func TestRecordRateLimitRejection(t *testing.T) {
	classes := []string{"ip", "general", "auth", "parameter_updates", "critical"}

	for _, class := range classes {
		t.Run(class, func(t *testing.T) {
			before := testutil.ToFloat64(RateLimitRejections.WithLabelValues(class))
			RecordRateLimitRejection(class)
			after := testutil.ToFloat64(RateLimitRejections.WithLabelValues(class))
			if after != before+1 {
				t.Errorf("RateLimitRejections{%s} = %v, want %v", class, after, before+1)
			}
		})
	}
}

// TestRecordRateLimitBypass tests the admin bypass counter
func TestRecordRateLimitBypass(t *testing.T) {
	before := testutil.ToFloat64(RateLimitBypasses)
	RecordRateLimitBypass()
	if got := testutil.ToFloat64(RateLimitBypasses); got != before+1 {
		t.Errorf("RateLimitBypasses = %v, want %v", got, before+1)
	}
}

// TestRecordAuthzDecision tests authorization decision recording
func TestRecordAuthzDecision(t *testing.T) {
	allowedBefore := testutil.ToFloat64(AuthzDecisionsTotal.WithLabelValues("allowed"))
	deniedBefore := testutil.ToFloat64(AuthzDecisionsTotal.WithLabelValues("denied"))

	RecordAuthzDecision(true)
	RecordAuthzDecision(false)
	RecordAuthzDecision(false)

	if got := testutil.ToFloat64(AuthzDecisionsTotal.WithLabelValues("allowed")); got != allowedBefore+1 {
		t.Errorf("AuthzDecisionsTotal{allowed} = %v, want %v", got, allowedBefore+1)
	}
	if got := testutil.ToFloat64(AuthzDecisionsTotal.WithLabelValues("denied")); got != deniedBefore+2 {
		t.Errorf("AuthzDecisionsTotal{denied} = %v, want %v", got, deniedBefore+2)
	}
}

// TestRecordAuthzCacheLookup tests cache hit/miss recording
func TestRecordAuthzCacheLookup(t *testing.T) {
	hitsBefore := testutil.ToFloat64(AuthzCacheHits)
	missesBefore := testutil.ToFloat64(AuthzCacheMisses)

	RecordAuthzCacheLookup(true)
	RecordAuthzCacheLookup(false)

	if got := testutil.ToFloat64(AuthzCacheHits); got != hitsBefore+1 {
		t.Errorf("AuthzCacheHits = %v, want %v", got, hitsBefore+1)
	}
	if got := testutil.ToFloat64(AuthzCacheMisses); got != missesBefore+1 {
		t.Errorf("AuthzCacheMisses = %v, want %v", got, missesBefore+1)
	}
}

// TestRecordKeyOperation tests key operation recording with success labels
func TestRecordKeyOperation(t *testing.T) {
	tests := []struct {
		operation string
		success   bool
		label     string
	}{
		{"create", true, "true"},
		{"revoke", true, "true"},
		{"delete", true, "true"},
		{"create", false, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.operation+"_"+tt.label, func(t *testing.T) {
			before := testutil.ToFloat64(KeyOperationsTotal.WithLabelValues(tt.operation, tt.label))
			RecordKeyOperation(tt.operation, tt.success)
			after := testutil.ToFloat64(KeyOperationsTotal.WithLabelValues(tt.operation, tt.label))
			if after != before+1 {
				t.Errorf("KeyOperationsTotal{%s,%s} = %v, want %v", tt.operation, tt.label, after, before+1)
			}
		})
	}
}

// TestRecordKeyValidation tests validation result recording
func TestRecordKeyValidation(t *testing.T) {
	results := []string{
		"success", "invalid_format", "not_found", "unavailable",
		"revoked", "expired", "secret_mismatch", "rate_limited",
	}

	for _, result := range results {
		t.Run(result, func(t *testing.T) {
			// Should not panic; histogram observation has no simple getter
			RecordKeyValidation(result, 5*time.Millisecond)
		})
	}
}

// TestRecordCSRFValidation tests CSRF result recording
func TestRecordCSRFValidation(t *testing.T) {
	results := []string{"success", "missing", "mismatch"}
	for _, result := range results {
		before := testutil.ToFloat64(CSRFValidationsTotal.WithLabelValues(result))
		RecordCSRFValidation(result)
		after := testutil.ToFloat64(CSRFValidationsTotal.WithLabelValues(result))
		if after != before+1 {
			t.Errorf("CSRFValidationsTotal{%s} = %v, want %v", result, after, before+1)
		}
	}
}

// TestAuditMetrics tests audit trail metric recording
func TestAuditMetrics(t *testing.T) {
	before := testutil.ToFloat64(AuditEventsTotal.WithLabelValues("parameter_update"))
	RecordAuditEvent("parameter_update")
	if got := testutil.ToFloat64(AuditEventsTotal.WithLabelValues("parameter_update")); got != before+1 {
		t.Errorf("AuditEventsTotal{parameter_update} = %v, want %v", got, before+1)
	}

	dropsBefore := testutil.ToFloat64(AuditQueueDropped)
	RecordAuditDrop()
	if got := testutil.ToFloat64(AuditQueueDropped); got != dropsBefore+1 {
		t.Errorf("AuditQueueDropped = %v, want %v", got, dropsBefore+1)
	}

	evictionsBefore := testutil.ToFloat64(AuditEvictionsTotal)
	RecordAuditEviction(501)
	if got := testutil.ToFloat64(AuditEvictionsTotal); got != evictionsBefore+501 {
		t.Errorf("AuditEvictionsTotal = %v, want %v", got, evictionsBefore+501)
	}

	SetAuditStoreEntries(500)
	if got := testutil.ToFloat64(AuditStoreEntries); got != 500 {
		t.Errorf("AuditStoreEntries = %v, want 500", got)
	}
}

// TestRecordNATSFlush tests forwarding flush recording
func TestRecordNATSFlush(t *testing.T) {
	publishedBefore := testutil.ToFloat64(NATSMessagesPublished)
	errorsBefore := testutil.ToFloat64(NATSPublishErrors)

	RecordNATSFlush(25, 10*time.Millisecond, nil)
	if got := testutil.ToFloat64(NATSMessagesPublished); got != publishedBefore+25 {
		t.Errorf("NATSMessagesPublished = %v, want %v", got, publishedBefore+25)
	}

	RecordNATSFlush(10, 5*time.Millisecond, errors.New("connection refused"))
	if got := testutil.ToFloat64(NATSPublishErrors); got != errorsBefore+1 {
		t.Errorf("NATSPublishErrors = %v, want %v", got, errorsBefore+1)
	}
	// Failed flush must not count messages as published
	if got := testutil.ToFloat64(NATSMessagesPublished); got != publishedBefore+25 {
		t.Errorf("NATSMessagesPublished after failure = %v, want %v", got, publishedBefore+25)
	}
}

// TestCircuitBreakerMetrics tests breaker metric recording
func TestCircuitBreakerMetrics(t *testing.T) {
	SetBreakerState("apikeys", 0)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("apikeys")); got != 0 {
		t.Errorf("CircuitBreakerState{apikeys} = %v, want 0", got)
	}

	SetBreakerState("apikeys", 2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("apikeys")); got != 2 {
		t.Errorf("CircuitBreakerState{apikeys} = %v, want 2", got)
	}

	before := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("apikeys", "closed", "open"))
	RecordBreakerTransition("apikeys", "closed", "open")
	if got := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("apikeys", "closed", "open")); got != before+1 {
		t.Errorf("CircuitBreakerTransitions = %v, want %v", got, before+1)
	}

	RecordBreakerRequest("apikeys", "success")
	RecordBreakerRequest("apikeys", "rejected")
}

// TestAppMetrics tests version info publication and the uptime gauge
func TestAppMetrics(t *testing.T) {
	SetAppInfo("1.0.0-test")
	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.0.0-test", runtime.Version())); got != 1 {
		t.Errorf("AppInfo = %v, want 1", got)
	}

	if got := testutil.ToFloat64(AppUptime); got <= 0 {
		t.Errorf("AppUptime = %v, want > 0", got)
	}
}

// TestConcurrentMetricRecording verifies thread safety under concurrent load
func TestConcurrentMetricRecording(t *testing.T) {
	var wg sync.WaitGroup
	workers := 10
	iterations := 100

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				RecordAPIRequest("GET", "/api/ai-parameters", "200", time.Millisecond)
				RecordAuthAttempt("api_key", "success")
				RecordRateLimitRejection("general")
				RecordAuthzDecision(true)
				RecordKeyValidation("success", time.Millisecond)
				RecordAuditEvent("auth_success")
			}
		}()
	}
	wg.Wait()
}

// TestMetricsRegistration verifies all metrics can be collected without panic
func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		APIRequestsTotal,
		APIRequestDuration,
		APIActiveRequests,
		AuthAttemptsTotal,
		RateLimitRejections,
		RateLimitBypasses,
		RateLimitTrackedKeys,
		AuthzDecisionsTotal,
		AuthzCacheHits,
		AuthzCacheMisses,
		KeyOperationsTotal,
		KeyValidationsTotal,
		KeyValidationDuration,
		ActiveKeys,
		CSRFValidationsTotal,
		ValidationFailuresTotal,
		AuditEventsTotal,
		AuditQueueDropped,
		AuditEvictionsTotal,
		AuditStoreEntries,
		NATSMessagesPublished,
		NATSPublishErrors,
		NATSBatchFlushDuration,
		NATSBatchSize,
		NATSOutboxDepth,
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerTransitions,
		AppInfo,
		AppUptime,
	}

	// Verify each metric can be described
	for _, m := range metrics {
		ch := make(chan *prometheus.Desc, 10)
		m.Describe(ch)
		close(ch)

		// Should have at least one descriptor
		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("Metric has no descriptors")
		}
	}
}

// TestMetricGathering tests that metrics can be gathered using testutil
func TestMetricGathering(t *testing.T) {
	// Record some metrics
	RecordAPIRequest("GET", "/test", "200", time.Millisecond)
	RecordAuthAttempt("jwt", "success")

	// Verify we can lint the metrics (checks for consistency issues)
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Logf("Lint errors (may be expected): %v", err)
	}
	for _, p := range problems {
		t.Logf("Metric lint problem: %s", p.Text)
	}
}

// Benchmark tests for metrics performance

func BenchmarkRecordAPIRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordAPIRequest("GET", "/api/ai-parameters", "200", 25*time.Millisecond)
	}
}

func BenchmarkRecordAuthAttempt(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordAuthAttempt("api_key", "success")
	}
}

func BenchmarkRecordKeyValidation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordKeyValidation("success", 5*time.Millisecond)
	}
}

func BenchmarkTrackActiveRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		TrackActiveRequest(true)
		TrackActiveRequest(false)
	}
}
