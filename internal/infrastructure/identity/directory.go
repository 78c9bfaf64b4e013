package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fileflow-platform/tracking-service/pkg/logging"
	"github.com/fileflow-platform/tracking-service/pkg/metrics"
	"github.com/fileflow-platform/tracking-service/pkg/resilience"
)

// Config holds employee directory client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default directory client configuration
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL: baseURL,
		Timeout: 3 * time.Second,
	}
}

// Directory resolves employee codes to display names through the employee
// directory HTTP API, behind a circuit breaker so a flapping directory
// cannot slow the tracking path down
type Directory struct {
	baseURL string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	logger  *logging.Logger
}

// NewDirectory creates a new Directory client
func NewDirectory(config *Config, m *metrics.Metrics, logger *logging.Logger) *Directory {
	breakerConfig := resilience.DefaultCircuitBreakerConfig("employee-directory")
	breakerConfig.OnStateChange = func(name string, from, to gobreaker.State) {
		m.SetCircuitBreakerState(name, int(to))
		if to == gobreaker.StateOpen {
			m.RecordCircuitBreakerTrip(name)
		}
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.RetryableErrors = func(err error) bool {
		// Retry transport failures once; circuit-open means stop asking
		return err != gobreaker.ErrOpenState && err != gobreaker.ErrTooManyRequests
	}

	return &Directory{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: resilience.NewCircuitBreaker(breakerConfig, logger.Logger),
		retry:   retry,
		logger:  logger,
	}
}

type employeeResponse struct {
	EmployeeCode string `json:"employeeCode"`
	DisplayName  string `json:"displayName"`
}

// DisplayName resolves one employee code to a display name
func (d *Directory) DisplayName(ctx context.Context, employeeCode string) (string, error) {
	name, err := resilience.RetryWithResult(ctx, d.retry, func() (string, error) {
		result, err := d.breaker.Execute(ctx, func() (interface{}, error) {
			return d.fetch(ctx, employeeCode)
		})
		if err != nil {
			return "", err
		}
		return result.(string), nil
	})
	if err != nil {
		return "", fmt.Errorf("directory lookup failed for %s: %w", employeeCode, err)
	}
	return name, nil
}

func (d *Directory) fetch(ctx context.Context, employeeCode string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/employees/%s", d.baseURL, url.PathEscape(employeeCode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unknown employees are not a directory failure
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var employee employeeResponse
	if err := json.NewDecoder(resp.Body).Decode(&employee); err != nil {
		return "", fmt.Errorf("failed to decode directory response: %w", err)
	}

	return employee.DisplayName, nil
}
