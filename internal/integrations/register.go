package integrations

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wekeza/riskengine/internal/domain"
)

// NewRiskRegister builds the risk-register client variant selected by config.
func NewRiskRegister(cfg domain.IntegrationConfig) (domain.RiskRegister, error) {
	switch cfg.Mode {
	case "", "stub":
		return &StubRegister{}, nil
	case "live":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("risk register: live mode requires an endpoint")
		}
		return &LiveRegister{
			endpoint: cfg.Endpoint,
			apiKey:   cfg.APIKey,
			http:     &http.Client{Timeout: timeoutOr(cfg.Timeout)},
		}, nil
	default:
		return nil, fmt.Errorf("risk register: unknown mode %q", cfg.Mode)
	}
}

// StubRegister records events to the log only.
type StubRegister struct{}

// LogEvent implements domain.RiskRegister.
func (s *StubRegister) LogEvent(_ context.Context, category, title, description, severity string) error {
	slog.Info("stub risk event recorded",
		"category", category,
		"title", title,
		"severity", severity,
		"description", description,
	)
	return nil
}

// LiveRegister posts risk events to the organizational risk register.
type LiveRegister struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

type riskEventRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	RiskCategory string `json:"risk_category"`
	Severity     string `json:"severity"`
	Status       string `json:"status"`
	Likelihood   int    `json:"likelihood"`
	Impact       int    `json:"impact"`
}

// LogEvent implements domain.RiskRegister.
func (l *LiveRegister) LogEvent(ctx context.Context, category, title, description, severity string) error {
	likelihood, impact := severityWeights(severity)
	req := riskEventRequest{
		Name:         title,
		Description:  description,
		RiskCategory: category,
		Severity:     severity,
		Status:       "open",
		Likelihood:   likelihood,
		Impact:       impact,
	}

	if err := postJSON(ctx, l.http, l.endpoint, bearerAuth(l.apiKey), req, nil); err != nil {
		return fmt.Errorf("log risk event %q: %w", title, err)
	}
	return nil
}

func severityWeights(severity string) (likelihood, impact int) {
	switch severity {
	case domain.SeverityCritical:
		return 5, 5
	case domain.SeverityHigh:
		return 4, 4
	case domain.SeverityMedium:
		return 3, 3
	default:
		return 2, 2
	}
}
