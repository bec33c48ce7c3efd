package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	ClaudeAPIKey          string
	ClaudeModel           string
	DatabaseURL           string
	GraphTenantID         string
	GraphClientID         string
	GraphClientSecret     string
	Mailbox               string
	DepartmentsFile       string
	MaxFetch              int
	SlackWebhookURL       string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API routes (empty = auth disabled)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.GraphTenantID, "graph-tenant-id", "", "Azure AD tenant ID for Microsoft Graph")
	fs.StringVar(&c.GraphClientID, "graph-client-id", "", "Azure AD app client ID for Microsoft Graph")
	fs.StringVar(&c.GraphClientSecret, "graph-client-secret", "", "Azure AD app client secret for Microsoft Graph")
	fs.StringVar(&c.Mailbox, "mailbox", "", "mailbox address the service reads and replies from")
	fs.StringVar(&c.DepartmentsFile, "departments-file", "departments.yaml", "path to the department registry YAML file")
	fs.IntVar(&c.MaxFetch, "max-fetch", 50, "maximum unread emails fetched per triage run (1..500)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for run notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Claude API key is required for LLM access
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}

	// Claude model is required for LLM access
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	// Graph app credentials and target mailbox are required for mail access
	if c.GraphTenantID == "" {
		errs = append(errs, errors.New("GRAPH_TENANT_ID is required"))
	}
	if c.GraphClientID == "" {
		errs = append(errs, errors.New("GRAPH_CLIENT_ID is required"))
	}
	if c.GraphClientSecret == "" {
		errs = append(errs, errors.New("GRAPH_CLIENT_SECRET is required"))
	}
	if c.Mailbox == "" {
		errs = append(errs, errors.New("MAILBOX is required"))
	}

	if c.DepartmentsFile == "" {
		errs = append(errs, errors.New("DEPARTMENTS_FILE is required"))
	}

	if c.MaxFetch <= 0 || c.MaxFetch > 500 {
		errs = append(errs, fmt.Errorf("invalid MAX_FETCH %d (must be 1..500)", c.MaxFetch))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
