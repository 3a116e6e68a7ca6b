package config

import "fmt"

// APIConfig defines settings for the HTTP surface.
type APIConfig struct {
	Addr string `json:"addr"`
	// AuditToken protects the audit endpoint. Empty disables the endpoint.
	AuditToken string `json:"audit_token"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// DispatchConfig tunes the command dispatcher.
type DispatchConfig struct {
	// CommandTimeoutSeconds bounds how long a command stays pending before
	// it expires.
	CommandTimeoutSeconds int `json:"command_timeout_seconds"`
}

func (c *DispatchConfig) SetDefaults() {
	if c.CommandTimeoutSeconds <= 0 {
		c.CommandTimeoutSeconds = 5
	}
}

// TelemetryConfig tunes the reconciler and anomaly detection.
type TelemetryConfig struct {
	StaleAfterSeconds int  `json:"stale_after_seconds"`
	AnomalyDetection  bool `json:"anomaly_detection"`
	AnomalyWindow     int  `json:"anomaly_window"`
}

func (c *TelemetryConfig) SetDefaults() {
	if c.StaleAfterSeconds <= 0 {
		c.StaleAfterSeconds = 30
	}
	if c.AnomalyWindow <= 0 {
		c.AnomalyWindow = 60
	}
}

// AuditConfig defines settings for audit trail storage.
type AuditConfig struct {
	// Backend selects the store type: "jsonl" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
}

func (c *AuditConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "audit.log"
	}
}

// Validate checks mandatory fields.
func (c AuditConfig) Validate() error {
	if c.Backend != "jsonl" && c.Backend != "sqlite" {
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// SentryConfig defines settings for Sentry error monitoring.
type SentryConfig struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
}

// BoothConfig declares one booth and its slots.
type BoothConfig struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	ChargeCutoff float64  `json:"charge_cutoff"`
	Slots        []string `json:"slots"`
}
