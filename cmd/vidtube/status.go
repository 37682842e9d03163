// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vidtube/vidtube/internal/config"
	"github.com/vidtube/vidtube/internal/control"
)

// ProcessStatus holds the status information for a process.
type ProcessStatus struct {
	Component string `json:"component"`
	Addr      string `json:"addr"`
	Running   bool   `json:"running"`
	Health    string `json:"health,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr       string
	timeout    time.Duration
	jsonOutput bool
}

// healthChecker is swapped out in tests.
var healthChecker = control.CheckHealth

// NewStatusCmd creates the status subcommand with all flags configured.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running VidTube process",
		Long: `Query the control gRPC health endpoint of a running VidTube
process and report whether it is serving.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "control-addr", config.Defaults()["control.addr"].(string), "control gRPC address to query")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "health check timeout")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	statuses := []ProcessStatus{queryProcessStatus(ctx, componentName, cfg.addr)}

	var output string
	var err error
	if cfg.jsonOutput {
		output, err = formatStatusJSON(statuses)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(statuses)
	}

	cmd.Println(output)
	return nil
}

// queryProcessStatus asks the control server at addr for component health.
func queryProcessStatus(ctx context.Context, component, addr string) ProcessStatus {
	status := ProcessStatus{Component: component, Addr: addr}

	serving, err := healthChecker(ctx, addr, component)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}

	status.Running = true
	status.Health = strings.ToLower(serving.String())
	if serving == healthpb.HealthCheckResponse_SERVICE_UNKNOWN {
		status.Health = "unknown"
	}
	return status
}

// formatStatusJSON formats status as JSON.
func formatStatusJSON(statuses []ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", err //nolint:wrapcheck // caller wraps
	}
	return string(data), nil
}

// formatStatusTable formats status as a human-readable table.
func formatStatusTable(statuses []ProcessStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tADDR\tRUNNING\tHEALTH\tERROR")
	for _, s := range statuses {
		running := "no"
		if s.Running {
			running = "yes"
		}
		health := s.Health
		if health == "" {
			health = "-"
		}
		errMsg := s.Error
		if errMsg == "" {
			errMsg = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Component, s.Addr, running, health, errMsg)
	}
	_ = w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}
