package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func main() {
	var (
		url     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:          "health_check",
		Short:        "Probe a running demandForecastApp server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Println("demandForecastApp Health Check Utility")
			fmt.Println("--------------------------------------")

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			health, err := checkServiceHealth(ctx, url)
			if health != nil {
				names := make([]string, 0, len(health.Checks))
				for name := range health.Checks {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Printf("  %-12s %s\n", name, health.Checks[name])
				}
			}
			if err != nil {
				return err
			}
			fmt.Println("Service is healthy!")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/health", "health endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
}

// checkServiceHealth returns the decoded body and an error unless the service
// and every backend it reports are healthy.
func checkServiceHealth(ctx context.Context, url string) (*healthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		return &health, fmt.Errorf("service is %s (HTTP %d)", health.Status, resp.StatusCode)
	}
	return &health, nil
}
