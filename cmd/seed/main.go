package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	serverURL   = flag.String("server", "http://localhost:8080", "Relay server URL")
	apiKey      = flag.String("apikey", "", "API key for authentication")
	targetURL   = flag.String("target", "", "Webhook target URL (random fake URLs when empty)")
	numWebhooks = flag.Int("webhooks", 50, "Number of webhooks to create")
	minEvents   = flag.Int("min-events", 1, "Minimum events per webhook")
	maxEvents   = flag.Int("max-events", 10, "Maximum events per webhook")
	concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
	verbose     = flag.Bool("verbose", false, "Enable verbose output")
	skipConfirm = flag.Bool("yes", false, "Skip confirmation prompt")
	help        = flag.Bool("help", false, "Show help message")
)

type seedStats struct {
	mu              sync.Mutex
	webhooksCreated int
	eventsCreated   int
	errors          []string
}

func (s *seedStats) addWebhook() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooksCreated++
}

func (s *seedStats) addEvent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventsCreated++
}

func (s *seedStats) addError(err string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Relay Data Seeder - Generate test data for Relay\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage:\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  %s [options]\n\n", "seed")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nExamples:\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  # Create 50 webhooks with default settings\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  seed\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  # Point all webhooks at a local receiver and seed 200 of them\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  seed -webhooks=200 -target=http://localhost:9000/hook\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  # Skip confirmation and run with verbose output\n")
		fmt.Fprintf(flag.CommandLine.Output(), "  seed -yes -verbose\n")
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	gofakeit.Seed(time.Now().UnixNano())

	avgEvents := (*minEvents + *maxEvents) / 2
	estimatedTotal := *numWebhooks * avgEvents

	fmt.Printf("=== Relay Data Seeder Configuration ===\n")
	fmt.Printf("Server: %s\n", *serverURL)
	fmt.Printf("Webhooks to create: %d\n", *numWebhooks)
	fmt.Printf("Events per webhook: %d-%d (avg: %d)\n", *minEvents, *maxEvents, avgEvents)
	fmt.Printf("Estimated total events: ~%d\n", estimatedTotal)
	fmt.Printf("Concurrency: %d workers\n", *concurrency)
	fmt.Printf("\n")

	if !*skipConfirm {
		fmt.Printf("This will create approximately %d webhooks and %d events.\n", *numWebhooks, estimatedTotal)
		fmt.Printf("Continue? (y/N): ")

		var response string
		fmt.Scanln(&response)

		if response != "y" && response != "Y" && response != "yes" && response != "Yes" {
			fmt.Println("Operation cancelled.")
			return
		}
		fmt.Println()
	}

	client := newAPIClient(*serverURL, *apiKey)
	ctx := context.Background()

	fmt.Printf("Checking server health...\n")
	if err := client.health(ctx); err != nil {
		fmt.Printf("Health check failed: %v\n", err)
		fmt.Printf("\nPlease ensure the Relay server is running at %s\n", *serverURL)
		return
	}
	fmt.Printf("Server is healthy\n\n")

	stats := &seedStats{}

	fmt.Printf("Starting seed process...\n")

	workChan := make(chan int, *numWebhooks)
	var wg sync.WaitGroup

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go worker(ctx, client, workChan, stats, &wg)
	}

	for i := 0; i < *numWebhooks; i++ {
		workChan <- i
	}
	close(workChan)

	wg.Wait()

	fmt.Printf("\n=== Seeding Complete ===\n")
	fmt.Printf("Webhooks created: %d\n", stats.webhooksCreated)
	fmt.Printf("Events created: %d\n", stats.eventsCreated)
	if len(stats.errors) > 0 {
		fmt.Printf("Errors encountered: %d\n", len(stats.errors))
		if *verbose {
			fmt.Println("\nErrors:")
			for _, err := range stats.errors {
				fmt.Printf("  - %s\n", err)
			}
		}
	}
}

func worker(ctx context.Context, client *apiClient, workChan <-chan int, stats *seedStats, wg *sync.WaitGroup) {
	defer wg.Done()

	for range workChan {
		webhookURL := *targetURL
		if webhookURL == "" {
			webhookURL = gofakeit.URL()
		}

		if *verbose {
			fmt.Printf("Creating webhook: %s\n", webhookURL)
		}

		webhookID, err := client.createWebhook(ctx, webhookURL, map[string]string{
			"team":        gofakeit.Username(),
			"environment": gofakeit.RandomString([]string{"production", "staging", "development"}),
		})
		if err != nil {
			stats.addError(fmt.Sprintf("Failed to create webhook %s: %v", webhookURL, err))
			continue
		}
		stats.addWebhook()

		numEvents := rand.Intn(*maxEvents-*minEvents+1) + *minEvents
		for i := 0; i < numEvents; i++ {
			if err := client.createEvent(ctx, webhookID, randomPayload()); err != nil {
				stats.addError(fmt.Sprintf("Failed to create event for webhook %s: %v", webhookID, err))
			} else {
				stats.addEvent()
			}
		}
	}
}

func randomPayload() map[string]any {
	return map[string]any{
		"type": gofakeit.RandomString([]string{
			"order.created", "order.updated", "invoice.paid", "user.signup",
		}),
		"data": map[string]any{
			"id":     gofakeit.UUID(),
			"name":   gofakeit.Name(),
			"email":  gofakeit.Email(),
			"amount": gofakeit.Price(1, 5000),
		},
		"created_at": gofakeit.Date().Format(time.RFC3339),
	}
}

type apiClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *apiClient) createWebhook(ctx context.Context, url string, metadata map[string]string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/webhooks", map[string]any{
		"url":      url,
		"metadata": metadata,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var created struct {
		Webhook struct {
			ID string `json:"id"`
		} `json:"webhook"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	return created.Webhook.ID, nil
}

func (c *apiClient) createEvent(ctx context.Context, webhookID string, payload map[string]any) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/events", map[string]any{
		"webhook_id": webhookID,
		"payload":    payload,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body map[string]any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}
