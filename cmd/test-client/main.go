package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Wuchinator/deal-pipeline/internal/api"
)

type client struct {
	base  string
	http  *http.Client
	admin string
}

func main() {
	baseURL := flag.String("api", "http://localhost:8080", "deal-api base URL")
	workerAddr := flag.String("worker", "localhost:50053", "analytics-worker gRPC health address")
	claims := flag.Int("claims", 3, "number of claims to issue")
	wait := flag.Duration("wait", 3*time.Second, "time to wait for the pipeline to apply claims")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	checkWorker(*workerAddr)

	adminToken, err := api.MintToken(secret, "test-client-admin", true, time.Hour, time.Now())
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}
	c := &client{base: *baseURL, http: &http.Client{Timeout: 30 * time.Second}, admin: adminToken}

	fmt.Println("Creating deal")
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	c.call(http.MethodPost, "/api/v1/deals", c.admin, map[string]any{
		"title":     "Two-for-one espresso",
		"itemId":    "cafe-" + uuid.NewString()[:8],
		"maxClaims": *claims,
		"endDate":   time.Now().Add(12 * time.Hour),
	}, &created)
	fmt.Printf("Deal created: %s\n\n", created.ID)

	fmt.Printf("Issuing %d claims\n", *claims)
	for i := 0; i < *claims; i++ {
		userToken, err := api.MintToken(secret, uuid.NewString(), false, time.Hour, time.Now())
		if err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		c.call(http.MethodPost, "/api/v1/deals/"+created.ID.String()+"/claims", userToken, nil, nil)
	}

	fmt.Printf("Waiting %s for the pipeline\n\n", *wait)
	time.Sleep(*wait)

	var analytics map[string]any
	c.call(http.MethodGet, "/api/v1/deals/"+created.ID.String()+"/analytics", c.admin, nil, &analytics)
	printJSON("Deal analytics", analytics)

	var stored map[string]any
	c.call(http.MethodGet, "/api/v1/deals/"+created.ID.String(), c.admin, nil, &stored)
	printJSON("Deal document", stored)

	var inbox map[string]any
	c.call(http.MethodGet, "/api/v1/notifications?unread=true&limit=10", c.admin, nil, &inbox)
	printJSON("Unread notifications", inbox)

	var top map[string]any
	c.call(http.MethodGet, "/api/v1/deals/top?limit=5", c.admin, nil, &top)
	printJSON("Top deals", top)

	var rep map[string]any
	c.call(http.MethodPost, "/api/v1/reports/weekly", c.admin, nil, &rep)
	printJSON("Weekly report", rep)

	var cleanup map[string]any
	c.call(http.MethodPost, "/api/v1/notifications/cleanup", c.admin, nil, &cleanup)
	printJSON("Notification cleanup", cleanup)
}

func checkWorker(addr string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "analytics-worker"})
	if err != nil {
		log.Printf("Worker health check failed: %v", err)
		return
	}
	fmt.Printf("Worker health: %s\n\n", resp.GetStatus())
}

func (c *client) call(method, path, token string, body any, out any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("Failed to encode request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s returned %d: %s", method, path, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			log.Fatalf("Failed to decode %s response: %v", path, err)
		}
	}
}

func printJSON(title string, v any) {
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("%s:\n%s\n\n", title, pretty)
}
