package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const (
	defaultTimeout = 30 * time.Second
	defaultURL     = "http://localhost:3001"
	minSecretLen   = 12

	signatureHeader = "X-Signature"
)

// healthStatus is the subset of the /health response shown by status.
type healthStatus struct {
	Status         string `json:"status"`
	Ready          bool   `json:"ready"`
	Version        string `json:"version"`
	Indexing       bool   `json:"indexing"`
	SyncEnabled    bool   `json:"syncEnabled"`
	TotalGalleries int    `json:"totalGalleries"`
	TotalImages    int    `json:"totalImages"`
	IndexPopulated bool   `json:"indexPopulated"`
}

// readSecretFunc reads a secret without echo. Replaced in tests.
var readSecretFunc = func() ([]byte, error) {
	return term.ReadPassword(int(syscall.Stdin))
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	command := os.Args[1]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	baseURL := strings.TrimRight(os.Getenv("GALLERY_URL"), "/")
	if baseURL == "" {
		baseURL = defaultURL
	}
	client := &http.Client{Timeout: defaultTimeout}

	var ok bool
	switch command {
	case "refresh":
		ok = refresh(ctx, client, baseURL, os.Getenv("WEBHOOK_SECRET"), os.Stdout, os.Stderr)
	case "status":
		ok = showStatus(ctx, client, baseURL, os.Stdout, os.Stderr)
	case "hash":
		ok = hashSecret(os.Stdout, os.Stderr)
	default:
		sanitized := sanitizeCommand(command)
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitized) //nolint:gosec // G705 - input is sanitized via allowlist in sanitizeCommand
		printUsage(os.Stdout)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

// sanitizeCommand replaces every character outside [a-zA-Z0-9_-] with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Gallery Index Cache Tool")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: refreshcache <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  refresh - Flush the query cache and index, then resync")
	fmt.Fprintln(w, "  status  - Show service and index health")
	fmt.Fprintln(w, "  hash    - Print a bcrypt hash to use as WEBHOOK_SECRET")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  GALLERY_URL    - Service base URL (default: %s)\n", defaultURL)
	fmt.Fprintln(w, "  WEBHOOK_SECRET - Secret for refresh (prompted when unset)")
}

func refresh(ctx context.Context, client *http.Client, baseURL, secret string, stdout, stderr io.Writer) bool {
	if secret == "" {
		fmt.Fprint(stdout, "Webhook secret: ")
		s, err := readSecretFunc()
		fmt.Fprintln(stdout)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading secret: %v\n", err)
			return false
		}
		secret = string(s)
	}
	if secret == "" {
		fmt.Fprintln(stderr, "Error: secret must not be empty")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/refresh-cache", http.NoBody)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return false
	}
	req.Header.Set(signatureHeader, secret)

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	status, err := doJSON(client, req, &body)
	if err != nil {
		fmt.Fprintf(stderr, "Error: refresh request failed: %v\n", err)
		return false
	}

	switch status {
	case http.StatusOK:
		fmt.Fprintln(stdout, body.Message)
		fmt.Fprintln(stdout, "The index will be rebuilt in the background.")
		return true
	case http.StatusUnauthorized:
		fmt.Fprintln(stderr, "Error: the service rejected the secret")
	default:
		fmt.Fprintf(stderr, "Error: refresh failed with status %d: %s\n", status, body.Error)
	}
	return false
}

func showStatus(ctx context.Context, client *http.Client, baseURL string, stdout, stderr io.Writer) bool {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", http.NoBody)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return false
	}

	var health healthStatus
	status, err := doJSON(client, req, &health)
	if err != nil {
		fmt.Fprintf(stderr, "Error: health request failed: %v\n", err)
		return false
	}

	fmt.Fprintf(stdout, "Status:    %s (HTTP %d)\n", health.Status, status)
	fmt.Fprintf(stdout, "Version:   %s\n", health.Version)
	fmt.Fprintf(stdout, "Ready:     %v\n", health.Ready)
	if !health.SyncEnabled {
		fmt.Fprintln(stdout, "Sync:      disabled")
	} else {
		fmt.Fprintf(stdout, "Sync:      indexing=%v\n", health.Indexing)
	}
	fmt.Fprintf(stdout, "Index:     populated=%v galleries=%d images=%d\n",
		health.IndexPopulated, health.TotalGalleries, health.TotalImages)
	return status == http.StatusOK
}

func doJSON(client *http.Client, req *http.Request, v any) (int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, v); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func hashSecret(stdout, stderr io.Writer) bool {
	fmt.Fprint(stdout, "Secret: ")
	secret, err := readSecretFunc()
	fmt.Fprintln(stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading secret: %v\n", err)
		return false
	}

	fmt.Fprint(stdout, "Confirm Secret: ")
	confirm, err := readSecretFunc()
	fmt.Fprintln(stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading secret: %v\n", err)
		return false
	}

	hash, err := hashFromInput(secret, confirm)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return false
	}

	fmt.Fprintln(stdout, hash)
	fmt.Fprintln(stdout, "Set WEBHOOK_SECRET to this value; senders keep using the plain secret.")
	return true
}

func hashFromInput(secret, confirm []byte) (string, error) {
	if !bytes.Equal(secret, confirm) {
		return "", errors.New("secrets do not match")
	}
	if len(secret) < minSecretLen {
		return "", fmt.Errorf("secret must be at least %d characters", minSecretLen)
	}
	hash, err := bcrypt.GenerateFromPassword(secret, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}
