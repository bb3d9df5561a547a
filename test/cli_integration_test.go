//go:build integration

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestServerStartStop tests the server start and graceful shutdown
func TestServerStartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()

	configFile := filepath.Join(tmpDir, "tap.yaml")
	createTestConfig(t, configFile, fmt.Sprintf(`
server:
  listen_address: "127.0.0.1:18090"

storage:
  backend: "sqlite"
  sqlite:
    driver: "sqlite"
    path: "%s"

telemetry:
  logging:
    level: "info"
    format: "json"
  metrics:
    enabled: false
  tracing:
    enabled: false
`, filepath.Join(tmpDir, "captures.db")))

	binaryPath := buildTapBinary(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath, "serve", "--config", configFile)
	cmd.Dir = tmpDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}()

	if !waitForHealthy("http://127.0.0.1:18090/health", 10*time.Second) {
		t.Fatalf("server failed to start\nStdout: %s\nStderr: %s", stdout.String(), stderr.String())
	}

	resp, err := http.Get("http://127.0.0.1:18090/hello")
	if err != nil {
		t.Fatalf("hello request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Errorf("failed to send SIGINT: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Logf("shutdown output - Stdout: %s\nStderr: %s", stdout.String(), stderr.String())
			t.Errorf("unexpected shutdown error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("server did not shut down within 5 seconds")
	}
}

// TestCaptureQueryPipeline sends traffic through the server and reads the
// sanitized records back with the captures command.
func TestCaptureQueryPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "captures.db")

	configFile := filepath.Join(tmpDir, "tap.yaml")
	createTestConfig(t, configFile, fmt.Sprintf(`
server:
  listen_address: "127.0.0.1:18091"

capture:
  hidden_keys: ["password", "api_key"]

storage:
  backend: "sqlite"
  sqlite:
    driver: "sqlite"
    path: "%s"

telemetry:
  logging:
    level: "warn"
    format: "json"
  metrics:
    enabled: false
  tracing:
    enabled: false
`, dbPath))

	binaryPath := buildTapBinary(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath, "serve", "--config", configFile)
	cmd.Dir = tmpDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer cmd.Process.Kill()

	if !waitForHealthy("http://127.0.0.1:18091/health", 10*time.Second) {
		t.Fatalf("server failed to start\nStdout: %s\nStderr: %s", stdout.String(), stderr.String())
	}

	t.Log("Sending test request to generate a capture record...")
	sendTestRequest(t, "http://127.0.0.1:18091")

	// Records are written asynchronously
	time.Sleep(1 * time.Second)

	t.Log("Querying capture records...")
	queryCmd := exec.Command(binaryPath, "captures", "query",
		"--config", configFile,
		"--route", "/echo",
		"--format", "json")

	output, err := queryCmd.CombinedOutput()
	if err != nil {
		t.Fatalf("captures query failed: %v\nOutput: %s", err, output)
	}

	var record map[string]interface{}
	if err := json.Unmarshal(output, &record); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, output)
	}

	if bytes.Contains(output, []byte("hunter2")) {
		t.Errorf("captured record leaked a hidden value: %s", output)
	}
	if !strings.Contains(string(output), `"password": "***"`) {
		t.Errorf("expected masked password in record, got: %s", output)
	}
}

// TestCommandVersionOutput tests the version command
func TestCommandVersionOutput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	binaryPath := buildTapBinary(t)

	cmd := exec.Command(binaryPath, "version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("version command failed: %v\nOutput: %s", err, output)
	}

	if !bytes.Contains(output, []byte("tap")) {
		t.Errorf("version output should contain 'tap', got: %s", output)
	}
}

// TestDryRunValidation tests config validation with --dry-run
func TestDryRunValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	binaryPath := buildTapBinary(t)

	t.Run("valid config", func(t *testing.T) {
		configFile := filepath.Join(tmpDir, "valid.yaml")
		createTestConfig(t, configFile, `
server:
  listen_address: "127.0.0.1:18092"
storage:
  backend: "memory"
`)

		cmd := exec.Command(binaryPath, "serve", "--config", configFile, "--dry-run")
		cmd.Dir = tmpDir

		output, err := cmd.CombinedOutput()
		if err != nil {
			t.Errorf("dry-run should succeed with valid config: %v\nOutput: %s", err, output)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		configFile := filepath.Join(tmpDir, "invalid.yaml")
		createTestConfig(t, configFile, `
storage:
  backend: "postgres"
`)

		cmd := exec.Command(binaryPath, "serve", "--config", configFile, "--dry-run")

		output, err := cmd.CombinedOutput()
		if err == nil {
			t.Fatalf("dry-run should fail with invalid config\nOutput: %s", output)
		}
		if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() != 2 {
			t.Errorf("expected exit code 2, got %v", err)
		}
	})
}

// Helper functions

// buildTapBinary builds the tap binary for testing
func buildTapBinary(t *testing.T) string {
	t.Helper()

	binaryPath, err := filepath.Abs("../bin/tap")
	if err != nil {
		t.Fatalf("failed to resolve binary path: %v", err)
	}
	if _, err := os.Stat(binaryPath); err == nil {
		return binaryPath
	}

	t.Log("Building tap binary...")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../cmd/tap")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build tap: %v\nOutput: %s", err, output)
	}

	return binaryPath
}

// waitForHealthy waits for a health endpoint to return 200
func waitForHealthy(url string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 1 * time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return true
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// createTestConfig creates a test configuration file
func createTestConfig(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create config file: %v", err)
	}
}

// sendTestRequest posts a body carrying a credential to the echo route
func sendTestRequest(t *testing.T, baseURL string) {
	t.Helper()

	body, err := json.Marshal(map[string]interface{}{
		"user":     "alice",
		"password": "hunter2",
	})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequest("POST", baseURL+"/echo", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-key")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("test request failed: %v", err)
	}
	defer resp.Body.Close()

	t.Logf("test request completed with status: %d", resp.StatusCode)
}
