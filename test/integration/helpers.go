//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	NATSURL       string
	ActionctlPath string
	Verbose       bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		NATSURL:       os.Getenv("ACTIONKIT_IT_NATS_URL"),
		ActionctlPath: getActionctlPath(),
		Verbose:       os.Getenv("ACTIONKIT_IT_VERBOSE") == "true",
	}
}

// getActionctlPath determines the path to the actionctl binary
func getActionctlPath() string {
	if path := os.Getenv("ACTIONCTL_BINARY_PATH"); path != "" {
		return path
	}

	// Try common locations
	candidates := []string{
		"../../actionctl",
		"./actionctl",
		"../actionctl",
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "actionctl" // Fallback to PATH
}

// SkipIfNoNATS skips the test when no NATS server is configured
func (config *TestConfig) SkipIfNoNATS(t *testing.T) {
	t.Helper()

	if config.NATSURL == "" {
		t.Skip("ACTIONKIT_IT_NATS_URL not set, skipping integration test")
	}
}

// SkipIfNoBinary skips the test when the actionctl binary is missing
func (config *TestConfig) SkipIfNoBinary(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath(config.ActionctlPath); err != nil {
		t.Skipf("actionctl binary not found at %s, skipping integration test", config.ActionctlPath)
	}
}

// CommandRunner runs actionctl with a fixed environment
type CommandRunner struct {
	config *TestConfig
	t      *testing.T
	env    []string
}

// NewCommandRunner creates a new command runner
func NewCommandRunner(config *TestConfig, t *testing.T, env ...string) *CommandRunner {
	return &CommandRunner{
		config: config,
		t:      t,
		env:    env,
	}
}

// Run executes an actionctl command and returns output
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	cmd := exec.Command(runner.config.ActionctlPath, args...)
	cmd.Env = append(os.Environ(), runner.env...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.ActionctlPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// WriteCatalog writes content to a catalog file in a temporary directory
func WriteCatalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "actions.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	return path
}

// GenerateTestName creates a unique test resource name
func GenerateTestName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// AssertJSONOutput validates that output is valid JSON
func AssertJSONOutput(t *testing.T, output string) {
	t.Helper()

	var result interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("Output is not valid JSON: %v\nOutput: %s", err, output)
	}
}
