package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"RivalScanner/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RIVAL_SCANNER_CONFIG", "PERPLEXITY_API_KEY", "ANTHROPIC_API_KEY", "POE_API_KEY",
		"ANALYSIS_PROVIDER", "STORAGE_BACKEND", "SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY",
		"REDIS_ADDRESS", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
	} {
		t.Setenv(key, "")
	}
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := out
	out = &buf
	t.Cleanup(func() { out = prev })
	return &buf
}

func TestScanCommand_MissingCredentialCreatesNothing(t *testing.T) {
	clearEnv(t)
	captureOutput(t)
	dbPath := filepath.Join(t.TempDir(), "data", "rivals.db")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SUPABASE_URL", dbPath)
	t.Setenv("ANTHROPIC_API_KEY", "ant")

	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"scan", "Video Games"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !strings.Contains(err.Error(), "PERPLEXITY_API_KEY") {
		t.Errorf("error = %q, want it to name PERPLEXITY_API_KEY", err.Error())
	}
	if _, statErr := os.Stat(dbPath); !os.IsNotExist(statErr) {
		t.Errorf("storage was created despite invalid config: %v", statErr)
	}
}

func TestRefreshCommand_RequiresScanID(t *testing.T) {
	clearEnv(t)
	captureOutput(t)

	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"refresh"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing scan id")
	}
}

func TestScanCommand_RejectsExtraArgs(t *testing.T) {
	clearEnv(t)
	captureOutput(t)

	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"scan", "a", "b"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for too many args")
	}
}

func TestPrintScanWritesCounters(t *testing.T) {
	buf := captureOutput(t)
	noColor = true
	t.Cleanup(func() { noColor = os.Getenv("NO_COLOR") != "" })

	printScan(scanFixture())
	got := buf.String()
	for _, want := range []string{"Scan s-1 completed", "Competitors: 4", "News: 7"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func scanFixture() domain.Scan {
	return domain.Scan{
		ID:               "s-1",
		Industry:         "Video Games",
		Status:           domain.ScanCompleted,
		CompetitorsCount: 4,
		AlertsCount:      2,
		InsightsCount:    3,
		NewsCount:        7,
		DurationSeconds:  12.4,
	}
}
