// Package main provides a performance benchmarking tool for the visqa CLI.
// It measures execution times across the synthetic inputs and command types,
// running each test multiple times, treating the first successful run as cold and averaging the rest as warm,
// generating CSV output for performance analysis and documentation.
//
// Prerequisites:
// - visqa binary installed and available in PATH
// - Synthetic inputs written by examples/synthetic_inputs.go to the input directory
//
// Usage: go run benchmark/main.go [input-dir]
//
//	input-dir: Directory containing bandpass.json, bandpass.parquet, autocorr.json and spectrum.json
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// BenchmarkResult holds the result of a benchmark run (no-cache average, cold run and average of warm runs).
type BenchmarkResult struct {
	Input       string
	Command     string
	NoCacheTime string
	ColdTime    string
	WarmTime    string
}

// BenchmarkCase is one command run against one input file.
type BenchmarkCase struct {
	Input     string
	Command   string
	ExtraArgs string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	InputDir    string
	Timeout     time.Duration
	Workers     int
	NoCacheRuns int
	CacheRuns   int
	Cases       []BenchmarkCase
}

func main() {
	// Parse command line arguments
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [input-dir]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		InputDir:    os.Args[1],
		Timeout:     5 * time.Minute,
		Workers:     8,
		NoCacheRuns: 3,
		CacheRuns:   4,
		Cases: []BenchmarkCase{
			{Input: "bandpass.json", Command: "evaluate"},
			{Input: "bandpass.parquet", Command: "evaluate", ExtraArgs: "--scan-aggregate"},
			{Input: "autocorr.json", Command: "evaluate", ExtraArgs: "--mode sd"},
			{Input: "spectrum.json", Command: "detect"},
			{Input: "spectrum.json", Command: "spectrum"},
		},
	}

	if err := checkPrerequisites(config); err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}

	// Clear the cache using visqa cache clear
	fmt.Printf("Clearing cache...\n")
	clearCmd := exec.Command("visqa", "cache", "clear")
	if output, err := clearCmd.CombinedOutput(); err != nil {
		fmt.Printf("Warning: failed to clear cache: %v\nOutput: %s\n", err, string(output))
	} else {
		fmt.Printf("Cache cleared successfully\n")
	}

	results := runBenchmarks(config)

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// checkPrerequisites verifies that visqa binary and input files exist
func checkPrerequisites(config BenchmarkConfig) error {
	// Check if visqa is available
	if _, err := exec.LookPath("visqa"); err != nil {
		return fmt.Errorf("visqa binary not found in PATH")
	}

	// Check if inputs exist
	for _, c := range config.Cases {
		inputPath := filepath.Join(config.InputDir, c.Input)
		if _, err := os.Stat(inputPath); os.IsNotExist(err) {
			return fmt.Errorf("input %s not found at %s", c.Input, inputPath)
		}
	}

	return nil
}

// runBenchmarks executes all benchmark cases
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d cases, %v timeout, %d workers, no-cache: %d runs, cache: %d runs\n",
		len(config.Cases), config.Timeout, config.Workers, config.NoCacheRuns, config.CacheRuns)

	for _, c := range config.Cases {
		inputPath := filepath.Join(config.InputDir, c.Input)
		desc := strings.TrimSpace(fmt.Sprintf("%s %s", c.Command, c.ExtraArgs))
		results = append(results, runBenchmarkSuite(config, c.Input, inputPath, c.Command, desc, c.ExtraArgs))
	}

	return results
}

// runBenchmarkSuite runs both no-cache and cache benchmarks for a command
func runBenchmarkSuite(config BenchmarkConfig, input, inputPath, command, description, extraArgs string) BenchmarkResult {
	fmt.Printf("Running %s on %s\n", description, input)

	// Helper to run a benchmark phase
	runPhase := func(cacheBackend string, numRuns int, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, numRuns)
		cold, times := runBenchmark(config, inputPath, command, extraArgs, cacheBackend, numRuns)
		if len(times) == 0 {
			avgTime = "TIMEOUT"
		} else {
			var sum float64
			for _, t := range times {
				sum += t
			}
			avg := sum / float64(len(times))
			avgTime = fmt.Sprintf("%.3fs", avg)
		}
		return cold, avgTime
	}

	// Phase 1: No-cache runs
	_, noCacheAvg := runPhase("none", config.NoCacheRuns, "No-cache")

	// Phase 2: Cache runs
	coldTime, warmAvg := runPhase("sqlite", config.CacheRuns, "Cache")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-cache average: %s, Cold time: %s, Warm average: %s\n", noCacheAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Input:       input,
		Command:     command,
		NoCacheTime: noCacheAvg,
		ColdTime:    coldTimeStr,
		WarmTime:    warmAvg,
	}
}

// runBenchmark executes a visqa command multiple times with specified cache backend and returns cold time and warm times
func runBenchmark(config BenchmarkConfig, inputPath, command, extraArgs, cacheBackend string, numRuns int) (coldTime float64, warmTimes []float64) {
	// Prepare command arguments
	args := []string{command, "--cache-backend", cacheBackend, "--workers", fmt.Sprint(config.Workers), "--output", "json", "--output-file", os.DevNull}
	if extraArgs != "" {
		args = append(args, parseArgs(extraArgs)...)
	}
	args = append(args, inputPath)

	var times []float64
	for run := 1; run <= numRuns; run++ {
		start := time.Now()

		cmd := exec.Command("visqa", args...)

		done := make(chan bool)
		var cmdErr error

		go func() {
			_, cmdErr = cmd.CombinedOutput()
			done <- true
		}()

		select {
		case <-done:
			if cmdErr == nil {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			// Timeout - don't add to times
			_ = cmd.Process.Kill()
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

func parseArgs(argsStr string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false

	for _, r := range argsStr {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ' ':
			if !inQuotes && current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			} else if inQuotes {
				current.WriteRune(r)
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("/tmp/visqa_benchmark_%s.csv", timestamp)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	if err := writer.Write([]string{"input", "cmd", "no_cache_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write results
	for _, result := range results {
		if err := writer.Write([]string{result.Input, result.Command, result.NoCacheTime, result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")

	printCommandSummary(results, "evaluate", "Evaluate:")
	printCommandSummary(results, "detect", "Detect:")
	printCommandSummary(results, "spectrum", "Spectrum:")

	fmt.Printf("Benchmark script completed successfully\n")
}

// printCommandSummary displays results for a specific command type
func printCommandSummary(results []BenchmarkResult, command, title string) {
	fmt.Printf("%s\n", title)
	for _, result := range results {
		if result.Command == command {
			fmt.Printf("  %-18s: No-cache: %s, Cold: %s, Warm: %s\n", result.Input, result.NoCacheTime, result.ColdTime, result.WarmTime)
		}
	}
}
