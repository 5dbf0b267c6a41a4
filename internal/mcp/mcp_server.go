// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/visqa/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the visqa MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.CacheManager) *server.MCPServer {
	s := server.NewMCPServer(
		"Visibility QA Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	// --- 1. Tool: evaluate_dataset ---
	s.AddTool(mcp.NewTool("evaluate_dataset",
		mcp.WithDescription("Evaluate a calibration dataset and return ranked per-antenna outliers."),
		mcp.WithString("dataset_path", mcp.Description("Path to the dataset file (.json or .parquet)."), mcp.Required()),
		mcp.WithString("mode", mcp.Description("QA flow: interferometric (if) or single-dish (sd). Defaults to the configured mode."), mcp.Enum("if", "sd")),
		mcp.WithString("trec_path", mcp.Description("Path to receiver temperature spectra for single-dish corroboration.")),
		mcp.WithBoolean("scan_aggregate", mcp.Description("Also evaluate all scans of each spw aggregated in time.")),
		mcp.WithNumber("limit", mcp.Description("Limit the number of outliers returned.")),
	), h.handleEvaluateDataset)

	// --- 2. Tool: detect_outliers ---
	s.AddTool(mcp.NewTool("detect_outliers",
		mcp.WithDescription("Run the adaptive outlier detector on a single signal."),
		mcp.WithString("signal_path", mcp.Description("Path to a JSON signal with values, optional imag and mask."), mcp.Required()),
		mcp.WithNumber("threshold", mcp.Description("Detection threshold in units of the smoothed noise.")),
		mcp.WithString("sided", mcp.Description("Flag both excursions (two) or positive ones only (one)."), mcp.Enum("one", "two")),
		mcp.WithNumber("fixed_width", mcp.Description("Use this smoothing width instead of searching for one.")),
	), h.handleDetectOutliers)

	// --- 3. Tool: spectral_power ---
	s.AddTool(mcp.NewTool("spectral_power",
		mcp.WithDescription("Compute the segmented spectral power of a single signal around masked gaps."),
		mcp.WithString("signal_path", mcp.Description("Path to a JSON signal with values, optional imag and mask."), mcp.Required()),
		mcp.WithNumber("sample_spacing", mcp.Description("Spacing between samples used for the frequency axis.")),
		mcp.WithNumber("min_segment", mcp.Description("Minimum length of an unmasked segment.")),
	), h.handleSpectralPower)

	// --- 4. Tool: get_thresholds ---
	s.AddTool(mcp.NewTool("get_thresholds",
		mcp.WithDescription("List the active per-metric outlier gates."),
	), h.handleGetThresholds)

	return s
}

// StartMCPServer starts the visqa MCP server.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.CacheManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}
