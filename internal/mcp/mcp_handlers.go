package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/huangsam/visqa/core"
	"github.com/huangsam/visqa/core/agg"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/internal/outwriter"
	"github.com/huangsam/visqa/internal/vissource"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.CacheManager
}

func (h *toolHandler) handleEvaluateDataset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.baseCfg.Clone()
	err := contract.RevalidateEvaluate(cfg,
		request.GetString("dataset_path", ""),
		request.GetString("trec_path", ""),
		request.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid evaluation parameters: %v", err)), nil
	}
	cfg.ScanAggregate = request.GetBool("scan_aggregate", cfg.ScanAggregate)
	if l := request.GetInt("limit", 0); l > 0 {
		cfg.ResultLimit = l
	}

	src, err := vissource.Open(cfg.DatasetPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid evaluation parameters: %v", err)), nil
	}
	var trec contract.TrecSource
	if cfg.TrecPath != "" {
		trec = vissource.NewTrecFile(cfg.TrecPath)
	}

	result, err := core.EvaluateDataset(ctx, cfg, src, trec, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}

	jsonData, err := outwriter.EvaluationJSON(result, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleDetectOutliers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.baseCfg.Clone()
	err := contract.RevalidateSignal(cfg,
		request.GetString("signal_path", ""),
		request.GetString("sided", ""),
		request.GetFloat("threshold", 0),
		request.GetFloat("fixed_width", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid detection parameters: %v", err)), nil
	}

	sf, err := vissource.LoadSignal(cfg.DatasetPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid detection parameters: %v", err)), nil
	}
	result, err := core.DetectSignal(ctx, cfg, h.mgr, sf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("detection failed: %v", err)), nil
	}

	var flagged []int
	for i, o := range result.Outliers {
		if o {
			flagged = append(flagged, i)
		}
	}
	jsonData, _ := json.MarshalIndent(map[string]any{
		"chan_max":  result.ChanMax,
		"snr_max":   result.SNRMax,
		"width_max": result.WidthMax,
		"sm_sigma":  result.SmSigma,
		"data_max":  result.DataMax,
		"flagged":   flagged,
	}, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleSpectralPower(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.baseCfg.Clone()
	err := contract.RevalidateSignal(cfg, request.GetString("signal_path", ""), "", 0, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid spectrum parameters: %v", err)), nil
	}
	if d := request.GetFloat("sample_spacing", 0); d != 0 {
		if d < 0 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid spectrum parameters: sample_spacing must be positive (received %g)", d)), nil
		}
		cfg.SampleSpacing = d
	}
	if m := request.GetInt("min_segment", 0); m != 0 {
		if m < 2 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid spectrum parameters: min_segment must be at least 2 (received %d)", m)), nil
		}
		cfg.MinSegmentSize = m
	}

	sf, err := vissource.LoadSignal(cfg.DatasetPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid spectrum parameters: %v", err)), nil
	}
	result, err := core.SpectrumOf(cfg, sf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("spectrum failed: %v", err)), nil
	}

	jsonData, _ := json.MarshalIndent(map[string]any{
		"freq":     result.Freq,
		"power":    result.Power,
		"peak_bin": result.PeakBin(),
	}, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleGetThresholds(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type gate struct {
		Metric string `json:"metric"`
		agg.Threshold
	}
	var gates []gate
	for m, th := range h.baseCfg.Thresholds.All() {
		gates = append(gates, gate{Metric: string(m), Threshold: th})
	}
	sort.Slice(gates, func(i, j int) bool { return gates[i].Metric < gates[j].Metric })

	jsonData, _ := json.MarshalIndent(map[string]any{
		"gates":                 gates,
		"deviation_threshold":   h.baseCfg.DeviationThreshold,
		"line_threshold":        h.baseCfg.LineThreshold,
		"periodicity_threshold": h.baseCfg.PeriodicityThreshold,
	}, "", "  ")
	return mcp.NewToolResultText(string(jsonData)), nil
}
