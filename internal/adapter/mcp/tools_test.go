package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellisviz/trellis/internal/core/domain"
	"github.com/trellisviz/trellis/internal/core/port"
	"github.com/trellisviz/trellis/internal/core/service"
)

// --- helpers ---

// toolTestDataset has one column of each kind: price and qty are numeric
// (12+ distinct values), region is categorical (3 values), note is text.
func toolTestDataset(t *testing.T) *domain.Dataset {
	t.Helper()

	const n = 24
	price := make([]float64, n)
	qty := make([]float64, n)
	region := make([]string, n)
	note := make([]string, n)
	regions := []string{"north", "south", "west"}
	for i := range n {
		price[i] = float64(10 + i)
		qty[i] = float64(i % 12)
		region[i] = regions[i%3]
		note[i] = fmt.Sprintf("note %02d", i)
	}

	ds, err := domain.NewDataset("toolset",
		domain.NumberColumn("price", price),
		domain.NumberColumn("qty", qty),
		domain.StringColumn("region", region),
		domain.StringColumn("note", note),
	)
	require.NoError(t, err)
	return ds
}

func setupServer(t *testing.T) *server.MCPServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	session := service.NewSession(toolTestDataset(t), logger, nil, nil, nil, 0)

	s := server.NewMCPServer("test", "0.1.0", server.WithToolCapabilities(true))
	RegisterTools(s, session, logger)
	return s
}

var sessionCounter atomic.Int64

// callTool drives one tools/call through the full JSON-RPC path. Session
// ids are unique per call so one server can take any number of calls.
func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession(fmt.Sprintf("test-%d", sessionCounter.Add(1)), nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func addFilterOn(t *testing.T, s *server.MCPServer, column string) port.FilterState {
	t.Helper()
	result := callTool(t, s, "add_filter", map[string]any{"column": column})
	require.False(t, result.IsError, "add_filter failed: %s", toolText(result))

	var state port.FilterState
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &state))
	return state
}

func getState(t *testing.T, s *server.MCPServer) port.StateSnapshot {
	t.Helper()
	result := callTool(t, s, "get_state", nil)
	require.False(t, result.IsError)

	var state port.StateSnapshot
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &state))
	return state
}

// --- tests ---

func TestListColumns(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "list_columns", nil)
	require.False(t, result.IsError)

	var cols []port.ColumnSummary
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &cols))
	require.Len(t, cols, 4)

	kinds := make(map[string]domain.ColumnKind)
	for _, c := range cols {
		kinds[c.Name] = c.Kind
	}
	assert.Equal(t, domain.KindNumeric, kinds["price"])
	assert.Equal(t, domain.KindNumeric, kinds["qty"])
	assert.Equal(t, domain.KindCategorical, kinds["region"])
	assert.Equal(t, domain.KindText, kinds["note"])
}

func TestGetState_Initial(t *testing.T) {
	s := setupServer(t)

	state := getState(t, s)
	assert.Equal(t, uint64(1), state.Frame.Version)
	assert.Equal(t, 24, state.Frame.Rows)
	assert.Equal(t, 24, state.Frame.Matched)
	assert.Empty(t, state.Frame.Filters)
	assert.Equal(t, 0, state.Selection.Count)
	assert.Empty(t, state.VisibleSelected)
}

func TestAddFilter_HappyPath(t *testing.T) {
	s := setupServer(t)

	filter := addFilterOn(t, s, "price")
	assert.NotEmpty(t, filter.ID)
	assert.Equal(t, "price", filter.Column)
	assert.Equal(t, domain.KindNumeric, filter.Kind)
	assert.Equal(t, domain.WidgetRangeSlider, filter.Widget)

	// Pass-through until narrowed.
	state := getState(t, s)
	assert.Equal(t, 24, state.Frame.Matched)
	require.Len(t, state.Frame.Filters, 1)
}

func TestAddFilter_UnknownColumn(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "add_filter", map[string]any{"column": "nope"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "unknown column")
}

func TestAddFilter_MissingColumn(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "add_filter", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "column is required")
}

func TestUpdateFilter_NumericRange(t *testing.T) {
	s := setupServer(t)
	filter := addFilterOn(t, s, "price")

	result := callTool(t, s, "update_filter", map[string]any{
		"id": filter.ID, "low": 12.0, "high": 17.0,
	})
	require.False(t, result.IsError, toolText(result))

	var updated port.FilterState
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &updated))
	require.NotNil(t, updated.Low)
	require.NotNil(t, updated.High)
	assert.Equal(t, 12.0, *updated.Low)
	assert.Equal(t, 17.0, *updated.High)

	// Prices run 10..33, so [12, 17] keeps six rows.
	state := getState(t, s)
	assert.Equal(t, 6, state.Frame.Matched)
}

func TestUpdateFilter_Categories(t *testing.T) {
	s := setupServer(t)
	filter := addFilterOn(t, s, "region")
	assert.Equal(t, domain.WidgetMultiSelect, filter.Widget)

	result := callTool(t, s, "update_filter", map[string]any{
		"id": filter.ID, "values": []any{"north"},
	})
	require.False(t, result.IsError, toolText(result))

	state := getState(t, s)
	assert.Equal(t, 8, state.Frame.Matched)

	// Clearing the selection deactivates the filter: every row returns.
	result = callTool(t, s, "update_filter", map[string]any{
		"id": filter.ID, "values": []any{},
	})
	require.False(t, result.IsError, toolText(result))

	state = getState(t, s)
	assert.Equal(t, 24, state.Frame.Matched)
}

func TestUpdateFilter_Pattern(t *testing.T) {
	s := setupServer(t)
	filter := addFilterOn(t, s, "note")
	assert.Equal(t, domain.WidgetRegexInput, filter.Widget)

	result := callTool(t, s, "update_filter", map[string]any{
		"id": filter.ID, "pattern": "note 1",
	})
	require.False(t, result.IsError, toolText(result))

	// Matches "note 10" through "note 19".
	state := getState(t, s)
	assert.Equal(t, 10, state.Frame.Matched)
}

func TestUpdateFilter_KindMismatch(t *testing.T) {
	s := setupServer(t)
	filter := addFilterOn(t, s, "price")

	result := callTool(t, s, "update_filter", map[string]any{
		"id": filter.ID, "pattern": "12",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "params do not match")
}

func TestUpdateFilter_NoParams(t *testing.T) {
	s := setupServer(t)
	filter := addFilterOn(t, s, "price")

	result := callTool(t, s, "update_filter", map[string]any{"id": filter.ID})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "provide low and high, values, or pattern")
}

func TestUpdateFilter_HalfRange(t *testing.T) {
	s := setupServer(t)
	filter := addFilterOn(t, s, "price")

	result := callTool(t, s, "update_filter", map[string]any{
		"id": filter.ID, "low": 12.0,
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "both low and high")
}

func TestUpdateFilter_UnknownID(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "update_filter", map[string]any{
		"id": "missing", "low": 1.0, "high": 2.0,
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "unknown filter")
}

func TestRemoveFilter_ReturnsFrame(t *testing.T) {
	s := setupServer(t)
	filter := addFilterOn(t, s, "price")
	callTool(t, s, "update_filter", map[string]any{
		"id": filter.ID, "low": 12.0, "high": 17.0,
	})

	result := callTool(t, s, "remove_filter", map[string]any{"id": filter.ID})
	require.False(t, result.IsError, toolText(result))

	var frame port.FrameSnapshot
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &frame))
	assert.Equal(t, 24, frame.Matched)
	assert.Empty(t, frame.Filters)
}

func TestReportAndClearSelection(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "report_selection", map[string]any{
		"ids": []any{3.0, 7.0, 7.0, 9.0},
	})
	require.False(t, result.IsError, toolText(result))

	var snap port.SelectionSnapshot
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &snap))
	assert.Equal(t, 3, snap.Count)
	assert.Equal(t, []int64{3, 7, 9}, snap.IDs)

	result = callTool(t, s, "clear_selection", nil)
	require.False(t, result.IsError)
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &snap))
	assert.Equal(t, 0, snap.Count)
}

func TestReportSelection_MissingIDs(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "report_selection", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "ids is required")
}

func TestConfigureScatter_Defaults(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "configure_scatter", map[string]any{
		"x": "price", "y": "qty",
	})
	require.False(t, result.IsError, toolText(result))

	var spec domain.ScatterSpec
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &spec))
	assert.NotEmpty(t, spec.ID)
	assert.Equal(t, domain.DefaultMinSize, spec.MinSize)
	assert.Equal(t, domain.DefaultMaxSize, spec.MaxSize)
	assert.Equal(t, domain.DefaultGamma, spec.Gamma)
	assert.Equal(t, domain.DefaultPalette, spec.Palette)
}

func TestConfigureScatter_CategoricalAxis(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "configure_scatter", map[string]any{
		"x": "price", "y": "region",
	})
	require.False(t, result.IsError, toolText(result))

	var spec domain.ScatterSpec
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &spec))
	assert.Equal(t, "region", spec.Y)
}

func TestConfigureScatter_UnknownAxis(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "configure_scatter", map[string]any{
		"x": "price", "y": "revenue",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "unknown column")
}

func TestConfigureScatter_MissingAxes(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "configure_scatter", map[string]any{"x": "price"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "x and y are required")
}

func TestGetScatterPoints_FollowsFiltersAndSelection(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "configure_scatter", map[string]any{
		"x": "price", "y": "qty",
	})
	require.False(t, result.IsError)
	var spec domain.ScatterSpec
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &spec))

	callTool(t, s, "report_selection", map[string]any{"ids": []any{0.0, 1.0}})

	result = callTool(t, s, "get_scatter_points", map[string]any{"id": spec.ID})
	require.False(t, result.IsError, toolText(result))

	var points []domain.ScatterPoint
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &points))
	require.Len(t, points, 24)
	assert.True(t, points[0].Selected)
	assert.True(t, points[1].Selected)
	assert.False(t, points[2].Selected)

	// Narrow with a category filter; points follow the mask.
	filter := addFilterOn(t, s, "region")
	callTool(t, s, "update_filter", map[string]any{
		"id": filter.ID, "values": []any{"north"},
	})

	result = callTool(t, s, "get_scatter_points", map[string]any{"id": spec.ID})
	require.False(t, result.IsError)
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &points))
	assert.Len(t, points, 8)
}

func TestGetScatterPoints_UnknownView(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "get_scatter_points", map[string]any{"id": "missing"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "unknown scatter view")
}

func TestRemoveScatter_UnknownIDIsFine(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "remove_scatter", map[string]any{"id": "missing"})
	assert.False(t, result.IsError, toolText(result))

	var remaining []domain.ScatterSpec
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &remaining))
	assert.Empty(t, remaining)
}

func TestGetTable_Paging(t *testing.T) {
	s := setupServer(t)

	result := callTool(t, s, "get_table", nil)
	require.False(t, result.IsError)

	var page port.TablePage
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &page))
	assert.Equal(t, 24, page.Total)
	assert.Len(t, page.Rows, 10) // default page size

	result = callTool(t, s, "get_table", map[string]any{"offset": 20.0, "limit": 10.0})
	require.False(t, result.IsError)
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &page))
	assert.Len(t, page.Rows, 4)
	assert.Equal(t, int64(20), page.Rows[0].ID)
}

// --- sanitizeError tests ---

func TestSanitizeError_ValidationPassthrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"unknown column", fmt.Errorf("%w: %q", domain.ErrUnknownColumn, "nope"), "unknown column"},
		{"invalid column", domain.ErrInvalidColumn, "cannot be used here"},
		{"unknown filter", domain.ErrUnknownFilter, "unknown filter"},
		{"params mismatch", domain.ErrParamsMismatch, "params do not match"},
		{"out of domain", fmt.Errorf("%w: low 5 below min 10", domain.ErrOutOfDomain), "outside column domain"},
		{"bad pattern", domain.ErrInvalidPattern, "invalid pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := sanitizeError(logger, tt.err, "update_filter")
			assert.Contains(t, msg, tt.contains)
		})
	}
}

func TestSanitizeError_Timeout(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	msg := sanitizeError(logger, context.DeadlineExceeded, "get_scatter_points")
	assert.Contains(t, msg, "get_scatter_points timed out")
}

func TestSanitizeError_Generic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	msg := sanitizeError(logger, fmt.Errorf("pool exhausted: 5 conns in use"), "add_filter")
	assert.Contains(t, msg, "internal error")
	assert.Contains(t, msg, "check server logs")
	assert.NotContains(t, msg, "pool exhausted")
}
