package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/trellisviz/trellis/internal/core/domain"
	"github.com/trellisviz/trellis/internal/core/service"
)

// Server metadata
const serverName = "trellis"

// Tool descriptions
const (
	descListColumns = "List the dataset's columns with their filter classification. " +
		"Numeric columns carry min/max bounds for range filters, categorical columns enumerate " +
		"their distinct values, and text columns take substring patterns. Columns that cannot be " +
		"filtered are flagged with the reason. Call this first to learn what the dataset offers " +
		"before adding filters or configuring scatter views."

	descGetState = "Return the full exploration state in one payload: the current frame " +
		"(version, total and matched row counts, every filter with its parameters, and a " +
		"leave-one-out baseline distribution per filter), the shared selection, and the selected " +
		"row ids still visible under the current filters. A filter's baseline shows what the data " +
		"looks like when every OTHER filter applies — compare it against the frame to see how much " +
		"that one filter contributes."

	descGetTable = "Page through the rows matching the current filters. Returns row ids, cell " +
		"values by column, and whether each row is in the shared selection. Offset and limit are " +
		"clamped server-side; omit them for the first page."

	descAddFilter = "Add a filter on a column. The filter starts pass-through (full numeric " +
		"range, all categories, empty pattern), so the matched count does not change until you " +
		"narrow it with update_filter. Returns the new filter's id, kind, and suggested widget."

	descUpdateFilter = "Narrow or widen an existing filter. Pass low and high for numeric range " +
		"filters, values for category filters, or pattern for text filters — the parameter style " +
		"must match the filter's kind. The frame recomputes synchronously; call get_state " +
		"afterwards for the new matched count and baselines."

	descRemoveFilter = "Remove a filter by id. Remaining filters keep their insertion order. " +
		"Returns the recomputed frame."

	descReportSelection = "Replace the shared row selection with the given row ids. The selection " +
		"is cross-view state: every scatter view and the table flag the same selected rows. " +
		"Duplicates are dropped. Selecting rows hidden by the current filters is allowed — they " +
		"stay selected and resurface when filters relax."

	descClearSelection = "Empty the shared selection across all views."

	descConfigureScatter = "Create or reconfigure a scatter view. x and y may be any columns; " +
		"string-backed axes plot their labels. Optionally map a numeric size_column into " +
		"[min_size, max_size] through a gamma curve, and a color_column with a palette and " +
		"color_mode (continuous needs a numeric column; discrete works for any column; omit " +
		"color_mode to derive it from the column's kind). Pass an existing id to reconfigure " +
		"that view in place; omit id to create a new view. Returns the normalized spec with " +
		"defaults filled in."

	descRemoveScatter = "Remove a scatter view by id. Removing an id that does not exist is not " +
		"an error. Returns the remaining scatter specs."

	descGetScatterPoints = "Render one scatter view against the current state: one point per row " +
		"matching the filters, sized and colored per the view's spec, each flagged if it is in " +
		"the shared selection. Rows with a missing x or y value are omitted."
)

func RegisterTools(s *server.MCPServer, session *service.Session, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool("list_columns",
			mcp.WithDescription(descListColumns),
		),
		listColumnsHandler(session),
	)

	s.AddTool(
		mcp.NewTool("get_state",
			mcp.WithDescription(descGetState),
		),
		getStateHandler(session),
	)

	s.AddTool(
		mcp.NewTool("get_table",
			mcp.WithDescription(descGetTable),
			mcp.WithNumber("offset",
				mcp.Description("Index into the matched rows to start from. Defaults to 0."),
			),
			mcp.WithNumber("limit",
				mcp.Description("Rows per page. Defaults to 10 and is capped server-side."),
			),
		),
		getTableHandler(session),
	)

	s.AddTool(
		mcp.NewTool("add_filter",
			mcp.WithDescription(descAddFilter),
			mcp.WithString("column",
				mcp.Required(),
				mcp.Description("Name of the column to filter on"),
			),
		),
		addFilterHandler(session, logger),
	)

	s.AddTool(
		mcp.NewTool("update_filter",
			mcp.WithDescription(descUpdateFilter),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Id of the filter to update"),
			),
			mcp.WithNumber("low",
				mcp.Description("Inclusive lower bound (numeric filters; requires high)"),
			),
			mcp.WithNumber("high",
				mcp.Description("Inclusive upper bound (numeric filters; requires low)"),
			),
			mcp.WithArray("values",
				mcp.Description("Categories to keep (category filters; empty keeps nothing)"),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithString("pattern",
				mcp.Description("Case-insensitive substring or regex (text filters; empty matches everything)"),
			),
		),
		updateFilterHandler(session, logger),
	)

	s.AddTool(
		mcp.NewTool("remove_filter",
			mcp.WithDescription(descRemoveFilter),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Id of the filter to remove"),
			),
		),
		removeFilterHandler(session, logger),
	)

	s.AddTool(
		mcp.NewTool("report_selection",
			mcp.WithDescription(descReportSelection),
			mcp.WithArray("ids",
				mcp.Required(),
				mcp.Description("Row ids forming the new selection (an empty array clears it)"),
				mcp.Items(map[string]any{"type": "number"}),
			),
		),
		reportSelectionHandler(session),
	)

	s.AddTool(
		mcp.NewTool("clear_selection",
			mcp.WithDescription(descClearSelection),
		),
		clearSelectionHandler(session),
	)

	s.AddTool(
		mcp.NewTool("configure_scatter",
			mcp.WithDescription(descConfigureScatter),
			mcp.WithString("x",
				mcp.Required(),
				mcp.Description("Column for the x axis"),
			),
			mcp.WithString("y",
				mcp.Required(),
				mcp.Description("Column for the y axis"),
			),
			mcp.WithString("id",
				mcp.Description("Id of an existing view to reconfigure (omit to create one)"),
			),
			mcp.WithString("size_column",
				mcp.Description("Numeric column driving point size"),
			),
			mcp.WithNumber("min_size",
				mcp.Description("Smallest point size. Defaults to 5."),
			),
			mcp.WithNumber("max_size",
				mcp.Description("Largest point size. Defaults to 20."),
			),
			mcp.WithNumber("gamma",
				mcp.Description("Exponent shaping the size curve. Defaults to 1 (linear)."),
			),
			mcp.WithString("color_column",
				mcp.Description("Column driving point color"),
			),
			mcp.WithString("palette",
				mcp.Description("Palette name, passed through to the renderer as-is. Stock "+
					"palettes: "+strings.Join(domain.Palettes, ", ")+". Defaults to viridis."),
			),
			mcp.WithString("color_mode",
				mcp.Description("continuous or discrete. Omit to derive from the color column's kind."),
			),
		),
		configureScatterHandler(session, logger),
	)

	s.AddTool(
		mcp.NewTool("remove_scatter",
			mcp.WithDescription(descRemoveScatter),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Id of the scatter view to remove"),
			),
		),
		removeScatterHandler(session, logger),
	)

	s.AddTool(
		mcp.NewTool("get_scatter_points",
			mcp.WithDescription(descGetScatterPoints),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Id of the scatter view to render"),
			),
		),
		getScatterPointsHandler(session, logger),
	)
}

func listColumnsHandler(session *service.Session) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return marshalResult(session.Columns())
	}
}

func getStateHandler(session *service.Session) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return marshalResult(session.State())
	}
}

func getTableHandler(session *service.Session) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		offset, _ := args["offset"].(float64)
		limit, _ := args["limit"].(float64)

		return marshalResult(session.TableRows(ctx, int(offset), int(limit)))
	}
}

func addFilterHandler(session *service.Session, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		column, ok := request.GetArguments()["column"].(string)
		if !ok || column == "" {
			return mcp.NewToolResultError("column is required"), nil
		}

		ctx = service.WithToolName(ctx, "add_filter")
		state, err := session.AddFilter(ctx, column)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "add_filter")), nil
		}
		return marshalResult(state)
	}
}

func updateFilterHandler(session *service.Session, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		id, ok := args["id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		params, err := filterParamsFromArgs(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "update_filter")
		state, err := session.UpdateFilter(ctx, id, params)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "update_filter")), nil
		}
		return marshalResult(state)
	}
}

func removeFilterHandler(session *service.Session, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		ctx = service.WithToolName(ctx, "remove_filter")
		if err := session.RemoveFilter(ctx, id); err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "remove_filter")), nil
		}
		return marshalResult(session.State().Frame)
	}
}

func reportSelectionHandler(session *service.Session) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, ok := request.GetArguments()["ids"].([]any)
		if !ok {
			return mcp.NewToolResultError("ids is required"), nil
		}

		ids := make([]int64, 0, len(raw))
		for _, v := range raw {
			f, ok := v.(float64)
			if !ok {
				return mcp.NewToolResultError("ids must be an array of row ids"), nil
			}
			ids = append(ids, int64(f))
		}

		ctx = service.WithToolName(ctx, "report_selection")
		return marshalResult(session.ReportSelection(ctx, ids))
	}
}

func clearSelectionHandler(session *service.Session) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = service.WithToolName(ctx, "clear_selection")
		return marshalResult(session.ClearSelection(ctx))
	}
}

func configureScatterHandler(session *service.Session, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		x, _ := args["x"].(string)
		y, _ := args["y"].(string)
		if x == "" || y == "" {
			return mcp.NewToolResultError("x and y are required"), nil
		}

		spec := domain.ScatterSpec{
			ID:          stringArg(args, "id"),
			X:           x,
			Y:           y,
			SizeColumn:  stringArg(args, "size_column"),
			MinSize:     floatArg(args, "min_size"),
			MaxSize:     floatArg(args, "max_size"),
			Gamma:       floatArg(args, "gamma"),
			ColorColumn: stringArg(args, "color_column"),
			Palette:     stringArg(args, "palette"),
			ColorMode:   domain.ColorMode(stringArg(args, "color_mode")),
		}

		ctx = service.WithToolName(ctx, "configure_scatter")
		valid, err := session.ConfigureScatter(ctx, spec)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "configure_scatter")), nil
		}
		return marshalResult(valid)
	}
}

func removeScatterHandler(session *service.Session, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		ctx = service.WithToolName(ctx, "remove_scatter")
		if err := session.RemoveScatter(ctx, id); err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "remove_scatter")), nil
		}
		return marshalResult(session.Scatters())
	}
}

func getScatterPointsHandler(session *service.Session, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		points, err := session.ScatterPoints(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "get_scatter_points")), nil
		}
		if points == nil {
			points = []domain.ScatterPoint{}
		}
		return marshalResult(points)
	}
}

// filterParamsFromArgs picks the parameter variant by which arguments are
// present: values → category set, pattern → text pattern, low+high →
// numeric range. The session rejects a variant whose kind does not match
// the filter's column.
func filterParamsFromArgs(args map[string]any) (domain.FilterParams, error) {
	if raw, present := args["values"]; present {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("values must be an array of strings")
		}
		values := make([]string, 0, len(list))
		for _, v := range list {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("values must be an array of strings")
			}
			values = append(values, s)
		}
		return domain.CategorySet{Values: values}, nil
	}

	if raw, present := args["pattern"]; present {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("pattern must be a string")
		}
		return domain.TextPattern{Pattern: s}, nil
	}

	low, lowOK := args["low"].(float64)
	high, highOK := args["high"].(float64)
	switch {
	case lowOK && highOK:
		return domain.NumericRange{Low: low, High: high}, nil
	case lowOK || highOK:
		return nil, fmt.Errorf("numeric filters need both low and high")
	default:
		return nil, fmt.Errorf("provide low and high, values, or pattern")
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func floatArg(args map[string]any, key string) float64 {
	f, _ := args[key].(float64)
	return f
}

// sanitizeError keeps validation failures verbatim (their messages are
// actionable and carry no internals) and collapses everything else into a
// generic message, logging the original server-side.
func sanitizeError(logger *slog.Logger, err error, op string) string {
	for _, sentinel := range []error{
		domain.ErrUnknownColumn,
		domain.ErrInvalidColumn,
		domain.ErrUnknownFilter,
		domain.ErrUnknownScatter,
		domain.ErrParamsMismatch,
		domain.ErrInvalidPattern,
		domain.ErrInvalidSizeColumn,
		domain.ErrInvalidColorMode,
		domain.ErrOutOfDomain,
	} {
		if errors.Is(err, sentinel) {
			return err.Error()
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s timed out", op)
	}

	logger.Error("tool failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return fmt.Sprintf("internal error executing %s (check server logs)", op)
}
