package mcp

import (
	"context"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/fitcoach/internal/tool"
	"github.com/MrWong99/fitcoach/pkg/types"
)

type foodArgs struct {
	Food  string  `json:"food" jsonschema:"name of the food"`
	Grams float64 `json:"grams,omitempty" jsonschema:"portion size in grams"`
}

// startServer runs an in-memory MCP server with a few nutrition tools and
// returns the client side transport.
func startServer(t *testing.T) mcpsdk.Transport {
	t.Helper()
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "food-db", Version: "test"}, nil)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{Name: "lookupFood", Description: "Nutrition facts per portion."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, in foodArgs) (*mcpsdk.CallToolResult, any, error) {
			text := `{"food":"` + in.Food + `","protein":31}`
			if in.Food == "unobtainium" {
				text = `{"success":false,"error":"food not in database"}`
			}
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}, nil, nil
		})
	mcpsdk.AddTool(srv, &mcpsdk.Tool{Name: "brokenTool", Description: "Always fails."},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, _ foodArgs) (*mcpsdk.CallToolResult, any, error) {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "database offline"}},
			}, nil, nil
		})

	clientT, serverT := mcpsdk.NewInMemoryTransports()
	ss, err := srv.Connect(context.Background(), serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })
	return clientT
}

func TestImport_RegistersAndProxiesTools(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := New()
	t.Cleanup(func() { _ = h.Close() })
	reg := tool.NewRegistry()

	names, err := h.importTransport(ctx, reg, ServerConfig{Name: "food", Transport: TransportStdio, Prefix: "db"}, startServer(t))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("imported %v, want 2 tools", names)
	}

	schema, ok := reg.Lookup("db_lookupFood")
	if !ok {
		t.Fatalf("db_lookupFood not registered; have %v", names)
	}
	food, ok := schema.Param("food")
	if !ok || food.Kind != tool.KindString || !food.Required {
		t.Errorf("food param = %+v", food)
	}
	if grams, ok := schema.Param("grams"); !ok || grams.Kind != tool.KindNumber || grams.Required {
		t.Errorf("grams param = %+v", grams)
	}

	rec := reg.Execute(ctx, "db_lookupFood", map[string]any{"food": "chicken"})
	if !rec.Success {
		t.Fatalf("lookupFood failed: %+v", rec.Error)
	}
	data, _ := rec.Result.(tool.Outcome).Data.(map[string]any)
	if data["protein"] != float64(31) {
		t.Errorf("data = %v", data)
	}

	rec = reg.Execute(ctx, "db_lookupFood", map[string]any{"food": "unobtainium"})
	if rec.Success || rec.Error.Category != types.CategoryDataNotFound {
		t.Errorf("unknown food = %+v, want data-not-found", rec.Error)
	}

	rec = reg.Execute(ctx, "db_brokenTool", map[string]any{"food": "x"})
	if rec.Success || rec.Error.Category != types.CategoryToolExecutionFailed {
		t.Errorf("brokenTool = %+v, want tool-execution-failed", rec.Error)
	}
	if !strings.Contains(rec.Error.Message, "database offline") {
		t.Errorf("message = %q", rec.Error.Message)
	}

	if err := h.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if got := h.Tools()["food"]; len(got) != 2 {
		t.Errorf("Tools() = %v", got)
	}
}

func TestImport_DuplicateServer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := New()
	t.Cleanup(func() { _ = h.Close() })
	reg := tool.NewRegistry()
	cfg := ServerConfig{Name: "food", Transport: TransportStdio}

	if _, err := h.importTransport(ctx, reg, cfg, startServer(t)); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if _, err := h.importTransport(ctx, reg, cfg, startServer(t)); err == nil {
		t.Fatal("expected error for duplicate server name")
	}
}

func TestImportAll_ReportsBadConfigs(t *testing.T) {
	t.Parallel()
	h := New()
	err := h.ImportAll(context.Background(), tool.NewRegistry(), []ServerConfig{
		{Name: "a", Transport: "carrier-pigeon"},
		{Name: "b", Transport: TransportStreamableHTTP},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"unknown transport", "requires a url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestConvertSchema(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		schema  any
		want    []tool.Param
		wantErr bool
	}{
		{
			name:   "nil schema",
			schema: nil,
		},
		{
			name: "kinds",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"muscle": map[string]any{"type": "string", "enum": []any{"chest", "legs"}},
					"limit":  map[string]any{"type": "integer"},
					"tags":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"userId": map[string]any{"type": []any{"null", "string"}, "description": "user"},
				},
				"required": []any{"muscle"},
			},
			want: []tool.Param{
				{Name: "limit", Kind: tool.KindNumber},
				{Name: "muscle", Kind: tool.KindEnum, Enum: []string{"chest", "legs"}, Required: true},
				{Name: "tags", Kind: tool.KindArray, Items: tool.KindString},
				{Name: "userId", Kind: tool.KindString, Description: "user"},
			},
		},
		{
			name: "optional object dropped",
			schema: map[string]any{
				"properties": map[string]any{
					"filters": map[string]any{"type": "object"},
					"q":       map[string]any{"type": "string"},
				},
			},
			want: []tool.Param{{Name: "q", Kind: tool.KindString}},
		},
		{
			name: "required boolean rejected",
			schema: map[string]any{
				"properties": map[string]any{"strict": map[string]any{"type": "boolean"}},
				"required":   []any{"strict"},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := convertSchema("searchExercises", "", tt.schema)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.Description == "" {
				t.Error("description must be defaulted")
			}
			if len(got.Params) != len(tt.want) {
				t.Fatalf("params = %+v, want %+v", got.Params, tt.want)
			}
			for i, p := range got.Params {
				w := tt.want[i]
				if p.Name != w.Name || p.Kind != w.Kind || p.Required != w.Required || p.Items != w.Items || p.Description != w.Description || strings.Join(p.Enum, ",") != strings.Join(w.Enum, ",") {
					t.Errorf("param %d = %+v, want %+v", i, p, w)
				}
			}
			if err := got.Validate(); err != nil {
				t.Errorf("converted schema invalid: %v", err)
			}
		})
	}
}

func TestOutcomeFrom(t *testing.T) {
	t.Parallel()
	if o := outcomeFrom("plain text"); !o.Success || o.Data != "plain text" {
		t.Errorf("text outcome = %+v", o)
	}
	o := outcomeFrom(map[string]any{"success": false, "error": "nothing logged"})
	if o.Success || o.Error != "nothing logged" {
		t.Errorf("not-found outcome = %+v", o)
	}
}

func TestServerConfig_Validate(t *testing.T) {
	t.Parallel()
	if err := (ServerConfig{Name: "x", Transport: TransportStdio}).Validate(); err == nil {
		t.Error("stdio without command must fail")
	}
	if err := (ServerConfig{Name: "x", Transport: TransportStreamableHTTP, URL: "http://localhost/mcp"}).Validate(); err != nil {
		t.Errorf("Validate = %v", err)
	}
}
