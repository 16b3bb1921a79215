package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ella-systems/ella-agent/internal/memory"
)

// SearchMemoryTool searches a project's durable memory for prior research
// notes and answered questions.
type SearchMemoryTool struct {
	store *memory.VectorStore
}

// NewSearchMemoryTool creates the search_project_memory tool.
func NewSearchMemoryTool(store *memory.VectorStore) *SearchMemoryTool {
	return &SearchMemoryTool{store: store}
}

func (t *SearchMemoryTool) Definition() Definition {
	return Definition{
		Name:        "search_project_memory",
		Description: "Search the project's stored research notes and prior answers. Returns matching documents as JSON.",
		Params: []Param{
			{Name: "project_id", Type: TypeString, Description: "Project to search within", Required: true},
			{Name: "query", Type: TypeString, Description: "Search terms", Required: true},
			{Name: "limit", Type: TypeNumber, Description: "Max results, default 5"},
		},
	}
}

func (t *SearchMemoryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	projectID, _ := params["project_id"].(string)
	query, _ := params["query"].(string)

	limit := 5
	if n, ok := params["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}

	docs, err := t.store.Search(ctx, projectID, query, limit)
	if err != nil {
		return "", fmt.Errorf("search memory: %w", err)
	}

	type hit struct {
		ID      string   `json:"id"`
		Content string   `json:"content"`
		Tags    []string `json:"tags,omitempty"`
	}
	hits := make([]hit, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, hit{ID: d.ID, Content: d.Content, Tags: d.Tags})
	}
	out, err := json.Marshal(map[string]any{"results": hits})
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(out), nil
}

// SaveNoteTool persists a research finding so later rounds (and later
// sessions) can retrieve it.
type SaveNoteTool struct {
	store *memory.VectorStore
}

// NewSaveNoteTool creates the save_research_note tool.
func NewSaveNoteTool(store *memory.VectorStore) *SaveNoteTool {
	return &SaveNoteTool{store: store}
}

func (t *SaveNoteTool) Definition() Definition {
	return Definition{
		Name:        "save_research_note",
		Description: "Save a research finding to the project's durable memory for later retrieval.",
		Params: []Param{
			{Name: "project_id", Type: TypeString, Description: "Project the note belongs to", Required: true},
			{Name: "content", Type: TypeString, Description: "The finding to remember", Required: true},
			{Name: "tags", Type: TypeArray, Description: "Optional tags, e.g. [\"infra\", \"auth\"]"},
		},
	}
}

func (t *SaveNoteTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	projectID, _ := params["project_id"].(string)
	content, _ := params["content"].(string)
	if content == "" {
		return "", fmt.Errorf("content must not be empty")
	}

	var tags []string
	if raw, ok := params["tags"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	doc := memory.Document{ProjectID: projectID, Content: content, Tags: tags}
	if err := t.store.Save(ctx, doc); err != nil {
		return "", fmt.Errorf("save note: %w", err)
	}
	return `{"saved":true}`, nil
}
