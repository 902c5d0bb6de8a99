package nodes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

// WriteFileConfig configures a file-write node.
type WriteFileConfig struct {
	Name       string
	Path       string // literal path; PathParam takes precedence when set
	PathParam  string // invocation parameter holding the path
	ContentKey string // shared key holding the content
}

// WriteFile creates a node that renders a shared value to a file. The
// write happens in the execute phase; parent directories are created.
func WriteFile(cfg WriteFileConfig) (*flow.Task, error) {
	if cfg.Path == "" && cfg.PathParam == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "write-file needs a path or path parameter")
	}
	if cfg.ContentKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "write-file content key is required")
	}
	name := cfg.Name
	if name == "" {
		name = "write-file"
	}

	type target struct {
		path    string
		content string
	}

	return flow.NewTask(flow.TaskConfig{
		Name: name,
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			path := cfg.Path
			if cfg.PathParam != "" {
				if p := params.String(cfg.PathParam); p != "" {
					path = p
				}
			}
			if path == "" {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"parameter %q holds no path", cfg.PathParam)
			}
			v, ok := shared.Get(cfg.ContentKey)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"shared key %q not found", cfg.ContentKey)
			}
			return target{path: path, content: fmt.Sprint(v)}, nil
		},
		Exec: func(ctx context.Context, prep any) (any, error) {
			t, _ := prep.(target)
			if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(t.path, []byte(t.content), 0o644); err != nil {
				return nil, err
			}
			return t.path, nil
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set("written_path", exec)
			return flow.DefaultAction, nil
		},
	})
}
