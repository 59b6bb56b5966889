package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyike/ThesisGo/internal/storage/sqlite"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}

// query opens the history store for one read.
func (s *Service) query(fn func(ctx context.Context, store *sqlite.Store) (any, error)) (any, error) {
	store, err := s.engine().OpenStore()
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(context.Background(), store)
}

// History lists recorded runs newest first. next_cursor is the row number to
// pass back for the following page, 0 when this page was short.
func (s *Service) History(paramsJSON string) (any, error) {
	params, err := decodeParams[HistoryParams](paramsJSON, false)
	if err != nil {
		return nil, err
	}
	limit := pageSize(params.Limit)

	return s.query(func(ctx context.Context, store *sqlite.Store) (any, error) {
		runs, err := store.ListRuns(ctx, sqlite.RunFilter{Company: params.Company, Cursor: params.Cursor, Limit: limit})
		if err != nil {
			return nil, err
		}
		var next int64
		if len(runs) == limit {
			next = runs[len(runs)-1].RowID
		}
		return map[string]any{"items": runs, "next_cursor": next, "has_more": next != 0}, nil
	})
}

func (s *Service) HistoryInfo(paramsJSON string) (any, error) {
	params, err := decodeParams[HistoryInfoParams](paramsJSON, true)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, errors.New("id is required")
	}

	return s.query(func(ctx context.Context, store *sqlite.Store) (any, error) {
		report, err := store.GetRun(ctx, id)
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, fmt.Errorf("run %s not found", id)
		}
		if err != nil {
			return nil, err
		}
		return report, nil
	})
}

func (s *Service) HistoryStats() (any, error) {
	return s.query(func(ctx context.Context, store *sqlite.Store) (any, error) {
		return store.Stats(ctx)
	})
}

// Reports pages through the stage reports under results_dir in path order.
// The cursor is the last path of the previous page.
func (s *Service) Reports(paramsJSON string) (any, error) {
	params, err := decodeParams[ReportListParams](paramsJSON, false)
	if err != nil {
		return nil, err
	}
	root, err := s.resultsRoot()
	if err != nil {
		return nil, err
	}

	items, err := markdownUnder(root, root)
	if errors.Is(err, fs.ErrNotExist) {
		items, err = []ReportListItem{}, nil
	}
	if err != nil {
		return nil, err
	}

	start := sort.Search(len(items), func(i int) bool { return items[i].Path > params.Cursor })
	end := min(start+pageSize(params.Limit), len(items))
	page := items[start:end]

	next := ""
	if end < len(items) {
		next = page[len(page)-1].Path
	}
	return map[string]any{"items": page, "next_cursor": next, "has_more": next != ""}, nil
}

// ReportInfo returns one report, or every report below a directory such as
// "<company>/<date>".
func (s *Service) ReportInfo(paramsJSON string) (any, error) {
	params, err := decodeParams[ReportInfoParams](paramsJSON, true)
	if err != nil {
		return nil, err
	}
	rel := strings.TrimSpace(params.Path)
	if rel == "" {
		return nil, errors.New("path is required")
	}
	root, err := s.resultsRoot()
	if err != nil {
		return nil, err
	}
	target, err := within(root, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("path not found: %s", rel)
	}
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	var entries []ReportListItem
	if info.IsDir() {
		if entries, err = markdownUnder(root, target); err != nil {
			return nil, err
		}
	} else {
		if !isMarkdown(info.Name()) {
			return nil, errors.New("path is not a markdown file")
		}
		entries = []ReportListItem{{Name: info.Name(), Path: slashRel(root, target)}}
	}

	files := make([]ReportFile, 0, len(entries))
	for _, e := range entries {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.Path)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Path, err)
		}
		files = append(files, ReportFile{Name: e.Name, Path: e.Path, Content: string(content)})
	}
	return map[string]any{"path": slashRel(root, target), "files": files}, nil
}

func (s *Service) resultsRoot() (string, error) {
	dir := strings.TrimSpace(s.engine().Settings().ResultsDir)
	if dir == "" {
		return "", errors.New("results_dir is not configured")
	}
	return filepath.Abs(dir)
}

// within joins rel onto root and refuses anything that climbs out of it.
func within(root, rel string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(rel))
	back, err := filepath.Rel(root, target)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", errors.New("path is outside results_dir")
	}
	return target, nil
}

// markdownUnder lists *.md files below dir, sorted, with paths relative to root.
func markdownUnder(root, dir string) ([]ReportListItem, error) {
	items := []ReportListItem{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isMarkdown(d.Name()) {
			items = append(items, ReportListItem{Name: d.Name(), Path: slashRel(root, path)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

func isMarkdown(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

func slashRel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
