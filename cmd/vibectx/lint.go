package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newLintCmd(a *app) *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "lint path...",
		Short: "Check .vibe files for syntax and formatting problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, targets []string) error {
			files, err := collectVibeFiles(targets)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			problems := 0
			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				original := string(data)
				if err := a.engine.Check(original); err != nil {
					problems++
					fmt.Fprintf(out, "%s: %s\n", path, errorStyle.Render(err.Error()))
					continue
				}
				formatted := formatSource(original)
				if formatted == original {
					continue
				}
				if fix {
					if err := os.WriteFile(path, []byte(formatted), 0o644); err != nil {
						return fmt.Errorf("write %s: %w", path, err)
					}
					fmt.Fprintf(out, "%s: formatted\n", path)
					continue
				}
				problems++
				fmt.Fprintf(out, "%s: needs formatting\n", path)
			}
			if problems > 0 {
				return fmt.Errorf("lint: %d file(s) have problems", problems)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&fix, "fix", "w", false, "rewrite files that only need formatting")
	return cmd
}

// collectVibeFiles expands directories into the .vibe files below them.
func collectVibeFiles(targets []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(path string) {
		if filepath.Ext(path) != ".vibe" {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", target, err)
		}
		if !info.IsDir() {
			add(target)
			continue
		}
		err = filepath.WalkDir(target, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !entry.IsDir() {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", target, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// formatSource normalises line endings and trailing whitespace.
func formatSource(source string) string {
	normalized := strings.ReplaceAll(source, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}
