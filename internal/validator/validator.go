package validator

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/gocare/internal/config"
	"github.com/aretw0/gocare/internal/presentation/graph"
	"github.com/aretw0/gocare/pkg/adapters/memory"
	"github.com/aretw0/gocare/pkg/intent"
)

// ValidateTable checks that every role is reachable from start and that every
// reachable role has a path back to start, so no caller can be stranded.
func ValidateTable(edges []graph.Edge, start string, roles []string) error {
	forward := make(map[string][]string)
	backward := make(map[string][]string)
	for _, e := range edges {
		forward[e.From] = append(forward[e.From], e.To)
		backward[e.To] = append(backward[e.To], e.From)
	}

	reached := crawl(forward, start)
	returns := crawl(backward, start)

	var errors []string
	for _, r := range roles {
		if !reached[r] {
			errors = append(errors, fmt.Sprintf("Unreachable role: '%s'", r))
			continue
		}
		if !returns[r] {
			errors = append(errors, fmt.Sprintf("Dead end: '%s' never leads back to '%s'", r, start))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}

func crawl(adj map[string][]string, start string) map[string]bool {
	visited := make(map[string]bool)
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, next := range adj[current] {
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}
	return visited
}

// ValidateFiles parses the users seed and intent rules files the config
// points at. Empty paths are skipped.
func ValidateFiles(cfg *config.Config) error {
	var errors []string
	if path := cfg.Directory.UsersFile; path != "" {
		if data, err := os.ReadFile(path); err != nil {
			errors = append(errors, err.Error())
		} else if _, err := memory.ParseUsers(data); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", path, err))
		}
	}
	if path := cfg.Intent.RulesFile; path != "" {
		if data, err := os.ReadFile(path); err != nil {
			errors = append(errors, err.Error())
		} else if _, err := intent.ParseRules(data); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", path, err))
		}
	}
	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}
