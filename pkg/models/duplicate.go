package models

import (
	"time"
)

// ContentSignature establishes content equality for a group
type ContentSignature struct {
	Size        int64  `json:"size"`
	PartialHash string `json:"partial_hash"`
	FullHash    string `json:"full_hash"`
}

// DuplicateGroup is a set of files with identical content. Members share
// Size and FullHash and are ordered by path.
type DuplicateGroup struct {
	Signature ContentSignature `json:"signature"`
	Members   []FileEntry      `json:"members"`
}

// Paths returns member paths in group order
func (g *DuplicateGroup) Paths() []string {
	paths := make([]string, len(g.Members))
	for i, m := range g.Members {
		paths[i] = m.Path
	}
	return paths
}

// Reclaimable returns the bytes freed by keeping a single member
func (g *DuplicateGroup) Reclaimable() int64 {
	if len(g.Members) < 2 {
		return 0
	}
	return g.Signature.Size * int64(len(g.Members)-1)
}

// Member returns the entry for path, if present
func (g *DuplicateGroup) Member(path string) (FileEntry, bool) {
	for _, m := range g.Members {
		if m.Path == path {
			return m, true
		}
	}
	return FileEntry{}, false
}

// Strategy selects which member of a duplicate group survives
type Strategy string

const (
	StrategyNewest      Strategy = "newest"
	StrategyOldest      Strategy = "oldest"
	StrategyLargest     Strategy = "largest"
	StrategySmallest    Strategy = "smallest"
	StrategyInteractive Strategy = "interactive"
)

// ParseStrategy converts a name into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyNewest, StrategyOldest, StrategyLargest, StrategySmallest, StrategyInteractive:
		return st, nil
	}
	return "", &ValidationError{Field: "strategy", Message: "must be one of newest, oldest, largest, smallest, interactive"}
}

// ResolutionDecision is the keep/remove split for one group
type ResolutionDecision struct {
	Group    *DuplicateGroup `json:"-"`
	Strategy Strategy        `json:"strategy"`
	Keep     string          `json:"keep,omitempty"`
	Remove   []string        `json:"remove,omitempty"`

	// Pending is set while an interactive decision awaits a choice
	Pending bool `json:"pending,omitempty"`

	DecidedAt time.Time `json:"decided_at"`
}
