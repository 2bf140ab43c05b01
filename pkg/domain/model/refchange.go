package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const (
	// BlankSHA1 is the all-zero object ID used by Git to signal a missing ref side
	BlankSHA1 = "0000000000000000000000000000000000000000"
	// BlankSHA256 is the SHA-256 repository variant of BlankSHA1
	BlankSHA256 = "0000000000000000000000000000000000000000000000000000000000000000"

	BranchRefPrefix = "refs/heads/"
	TagRefPrefix    = "refs/tags/"
)

// IsBlankRev reports whether rev is the blank sentinel (or empty)
func IsBlankRev(rev string) bool {
	return rev == "" || rev == BlankSHA1 || rev == BlankSHA256
}

// RefKind classifies a ref by its namespace
type RefKind int

const (
	RefKindOther RefKind = iota
	RefKindBranch
	RefKindTag
)

func (k RefKind) String() string {
	switch k {
	case RefKindBranch:
		return "branch"
	case RefKindTag:
		return "tag"
	default:
		return "other"
	}
}

// RefAction is the lifecycle transition of a ref within a push
type RefAction string

const (
	RefActionCreated RefAction = "created"
	RefActionRemoved RefAction = "removed"
	RefActionPushed  RefAction = "pushed"
)

// RefChange is one before/after pair for a symbolic ref in a push
type RefChange struct {
	Index  int    `json:"index"`
	OldRev string `json:"oldrev"`
	NewRev string `json:"newrev"`
	Ref    string `json:"ref"`
}

// Kind returns the namespace of the ref
func (c RefChange) Kind() RefKind {
	switch {
	case strings.HasPrefix(c.Ref, BranchRefPrefix):
		return RefKindBranch
	case strings.HasPrefix(c.Ref, TagRefPrefix):
		return RefKindTag
	default:
		return RefKindOther
	}
}

// Action returns created when the old side is blank, removed when the new side is blank, pushed otherwise
func (c RefChange) Action() RefAction {
	switch {
	case IsBlankRev(c.OldRev):
		return RefActionCreated
	case IsBlankRev(c.NewRev):
		return RefActionRemoved
	default:
		return RefActionPushed
	}
}

// IsCreated reports whether the ref did not exist before the push
func (c RefChange) IsCreated() bool { return c.Action() == RefActionCreated }

// IsRemoved reports whether the ref no longer exists after the push
func (c RefChange) IsRemoved() bool { return c.Action() == RefActionRemoved }

// ShortName strips refs/heads/ or refs/tags/ from the ref
func (c RefChange) ShortName() string {
	return ShortRefName(c.Ref)
}

// ShortRefName strips the branch or tag namespace from ref
func ShortRefName(ref string) string {
	if s, ok := strings.CutPrefix(ref, BranchRefPrefix); ok {
		return s
	}
	if s, ok := strings.CutPrefix(ref, TagRefPrefix); ok {
		return s
	}
	return ref
}

// ParseRefChanges parses post-receive lines of the form "<oldrev> <newrev> <ref>".
// Blank lines and no-op changes (both sides blank, or equal revisions) are dropped.
// Index reflects the position among the kept changes.
func ParseRefChanges(lines []string) ([]RefChange, error) {
	var changes []RefChange
	for n, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, goerr.New("malformed ref change line",
				goerr.V("line_no", n+1),
				goerr.V("line", line),
			)
		}

		change := RefChange{
			OldRev: fields[0],
			NewRev: fields[1],
			Ref:    fields[2],
		}
		if IsBlankRev(change.OldRev) && IsBlankRev(change.NewRev) {
			continue
		}
		if change.OldRev == change.NewRev {
			continue
		}

		change.Index = len(changes)
		changes = append(changes, change)
	}

	return changes, nil
}

// RefChanges is an ordered ref change list of one push
type RefChanges []RefChange

// BranchChanges returns the changes under refs/heads/ keeping push order
func (cs RefChanges) BranchChanges() RefChanges {
	return cs.filter(RefKindBranch)
}

// TagChanges returns the changes under refs/tags/ keeping push order
func (cs RefChanges) TagChanges() RefChanges {
	return cs.filter(RefKindTag)
}

func (cs RefChanges) filter(kind RefKind) RefChanges {
	var out RefChanges
	for _, c := range cs {
		if c.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}
