package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/refhook/pkg/domain/model"
)

var (
	issueRefPattern = regexp.MustCompile(`(?:^|[^\w#&/])((?:[\w.\-]+/)+[\w.\-]+)?#(\d+)\b`)
	jiraKeyPattern  = regexp.MustCompile(`\b([A-Z][A-Z0-9_]+-\d+)\b`)
	closingPattern  = regexp.MustCompile(`(?i)\b(?:clos(?:e|es|ed|ing)|fix(?:|es|ed|ing)|resolv(?:e|es|ed|ing)|implement(?:|s|ed|ing))\b:?\s+((?:(?:[\w.\-]+/)*[\w.\-]*#\d+|[A-Z][A-Z0-9_]+-\d+)(?:\s*(?:,|and|&)?\s*(?:(?:[\w.\-]+/)*[\w.\-]*#\d+|[A-Z][A-Z0-9_]+-\d+))*)`)
)

// MatchesCrossReference reports whether message may reference an issue
func MatchesCrossReference(message string) bool {
	return issueRefPattern.MatchString(message) || jiraKeyPattern.MatchString(message)
}

// ExtractJiraKeys returns the distinct Jira issue keys in s, in order of appearance
func ExtractJiraKeys(s string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, m := range jiraKeyPattern.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// ExtractIssueReferences finds issue mentions of the project at projectPath.
// References to other projects are ignored. A reference is closing when any
// of its mentions follows a closing keyword.
func ExtractIssueReferences(message, projectPath string) []model.IssueReference {
	var refs []model.IssueReference
	index := map[string]int{}

	add := func(ref model.IssueReference) {
		key := ref.ExternalKey
		if key == "" {
			key = "#" + strconv.FormatInt(ref.IID, 10)
		}
		if i, ok := index[key]; ok {
			refs[i].Closing = refs[i].Closing || ref.Closing
			return
		}
		index[key] = len(refs)
		refs = append(refs, ref)
	}

	scan := func(text string, closing bool) {
		for _, m := range issueRefPattern.FindAllStringSubmatch(text, -1) {
			if m[1] != "" && !strings.EqualFold(m[1], projectPath) {
				continue
			}
			iid, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil {
				continue
			}
			add(model.IssueReference{IID: iid, Closing: closing})
		}
		for _, key := range ExtractJiraKeys(text) {
			add(model.IssueReference{ExternalKey: key, Closing: closing})
		}
	}

	for _, m := range closingPattern.FindAllStringSubmatch(message, -1) {
		scan(" "+m[1], true)
	}
	scan(message, false)

	return refs
}
