package usecase

import (
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// Special file types cached per project
const (
	FileTypeReadme               = "readme"
	FileTypeChangelog            = "changelog"
	FileTypeLicense              = "license"
	FileTypeContributing         = "contributing"
	FileTypeGitignore            = "gitignore"
	FileTypeGitlabCI             = "gitlab_ci"
	FileTypeIssueTemplate        = "issue_template"
	FileTypeMergeRequestTemplate = "merge_request_template"
	FileTypeAvatar               = "avatar"
)

// Patterns are matched against lowercased paths. A single * does not cross directories.
var fileTypePatterns = []struct {
	fileType string
	pattern  string
}{
	{FileTypeReadme, "readme*"},
	{FileTypeChangelog, "{changelog,history,changes,news}*"},
	{FileTypeLicense, "{licen[cs]e,copying}*"},
	{FileTypeContributing, "contributing*"},
	{FileTypeGitignore, ".gitignore"},
	{FileTypeGitlabCI, ".gitlab-ci.yml"},
	{FileTypeIssueTemplate, ".gitlab/issue_templates/*.md"},
	{FileTypeMergeRequestTemplate, ".gitlab/merge_request_templates/*.md"},
	{FileTypeAvatar, "logo.{png,jpg,gif}"},
}

// DetectFileType returns the special file type of p, or "" if none
func DetectFileType(p string) string {
	name := strings.ToLower(strings.TrimPrefix(path.Clean(p), "/"))
	for _, ft := range fileTypePatterns {
		if ok, err := doublestar.Match(ft.pattern, name); err == nil && ok {
			return ft.fileType
		}
	}
	return ""
}

// DetectFileTypes maps each detected type to the first path having it
func DetectFileTypes(paths []string) map[string]string {
	found := map[string]string{}
	for _, p := range paths {
		ft := DetectFileType(p)
		if ft == "" {
			continue
		}
		if _, ok := found[ft]; !ok {
			found[ft] = p
		}
	}
	return found
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
