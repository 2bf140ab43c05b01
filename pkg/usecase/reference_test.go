package usecase_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/usecase"
)

func TestExtractIssueReferences(t *testing.T) {
	testCases := map[string]struct {
		message  string
		expected []model.IssueReference
	}{
		"plain mention": {
			message:  "see #12",
			expected: []model.IssueReference{{IID: 12}},
		},
		"closing keyword": {
			message:  "Fixes #3",
			expected: []model.IssueReference{{IID: 3, Closing: true}},
		},
		"closing list": {
			message:  "closes #1, #2 and #3",
			expected: []model.IssueReference{{IID: 1, Closing: true}, {IID: 2, Closing: true}, {IID: 3, Closing: true}},
		},
		"closing with colon": {
			message:  "Resolved: #4",
			expected: []model.IssueReference{{IID: 4, Closing: true}},
		},
		"full path of same project": {
			message:  "implements group/app#5",
			expected: []model.IssueReference{{IID: 5, Closing: true}},
		},
		"other project ignored": {
			message: "see other/app#6",
		},
		"jira key": {
			message:  "PROJ-7: tidy up",
			expected: []model.IssueReference{{ExternalKey: "PROJ-7"}},
		},
		"closing jira key": {
			message:  "fixing PROJ-8",
			expected: []model.IssueReference{{ExternalKey: "PROJ-8", Closing: true}},
		},
		"duplicates merged": {
			message:  "see #9\n\ncloses #9",
			expected: []model.IssueReference{{IID: 9, Closing: true}},
		},
		"no references": {
			message: "refactor parser, bump 1.2.3-4",
		},
		"anchors are not references": {
			message: "see docs/readme.md#section and url&#39",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := usecase.ExtractIssueReferences(tc.message, "group/app")
			gt.Equal(t, got, tc.expected)
		})
	}
}

func TestMatchesCrossReference(t *testing.T) {
	gt.True(t, usecase.MatchesCrossReference("fix #1"))
	gt.True(t, usecase.MatchesCrossReference("ABC-12 done"))
	gt.False(t, usecase.MatchesCrossReference("just a change"))
}

func TestExtractJiraKeys(t *testing.T) {
	gt.Equal(t, usecase.ExtractJiraKeys("PROJ-1-and-PROJ-2-PROJ-1"), []string{"PROJ-1", "PROJ-2"})
	gt.A(t, usecase.ExtractJiraKeys("feature/login")).Length(0)
}
