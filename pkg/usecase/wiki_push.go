package usecase

import (
	"context"
	"path"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const wikiFallbackBranch = "main"

var wikiMarkupExtensions = map[string]bool{
	"md": true, "markdown": true, "mdown": true, "mkd": true,
	"rdoc": true, "asciidoc": true, "adoc": true, "org": true,
	"textile": true, "creole": true, "rst": true, "mediawiki": true,
	"wiki": true, "pod": true,
}

func wikiDefaultBranch(project *model.Project) string {
	if project.WikiDefaultBranch != "" {
		return project.WikiDefaultBranch
	}
	return wikiFallbackBranch
}

// wikiPage splits a page path into slug and title. ok is false for non-page files.
func wikiPage(p string) (slug, title string, ok bool) {
	ext := path.Ext(p)
	if ext == "" || !wikiMarkupExtensions[strings.ToLower(ext[1:])] {
		return "", "", false
	}
	slug = strings.TrimSuffix(p, ext)
	title = strings.ReplaceAll(path.Base(slug), "-", " ")
	return slug, title, true
}

// WikiPageChanges turns raw path changes into page changes, dropping non-page files
func WikiPageChanges(changes []model.PathChange, sha string) []model.WikiPageChange {
	var pages []model.WikiPageChange
	for _, c := range changes {
		p := c.NewPath
		if c.Operation == model.ChangeDeleted || c.Operation == model.ChangeRenamed || p == "" {
			p = c.OldPath
		}
		slug, title, ok := wikiPage(p)
		if !ok {
			continue
		}

		action := model.EventUpdated
		switch c.Operation {
		case model.ChangeAdded:
			action = model.EventCreated
		case model.ChangeDeleted:
			action = model.EventDestroyed
		}
		pages = append(pages, model.WikiPageChange{
			Slug:   slug,
			Title:  title,
			Path:   p,
			Action: action,
			SHA:    sha,
		})
	}
	return pages
}

// ProcessWikiChanges records wiki page events for pushes to the wiki default branch.
// It returns the number of events recorded.
func (uc *UseCase) ProcessWikiChanges(ctx context.Context, pc *PushContext, changes model.RefChanges) int {
	logger := ctxlog.From(ctx)
	branch := wikiDefaultBranch(pc.Project)

	type revPair struct{ oldRev, newRev string }
	seen := map[revPair]bool{}

	var pages []model.WikiPageChange
	for _, change := range changes {
		if change.Kind() != model.RefKindBranch || change.ShortName() != branch {
			continue
		}
		pair := revPair{change.OldRev, change.NewRev}
		if seen[pair] || change.IsRemoved() {
			continue
		}
		seen[pair] = true

		from := change.OldRev
		if change.IsCreated() {
			from = ""
		}
		raw, err := pc.Repo.RawChanges(ctx, from, change.NewRev)
		if err != nil {
			uc.tracker.Report(ctx, goerr.Wrap(err, "failed to read wiki changes"), map[string]string{"ref": change.Ref})
			continue
		}
		pages = append(pages, WikiPageChanges(raw, change.NewRev)...)
	}

	if limit := uc.limits.WikiMaxChanges; len(pages) > limit {
		logger.Warn("wiki changes truncated", "total", len(pages), "limit", limit)
		pages = pages[:limit]
	}

	recorded := 0
	for _, page := range pages {
		inserted, err := uc.processWikiPage(ctx, pc, page)
		if err != nil {
			logger.Error("failed to process wiki page", "slug", page.Slug, "error", err.Error())
			continue
		}
		if inserted {
			recorded++
		}
	}
	return recorded
}

// processWikiPage records the page event and notifies hooks. Already recorded events notify nobody.
func (uc *UseCase) processWikiPage(ctx context.Context, pc *PushContext, page model.WikiPageChange) (bool, error) {
	meta, created, err := uc.db.FindOrCreateWikiPageMeta(ctx, pc.Project.ID, page.Slug, page.Title)
	if err != nil {
		return false, err
	}
	// an existing meta turns a creation into an update unless this exact creation was already recorded
	if page.Action == model.EventCreated && !created {
		recorded, err := uc.db.WikiEventExists(ctx, meta.ID, model.EventCreated, page.SHA)
		if err != nil {
			return false, err
		}
		if !recorded {
			page.Action = model.EventUpdated
		}
	}

	_, inserted, err := uc.db.CreateWikiEvent(ctx, meta, pc.User.ID, page.Action, page.SHA)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	data := model.WikiPageData{
		ObjectKind: "wiki_page",
		User:       *pc.User,
		Project:    projectData(pc.Project),
		ObjectAttributes: model.WikiPageAttributes{
			Title:  meta.Title,
			Slug:   page.Slug,
			Action: wikiHookAction(page.Action),
			URL:    strings.TrimRight(pc.Project.WebURL, "/") + "/-/wikis/" + page.Slug,
		},
	}
	if err := uc.dispatchHooks(ctx, pc.Project.ID, model.WikiPageHooks, "", data, nil); err != nil {
		return true, err
	}
	return true, nil
}

func wikiHookAction(action model.EventAction) string {
	switch action {
	case model.EventCreated:
		return "create"
	case model.EventDestroyed:
		return "delete"
	default:
		return "update"
	}
}
