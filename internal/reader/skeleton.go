package reader

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pcf-tools/org-mgmt-server/internal/cache"
	"github.com/pcf-tools/org-mgmt-server/internal/logger"
)

// orgRepoSuffix marks repositories that hold org configuration. The
// suffix is stripped from the slug to form the cache key.
const orgRepoSuffix = "-org"

// repoListing is the subset of the Bitbucket repository envelope the
// reader needs.
type repoListing struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// buildSkeleton lists the org repositories for every configured context
// and creates the empty cache shape the refresh pass will populate. A
// context whose listing fails simply ends up with zero orgs this cycle.
func (r *Reader) buildSkeleton(ctx context.Context) *cache.Snapshot {
	snapshot := cache.NewSnapshot()
	for _, name := range r.contexts {
		snapshot.Contexts[name] = r.listOrgs(ctx, name)
	}
	return snapshot
}

// listOrgs returns an empty org entry for every repository in the
// project whose display name and slug carry the org marker suffix,
// keyed by the lowercased slug with the suffix stripped.
func (r *Reader) listOrgs(ctx context.Context, project string) cache.ContextEntry {
	logger.Debugf("BB get repo names for %s", project)
	values := r.paginator.FetchAll(ctx, project+"/repos")

	entry := cache.ContextEntry{}
	for _, raw := range values {
		var repo repoListing
		if err := json.Unmarshal(raw, &repo); err != nil {
			logger.Warnf("Skipping malformed repository listing entry in %s: %v", project, err)
			continue
		}
		if !strings.HasSuffix(repo.Name, orgRepoSuffix) || !strings.HasSuffix(repo.Slug, orgRepoSuffix) {
			continue
		}
		key := strings.ToLower(strings.TrimSuffix(repo.Slug, orgRepoSuffix))
		entry[key] = cache.NewOrgEntry()
	}
	logger.Debugf("[BB] %s org names: %s", project, strings.Join(entry.OrgNames(), ","))
	return entry
}
