// Package reader implements the cache refresh pipeline: it harvests the
// org configuration tree from Bitbucket and publishes each completed
// snapshot to the cache store.
package reader

import (
	"context"
	"strings"
	"time"

	"github.com/pcf-tools/org-mgmt-server/internal/bitbucket"
	"github.com/pcf-tools/org-mgmt-server/internal/cache"
	"github.com/pcf-tools/org-mgmt-server/internal/logger"
	"github.com/pcf-tools/org-mgmt-server/internal/telemetry"
)

// Config file names within an org repository. Each space named in the
// spaces file has its own subdirectory holding a config/security pair.
const (
	orgConfigFile      = "orgConfig.yml"
	spacesFile         = "spaces.yml"
	spaceConfigFile    = "spaceConfig.yml"
	securityGroupsFile = "security-group.json"
)

// Reader builds cache snapshots from the configured contexts. Refresh
// may be invoked concurrently (scheduled and manual paths); each call
// builds its own snapshot and the store applies whichever replace lands
// last.
type Reader struct {
	contexts  []string
	paginator *bitbucket.Paginator
	files     *bitbucket.FileLoader
	store     *cache.Store
	metrics   *telemetry.Metrics
}

// Option configures a Reader.
type Option func(*Reader)

// WithMetrics enables refresh pipeline instrumentation.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(r *Reader) {
		r.metrics = metrics
	}
}

// New creates a Reader for the given contexts.
func New(
	contexts []string,
	paginator *bitbucket.Paginator,
	files *bitbucket.FileLoader,
	store *cache.Store,
	opts ...Option,
) *Reader {
	r := &Reader{
		contexts:  contexts,
		paginator: paginator,
		files:     files,
		store:     store,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the cache store the reader publishes to.
func (r *Reader) Store() *cache.Store {
	return r.store
}

// Refresh runs one complete cycle: build the skeleton, populate every
// org, then atomically publish the new snapshot. Individual file and
// space failures are logged and isolated; only context cancellation
// aborts the cycle.
func (r *Reader) Refresh(ctx context.Context) error {
	start := time.Now()
	logger.Infof("Refreshing cache from Bitbucket (%s)", start.UTC().Format("15:04:05"))

	snapshot := r.buildSkeleton(ctx)
	for _, name := range snapshot.ContextNames() {
		logger.Debugf("Refresh: context %s", name)
		orgs := snapshot.Contexts[name]
		// Iterate over the skeleton keys captured up front: populating
		// an org may insert a new key when the declared org name
		// differs from the slug, and those must not be revisited.
		for _, key := range orgs.OrgNames() {
			if err := ctx.Err(); err != nil {
				r.recordRefresh(time.Since(start), false)
				return err
			}
			r.refreshOrg(ctx, name, orgs, key+orgRepoSuffix)
		}
	}

	r.store.Replace(snapshot)
	elapsed := time.Since(start)
	logger.Infof("Refreshing cache completed (%s elapsed)", elapsed.Round(time.Millisecond))
	r.recordRefresh(elapsed, true)
	if r.metrics != nil {
		for name, orgs := range snapshot.Contexts {
			r.metrics.RecordOrgCount(name, len(orgs))
		}
	}
	return nil
}

// refreshOrg populates the entry for one org repository. The entry is
// stored under the org name declared inside orgConfig.yml, lowercased —
// not necessarily the skeleton key derived from the slug. A mismatch
// leaves the skeleton entry empty and creates a new key; this mirrors
// the source data on purpose.
func (r *Reader) refreshOrg(ctx context.Context, project string, orgs cache.ContextEntry, slug string) {
	logger.Debugf("Refresh: slug %s", slug)

	doc, err := r.files.Load(ctx, project, slug, orgConfigFile, false)
	if err != nil {
		logger.Warnf("Failed to load config files for %s/%s", project, slug)
		return
	}
	orgDoc, ok := doc.(map[string]any)
	if !ok {
		logger.Warnf("No orgConfig.yml [%s] %s", project, slug)
		return
	}
	declared, ok := orgDoc["org"].(string)
	if !ok {
		logger.Warnf("No orgConfig.yml [%s] %s", project, slug)
		return
	}
	orgName := strings.ToLower(declared)

	// spaces.yml failing is softer than orgConfig.yml failing: the org
	// keeps its config, just with no spaces this cycle.
	var spaceDoc map[string]any
	if doc, err := r.files.Load(ctx, project, slug, spacesFile, false); err != nil {
		logger.Warnf("Failed to load spaces file for %s/%s", project, slug)
	} else {
		spaceDoc, _ = doc.(map[string]any)
	}

	entry := orgs[orgName]
	if entry == nil {
		entry = cache.NewOrgEntry()
		orgs[orgName] = entry
	}
	entry.Org = orgDoc
	entry.Space = spaceDoc

	for _, space := range entry.SpaceNames() {
		entry.Spaces[space] = r.loadSpace(ctx, project, slug, space)
	}
}

// loadSpace fetches the security-group/config pair for one space. The
// pair is recorded as a unit: if either load fails, both fields stay
// nil.
func (r *Reader) loadSpace(ctx context.Context, project, slug, space string) *cache.SpaceEntry {
	security, err := r.files.Load(ctx, project, slug, space+"/"+securityGroupsFile, true)
	var spaceConfig any
	if err == nil {
		spaceConfig, err = r.files.Load(ctx, project, slug, space+"/"+spaceConfigFile, false)
	}
	if err != nil {
		logger.Warnf("Failed to load space config/security files from %s/%s/%s", project, slug, space)
		return &cache.SpaceEntry{}
	}
	return &cache.SpaceEntry{
		Config:   spaceConfig,
		Security: security,
	}
}

func (r *Reader) recordRefresh(elapsed time.Duration, success bool) {
	if r.metrics != nil {
		r.metrics.RecordRefresh(elapsed, success)
	}
}
