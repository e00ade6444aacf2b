package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// PackageManifest is the subset of package.json the UpdateChecker reads.
type PackageManifest struct {
	Version    string `json:"version"`
	Repository struct {
		URL string `json:"url"`
	} `json:"repository"`
}

// UpdateResult is UpdateChecker.Check's return value.
type UpdateResult struct {
	ModuleName     string
	CurrentVersion string
	LatestVersion  string
	HasUpdate      bool
	RepositoryURL  string
}

// ReleaseSource queries a hosting API for a module's latest release/tag. The
// concrete client (GitHub, GitLab, ...) is out of scope per spec.md §1; only
// this seam is specified.
type ReleaseSource interface {
	LatestTag(ctx context.Context, ownerRepo string) (string, error)
}

// UpdateChecker compares a module directory's local package.json version
// against a remote release tag.
type UpdateChecker struct {
	source ReleaseSource
}

// NewUpdateChecker constructs a checker using source to resolve remote tags.
func NewUpdateChecker(source ReleaseSource) *UpdateChecker {
	return &UpdateChecker{source: source}
}

var repoURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://[^/]+/([^/]+)/([^/]+?)(\.git)?$`),
	regexp.MustCompile(`^git\+https://[^/]+/([^/]+)/([^/]+?)(\.git)?$`),
	regexp.MustCompile(`^git@[^:]+:([^/]+)/([^/]+?)(\.git)?$`),
}

// normalizeRepoURL extracts "owner/repo" from the three accepted URL shapes.
func normalizeRepoURL(url string) (string, bool) {
	url = strings.TrimSpace(url)
	for _, re := range repoURLPatterns {
		m := re.FindStringSubmatch(url)
		if m != nil {
			return fmt.Sprintf("%s/%s", m[1], m[2]), true
		}
	}
	return "", false
}

// Check reads moduleDir/package.json; if absent, returns (nil, nil) — skip,
// not an error.
func (uc *UpdateChecker) Check(ctx context.Context, moduleName, moduleDir string) (*UpdateResult, error) {
	data, err := os.ReadFile(filepath.Join(moduleDir, "package.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &ConfigurationError{ModuleName: moduleName, Err: err}
	}
	var manifest PackageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, &ConfigurationError{ModuleName: moduleName, Err: err}
	}

	result := &UpdateResult{ModuleName: moduleName, CurrentVersion: manifest.Version}

	ownerRepo, ok := normalizeRepoURL(manifest.Repository.URL)
	if !ok || uc.source == nil {
		return result, nil
	}
	result.RepositoryURL = manifest.Repository.URL

	tag, err := uc.source.LatestTag(ctx, ownerRepo)
	if err != nil || tag == "" {
		return result, nil
	}
	latest := strings.TrimPrefix(tag, "v")
	result.LatestVersion = latest
	result.HasUpdate = CompareVersions(latest, manifest.Version) > 0
	return result, nil
}
