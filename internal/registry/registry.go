// Package registry implements the Registry Client (SPEC_FULL.md §4.3):
// tag discovery and digest/push-time enrichment across Docker Hub, GHCR,
// and generic v2 registries.
package registry

import (
	"context"
	"strings"
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/tagpattern"
)

// Ref is an image reference split into its addressable parts.
type Ref struct {
	Host       string // empty for Docker Hub's implicit default host
	Repository string // e.g. "library/nginx" or "myorg/myapp"
	Tag        string
}

// Profile is the registry-access capability (§9 "Inheritance/duck-typed
// driver": a capability with variants, not subclassing).
type Profile interface {
	// ListTags returns every remote tag for the repository, newest
	// pagination knob applied by the implementation.
	ListTags(ctx context.Context, ref Ref, auth Credential) ([]string, error)
	// Describe returns the digest and push timestamp for one tag.
	Describe(ctx context.Context, ref Ref, tag string, auth Credential) (digest string, pushedAt time.Time, err error)
}

// Client is the top-level Registry Client capability C9/C11 depend on.
type Client struct {
	DockerHub Profile
	GHCR      Profile
	GenericV2 Profile
	Creds     *CredentialStore
	PageSize  int
	PageCrawlLimit int
}

// profileFor selects a Profile by registry host (§4.3).
func (c *Client) profileFor(ref Ref) Profile {
	switch {
	case ref.Host == "" || ref.Host == "docker.io" || ref.Host == "registry.hub.docker.com":
		return c.DockerHub
	case ref.Host == "ghcr.io":
		return c.GHCR
	default:
		return c.GenericV2
	}
}

// FetchCandidates returns the ordered (descending by Version), pattern-
// filtered candidate list for ref, per §4.3's "Ordering guarantee".
func (c *Client) FetchCandidates(ctx context.Context, ref Ref, pattern tagpattern.Pattern) ([]model.Candidate, error) {
	profile := c.profileFor(ref)
	cred := c.Creds.Resolve(ref.Host, ref.Repository)

	tags, err := profile.ListTags(ctx, ref, cred)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, apperrors.New(apperrors.TagListEmpty, "registry returned no tags for "+ref.Repository)
	}

	matched := pattern.Filter(tags)

	candidates := make([]model.Candidate, 0, len(matched))
	for _, tag := range matched {
		v, ok := parseTagVersion(tag)
		if !ok {
			continue
		}
		digest, pushedAt, err := profile.Describe(ctx, ref, tag, cred)
		if err != nil {
			// A single bad manifest fetch should not fail the whole
			// image's discovery; skip the tag.
			continue
		}
		candidates = append(candidates, model.Candidate{
			Tag:      tag,
			Version:  v,
			Digest:   digest,
			PushedAt: pushedAt,
		})
	}

	sortDescending(candidates)
	return candidates, nil
}

// ParseRef splits an image reference into host/repository/tag.
func ParseRef(image, tag string) Ref {
	host := ""
	repo := image
	if idx := strings.Index(image, "/"); idx != -1 {
		maybeHost := image[:idx]
		if strings.ContainsAny(maybeHost, ".:") || maybeHost == "localhost" {
			host = maybeHost
			repo = image[idx+1:]
		}
	}
	if host == "" && !strings.Contains(repo, "/") {
		repo = "library/" + repo
	}
	return Ref{Host: host, Repository: repo, Tag: tag}
}
