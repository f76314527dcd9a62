package registry

import (
	"context"
	"fmt"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
)

// GenericV2Profile implements Profile against any standards-compliant
// OCI-distribution v2 registry (self-hosted Harbor/Nexus/etc.), sharing
// GHCRProfile's manifest-walking logic but without GHCR's implicit host.
type GenericV2Profile struct{}

func (g *GenericV2Profile) newRepository(ref Ref, cred Credential) (*remote.Repository, error) {
	if ref.Host == "" {
		return nil, apperrors.New(apperrors.ConfigInvalid, "generic v2 registry requires an explicit host")
	}
	repo, err := remote.NewRepository(fmt.Sprintf("%s/%s", ref.Host, ref.Repository))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ProtocolError, err, "constructing oras repository for "+ref.Repository)
	}

	client := &auth.Client{Client: retry.DefaultClient, Cache: auth.NewCache()}
	if !cred.empty() {
		client.Credential = auth.StaticCredential(ref.Host, auth.Credential{
			Username: cred.Username,
			Password: cred.Password,
		})
	}
	repo.Client = client
	return repo, nil
}

func (g *GenericV2Profile) ListTags(ctx context.Context, ref Ref, cred Credential) ([]string, error) {
	repo, err := g.newRepository(ref, cred)
	if err != nil {
		return nil, err
	}

	var tags []string
	err = WithRetry(ctx, func() error {
		tags = nil
		return repo.Tags(ctx, "", func(page []string) error {
			tags = append(tags, page...)
			return nil
		})
	})
	if err != nil {
		return nil, classifyOrasErr(err, "listing tags for "+ref.Repository)
	}
	return tags, nil
}

func (g *GenericV2Profile) Describe(ctx context.Context, ref Ref, tag string, cred Credential) (string, time.Time, error) {
	repo, err := g.newRepository(ref, cred)
	if err != nil {
		return "", time.Time{}, err
	}

	var desc ocispec.Descriptor
	err = WithRetry(ctx, func() error {
		var resolveErr error
		desc, resolveErr = repo.Resolve(ctx, tag)
		return resolveErr
	})
	if err != nil {
		return "", time.Time{}, classifyOrasErr(err, "resolving "+ref.Repository+":"+tag)
	}

	ghcr := &GHCRProfile{}
	pushedAt, err := ghcr.fetchCreatedTime(ctx, repo, desc)
	if err != nil {
		return desc.Digest.String(), time.Time{}, nil
	}
	return desc.Digest.String(), pushedAt, nil
}
