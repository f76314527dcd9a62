package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ocelot-cloud/captn-updater/internal/apperrors"
)

// DockerHubProfile implements Profile against Docker Hub's bespoke
// paginated JSON tag-listing API, grounded directly on the teacher's own
// DockerHubClientImpl (command.go).
type DockerHubProfile struct {
	HTTPClient *http.Client
	PageSize   int
	PageCrawlLimit int
}

type dockerHubTagsResponse struct {
	Next    string `json:"next"`
	Results []struct {
		Name        string    `json:"name"`
		TagLastPushed time.Time `json:"tag_last_pushed"`
		Digest      string    `json:"digest"`
		Images      []struct {
			Digest string `json:"digest"`
		} `json:"images"`
	} `json:"results"`
}

func (d *DockerHubProfile) ListTags(ctx context.Context, ref Ref, cred Credential) ([]string, error) {
	pageSize := d.PageSize
	if pageSize == 0 {
		pageSize = 100
	}
	crawlLimit := d.PageCrawlLimit
	if crawlLimit == 0 {
		crawlLimit = 10
	}

	url := fmt.Sprintf("https://registry.hub.docker.com/v2/repositories/%s/tags?page_size=%d", ref.Repository, pageSize)
	var tags []string

	for page := 0; page < crawlLimit && url != ""; page++ {
		var body dockerHubTagsResponse
		if err := d.getJSON(ctx, url, cred, &body); err != nil {
			return tags, err
		}
		if len(body.Results) == 0 {
			break
		}
		for _, r := range body.Results {
			tags = append(tags, r.Name)
		}
		url = body.Next
	}
	return tags, nil
}

func (d *DockerHubProfile) Describe(ctx context.Context, ref Ref, tag string, cred Credential) (string, time.Time, error) {
	url := fmt.Sprintf("https://registry.hub.docker.com/v2/repositories/%s/tags/%s", ref.Repository, tag)
	var body struct {
		TagLastPushed time.Time `json:"tag_last_pushed"`
		Digest        string    `json:"digest"`
		Images        []struct {
			Digest string `json:"digest"`
		} `json:"images"`
	}
	if err := d.getJSON(ctx, url, cred, &body); err != nil {
		return "", time.Time{}, err
	}
	digest := body.Digest
	if digest == "" && len(body.Images) > 0 {
		digest = body.Images[0].Digest
	}
	return digest, body.TagLastPushed, nil
}

func (d *DockerHubProfile) getJSON(ctx context.Context, url string, cred Credential, out any) error {
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return apperrors.Wrap(apperrors.ProtocolError, err, "building request")
		}
		if header, ok := AuthHeader("registry.hub.docker.com", cred); ok {
			req.Header.Set("Authorization", header)
		}

		resp, err := client.Do(req)
		if err != nil {
			return apperrors.Wrap(apperrors.RegistryUnreachable, err, "requesting "+url)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return apperrors.New(apperrors.AuthFailed, "docker hub auth failed for "+url)
		case resp.StatusCode == http.StatusTooManyRequests:
			return apperrors.New(apperrors.RateLimited, "docker hub rate-limited "+url)
		case retryableStatus(resp.StatusCode):
			return apperrors.New(apperrors.RegistryUnreachable, fmt.Sprintf("docker hub returned %d for %s", resp.StatusCode, url))
		case resp.StatusCode != http.StatusOK:
			return apperrors.New(apperrors.ProtocolError, fmt.Sprintf("docker hub returned %d for %s", resp.StatusCode, url))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Wrap(apperrors.ProtocolError, err, "decoding response from "+url)
		}
		return nil
	})
}
