// Package registry looks up newer versions of base images in container
// registries.
//
// Lookups are advisory: every failure degrades to "no suggestion" so that
// linting never depends on network access.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const (
	dockerHub     = "docker.io"
	dockerHubHost = "registry-1.docker.io"
)

// TagLister lists the tags of a repository.
type TagLister interface {
	ListTags(ctx context.Context, repository string) ([]string, error)
}

// Lookup reports the tags of image that are newer patch releases of tag,
// best first.
type Lookup interface {
	Lookup(ctx context.Context, image, tag string) ([]string, error)
}

// RemoteTagLister lists tags over the OCI distribution API.
type RemoteTagLister struct {
	client *auth.Client
	// PlainHTTP talks to registries without TLS, for local registries.
	PlainHTTP bool
}

func NewRemoteTagLister() *RemoteTagLister {
	return &RemoteTagLister{
		client: &auth.Client{
			Client: retry.DefaultClient,
			Cache:  auth.NewCache(),
		},
	}
}

func (l *RemoteTagLister) ListTags(ctx context.Context, repository string) ([]string, error) {
	repo, err := remote.NewRepository(repository)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}
	repo.Client = l.client
	repo.PlainHTTP = l.PlainHTTP

	var tags []string
	err = repo.Tags(ctx, "", func(page []string) error {
		tags = append(tags, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags of %s: %w", repository, err)
	}
	return tags, nil
}

// Repository expands a Dockerfile image name into a fully qualified
// repository path, resolving Docker Hub short names.
func Repository(image string) string {
	host, path, found := strings.Cut(image, "/")
	if !found || !isRegistryHost(host) {
		host, path = dockerHub, image
	}
	if host == dockerHub {
		host = dockerHubHost
		if !strings.Contains(path, "/") {
			path = "library/" + path
		}
	}
	return host + "/" + strings.ToLower(path)
}

func isRegistryHost(s string) bool {
	return s == "localhost" || strings.ContainsAny(s, ".:")
}

// Client finds newer patch tags through a TagLister.
type Client struct {
	lister TagLister
}

func NewClient(lister TagLister) *Client {
	return &Client{lister: lister}
}

func (c *Client) Lookup(ctx context.Context, image, tag string) ([]string, error) {
	if _, ok := parsePatchTag(tag); !ok {
		return nil, nil
	}
	tags, err := c.lister.ListTags(ctx, Repository(image))
	if err != nil {
		return nil, err
	}
	return NewerPatches(tag, tags), nil
}

// parsePatchTag parses a tag naming a full major.minor.patch release, with
// an optional variant suffix such as "-slim".
func parsePatchTag(tag string) (*semver.Version, bool) {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return nil, false
	}
	return v, true
}

// NewerPatches selects the tags that share the major and minor version and
// the variant suffix of current but carry a higher patch number. The result
// is ordered from newest to oldest.
func NewerPatches(current string, tags []string) []string {
	cur, ok := parsePatchTag(current)
	if !ok {
		return nil
	}

	type candidate struct {
		tag     string
		version *semver.Version
	}
	var newer []candidate
	for _, tag := range tags {
		if strings.HasPrefix(tag, "v") != strings.HasPrefix(current, "v") {
			continue
		}
		v, ok := parsePatchTag(tag)
		if !ok {
			continue
		}
		if v.Major() != cur.Major() || v.Minor() != cur.Minor() ||
			v.Prerelease() != cur.Prerelease() || v.Patch() <= cur.Patch() {
			continue
		}
		newer = append(newer, candidate{tag, v})
	}

	sort.SliceStable(newer, func(i, j int) bool {
		return newer[i].version.GreaterThan(newer[j].version)
	})

	result := make([]string, len(newer))
	for i, c := range newer {
		result[i] = c.tag
	}
	return result
}
