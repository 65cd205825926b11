package profile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"howett.net/plist"
)

// computerLevel is the key profiles(1) uses for device-wide profiles; other
// keys are user short names.
const computerLevel = "_computerlevel"

type installedProfile struct {
	Identifier   string `plist:"ProfileIdentifier"`
	DisplayName  string `plist:"ProfileDisplayName"`
	Description  string `plist:"ProfileDescription"`
	Organization string `plist:"ProfileOrganization"`
	// RemovalDisallowed is a boolean on recent releases and a "TRUE"/"FALSE"
	// string on older ones.
	RemovalDisallowed any              `plist:"ProfileRemovalDisallowed"`
	Scope             string           `plist:"ProfileScope"`
	UUID              string           `plist:"ProfileUUID"`
	Items             []map[string]any `plist:"ProfileItems"`
	// Owner is the listing key the profile was found under.
	Owner string `plist:"-"`
}

type installedSet map[string][]installedProfile

func (s installedSet) find(id string) (installedProfile, bool) {
	owners := make([]string, 0, len(s))
	for owner := range s {
		owners = append(owners, owner)
	}
	// Device-level profiles win over user-level ones with the same identifier.
	sort.Slice(owners, func(i, j int) bool {
		if owners[i] == computerLevel || owners[j] == computerLevel {
			return owners[i] == computerLevel
		}
		return owners[i] < owners[j]
	})
	for _, owner := range owners {
		for _, p := range s[owner] {
			if p.Identifier == id {
				p.Owner = owner
				return p, true
			}
		}
	}
	return installedProfile{}, false
}

func (c *Capabilities) listInstalled(ctx context.Context) (installedSet, error) {
	res, err := c.runner.Run(ctx, c.binary, "-P", "-o", "stdout-xml")
	if err != nil {
		if out := strings.TrimSpace(res.Stderr); out != "" {
			return nil, fmt.Errorf("list installed profiles: %w: %s", err, out)
		}
		return nil, fmt.Errorf("list installed profiles: %w", err)
	}
	return parseInstalled([]byte(res.Stdout))
}

func parseInstalled(data []byte) (installedSet, error) {
	set := installedSet{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return set, nil
	}
	if _, err := plist.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode installed profiles: %w", err)
	}
	return set, nil
}
