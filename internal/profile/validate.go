package profile

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"howett.net/plist"

	"github.com/alexisbeaulieu97/profilestate/internal/state"
	"github.com/alexisbeaulieu97/profilestate/pkg/diff"
)

// Keys that the host rewrites or drops, so they never count as drift.
var volatileKeys = map[string]struct{}{
	"PayloadUUID":    {},
	"PayloadVersion": {},
}

// profileView holds the parts of a profile that are compared and recorded
// as the old/new payload: top-level attributes plus normalised items.
type profileView struct {
	DisplayName       string           `plist:"PayloadDisplayName"`
	Description       string           `plist:"PayloadDescription,omitempty"`
	Organization      string           `plist:"PayloadOrganization,omitempty"`
	RemovalDisallowed bool             `plist:"PayloadRemovalDisallowed"`
	Scope             string           `plist:"PayloadScope"`
	Content           []map[string]any `plist:"PayloadContent"`
}

func (v profileView) sameAttributes(other profileView) bool {
	return v.DisplayName == other.DisplayName &&
		v.Description == other.Description &&
		v.Organization == other.Organization &&
		v.RemovalDisallowed == other.RemovalDisallowed &&
		v.Scope == other.Scope
}

// Validate compares the installed profile with freshly generated content.
// The display name, description, organization, removal policy and scope must
// match, and every desired payload item must be matched by a distinct
// installed item that shares its PayloadIdentifier and carries every
// non-volatile desired key with an equal value.
func (c *Capabilities) Validate(ctx context.Context, id string, content []byte) (state.ValidationResult, error) {
	desired, err := decodeGenerated(content)
	if err != nil {
		return state.ValidationResult{}, err
	}
	newPayload, err := encodePayload(desired)
	if err != nil {
		return state.ValidationResult{}, err
	}

	installed, err := c.listInstalled(ctx)
	if err != nil {
		return state.ValidationResult{}, err
	}

	result := state.ValidationResult{NewPayload: newPayload}
	current, ok := installed.find(id)
	if !ok {
		c.log.WithFields(map[string]any{"id": id}).Debug("profile not installed")
		return result, nil
	}

	have := fromInstalled(current, desired.Scope)
	oldPayload, err := encodePayload(have)
	if err != nil {
		return state.ValidationResult{}, err
	}
	result.OldPayload = oldPayload
	result.Installed = have.sameAttributes(desired) && itemsMatch(have.Content, desired.Content)

	if !result.Installed {
		c.log.WithFields(map[string]any{
			"id":    id,
			"owner": current.Owner,
			"diff":  diff.Payloads(oldPayload, newPayload, "installed/"+id, "desired/"+id),
		}).Debug("installed profile differs from desired content")
	}
	return result, nil
}

func decodeGenerated(content []byte) (profileView, error) {
	var doc profileView
	if _, err := plist.Unmarshal(content, &doc); err != nil {
		return profileView{}, fmt.Errorf("decode generated content: %w", err)
	}
	doc.Content = normalizeItems(doc.Content)
	return doc, nil
}

// fromInstalled maps a listing entry onto the generated document's keys.
// Listings that do not report a scope are taken to match desiredScope.
func fromInstalled(p installedProfile, desiredScope string) profileView {
	scope := p.Scope
	if scope == "" {
		scope = desiredScope
	}
	return profileView{
		DisplayName:       p.DisplayName,
		Description:       p.Description,
		Organization:      p.Organization,
		RemovalDisallowed: truthy(p.RemovalDisallowed),
		Scope:             scope,
		Content:           normalizeItems(p.Items),
	}
}

func truthy(v any) bool {
	switch typed := v.(type) {
	case bool:
		return typed
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "yes", "1":
			return true
		}
	case uint64:
		return typed != 0
	case int64:
		return typed != 0
	}
	return false
}

func normalizeItems(items []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		clean := make(map[string]any, len(item))
		for k, v := range item {
			if _, skip := volatileKeys[k]; skip {
				continue
			}
			clean[k] = v
		}
		out = append(out, clean)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return itemID(out[i]) < itemID(out[j])
	})
	return out
}

func itemID(item map[string]any) string {
	id, _ := item["PayloadIdentifier"].(string)
	return id
}

// itemsMatch pairs every desired item with a distinct installed item, so
// items sharing an identifier cannot all be satisfied by one installed item.
func itemsMatch(installed, desired []map[string]any) bool {
	if len(installed) != len(desired) {
		return false
	}
	used := make([]bool, len(installed))
	for _, want := range desired {
		matched := false
		for i, have := range installed {
			if used[i] || itemID(have) != itemID(want) || !containsAll(have, want) {
				continue
			}
			used[i] = true
			matched = true
			break
		}
		if !matched {
			return false
		}
	}
	return true
}

func containsAll(have, want map[string]any) bool {
	for k, v := range want {
		if !reflect.DeepEqual(have[k], v) {
			return false
		}
	}
	return true
}

func encodePayload(p profileView) ([]byte, error) {
	if p.Content == nil {
		p.Content = []map[string]any{}
	}
	out, err := plist.MarshalIndent(p, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}
