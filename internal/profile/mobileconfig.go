package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"howett.net/plist"

	"github.com/alexisbeaulieu97/profilestate/internal/state"
)

// Generate renders the desired state as an XML .mobileconfig document.
// Output is deterministic for a given identifier and desired state: UUIDs
// are derived from identifiers rather than generated randomly.
func (c *Capabilities) Generate(_ context.Context, id string, desired state.DesiredState) ([]byte, error) {
	doc := make(map[string]any, len(desired.Options)+10)
	for k, v := range desired.Options {
		doc[k] = v
	}

	displayName := desired.DisplayName
	if displayName == "" {
		displayName = id
	}
	scope := desired.Scope
	if scope == "" {
		scope = DefaultScope
	}

	items := make([]any, 0, len(desired.Content))
	for i, item := range desired.Content {
		items = append(items, payloadItem(id, i, item))
	}

	doc["PayloadType"] = "Configuration"
	doc["PayloadVersion"] = 1
	doc["PayloadIdentifier"] = id
	doc["PayloadUUID"] = payloadUUID(id)
	doc["PayloadDisplayName"] = displayName
	doc["PayloadRemovalDisallowed"] = desired.RemovalDisallowed
	doc["PayloadScope"] = scope
	doc["PayloadContent"] = items
	if desired.Description != "" {
		doc["PayloadDescription"] = desired.Description
	}
	if desired.Organization != "" {
		doc["PayloadOrganization"] = desired.Organization
	}

	out, err := plist.MarshalIndent(doc, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encode mobileconfig for %s: %w", id, err)
	}
	return out, nil
}

func payloadItem(id string, index int, item map[string]any) map[string]any {
	out := make(map[string]any, len(item)+3)
	for k, v := range item {
		out[k] = v
	}
	itemID, _ := out["PayloadIdentifier"].(string)
	if itemID == "" {
		itemID = fmt.Sprintf("%s.%d", id, index)
		out["PayloadIdentifier"] = itemID
	}
	if _, ok := out["PayloadUUID"]; !ok {
		out["PayloadUUID"] = payloadUUID(itemID)
	}
	if _, ok := out["PayloadVersion"]; !ok {
		out["PayloadVersion"] = 1
	}
	return out
}

func payloadUUID(identifier string) string {
	return strings.ToUpper(uuid.NewSHA1(uuid.NameSpaceDNS, []byte(identifier)).String())
}
