package store

import (
	"context"
	"fmt"
	"log"

	"homebase/api/internal/remote"
)

const (
	// PropertyTableCurrent is the table new deployments write listings to.
	PropertyTableCurrent = "listings"
	// PropertyTableLegacy is the table older deployments still use.
	PropertyTableLegacy = "properties"
)

// ResolvePropertyTable decides once per session which of the two remote
// property tables is authoritative, and returns its rows. Priority order:
//
//  1. current table has rows            -> current
//  2. legacy table has rows             -> legacy
//  3. current table exists but is empty -> current, empty collection
//  4. current table missing, legacy ok  -> legacy, possibly empty
//
// Anything else is a load error; the property collection stays empty and the
// rest of the session proceeds.
func ResolvePropertyTable(ctx context.Context, client remote.Client) (string, []remote.Row, error) {
	currentRows, currentErr := client.Select(ctx, PropertyTableCurrent)
	if currentErr == nil && len(currentRows) > 0 {
		return PropertyTableCurrent, currentRows, nil
	}

	legacyRows, legacyErr := client.Select(ctx, PropertyTableLegacy)
	if legacyErr == nil && len(legacyRows) > 0 {
		log.Printf("store: property data found in legacy %q table", PropertyTableLegacy)
		return PropertyTableLegacy, legacyRows, nil
	}

	if currentErr == nil {
		return PropertyTableCurrent, []remote.Row{}, nil
	}
	if remote.IsMissingRelation(currentErr) && legacyErr == nil {
		log.Printf("store: %q table missing, using legacy %q table", PropertyTableCurrent, PropertyTableLegacy)
		return PropertyTableLegacy, []remote.Row{}, nil
	}
	return "", nil, fmt.Errorf("resolve property table: %w", currentErr)
}
