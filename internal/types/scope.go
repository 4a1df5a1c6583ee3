package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions for JSONB storage support.
var (
	_ sql.Scanner   = (*RuleScope)(nil)
	_ driver.Valuer = RuleScope{}
	_ sql.Scanner   = (*RuleTemplate)(nil)
	_ driver.Valuer = RuleTemplate{}
	_ sql.Scanner   = (*DeliveryOverrides)(nil)
	_ driver.Valuer = DeliveryOverrides{}
	_ json.Marshaler   = EntitySelection{}
	_ json.Unmarshaler = (*EntitySelection)(nil)
)

// EntityRef identifies a target entity a rule can be scoped to — a product
// ID, or a product-variation pair in the "42-1" form.
type EntityRef string

// EntitySelection is a rule's inclusion list: either the special "all"
// selection, or a concrete set of entity references. The zero value selects
// nothing.
type EntitySelection struct {
	All  bool
	Refs []EntityRef
}

// SelectAll returns the selection matching every entity.
func SelectAll() EntitySelection {
	return EntitySelection{All: true}
}

// SelectRefs returns a selection of the given concrete entity references.
func SelectRefs(refs ...EntityRef) EntitySelection {
	return EntitySelection{Refs: refs}
}

// Contains reports whether the selection includes ref.
func (s EntitySelection) Contains(ref EntityRef) bool {
	if s.All {
		return true
	}
	for _, r := range s.Refs {
		if r == ref {
			return true
		}
	}
	return false
}

// Empty reports whether the selection selects nothing at all.
func (s EntitySelection) Empty() bool {
	return !s.All && len(s.Refs) == 0
}

// MarshalJSON encodes the selection as the string "all" or a JSON array of
// refs, matching the stored rule configuration format.
func (s EntitySelection) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal("all")
	}
	if s.Refs == nil {
		return json.Marshal([]EntityRef{})
	}
	return json.Marshal(s.Refs)
}

// UnmarshalJSON accepts "all", a JSON array of refs, or null (selects
// nothing).
func (s *EntitySelection) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*s = EntitySelection{}
		return nil
	case string:
		if v == "all" {
			*s = EntitySelection{All: true}
			return nil
		}
		return fmt.Errorf("entity selection: unknown keyword %q", v)
	case []any:
		refs := make([]EntityRef, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("entity selection: non-string ref %v", item)
			}
			refs = append(refs, EntityRef(str))
		}
		*s = EntitySelection{Refs: refs}
		return nil
	default:
		return fmt.Errorf("entity selection: unsupported JSON type %T", raw)
	}
}

// DiscountScopeAll is the discount-code scope value matching every code.
const DiscountScopeAll = "all"

// RuleScope holds a rule's entity and discount-code scoping fields.
//
// Exclude only has effect when Include is "all" or a concrete set: an empty
// Include already matches nothing, so excluding from it is a no-op. Empty
// sets are represented explicitly — there are no sentinel values.
type RuleScope struct {
	Include EntitySelection `json:"include"`
	Exclude []EntityRef     `json:"exclude,omitempty"`

	// DiscountCode scopes the rule to one discount code, DiscountScopeAll,
	// or "" when the trigger carries no discount dimension.
	DiscountCode string `json:"discount_code,omitempty"`
}

// MatchesEntity reports whether an event referencing ref falls inside the
// scope: included (directly or via "all") and not excluded.
func (s RuleScope) MatchesEntity(ref EntityRef) bool {
	if !s.Include.Contains(ref) {
		return false
	}
	for _, ex := range s.Exclude {
		if ex == ref {
			return false
		}
	}
	return true
}

// MatchesDiscountCode reports whether the scope admits the given code.
func (s RuleScope) MatchesDiscountCode(code string) bool {
	if s.DiscountCode == "" || s.DiscountCode == DiscountScopeAll {
		return true
	}
	return s.DiscountCode == code
}

// scanJSONB scans a JSONB database value into a Go pointer, handling nil,
// []byte, and string representations from different drivers.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Scan implements sql.Scanner for reading JSONB scope columns.
func (s *RuleScope) Scan(value any) error {
	return scanJSONB(s, value)
}

// Value implements driver.Valuer for writing JSONB scope columns.
func (s RuleScope) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for reading JSONB template columns.
func (t *RuleTemplate) Scan(value any) error {
	return scanJSONB(t, value)
}

// Value implements driver.Valuer for writing JSONB template columns.
func (t RuleTemplate) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// Scan implements sql.Scanner for reading JSONB delivery-override columns.
func (d *DeliveryOverrides) Scan(value any) error {
	return scanJSONB(d, value)
}

// Value implements driver.Valuer for writing JSONB delivery-override columns.
func (d DeliveryOverrides) Value() (driver.Value, error) {
	return json.Marshal(d)
}
