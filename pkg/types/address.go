package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

const defaultCountry = "US"

// Address is the shipping/billing address captured at checkout. It is stored
// as a JSON document on the order row.
type Address struct {
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
	AddressLine1 string `json:"addressLine1" validate:"required"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required"`
	ZipCode      string `json:"zipCode" validate:"required"`
	Country      string `json:"country,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// Normalize trims every field and defaults the country.
func (a Address) Normalize() Address {
	out := Address{
		FirstName:    strings.TrimSpace(a.FirstName),
		LastName:     strings.TrimSpace(a.LastName),
		AddressLine1: strings.TrimSpace(a.AddressLine1),
		AddressLine2: strings.TrimSpace(a.AddressLine2),
		City:         strings.TrimSpace(a.City),
		State:        strings.ToUpper(strings.TrimSpace(a.State)),
		ZipCode:      strings.TrimSpace(a.ZipCode),
		Country:      strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:        strings.TrimSpace(a.Phone),
	}
	if out.Country == "" {
		out.Country = defaultCountry
	}
	return out
}

// MissingFields lists required fields that are blank.
func (a Address) MissingFields() []string {
	missing := []string{}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"addressLine1", a.AddressLine1},
		{"city", a.City},
		{"state", a.State},
		{"zipCode", a.ZipCode},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// Value marshals the address into JSON for storage.
func (a Address) Value() (driver.Value, error) {
	if missing := a.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("address: missing %s", strings.Join(missing, ", "))
	}
	raw, err := json.Marshal(a.Normalize())
	if err != nil {
		return nil, fmt.Errorf("address: marshal %w", err)
	}
	return string(raw), nil
}

// Scan decodes the stored JSON document.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}

	var decoded Address
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("address: decode %w", err)
	}
	*a = decoded
	return nil
}
