package appointment

// TenantID identifies the clinic that owns a piece of data. Every entity,
// repository query and conflict check carries exactly one. The value is
// opaque; the engine never interprets it.
type TenantID struct {
	value string
}

// NewTenantID rejects empty identifiers.
func NewTenantID(value string) (TenantID, error) {
	if value == "" {
		return TenantID{}, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	return TenantID{value: value}, nil
}

func (t TenantID) String() string { return t.value }

func (t TenantID) IsZero() bool { return t.value == "" }
