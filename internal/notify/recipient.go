package notify

import "context"

// Recipient is an addressable notification target. Attrs carries the
// channel addresses known for it (email, phone, platform user ids...).
type Recipient struct {
	ID    string            `json:"id"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Attr returns the named attribute. "id" always resolves to the recipient id.
func (r Recipient) Attr(name string) (string, error) {
	if name == "id" {
		return r.ID, nil
	}
	v, ok := r.Attrs[name]
	if !ok {
		return "", &AttributeError{RecipientID: r.ID, Name: name}
	}
	return v, nil
}

// Field extracts a channel address from a recipient.
type Field interface {
	Resolve(r Recipient) (string, error)
}

// FieldName reads the attribute with this name.
type FieldName string

func (f FieldName) Resolve(r Recipient) (string, error) {
	return r.Attr(string(f))
}

// FieldFunc computes the address with a function.
type FieldFunc func(r Recipient) (string, error)

func (f FieldFunc) Resolve(r Recipient) (string, error) {
	return f(r)
}

// Resolve extracts the address of r using field. Lookup failures are
// returned unchanged.
func Resolve(r Recipient, field Field) (string, error) {
	if field == nil {
		return "", &ValidationError{Reason: "recipient field is required for this backend"}
	}
	return field.Resolve(r)
}

// AddressResolver is the per-backend strategy for turning a recipient into
// a transport address. Backends that need more than a plain field lookup
// inject their own implementation.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, r Recipient, field Field) (string, error)
}

// FieldResolver is the default AddressResolver.
type FieldResolver struct{}

func (FieldResolver) ResolveAddress(_ context.Context, r Recipient, field Field) (string, error) {
	return Resolve(r, field)
}
