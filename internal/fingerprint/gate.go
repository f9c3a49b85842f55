package fingerprint

import "github.com/alphabot-ai/threadcache/internal/identity"

// GateInput describes one request for a cacheable tree.
type GateInput struct {
	Style Style
	Item  Printable
	// Narrowed is set for permalink and context views of a single thread.
	Narrowed bool
	// CanModerate is set when the viewer can ban in the item's community.
	CanModerate     bool
	MinCommentScore int
}

// Decision is the gate's verdict. Reason explains a refusal for logs.
type Decision struct {
	Cacheable bool
	Reason    string
}

// Gate decides whether a request may be served from the shared cache. A
// refused request is rendered directly for the real viewer.
func Gate(in GateInput) Decision {
	switch {
	case in.Style != StyleHTML:
		return Decision{Reason: "non-default style " + string(in.Style)}
	case in.Item != nil && !in.Item.CacheableStyle(in.Style):
		return Decision{Reason: "style not cacheable for item"}
	case in.Narrowed:
		return Decision{Reason: "narrowed to one thread"}
	case in.CanModerate:
		return Decision{Reason: "viewer moderates community"}
	case in.MinCommentScore != identity.DefaultMinCommentScore:
		return Decision{Reason: "custom comment score threshold"}
	}
	return Decision{Cacheable: true}
}
