// Package access turns a caller's identity and capabilities into the
// row-level visibility and status sets every directory query is filtered by.
package access

// Visibility is a row-level access tier.
type Visibility string

const (
	Public   Visibility = "public"
	Private  Visibility = "private"
	Unlisted Visibility = "unlisted"
	// None matches no row. It stands in for an empty permission set.
	None Visibility = "none"
)

// Status is an entry's moderation state.
type Status string

const (
	Approved Status = "approved"
	Pending  Status = "pending"
	// StatusAll is a request keyword expanding to every status.
	StatusAll = "all"
)

// Statuses is the closed status domain, in predicate order.
var Statuses = []Status{Approved, Pending}

// Capability is a permission a role can grant.
type Capability string

const (
	ViewPublic         Capability = "view_public"
	ViewPrivate        Capability = "view_private"
	ViewUnlisted       Capability = "view_unlisted"
	EditEntry          Capability = "edit_entry"
	EditEntryModerated Capability = "edit_entry_moderated"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{ViewPublic, ViewPrivate, ViewUnlisted, EditEntry, EditEntryModerated}

// Surface is where a call originates.
type Surface int

const (
	SurfacePublic Surface = iota
	SurfaceAdmin
	SurfaceAPI
)

func (s Surface) String() string {
	switch s {
	case SurfaceAdmin:
		return "admin"
	case SurfaceAPI:
		return "api"
	default:
		return "public"
	}
}

// Policy holds the directory-wide access toggles.
type Policy struct {
	LoginRequired        bool
	AllowPublicOverride  bool
	AllowPrivateOverride bool
}

// Context describes the caller of one operation.
type Context struct {
	UserID        string
	Authenticated bool
	Capabilities  map[Capability]bool
	Surface       Surface
	Policy        Policy
	// RemoteAddr is the caller's network address, used to seed random ordering.
	RemoteAddr string
}

// Anonymous returns an unauthenticated public-surface caller.
func Anonymous(policy Policy) Context {
	return Context{Surface: SurfacePublic, Policy: policy}
}

// Can reports whether the caller holds capability c.
func (c Context) Can(capability Capability) bool {
	return c.Capabilities[capability]
}

// CanEdit reports whether the caller may see entries awaiting moderation.
func (c Context) CanEdit() bool {
	return c.Can(EditEntry) || c.Can(EditEntryModerated)
}
