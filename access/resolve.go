package access

// VisibilityRequest is the caller-controlled part of visibility resolution.
type VisibilityRequest struct {
	// Explicit replaces resolution entirely when non-empty.
	Explicit        []string
	PublicOverride  bool
	PrivateOverride bool
}

// ResolveVisibility returns the visibility tiers the caller may read.
// The result is never empty: a caller with no permitted tier gets [None].
func ResolveVisibility(c Context, req VisibilityRequest) []Visibility {
	set := map[Visibility]bool{}

	switch {
	case len(req.Explicit) > 0:
		out := make([]Visibility, 0, len(req.Explicit))
		for _, v := range req.Explicit {
			if v == "" || set[Visibility(v)] {
				continue
			}
			set[Visibility(v)] = true
			out = append(out, Visibility(v))
		}
		if len(out) > 0 {
			return out
		}

	case c.Authenticated:
		if c.Can(ViewPublic) || !c.Policy.LoginRequired {
			set[Public] = true
		}
		if c.Can(ViewPrivate) {
			set[Private] = true
		}
		if c.Can(ViewUnlisted) && c.Surface != SurfacePublic {
			set[Unlisted] = true
		}

	default:
		if !c.Policy.LoginRequired {
			set[Public] = true
		}
		if c.Policy.AllowPublicOverride && req.PublicOverride {
			set[Public] = true
		}
		if c.Policy.AllowPrivateOverride && req.PrivateOverride {
			set[Public] = true
			set[Private] = true
		}
	}

	var out []Visibility
	for _, v := range []Visibility{Public, Private, Unlisted} {
		if set[v] {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []Visibility{None}
	}
	return out
}

// ResolveStatus returns requested ∩ permitted ∩ {approved, pending}.
// Anonymous callers always get [approved]. The result may be empty, in which
// case the status predicate must match no rows.
func ResolveStatus(c Context, requested []string) []Status {
	if !c.Authenticated {
		return []Status{Approved}
	}

	want := map[Status]bool{}
	for _, r := range requested {
		if r == StatusAll {
			for _, s := range Statuses {
				want[s] = true
			}
			continue
		}
		want[Status(r)] = true
	}

	permitted := map[Status]bool{Approved: true}
	if c.CanEdit() {
		permitted[Pending] = true
	}

	out := []Status{}
	for _, s := range Statuses {
		if want[s] && permitted[s] {
			out = append(out, s)
		}
	}
	return out
}

// Strings converts visibility tiers into bind values.
func Strings[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
