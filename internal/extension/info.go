package extension

import "strconv"

// ResolveID identifies one field resolution within a request. Current is
// unique per request and starts at 1; Parent is the Current of the enclosing
// field, or 0 for fields selected directly on the operation's root type.
type ResolveID struct {
	Current uint64
	Parent  uint64
}

// HasParent reports whether the field is nested under another field.
func (id ResolveID) HasParent() bool { return id.Parent != 0 }

func (id ResolveID) String() string {
	if id.Parent == 0 {
		return strconv.FormatUint(id.Current, 10)
	}
	return strconv.FormatUint(id.Parent, 10) + "/" + strconv.FormatUint(id.Current, 10)
}

// ResolveInfo describes a field resolution. It is immutable once handed to
// hooks and shared between ResolveStart and ResolveEnd.
type ResolveInfo struct {
	ID         ResolveID
	FieldName  string
	ParentType string // object type owning the field, e.g. "User"
	ReturnType string // declared return type, e.g. "[Post!]!"
	Path       string // response path, e.g. "user.posts.0.title"
}

// ValidationResult summarizes a validated document.
type ValidationResult struct {
	Complexity int
	Depth      int
}
