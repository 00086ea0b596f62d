package resolver

import "strings"

// fullWildcard is the stored permission that satisfies every request.
const fullWildcard = "*:*"

// Matches reports whether a stored permission set satisfies a requested
// permission.
//
// Matching is directional: only stored permissions may be wider than the
// request. A request "read:agents" is satisfied by a stored "read:agents",
// "read:*", "*:agents", or "*:*". A request that itself carries a "*" is
// satisfied only by the identical stored string or by "*:*"; a stored
// "read:agents" never satisfies a requested "read:*". A request without an
// "action:resource" shape likewise matches only exactly or via "*:*".
//
// An unknown or empty permission is simply not granted; there is no error
// case.
func Matches(set []string, permission string) bool {
	if permission == "" {
		return false
	}
	for _, candidate := range candidates(permission) {
		for _, stored := range set {
			if stored == candidate {
				return true
			}
		}
	}
	return false
}

// candidates derives every stored form that satisfies the request: the exact
// string and "*:*" always, plus "action:*" and "*:resource" when the request
// is a concrete action:resource pair. The request splits at the first colon,
// so "read:a:b" widens to "read:*" and "*:a:b".
func candidates(permission string) []string {
	forms := []string{permission, fullWildcard}
	if strings.Contains(permission, "*") {
		return forms
	}
	idx := strings.Index(permission, ":")
	if idx < 0 {
		return forms
	}
	return append(forms, permission[:idx]+":*", "*:"+permission[idx+1:])
}
