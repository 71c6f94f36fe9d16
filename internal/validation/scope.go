// Package validation reúne chequeos de formato de valores de config.
package validation

import (
	"fmt"
	"regexp"
)

// scope-token de RFC 6749 §3.3: ASCII visible salvo espacio, '"' y '\'.
// Admite los scopes de vendors como "contact:user.id:readonly" o
// "snsapi_login".
var scopeTokenRe = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]{1,128}$`)

// registrationId: va en paths y en keys del store.
var registrationIDRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_-]{0,62}[a-z0-9])?$`)

// ValidScope indica si s es un scope-token válido.
func ValidScope(s string) bool {
	return scopeTokenRe.MatchString(s)
}

// Scopes valida una lista: tokens válidos y sin repetidos.
func Scopes(list []string) error {
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		if !ValidScope(s) {
			return fmt.Errorf("invalid scope %q", s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("duplicated scope %q", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// ValidRegistrationID: minúsculas, dígitos, '-' y '_', 1..64.
func ValidRegistrationID(id string) bool {
	return registrationIDRe.MatchString(id)
}
