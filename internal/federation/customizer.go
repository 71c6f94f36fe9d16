package federation

import "strings"

// Predicate decide si una entrada aplica a un provider (nombre lógico).
type Predicate func(providerKey string) bool

// ProviderIs matchea por nombre, sin distinguir mayúsculas.
func ProviderIs(names ...string) Predicate {
	return func(key string) bool {
		for _, n := range names {
			if strings.EqualFold(n, key) {
				return true
			}
		}
		return false
	}
}

// Entry asocia un predicado con una estrategia.
type Entry[T any] struct {
	Test  Predicate
	Apply T
}

// Registry es una tabla ordenada de estrategias por provider. Resolve
// devuelve la primera entrada cuyo predicado matchea; si dos entradas
// matchean el mismo provider gana la registrada primero.
//
// Se llena al arrancar y después solo se lee, por eso no tiene lock.
type Registry[T any] struct {
	entries []Entry[T]
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{}
}

func (r *Registry[T]) Register(e Entry[T]) {
	r.entries = append(r.entries, e)
}

// Resolve devuelve (zero, false) si nada matchea: el caller usa el
// comportamiento estándar.
func (r *Registry[T]) Resolve(providerKey string) (T, bool) {
	if r != nil {
		for _, e := range r.entries {
			if e.Test != nil && e.Test(providerKey) {
				return e.Apply, true
			}
		}
	}
	var zero T
	return zero, false
}
