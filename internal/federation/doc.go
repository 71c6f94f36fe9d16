// Package federation implementa el broker de identidad federada: un único
// flujo authorization-code para proveedores OAuth2/OIDC estándar y para
// vendors que se apartan del RFC 6749 (formato del token, envelope del
// user-info, parámetros propios).
//
// Piezas:
//
//	ProviderRegistry            registrationId -> ProviderDescriptor
//	Registry[T]                 customizers por nombre de provider (first match wins)
//	AuthorizationRequestBroker  arma el redirect al proveedor
//	TokenExchangeBroker         code -> AccessTokenResponse normalizado
//	UserInfoBroker              token -> FederatedIdentity
//
// Los customizers se registran al arrancar (ver federation/vendors) y solo
// se leen mientras se sirve tráfico.
package federation
