package auth

// Claims representa la identidad extraída del token.
// El core confía en Role tal como llega; no verifica credenciales.
type Claims struct {
	UserID     string
	Email      string
	Role       string
	FacilityID string
}
