package web

import (
	"net/http"
)

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/login"

// RequireAuth guards routes that need a signed-in visitor. Without a
// loaded identity the request is answered with a 303 redirect to the
// login page; the originally requested target is not carried along, so
// after signing in the visitor lands wherever the login flow sends
// them.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := s.state(r)
		if err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		if !st.Session.Authenticated() {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
