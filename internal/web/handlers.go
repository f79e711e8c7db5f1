package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/shopfront-dev/shopfront/internal/admin"
	"github.com/shopfront-dev/shopfront/internal/cart"
	"github.com/shopfront-dev/shopfront/internal/catalog"
	"github.com/shopfront-dev/shopfront/internal/identity"
	"github.com/shopfront-dev/shopfront/internal/session"
	"github.com/shopfront-dev/shopfront/internal/wishlist"
	"github.com/shopfront-dev/shopfront/pkg/toast"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// identityStatus maps provider errors to HTTP statuses.
func identityStatus(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, identity.ErrAccountInactive):
		return http.StatusForbidden, "Account is inactive"
	case errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict, "Email is already registered"
	default:
		return http.StatusServiceUnavailable, "Sign-in service unavailable"
	}
}

type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type sessionView struct {
	Authenticated bool      `json:"authenticated"`
	User          *userView `json:"user,omitempty"`
}

func viewOf(id identity.Identity) *userView {
	return &userView{ID: id.UserID, Name: id.Name, Email: id.Email}
}

func (s *Server) sessionView(st *State) sessionView {
	id, ok := st.Session.Current()
	if !ok {
		return sessionView{}
	}
	return sessionView{Authenticated: true, User: viewOf(id)}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	id, err := st.Session.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status, msg := identityStatus(err)
		respondError(w, status, msg)
		return
	}
	respondJSON(w, http.StatusOK, sessionView{Authenticated: true, User: viewOf(id)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	id, err := st.Session.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		status, msg := identityStatus(err)
		respondError(w, status, msg)
		return
	}
	respondJSON(w, http.StatusCreated, sessionView{Authenticated: true, User: viewOf(id)})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	respondJSON(w, http.StatusOK, s.sessionView(st))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := st.Session.Logout(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req session.Update
	if !decodeJSON(w, r, &req) {
		return
	}

	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := st.Session.UpdateUser(r.Context(), req); err != nil {
		respondError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	respondJSON(w, http.StatusOK, s.sessionView(st))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := st.Session.DeleteUser(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "account removal failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cartView struct {
	Lines    []cart.Line `json:"lines"`
	Count    int         `json:"count"`
	Subtotal float64     `json:"subtotal"`
}

func (s *Server) cartView(st *State) cartView {
	lines := st.Cart.Lines()
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartView{Lines: lines, Count: st.Cart.Count(), Subtotal: st.Cart.Subtotal()}
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(st))
}

func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	// Product payloads arrive duck-typed from whichever catalog view the
	// client rendered, so they go through Normalize.
	var raw map[string]any
	if !decodeJSON(w, r, &raw) {
		return
	}
	product, err := catalog.Normalize(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product")
		return
	}

	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := st.Cart.Add(r.Context(), product); err != nil {
		respondError(w, http.StatusInternalServerError, "cart update failed")
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(st))
}

func (s *Server) handleCartUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := st.Cart.UpdateQuantity(r.Context(), chi.URLParam(r, "productID"), req.Quantity); err != nil {
		respondError(w, http.StatusInternalServerError, "cart update failed")
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(st))
}

func (s *Server) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := st.Cart.Remove(r.Context(), chi.URLParam(r, "productID")); err != nil {
		respondError(w, http.StatusInternalServerError, "cart update failed")
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(st))
}

func (s *Server) handleCartClear(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := st.Cart.Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "cart update failed")
		return
	}
	respondJSON(w, http.StatusOK, s.cartView(st))
}

type wishlistView struct {
	Entries []wishlist.Entry `json:"entries"`
}

func (s *Server) wishlistView(st *State) wishlistView {
	entries := st.Wishlist.Entries()
	if entries == nil {
		entries = []wishlist.Entry{}
	}
	return wishlistView{Entries: entries}
}

func (s *Server) handleWishlist(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	respondJSON(w, http.StatusOK, s.wishlistView(st))
}

func (s *Server) handleWishlistAdd(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if !decodeJSON(w, r, &raw) {
		return
	}
	product, err := catalog.Normalize(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product")
		return
	}

	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := st.Wishlist.Add(r.Context(), product); err != nil {
		respondError(w, http.StatusInternalServerError, "wishlist update failed")
		return
	}
	respondJSON(w, http.StatusOK, s.wishlistView(st))
}

func (s *Server) handleWishlistRemove(w http.ResponseWriter, r *http.Request) {
	st, err := s.state(r)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if err := st.Wishlist.Remove(r.Context(), chi.URLParam(r, "productID")); err != nil {
		respondError(w, http.StatusInternalServerError, "wishlist update failed")
		return
	}
	respondJSON(w, http.StatusOK, s.wishlistView(st))
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.admin.Stats(r.Context()))
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.admin.Orders(r.Context()))
}

func (s *Server) handleAdminOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	emitter := s.hub.Emitter(ClientID(r.Context()))
	order, err := s.admin.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status)
	if err != nil {
		toast.Error(r.Context(), emitter, "Failed to update order status")
		if errors.Is(err, admin.ErrInvalidStatus) {
			respondError(w, http.StatusBadRequest, "invalid order status")
			return
		}
		respondError(w, http.StatusBadGateway, "order update failed")
		return
	}
	toast.Success(r.Context(), emitter, "Order status updated successfully")
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleAdminProducts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.admin.Products(r.Context()))
}

func (s *Server) handleAdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		admin.NewProduct
		ImageTempID string `json:"imageTempId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	emitter := s.hub.Emitter(ClientID(r.Context()))

	if req.ImageTempID != "" && s.uploads != nil {
		url, err := s.publishImage(r, req.ImageTempID)
		if err != nil {
			toast.Error(r.Context(), emitter, "Failed to create product")
			respondError(w, http.StatusBadRequest, "image upload not found")
			return
		}
		req.NewProduct.Image = url
	}

	created, err := s.admin.CreateProduct(r.Context(), req.NewProduct)
	if err != nil {
		toast.Error(r.Context(), emitter, "Failed to create product")
		respondError(w, http.StatusBadGateway, "product creation failed")
		return
	}
	toast.Success(r.Context(), emitter, "Product created successfully")
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	emitter := s.hub.Emitter(ClientID(r.Context()))
	if err := s.admin.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		toast.Error(r.Context(), emitter, "Failed to delete product")
		respondError(w, http.StatusBadGateway, "product deletion failed")
		return
	}
	toast.Success(r.Context(), emitter, "Product deleted successfully")
	w.WriteHeader(http.StatusNoContent)
}

// publishImage claims an uploaded temp image and makes it durable. S3
// uploads already have a URL; disk uploads are copied into the public
// image directory.
func (s *Server) publishImage(r *http.Request, tempID string) (string, error) {
	file, err := s.uploads.Claim(r.Context(), tempID)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if file.URL != "" {
		return file.URL, nil
	}

	if err := os.MkdirAll(s.imageDir, 0755); err != nil {
		return "", err
	}
	name := file.ID + filepath.Ext(file.Filename)
	dst, err := os.Create(filepath.Join(s.imageDir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file.Reader); err != nil {
		return "", err
	}
	return "/images/" + name, nil
}
