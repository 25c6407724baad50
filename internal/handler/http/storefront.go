package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/service"
	"github.com/chiefduck/hellbound-sauces-sub000/internal/signal"
	apperrors "github.com/chiefduck/hellbound-sauces-sub000/pkg/errors"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/httputil"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/middleware"
	"github.com/chiefduck/hellbound-sauces-sub000/pkg/validator"
)

// StorefrontHandler handles HTTP requests for session, cart and checkout
// endpoints.
type StorefrontHandler struct {
	service *service.StorefrontService
	logger  *slog.Logger
}

// NewStorefrontHandler creates a new storefront HTTP handler.
func NewStorefrontHandler(svc *service.StorefrontService, logger *slog.Logger) *StorefrontHandler {
	return &StorefrontHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request/response DTOs ---

// VisibilityRequest is the JSON request body for a page visibility change.
type VisibilityRequest struct {
	State string `json:"state" validate:"required,oneof=visible hidden"`
}

type mountResponse struct {
	SessionID string           `json:"session_id"`
	Cart      domain.CartState `json:"cart"`
}

type checkoutResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// --- Handlers ---

// Mount handles POST /api/v1/sessions. A known X-Session-ID is remounted
// with an empty cart.
func (h *StorefrontHandler) Mount(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(middleware.SessionHeader))

	sessionID, cart, err := h.service.Mount(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set(middleware.SessionHeader, sessionID)
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: mountResponse{SessionID: sessionID, Cart: cart}})
}

// Unmount handles DELETE /api/v1/sessions
func (h *StorefrontHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unmount(r.Context(), sessionIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCart handles GET /api/v1/cart
func (h *StorefrontHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.Cart(r.Context(), sessionIDFromContext(r.Context()))
	h.writeCart(w, r, cart, err)
}

// AddItem handles POST /api/v1/cart/items
func (h *StorefrontHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req service.AddItemInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.service.AddItem(r.Context(), sessionIDFromContext(r.Context()), req)
	h.writeCart(w, r, cart, err)
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *StorefrontHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateQuantityInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.service.UpdateQuantity(r.Context(), sessionIDFromContext(r.Context()), chi.URLParam(r, "productId"), req.Quantity)
	h.writeCart(w, r, cart, err)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *StorefrontHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.RemoveItem(r.Context(), sessionIDFromContext(r.Context()), chi.URLParam(r, "productId"))
	h.writeCart(w, r, cart, err)
}

// ClearCart handles DELETE /api/v1/cart
func (h *StorefrontHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.Clear(r.Context(), sessionIDFromContext(r.Context()))
	h.writeCart(w, r, cart, err)
}

// OpenCart handles POST /api/v1/cart/open
func (h *StorefrontHandler) OpenCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.OpenCart(r.Context(), sessionIDFromContext(r.Context()))
	h.writeCart(w, r, cart, err)
}

// CloseCart handles POST /api/v1/cart/close
func (h *StorefrontHandler) CloseCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.CloseCart(r.Context(), sessionIDFromContext(r.Context()))
	h.writeCart(w, r, cart, err)
}

// ToggleCart handles POST /api/v1/cart/toggle
func (h *StorefrontHandler) ToggleCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.ToggleCart(r.Context(), sessionIDFromContext(r.Context()))
	h.writeCart(w, r, cart, err)
}

// Checkout handles POST /api/v1/cart/checkout. Success answers 303 See
// Other to the hosted checkout, or the URL as JSON when the client asks
// for JSON.
func (h *StorefrontHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	nav := &responseNavigator{w: w, r: r}

	if _, err := h.service.Checkout(r.Context(), sessionIDFromContext(r.Context()), nav); err != nil {
		httputil.WriteError(w, r, checkoutAppError(err), h.logger)
	}
}

// ListAttempts handles GET /api/v1/checkout/attempts?limit=N
func (h *StorefrontHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 0, 1, 100)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	attempts, err := h.service.Attempts(r.Context(), sessionIDFromContext(r.Context()), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: attempts})
}

// Visibility handles POST /api/v1/lifecycle/visibility
func (h *StorefrontHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	state, err := signal.ParseState(req.State)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return
	}

	if err := h.service.PublishVisibility(r.Context(), sessionIDFromContext(r.Context()), state); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Notices handles GET /api/v1/notices. Returned notices are removed.
func (h *StorefrontHandler) Notices(w http.ResponseWriter, r *http.Request) {
	notices, err := h.service.Notices(r.Context(), sessionIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: notices})
}

func (h *StorefrontHandler) writeCart(w http.ResponseWriter, r *http.Request, cart domain.CartState, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// responseNavigator hands the shopper off by answering the checkout request
// itself.
type responseNavigator struct {
	w http.ResponseWriter
	r *http.Request
}

func (n *responseNavigator) Navigate(ctx context.Context, redirectURL string) error {
	// A client that already hung up never reaches checkout.
	if err := ctx.Err(); err != nil {
		return err
	}
	if wantsJSON(n.r) {
		httputil.WriteJSON(n.w, http.StatusOK, httputil.Response{Data: checkoutResponse{RedirectURL: redirectURL}})
	} else {
		http.Redirect(n.w, n.r, redirectURL, http.StatusSeeOther)
	}
	return nil
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// checkoutAppError maps a checkout failure onto an HTTP error carrying the
// shopper-facing message.
func checkoutAppError(err error) error {
	var ce *domain.CheckoutError
	if !errors.As(err, &ce) {
		return err
	}

	msg := ce.UserMessage()
	var appErr *apperrors.AppError
	switch ce.Kind {
	case domain.KindEmptyCart:
		appErr = apperrors.InvalidInput(msg)
	case domain.KindInProgress:
		appErr = apperrors.Conflict(msg)
	case domain.KindCreation:
		appErr = apperrors.Unprocessable(msg)
	case domain.KindResponse:
		appErr = apperrors.BadGateway(msg)
	case domain.KindTimeout:
		appErr = apperrors.GatewayTimeout(msg)
	default:
		appErr = apperrors.ServiceUnavailable(msg)
	}
	appErr.Code = ce.Kind.Code()
	appErr.Err = errors.Join(appErr.Err, err)
	return appErr
}
