package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Handler exposes permission checks and grant management as JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *Resolver
	rbac     Middleware
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, resolver: resolver, rbac: rbac}
}

// MountRoutes registers routes on a router already scoped to /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated)
		r.Get("/me/permissions", h.myPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAPI)
		r.Get("/permissions/check", h.check)
		r.Get("/permissions", h.listPermissions)
		r.Post("/permissions", h.createPermission)
		r.Put("/roles/{roleID}/permissions/{permissionID}", h.grantRolePermission)
		r.Delete("/roles/{roleID}/permissions/{permissionID}", h.revokeRolePermission)
		r.Put("/users/{userID}/roles/{roleID}", h.assignUserRole)
		r.Delete("/users/{userID}/roles/{roleID}", h.removeUserRole)
		r.Put("/users/{userID}/permissions/{permissionID}", h.setUserOverride)
		r.Delete("/users/{userID}/permissions/{permissionID}", h.removeUserOverride)
	})
}

type permissionSetResponse struct {
	UserID        int64   `json:"userId"`
	PermissionIDs []int64 `json:"permissionIds"`
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	set, err := h.resolver.EffectivePermissions(r.Context(), principal.UserID)
	if err != nil {
		h.fail(w, "effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionSetResponse{UserID: principal.UserID, PermissionIDs: set.IDs()})
}

type checkResponse struct {
	UserID       int64        `json:"userId"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceKey  string       `json:"resourceKey"`
	Action       string       `json:"action,omitempty"`
	Granted      bool         `json:"granted"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	userID, ok, err := httpx.QueryID(r, "userId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !ok {
		userID = shared.PrincipalFromContext(r.Context()).UserID
	}
	query := r.URL.Query()
	resourceType, err := ParseResourceType(query.Get("resourceType"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := checkResponse{
		UserID:       userID,
		ResourceType: resourceType,
		ResourceKey:  query.Get("resourceKey"),
		Action:       query.Get("action"),
	}
	resp.Granted, err = h.resolver.IsGranted(r.Context(), userID, resourceType, resp.ResourceKey, resp.Action)
	if err != nil {
		h.fail(w, "permission check", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": perms})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var in NewPermission
	if err := httpx.DecodeAndValidate(w, r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), in)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) grantRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, ok := h.pair(w, r, "roleID", "permissionID")
	if !ok {
		return
	}
	if err := h.service.GrantRolePermission(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, "grant role permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, ok := h.pair(w, r, "roleID", "permissionID")
	if !ok {
		return
	}
	if err := h.service.RevokeRolePermission(r.Context(), roleID, permissionID); err != nil {
		h.fail(w, "revoke role permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignUserRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, ok := h.pair(w, r, "userID", "roleID")
	if !ok {
		return
	}
	if err := h.service.AssignUserRole(r.Context(), userID, roleID); err != nil {
		h.fail(w, "assign user role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeUserRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, ok := h.pair(w, r, "userID", "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveUserRole(r.Context(), userID, roleID); err != nil {
		h.fail(w, "remove user role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setUserOverride(w http.ResponseWriter, r *http.Request) {
	o, ok := h.override(w, r)
	if !ok {
		return
	}
	if err := h.service.SetUserOverride(r.Context(), o); err != nil {
		h.fail(w, "set user override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeUserOverride(w http.ResponseWriter, r *http.Request) {
	o, ok := h.override(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveUserOverride(r.Context(), o); err != nil {
		h.fail(w, "remove user override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) override(w http.ResponseWriter, r *http.Request) (UserOverride, bool) {
	userID, permissionID, ok := h.pair(w, r, "userID", "permissionID")
	if !ok {
		return UserOverride{}, false
	}
	kind, err := ParseOverrideKind(r.URL.Query().Get("kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return UserOverride{}, false
	}
	return UserOverride{UserID: userID, PermissionID: permissionID, Kind: kind}, true
}

func (h *Handler) pair(w http.ResponseWriter, r *http.Request, first, second string) (int64, int64, bool) {
	a, err := httpx.PathID(r, first)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	b, err := httpx.PathID(r, second)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return a, b, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("rbac "+op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
