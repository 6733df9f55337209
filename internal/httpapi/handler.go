package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"licensing-controlplane/pkg/config"
	"licensing-controlplane/pkg/errutil"
	"licensing-controlplane/pkg/health"
	"licensing-controlplane/pkg/middleware"
	"licensing-controlplane/services/account"
	"licensing-controlplane/services/auth"
	"licensing-controlplane/services/license"
	"licensing-controlplane/services/policy"

	"licensing-controlplane/pkg/db/pagination"
)

type RouterParams struct {
	fx.In

	Cfg      *config.Config
	Health   health.HealthService
	Accounts *account.Service
	Policies *policy.Service
	Licenses *license.Service
	Auth     *auth.Service
}

// ProvideRouter assembles the public HTTP surface.
func ProvideRouter(p RouterParams) http.Handler {
	if p.Cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handler{
		accounts: p.Accounts,
		policies: p.Policies,
		licenses: p.Licenses,
		auth:     p.Auth,
	}

	v1 := r.Group("/v1")
	v1.POST("/accounts", h.createAccount)

	scoped := v1.Group("/accounts/:account_id", auth.Middleware(p.Auth))
	scoped.GET("", h.getAccount)

	scoped.POST("/users", h.createUser)
	scoped.GET("/users/:user_id", h.getUser)
	scoped.POST("/users/:user_id/actions/ban", h.banUser)
	scoped.POST("/users/:user_id/actions/unban", h.unbanUser)

	scoped.POST("/policies", h.createPolicy)
	scoped.GET("/policies/:policy_id", h.getPolicy)
	scoped.POST("/policies/:policy_id/pool", h.pushPoolKeys)
	scoped.GET("/policies/:policy_id/pool", h.poolSize)

	scoped.POST("/licenses", h.createLicense)
	scoped.GET("/licenses", h.listLicenses)
	scoped.GET("/licenses/:license_id", h.getLicense)
	scoped.DELETE("/licenses/:license_id", h.revokeLicense)
	scoped.POST("/licenses/:license_id/actions/validate", h.validateLicense)
	scoped.POST("/licenses/:license_id/actions/check-in", h.checkInLicense)
	scoped.POST("/licenses/:license_id/actions/increment-usage", h.incrementUsage)
	scoped.POST("/licenses/:license_id/actions/activate", h.activateLicense)
	scoped.POST("/licenses/:license_id/actions/renew", h.renewLicense)
	scoped.POST("/licenses/:license_id/actions/transfer", h.transferLicense)
	scoped.POST("/licenses/:license_id/actions/suspend", h.suspendLicense)
	scoped.POST("/licenses/:license_id/actions/reinstate", h.reinstateLicense)
	scoped.POST("/licenses/actions/validate-key", h.validateLicenseKey)

	scoped.POST("/tokens", h.issueToken)
	scoped.DELETE("/tokens/:token_id", h.revokeToken)

	return r
}

type handler struct {
	accounts *account.Service
	policies *policy.Service
	licenses *license.Service
	auth     *auth.Service
}

type createAccountRequest struct {
	Slug string `json:"slug" binding:"required"`
	Name string `json:"name"`
}

func (h *handler) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	acct, err := h.accounts.CreateAccount(c.Request.Context(), account.CreateAccountParams{
		Slug: req.Slug,
		Name: req.Name,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

func (h *handler) getAccount(c *gin.Context) {
	acct, err := h.accounts.GetAccount(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

type createUserRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	user, err := h.accounts.CreateUser(c.Request.Context(), account.CreateUserParams{
		AccountID: c.Param("account_id"),
		Email:     req.Email,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *handler) getUser(c *gin.Context) {
	user, err := h.accounts.GetUser(c.Request.Context(), c.Param("account_id"), c.Param("user_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *handler) banUser(c *gin.Context) {
	if err := h.accounts.BanUser(c.Request.Context(), c.Param("account_id"), c.Param("user_id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) unbanUser(c *gin.Context) {
	if err := h.accounts.UnbanUser(c.Request.Context(), c.Param("account_id"), c.Param("user_id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createPolicyRequest struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name" binding:"required"`
	Scheme    *string `json:"scheme"`
	Encrypted bool    `json:"encrypted"`
	UsePool   bool    `json:"use_pool"`
	Duration  *int64  `json:"duration"`
	MaxUses   *int64  `json:"max_uses"`

	ExpireFromCreation        bool `json:"expire_from_creation"`
	ExpireFromFirstValidation bool `json:"expire_from_first_validation"`
	ExpireFromFirstActivation bool `json:"expire_from_first_activation"`
	ExpireFromFirstUse        bool `json:"expire_from_first_use"`
	ExpireFromFirstDownload   bool `json:"expire_from_first_download"`
	TransferResetsExpiry      bool `json:"transfer_resets_expiry"`
}

func (h *handler) createPolicy(c *gin.Context) {
	var req createPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	pol, err := h.policies.CreatePolicy(c.Request.Context(), policy.CreatePolicyParams{
		AccountID:                 c.Param("account_id"),
		ProductID:                 req.ProductID,
		Name:                      req.Name,
		Scheme:                    req.Scheme,
		Encrypted:                 req.Encrypted,
		UsePool:                   req.UsePool,
		Duration:                  req.Duration,
		MaxUses:                   req.MaxUses,
		ExpireFromCreation:        req.ExpireFromCreation,
		ExpireFromFirstValidation: req.ExpireFromFirstValidation,
		ExpireFromFirstActivation: req.ExpireFromFirstActivation,
		ExpireFromFirstUse:        req.ExpireFromFirstUse,
		ExpireFromFirstDownload:   req.ExpireFromFirstDownload,
		TransferResetsExpiry:      req.TransferResetsExpiry,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, pol)
}

func (h *handler) getPolicy(c *gin.Context) {
	pol, err := h.policies.GetPolicy(c.Request.Context(), c.Param("account_id"), c.Param("policy_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, pol)
}

type pushPoolKeysRequest struct {
	Keys []string `json:"keys" binding:"required"`
}

func (h *handler) pushPoolKeys(c *gin.Context) {
	var req pushPoolKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	n, err := h.policies.PushPoolKeys(c.Request.Context(), c.Param("account_id"), c.Param("policy_id"), req.Keys)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": n})
}

func (h *handler) poolSize(c *gin.Context) {
	size, err := h.policies.PoolSize(c.Request.Context(), c.Param("account_id"), c.Param("policy_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": size})
}

type createLicenseRequest struct {
	PolicyID  string                 `json:"policy_id" binding:"required"`
	UserID    *string                `json:"user_id"`
	GroupID   *string                `json:"group_id"`
	Key       *string                `json:"key"`
	MaxUses   *int64                 `json:"max_uses"`
	Protected bool                   `json:"protected"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type licenseResponse struct {
	*license.License
	Status license.Status `json:"status"`

	// RawKey is only present on creation for the legacy encrypted scheme.
	RawKey string `json:"raw_key,omitempty"`
}

func (h *handler) licenseView(lic *license.License, rawKey string) licenseResponse {
	return licenseResponse{
		License: lic,
		Status:  lic.StatusAt(time.Now(), h.licenses.ActivityWindow()),
		RawKey:  rawKey,
	}
}

func (h *handler) createLicense(c *gin.Context) {
	var req createLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	lic, raw, err := h.licenses.CreateLicense(c.Request.Context(), license.CreateLicenseParams{
		AccountID: c.Param("account_id"),
		PolicyID:  req.PolicyID,
		UserID:    req.UserID,
		GroupID:   req.GroupID,
		Key:       req.Key,
		MaxUses:   req.MaxUses,
		Protected: req.Protected,
		Metadata:  req.Metadata,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, h.licenseView(lic, raw))
}

func (h *handler) listLicenses(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.ValidationFailed("invalid pagination", errutil.WithErr(err)))
		return
	}

	licenses, info, err := h.licenses.ListLicenses(c.Request.Context(), c.Param("account_id"), page)
	if err != nil {
		c.Error(err)
		return
	}

	views := make([]licenseResponse, 0, len(licenses))
	for _, lic := range licenses {
		views = append(views, h.licenseView(lic, ""))
	}
	c.JSON(http.StatusOK, gin.H{"licenses": views, "page_info": info})
}

func (h *handler) getLicense(c *gin.Context) {
	lic, err := h.licenses.GetLicense(c.Request.Context(), c.Param("account_id"), c.Param("license_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.licenseView(lic, ""))
}

func (h *handler) revokeLicense(c *gin.Context) {
	if err := h.licenses.Revoke(c.Request.Context(), c.Param("account_id"), c.Param("license_id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) validateLicense(c *gin.Context) {
	result, err := h.licenses.Validate(c.Request.Context(), c.Param("account_id"), c.Param("license_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type validateKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// validateLicenseKey resolves a presented key to its license and validates
// it. Keys that resolve nothing report LICENSE_INVALID rather than 404 so
// the response shape matches credential authentication.
func (h *handler) validateLicenseKey(c *gin.Context) {
	var req validateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	lic, err := h.licenses.LookupByKey(c.Request.Context(), req.Key)
	if err != nil {
		c.Error(errutil.Internal("failed to look up license key", errutil.WithErr(err)))
		return
	}
	if lic == nil || lic.AccountID != c.Param("account_id") {
		c.Error(auth.ErrLicenseInvalid)
		return
	}

	result, err := h.licenses.Validate(c.Request.Context(), lic.AccountID, lic.ID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"license": h.licenseView(lic, ""), "validation": result})
}

func (h *handler) checkInLicense(c *gin.Context) {
	lic, err := h.licenses.CheckIn(c.Request.Context(), c.Param("account_id"), c.Param("license_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.licenseView(lic, ""))
}

func (h *handler) incrementUsage(c *gin.Context) {
	lic, err := h.licenses.IncrementUsage(c.Request.Context(), c.Param("account_id"), c.Param("license_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.licenseView(lic, ""))
}

type activateRequest struct {
	Fingerprint string `json:"fingerprint" binding:"required"`
}

func (h *handler) activateLicense(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.licenses.Activate(c.Request.Context(), c.Param("account_id"), c.Param("license_id"), req.Fingerprint); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *handler) renewLicense(c *gin.Context) {
	lic, err := h.licenses.Renew(c.Request.Context(), c.Param("account_id"), c.Param("license_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.licenseView(lic, ""))
}

type transferRequest struct {
	PolicyID string `json:"policy_id" binding:"required"`
}

func (h *handler) transferLicense(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	lic, err := h.licenses.TransferLicense(c.Request.Context(), c.Param("account_id"), c.Param("license_id"), req.PolicyID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.licenseView(lic, ""))
}

func (h *handler) suspendLicense(c *gin.Context) {
	if err := h.licenses.Suspend(c.Request.Context(), c.Param("account_id"), c.Param("license_id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) reinstateLicense(c *gin.Context) {
	if err := h.licenses.Reinstate(c.Request.Context(), c.Param("account_id"), c.Param("license_id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

type issueTokenRequest struct {
	BearerType string  `json:"bearer_type" binding:"required"`
	BearerID   string  `json:"bearer_id" binding:"required"`
	Name       *string `json:"name"`
	TTLSeconds *int64  `json:"ttl"`
}

func (h *handler) issueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	var ttl *time.Duration
	if req.TTLSeconds != nil {
		d := time.Duration(*req.TTLSeconds) * time.Second
		ttl = &d
	}

	token, raw, err := h.auth.IssueToken(c.Request.Context(), auth.IssueTokenParams{
		AccountID:  c.Param("account_id"),
		BearerType: auth.BearerType(req.BearerType),
		BearerID:   req.BearerID,
		Name:       req.Name,
		TTL:        ttl,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "raw": raw})
}

func (h *handler) revokeToken(c *gin.Context) {
	if err := h.auth.RevokeToken(c.Request.Context(), c.Param("account_id"), c.Param("token_id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
