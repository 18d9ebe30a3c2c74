package httpapi

import (
	"net/http"
	"time"

	"logsvc/pkg/apperror"
)

// requireMaster wraps a handler with a constant-time master-key check
// against the Authorization bearer token, independent of the regular
// API-key scopes — the admin surface authenticates differently from
// every other route.
func (a *API) requireMaster(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.deps.Auth.AuthenticateMaster(bearerToken(r)); err != nil {
			writeError(w, err)
			return
		}
		h(w, r)
	}
}

type apiKeyDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	KeyPrefix   string     `json:"key_prefix"`
	CanWrite    bool       `json:"can_write"`
	CanRead     bool       `json:"can_read"`
	CanAdmin    bool       `json:"can_admin"`
	Revoked     bool       `json:"revoked"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// handleListAPIKeys is GET /v1/admin/keys.
func (a *API) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := a.deps.Auth.ListKeys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]apiKeyDTO, len(keys))
	for i, k := range keys {
		out[i] = apiKeyDTO{
			ID:          k.ID.String(),
			Name:        k.Name,
			Description: k.Description,
			KeyPrefix:   k.KeyPrefix,
			CanWrite:    k.CanWrite,
			CanRead:     k.CanRead,
			CanAdmin:    k.CanAdmin,
			Revoked:     k.Revoked,
			CreatedAt:   k.CreatedAt,
			LastUsedAt:  k.LastUsedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

type createAPIKeyRequestDTO struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CanWrite    bool   `json:"can_write"`
	CanRead     bool   `json:"can_read"`
	CanAdmin    bool   `json:"can_admin"`
}

type createAPIKeyResponseDTO struct {
	Key apiKeyDTO `json:"key"`
	// APIKey is the plaintext key, returned exactly once.
	APIKey string `json:"api_key"`
}

// handleCreateAPIKey is POST /v1/admin/keys.
func (a *API) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var body createAPIKeyRequestDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Name == "" {
		writeError(w, apperror.NewValidationWithField("name is required", "name"))
		return
	}

	issued, err := a.deps.Auth.IssueKey(r.Context(), body.Name, body.Description, body.CanWrite, body.CanRead, body.CanAdmin)
	if err != nil {
		writeError(w, err)
		return
	}

	k := issued.Record
	writeJSON(w, http.StatusCreated, createAPIKeyResponseDTO{
		Key: apiKeyDTO{
			ID:          k.ID.String(),
			Name:        k.Name,
			Description: k.Description,
			KeyPrefix:   k.KeyPrefix,
			CanWrite:    k.CanWrite,
			CanRead:     k.CanRead,
			CanAdmin:    k.CanAdmin,
			Revoked:     k.Revoked,
			CreatedAt:   k.CreatedAt,
		},
		APIKey: issued.Plaintext,
	})
}

// handleRevokeAPIKey is DELETE /v1/admin/keys/{id}.
func (a *API) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.deps.Auth.RevokeKey(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type serviceAccountDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// handleListServiceAccounts is GET /v1/admin/accounts.
func (a *API) handleListServiceAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.deps.Auth.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]serviceAccountDTO, len(accounts))
	for i, sa := range accounts {
		out[i] = serviceAccountDTO{
			ID:          sa.ID.String(),
			Name:        sa.Name,
			Description: sa.Description,
			CreatedAt:   sa.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

type createServiceAccountRequestDTO struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// handleCreateServiceAccount is POST /v1/admin/accounts.
func (a *API) handleCreateServiceAccount(w http.ResponseWriter, r *http.Request) {
	var body createServiceAccountRequestDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Name == "" {
		writeError(w, apperror.NewValidationWithField("name is required", "name"))
		return
	}

	sa, err := a.deps.Auth.CreateAccount(r.Context(), body.Name, body.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, serviceAccountDTO{
		ID:          sa.ID.String(),
		Name:        sa.Name,
		Description: sa.Description,
		CreatedAt:   sa.CreatedAt,
	})
}

type retentionPolicyDTO struct {
	ID            string    `json:"id"`
	Service       string    `json:"service"`
	RetentionDays int       `json:"retention_days"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// handleListRetentionPolicies is GET /v1/admin/retention.
func (a *API) handleListRetentionPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := a.deps.Retention.Policies(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]retentionPolicyDTO, len(policies))
	for i, p := range policies {
		out[i] = retentionPolicyDTO{
			ID:            p.ID.String(),
			Service:       p.Service,
			RetentionDays: p.RetentionDays,
			CreatedAt:     p.CreatedAt,
			UpdatedAt:     p.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": out})
}

type setRetentionPolicyRequestDTO struct {
	RetentionDays int `json:"retention_days"`
}

// handleSetRetentionPolicy is PUT /v1/admin/retention/{service}.
func (a *API) handleSetRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	var body setRetentionPolicyRequestDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	p, err := a.deps.Retention.SetPolicy(r.Context(), r.PathValue("service"), body.RetentionDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, retentionPolicyDTO{
		ID:            p.ID.String(),
		Service:       p.Service,
		RetentionDays: p.RetentionDays,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	})
}

// handleDeleteRetentionPolicy is DELETE /v1/admin/retention/{service}.
func (a *API) handleDeleteRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Retention.RemovePolicy(r.Context(), r.PathValue("service")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pipelineStatusDTO struct {
	Running       bool      `json:"running"`
	DailyCount    int       `json:"daily_count"`
	DailyCap      int       `json:"daily_cap"`
	TotalEmbedded int       `json:"total_embedded"`
	TotalErrors   int       `json:"total_errors"`
	LastRun       time.Time `json:"last_run,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// handleAdminPipeline is GET /v1/admin/pipeline.
func (a *API) handleAdminPipeline(w http.ResponseWriter, r *http.Request) {
	if a.deps.Pipeline == nil {
		writeJSON(w, http.StatusOK, pipelineStatusDTO{})
		return
	}
	status := a.deps.Pipeline.Status()
	writeJSON(w, http.StatusOK, pipelineStatusDTO{
		Running:       status.Running,
		DailyCount:    status.DailyCount,
		DailyCap:      status.DailyCap,
		TotalEmbedded: status.TotalEmbedded,
		TotalErrors:   status.TotalErrors,
		LastRun:       status.LastRun,
		LastError:     status.LastError,
	})
}
