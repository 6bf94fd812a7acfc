package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pelayanan.org/internal/audit"
	"pelayanan.org/internal/auth"
	"pelayanan.org/internal/ledger"
	"pelayanan.org/internal/obs"
)

type registerRequest struct {
	NIK          int64  `json:"nik"`
	Nama         string `json:"nama"`
	JenisKelamin string `json:"jenis_kelamin"`
	Email        string `json:"email"`
	NomorHP      string `json:"nomor_hp"`
	Password     string `json:"password"`
}

func (req *registerRequest) validate() string {
	switch {
	case req.NIK <= 0:
		return "nik is required"
	case strings.TrimSpace(req.Nama) == "" || len(req.Nama) > 255:
		return "nama must be between 1 and 255 characters"
	case req.JenisKelamin != "L" && req.JenisKelamin != "P":
		return "jenis_kelamin must be L or P"
	case !strings.Contains(req.Email, "@") || len(req.Email) > 255:
		return "email is invalid"
	case len(req.NomorHP) < 6 || len(req.NomorHP) > 50:
		return "nomor_hp must be between 6 and 50 characters"
	case len(req.Password) < 6 || len(req.Password) > 255:
		return "password must be at least 6 characters"
	}
	return ""
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "Bad Request", msg)
		return
	}

	citizen := auth.Citizen{
		NIK:          req.NIK,
		Nama:         req.Nama,
		JenisKelamin: req.JenisKelamin,
		Email:        req.Email,
		NomorHP:      req.NomorHP,
	}
	if err := a.auth.Register(r.Context(), citizen, req.Password); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "Conflict", "NIK already in use")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "registration failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.registered", map[string]any{"nik": req.NIK})
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "registration successful",
		"nik":     req.NIK,
		"nama":    req.Nama,
	})
}

type loginRequest struct {
	NIK        int64  `json:"nik"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type loginResponse struct {
	Message      string `json:"message"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	OfflineToken string `json:"offline_token,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	Role         string `json:"role,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if req.NIK <= 0 || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "nik and password are required")
		return
	}

	result, err := a.auth.Login(r.Context(), req.NIK, req.Password, req.DeviceID, req.DeviceName)
	if err != nil {
		a.rejectLogin(w, r, "citizen", err)
		return
	}

	obs.ObserveLogin("citizen", "success")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"nik":       req.NIK,
		"device_id": result.DeviceID,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		Message:      "login success",
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		OfflineToken: result.OfflineToken,
		DeviceID:     result.DeviceID,
	})
}

type staffLoginRequest struct {
	NIP      int64  `json:"nip"`
	Password string `json:"password"`
}

func (a *API) handleStaffLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req staffLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if req.NIP <= 0 || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "nip and password are required")
		return
	}

	result, err := a.auth.StaffLogin(r.Context(), req.NIP, req.Password)
	if err != nil {
		a.rejectLogin(w, r, "staff", err)
		return
	}

	obs.ObserveLogin("staff", "success")
	_ = audit.LogEvent(r.Context(), "auth.staff.login", map[string]any{"nip": req.NIP})
	writeJSON(w, http.StatusOK, loginResponse{
		Message:      "login success",
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Role:         result.Role,
	})
}

// rejectLogin maps issuer errors onto the response contract. Invalid
// credentials never reveal whether the subject exists.
func (a *API) rejectLogin(w http.ResponseWriter, r *http.Request, kind string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		obs.ObserveLogin(kind, "denied")
		writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
	case errors.Is(err, auth.ErrDeviceConflict):
		obs.ObserveLogin(kind, "device_conflict")
		writeError(w, http.StatusForbidden, "Forbidden", "device bound to another account")
	case errors.Is(err, auth.ErrDeviceRevoked):
		obs.ObserveLogin(kind, "device_revoked")
		writeError(w, http.StatusForbidden, "Forbidden", "device revoked")
	case errors.Is(err, ledger.ErrUnavailable):
		obs.ObserveLogin(kind, "ledger_unavailable")
		writeError(w, http.StatusServiceUnavailable, "Service Unavailable", "authorization store unreachable")
	default:
		a.log.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "login failed")
	}
}

type logoutRequest struct {
	DeviceID string `json:"device_id"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if err := a.auth.Logout(r.Context(), claims, req.DeviceID); err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "Service Unavailable", "authorization store unreachable")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "logout failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"token_id":  claims.ID,
		"device_id": req.DeviceID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logout success"})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return
	}

	pair, err := a.auth.Refresh(r.Context(), claims)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenInvalid):
			unauthorized(w, "invalid token")
		case errors.Is(err, ledger.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "Service Unavailable", "authorization store unreachable")
		default:
			writeError(w, http.StatusInternalServerError, "Internal Server Error", "refresh failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.rotated", map[string]any{"token_id": claims.ID})
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

type citizenResponse struct {
	NIK          int64  `json:"nik"`
	Nama         string `json:"nama"`
	JenisKelamin string `json:"jenis_kelamin"`
	Email        string `json:"email"`
	NomorHP      string `json:"nomor_hp"`
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return
	}
	nik, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not Found", "profile not found")
		return
	}

	citizen, err := a.principals.CitizenByNIK(r.Context(), nik)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not Found", "profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "profile lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, citizenResponse{
		NIK:          citizen.NIK,
		Nama:         citizen.Nama,
		JenisKelamin: citizen.JenisKelamin,
		Email:        citizen.Email,
		NomorHP:      citizen.NomorHP,
	})
}

type deviceRevokeRequest struct {
	DeviceID string `json:"device_id"`
}

func (a *API) handleDeviceRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req deviceRevokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "device_id is required")
		return
	}

	if err := a.auth.RevokeDevice(r.Context(), req.DeviceID); err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "Service Unavailable", "authorization store unreachable")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "device revoke failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.device.revoked", map[string]any{"device_id": req.DeviceID})
	writeJSON(w, http.StatusOK, map[string]string{"message": "device revoked"})
}
