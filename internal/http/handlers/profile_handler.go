// Profile HTTP handlers.
//
//   - PUT    /profile  (log in: store the profile for its token)
//   - GET    /profile  (current profile)
//   - DELETE /profile  (log out)
//
// The token is always taken from the Authorization bearer header.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-session-gateway/internal/domain"
	"github.com/tbourn/go-session-gateway/internal/services"
)

// PutProfileResponse echoes the stored profile and how long it is held.
type PutProfileResponse struct {
	Profile   domain.UserProfile `json:"profile"`
	ExpiresIn int64              `json:"expires_in" example:"3600"`
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func requireBearer(c *gin.Context) (string, bool) {
	tok := bearerToken(c)
	if tok == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
		return "", false
	}
	return tok, true
}

// PutProfile godoc
// @ID          putProfile
// @Summary     Store the logged-in profile
// @Description Holds the profile until its token expires (capped by PROFILE_TTL).
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string              true  "Bearer token"
// @Param       body           body    domain.UserProfile  true  "Profile"
// @Success     200  {object}  handlers.PutProfileResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or expired token"
// @Failure     403  {object}  handlers.ErrorResponse  "Inactive profile"
// @Router      /profile [put]
func (h *Handlers) PutProfile(c *gin.Context) {
	tok, okTok := requireBearer(c)
	if !okTok {
		return
	}
	var p domain.UserProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p.Token = tok

	ttl, err := h.profiles.Put(c.Request.Context(), p)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidProfile):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrProfileExpired):
		fail(c, http.StatusUnauthorized, ErrCodeProfileExpired, "token expired")
		return
	case errors.Is(err, services.ErrProfileInactive):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "profile is not active")
		return
	default:
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "could not store profile", err)
		return
	}
	ok(c, http.StatusOK, PutProfileResponse{Profile: p, ExpiresIn: int64(ttl.Seconds())})
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Current profile
// @Tags        Profile
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token"
// @Success     200  {object}  domain.UserProfile
// @Failure     401  {object}  handlers.ErrorResponse  "Missing token"
// @Failure     404  {object}  handlers.ErrorResponse  "No profile for token"
// @Router      /profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	tok, okTok := requireBearer(c)
	if !okTok {
		return
	}
	p, err := h.profiles.Get(c.Request.Context(), tok)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
			return
		}
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "could not load profile", err)
		return
	}
	ok(c, http.StatusOK, p)
}

// Logout godoc
// @ID          logout
// @Summary     Discard the profile
// @Tags        Profile
// @Param       Authorization  header  string  true  "Bearer token"
// @Success     204  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing token"
// @Router      /profile [delete]
func (h *Handlers) Logout(c *gin.Context) {
	tok, okTok := requireBearer(c)
	if !okTok {
		return
	}
	if err := h.profiles.Logout(c.Request.Context(), tok); err != nil {
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "could not log out", err)
		return
	}
	noContent(c)
}
