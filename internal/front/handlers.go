package front

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Nerzal/gocloak/v13"
	"github.com/gin-gonic/gin"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/authmw"
)

type Request struct {
	Username     string `form:"username" json:"username"`
	Password     string `form:"password" json:"password"`
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

func (r Request) validateLogin() error {
	if r.Username == "" || r.Password == "" {
		return fmt.Errorf("cannot have empty fields")
	}

	return nil
}

func (r Request) validateRefresh() error {
	if r.RefreshToken == "" {
		return fmt.Errorf("missing refresh token")
	}

	return nil
}

func tokenPayload(jwt *gocloak.JWT) gin.H {
	return gin.H{
		"access_token":       jwt.AccessToken,
		"refresh_token":      jwt.RefreshToken,
		"expires_in":         jwt.ExpiresIn,
		"refresh_expires_in": jwt.RefreshExpiresIn,
		"token_type":         jwt.TokenType,
	}
}

func (a *api) handleLogin(c *gin.Context) {
	var r Request
	if err := c.ShouldBind(&r); err != nil {
		a.log.Warnf("failed to bind login request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad data"})
		return
	}
	if err := r.validateLogin(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jwt, err := a.auth.LoginUser(c.Request.Context(), r.Username, r.Password)
	if err != nil {
		a.log.WithField("username", r.Username).Warnf("login failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", jwt.AccessToken, jwt.ExpiresIn, "/", "", false, true)
	respondInFormat(c, http.StatusOK, tokenPayload(jwt))
}

func (a *api) handleRefresh(c *gin.Context) {
	var r Request
	if err := c.ShouldBind(&r); err != nil || r.validateRefresh() != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing refresh token"})
		return
	}

	jwt, err := a.auth.RefreshToken(c.Request.Context(), r.RefreshToken)
	if err != nil {
		a.log.Warnf("token refresh failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", jwt.AccessToken, jwt.ExpiresIn, "/", "", false, true)
	respondInFormat(c, http.StatusOK, tokenPayload(jwt))
}

func (a *api) handleLogout(c *gin.Context) {
	var r Request
	if err := c.ShouldBind(&r); err != nil || r.validateRefresh() != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing refresh token"})
		return
	}

	if err := a.auth.Logout(c.Request.Context(), r.RefreshToken); err != nil {
		a.log.Warnf("logout failed: %v", err)
	}
	c.SetCookie("access_token", "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func handleMe(c *gin.Context) {
	respondInFormat(c, http.StatusOK, gin.H{
		"sub":   authmw.Subject(c),
		"name":  authmw.DisplayName(c),
		"roles": authmw.Roles(c),
	})
}

// handleMountView creates the per-page state for the caller. The view keeps
// the caller's bearer for every downstream call it makes.
func (a *api) handleMountView(c *gin.Context) {
	v, err := a.views.mount(authmw.AccessToken(c), authmw.Subject(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	a.log.WithField("view", v.ID).Debug("view mounted")
	respondInFormat(c, http.StatusCreated, gin.H{"view": v.ID})
}

func (a *api) handleUnmountView(c *gin.Context) {
	id := c.Param("view")
	if err := a.views.unmount(id, authmw.Subject(c)); err != nil {
		if errors.Is(err, errViewNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	a.log.WithField("view", id).Debug("view unmounted")
	c.Status(http.StatusNoContent)
}
