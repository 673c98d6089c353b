// internal/controller/auth_controller.go
package controller

import (
	"net/http"

	"github.com/unclebandit/leadflow-backend/internal/service"
)

type AuthController struct {
	AuthService *service.AuthService
}

func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var body service.LoginInput
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, err)
		return
	}

	res, err := c.AuthService.Login(r.Context(), body)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateUser adds a user to the caller's organization.
func (c *AuthController) CreateUser(w http.ResponseWriter, r *http.Request) {
	var body service.CreateUserInput
	if err := decodeBody(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	org, err := orgOf(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if _, err := c.AuthService.CreateUser(r.Context(), org, body); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}
