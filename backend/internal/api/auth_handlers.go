package api

import (
	"circlenet/backend/internal/auth"
	"circlenet/backend/internal/connection"
	"circlenet/backend/internal/profile"

	"github.com/gin-gonic/gin"
)

type signupRequest struct {
	Username  string `json:"username" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"max=50"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type sendOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"omitempty,oneof=verify reset"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type deleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	*auth.TokenPair
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Verified bool   `json:"verified"`
}

func (h *handler) signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}
	uid, err := h.deps.Auth.Signup(c.Request.Context(), auth.SignupInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, gin.H{"user_id": uid})
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, account, err := h.deps.Auth.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, loginResponse{
		TokenPair: pair,
		UserID:    account.ID,
		Username:  account.Username,
		Verified:  account.IsVerified,
	})
}

func (h *handler) refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.deps.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, pair)
}

func (h *handler) sendOTP(c *gin.Context) {
	var req sendOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = auth.PurposeVerify
	}
	if err := h.deps.Auth.SendOTP(c.Request.Context(), req.Email, purpose); err != nil {
		fail(c, err)
		return
	}
	done(c, "if the address is registered a code has been sent")
}

func (h *handler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.deps.Auth.VerifyOTP(c.Request.Context(), req.Email, req.Code); err != nil {
		fail(c, err)
		return
	}
	done(c, "email verified")
}

func (h *handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.deps.Auth.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	done(c, "password updated")
}

func (h *handler) me(c *gin.Context) {
	me, err := h.deps.Auth.Me(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, me)
}

func (h *handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.deps.Auth.ChangePassword(c.Request.Context(), userID(c), req.OldPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	done(c, "password updated")
}

func (h *handler) deleteAccount(c *gin.Context) {
	var req deleteAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.deps.Auth.DeleteAccount(c.Request.Context(), userID(c), req.Password); err != nil {
		fail(c, err)
		return
	}
	done(c, "account deleted")
}

func (h *handler) taxonomy(c *gin.Context) {
	var t *connection.Taxonomy
	if h.deps.Connections != nil {
		t = h.deps.Connections.Taxonomy()
	}
	ok(c, t)
}

func (h *handler) vibeCatalogue(c *gin.Context) {
	ok(c, profile.Catalogue())
}
