package controller

import (
	"intellearn_backend/internal/service"
	"intellearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
	UserService *service.UserService
}

func NewAuthController(authService *service.AuthService, userService *service.UserService) *AuthController {
	return &AuthController{
		AuthService: authService,
		UserService: userService,
	}
}

// Register godoc
// @Summary Register a new user
// @Description Creates a student (default) or instructor account
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body service.RegisterInput true "Registration"
// @Success 201 {object} util.Response{data=model.User}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response "Email already registered"
// @Router /register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req service.RegisterInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.AuthService.Register(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, user)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary Log in
// @Description Exchanges credentials for a JWT
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body LoginRequest true "Credentials"
// @Success 200 {object} util.Response{data=object}
// @Failure 401 {object} util.Response
// @Router /login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	token, user, err := c.AuthService.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"token": token, "user": user})
}

// GetProfile godoc
// @Summary Current user
// @Tags auth
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=model.User}
// @Router /profile [get]
func (c *AuthController) GetProfile(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	user, err := c.UserService.GetUserByID(ctx.Request.Context(), actor.ID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UpdateProfile godoc
// @Summary Update name or bio
// @Tags auth
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.UpdateProfileInput true "Profile fields"
// @Success 200 {object} util.Response{data=model.User}
// @Router /profile [put]
func (c *AuthController) UpdateProfile(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	var req service.UpdateProfileInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	user, err := c.UserService.UpdateProfile(ctx.Request.Context(), actor.ID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// ChangePassword godoc
// @Summary Change password
// @Tags auth
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.ChangePasswordInput true "Current and new password"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response "Current password is incorrect"
// @Router /profile/password [put]
func (c *AuthController) ChangePassword(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	var req service.ChangePasswordInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.UserService.ChangePassword(ctx.Request.Context(), actor.ID, req); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"changed": true})
}
