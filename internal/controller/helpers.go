package controller

import (
	"intellearn_backend/internal/policy"
	"intellearn_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// currentActor builds the policy actor from the JWT claims, or nil for anonymous requests.
func currentActor(ctx *gin.Context) *policy.Actor {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		return nil
	}
	return &policy.Actor{
		ID:          claims.UserID,
		Role:        claims.Role,
		IsStaff:     claims.IsStaff,
		IsSuperuser: claims.IsSuperuser,
	}
}

// requireActor writes 401 and returns nil when the request is anonymous.
func requireActor(ctx *gin.Context) *policy.Actor {
	actor := currentActor(ctx)
	if actor == nil {
		util.Unauthorized(ctx)
	}
	return actor
}

// pathID parses a positive id path parameter, answering 400 otherwise.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id := util.MustParseUint(ctx.Param(name))
	if id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return id, true
}

func pageParams(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
