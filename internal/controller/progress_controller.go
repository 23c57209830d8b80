package controller

import (
	"intellearn_backend/internal/service"
	"intellearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

// @Summary Mark lesson complete
// @Description Idempotent. Returns the course progress afterwards
// @Tags progress
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Lesson ID"
// @Success 200 {object} util.Response{data=service.CourseProgress}
// @Failure 403 {object} util.Response "Not enrolled"
// @Router /lessons/{id}/complete [post]
func (c *ProgressController) MarkComplete(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	progress, err := c.ProgressService.MarkComplete(ctx.Request.Context(), actor.ID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary Unmark lesson complete
// @Tags progress
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Lesson ID"
// @Success 200 {object} util.Response{data=service.CourseProgress}
// @Router /lessons/{id}/complete [delete]
func (c *ProgressController) UnmarkComplete(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	progress, err := c.ProgressService.UnmarkComplete(ctx.Request.Context(), actor.ID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary Progress across all enrollments
// @Tags progress
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.CourseProgress}
// @Router /progress [get]
func (c *ProgressController) MyProgress(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	progress, err := c.ProgressService.MyProgress(ctx.Request.Context(), actor.ID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary Progress in one course
// @Tags progress
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Success 200 {object} util.Response{data=service.CourseProgress}
// @Router /courses/{id}/progress [get]
func (c *ProgressController) CourseProgress(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	progress, err := c.ProgressService.CourseProgress(ctx.Request.Context(), actor.ID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}
