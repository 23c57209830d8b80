package controller

import (
	"intellearn_backend/internal/service"
	"intellearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DashboardController struct {
	DashboardService *service.DashboardService
}

func NewDashboardController(dashboardService *service.DashboardService) *DashboardController {
	return &DashboardController{DashboardService: dashboardService}
}

// @Summary Instructor dashboard
// @Description Students and revenue per course; superusers see every course
// @Tags dashboard
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.InstructorDashboard}
// @Router /dashboard/instructor [get]
func (c *DashboardController) Instructor(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	dashboard, err := c.DashboardService.Instructor(ctx.Request.Context(), actor)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, dashboard)
}

// @Summary Student dashboard
// @Tags dashboard
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.StudentDashboard}
// @Router /dashboard/student [get]
func (c *DashboardController) Student(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	dashboard, err := c.DashboardService.Student(ctx.Request.Context(), actor)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, dashboard)
}
