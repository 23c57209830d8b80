package controller

import (
	"intellearn_backend/internal/service"
	"intellearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LessonController struct {
	LessonService *service.LessonService
}

func NewLessonController(lessonService *service.LessonService) *LessonController {
	return &LessonController{LessonService: lessonService}
}

// @Summary List lessons of a course
// @Description Requires payment or enrollment unless the caller owns the course
// @Tags lessons
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Success 200 {object} util.Response{data=[]model.Lesson}
// @Failure 403 {object} util.Response
// @Router /courses/{id}/lessons [get]
func (c *LessonController) ListByCourse(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	courseID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	lessons, err := c.LessonService.ListByCourse(ctx.Request.Context(), actor, courseID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, lessons)
}

// @Summary Create lesson
// @Tags lessons
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Param body body service.LessonInput true "Lesson"
// @Success 201 {object} util.Response{data=model.Lesson}
// @Failure 409 {object} util.Response "Order already used"
// @Router /courses/{id}/lessons [post]
func (c *LessonController) Create(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	courseID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.LessonInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	lesson, err := c.LessonService.Create(ctx.Request.Context(), actor, courseID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, lesson)
}

// @Summary Get lesson
// @Tags lessons
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Lesson ID"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Router /lessons/{id} [get]
func (c *LessonController) Get(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	lesson, err := c.LessonService.Get(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}

// @Summary Update lesson
// @Tags lessons
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Lesson ID"
// @Param body body service.LessonInput true "Lesson"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Router /lessons/{id} [put]
func (c *LessonController) Update(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.LessonInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	lesson, err := c.LessonService.Update(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}

// @Summary Delete lesson
// @Tags lessons
// @Security ApiKeyAuth
// @Param id path int true "Lesson ID"
// @Success 200 {object} util.Response
// @Router /lessons/{id} [delete]
func (c *LessonController) Delete(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.LessonService.Delete(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": id})
}

// @Summary Upload lesson video
// @Description Stores the file and records its duration when ffprobe is available
// @Tags lessons
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Lesson ID"
// @Param video formData file true "Video file"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Router /lessons/{id}/video [post]
func (c *LessonController) UploadVideo(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	file, err := ctx.FormFile("video")
	if err != nil {
		util.BadRequest(ctx, "video file is required")
		return
	}
	lesson, err := c.LessonService.UploadVideo(ctx.Request.Context(), actor, id, file)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}
