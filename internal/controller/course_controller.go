package controller

import (
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/service"
	"intellearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService     *service.CourseService
	EnrollmentService *service.EnrollmentService
}

func NewCourseController(courseService *service.CourseService, enrollmentService *service.EnrollmentService) *CourseController {
	return &CourseController{
		CourseService:     courseService,
		EnrollmentService: enrollmentService,
	}
}

// @Summary List courses
// @Description Public catalog with optional case-insensitive search
// @Tags courses
// @Produce json
// @Param search query string false "Search text"
// @Param field query string false "Restrict search" Enums(title, description, instructor)
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /courses [get]
func (c *CourseController) List(ctx *gin.Context) {
	page, limit := pageParams(ctx)
	items, total, err := c.CourseService.List(ctx.Request.Context(), repository.CourseQuery{
		Search: ctx.Query("search"),
		Field:  repository.SearchField(ctx.Query("field")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: items, Total: total, Page: page, Limit: limit})
}

// @Summary Course detail
// @Description Lessons outline plus, for a logged-in user, paid state and progress
// @Tags courses
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} util.Response{data=service.CourseDetail}
// @Failure 404 {object} util.Response
// @Router /courses/{id} [get]
func (c *CourseController) Detail(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	detail, err := c.CourseService.Detail(ctx.Request.Context(), currentActor(ctx), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// @Summary Create course
// @Tags courses
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.CourseInput true "Course"
// @Success 201 {object} util.Response{data=model.Course}
// @Failure 403 {object} util.Response
// @Router /courses [post]
func (c *CourseController) Create(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	var req service.CourseInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	course, err := c.CourseService.Create(ctx.Request.Context(), actor, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, course)
}

// @Summary Update course
// @Tags courses
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Param body body service.CourseInput true "Course"
// @Success 200 {object} util.Response{data=model.Course}
// @Router /courses/{id} [put]
func (c *CourseController) Update(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.CourseInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	course, err := c.CourseService.Update(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// @Summary Delete course
// @Description Removes the course with its lessons, quizzes, enrollments and payments
// @Tags courses
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Success 200 {object} util.Response
// @Router /courses/{id} [delete]
func (c *CourseController) Delete(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.CourseService.Delete(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": id})
}

// @Summary Enroll in a free course
// @Tags enrollment
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Success 201 {object} util.Response{data=model.Enrollment}
// @Success 200 {object} util.Response{data=model.Enrollment} "Already enrolled"
// @Failure 403 {object} util.Response "Payment required"
// @Router /courses/{id}/enroll [post]
func (c *CourseController) Enroll(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	enrollment, created, err := c.EnrollmentService.EnrollFree(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if created {
		util.Created(ctx, enrollment)
		return
	}
	util.Success(ctx, enrollment)
}

// @Summary My enrollments
// @Tags enrollment
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Enrollment}
// @Router /my-courses [get]
func (c *CourseController) MyCourses(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	enrollments, err := c.EnrollmentService.ListByStudent(ctx.Request.Context(), actor.ID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, enrollments)
}
