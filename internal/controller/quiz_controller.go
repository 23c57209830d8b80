package controller

import (
	"intellearn_backend/internal/service"
	"intellearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{QuizService: quizService}
}

// SubmitQuizRequest maps question id to the chosen answer id.
type SubmitQuizRequest struct {
	Answers map[uint]uint `json:"answers"`
}

// @Summary Create quiz
// @Tags quizzes
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Param body body service.QuizInput true "Quiz"
// @Success 201 {object} util.Response{data=model.Quiz}
// @Router /courses/{id}/quizzes [post]
func (c *QuizController) Create(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	courseID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.QuizInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	quiz, err := c.QuizService.CreateQuiz(ctx.Request.Context(), actor, courseID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, quiz)
}

// @Summary List quizzes of a course
// @Tags quizzes
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Course ID"
// @Success 200 {object} util.Response{data=[]model.Quiz}
// @Router /courses/{id}/quizzes [get]
func (c *QuizController) ListByCourse(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	courseID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	quizzes, err := c.QuizService.ListByCourse(ctx.Request.Context(), actor, courseID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, quizzes)
}

// @Summary Get quiz with answer key
// @Description Course owner only; includes correct answers
// @Tags quizzes
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Quiz ID"
// @Success 200 {object} util.Response{data=model.Quiz}
// @Router /quizzes/{id} [get]
func (c *QuizController) Get(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	quiz, err := c.QuizService.GetQuiz(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, quiz)
}

// @Summary Update quiz
// @Tags quizzes
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Quiz ID"
// @Param body body service.QuizInput true "Quiz"
// @Success 200 {object} util.Response{data=model.Quiz}
// @Router /quizzes/{id} [put]
func (c *QuizController) Update(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.QuizInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	quiz, err := c.QuizService.UpdateQuiz(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, quiz)
}

// @Summary Delete quiz
// @Tags quizzes
// @Security ApiKeyAuth
// @Param id path int true "Quiz ID"
// @Success 200 {object} util.Response
// @Router /quizzes/{id} [delete]
func (c *QuizController) Delete(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.QuizService.DeleteQuiz(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": id})
}

// @Summary Take quiz
// @Description Questions and answers without correctness, plus the last submission
// @Tags quizzes
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Quiz ID"
// @Success 200 {object} util.Response{data=service.TakeView}
// @Failure 403 {object} util.Response "Not enrolled"
// @Router /quizzes/{id}/take [get]
func (c *QuizController) Take(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	view, err := c.QuizService.Take(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary Submit quiz
// @Description Grades the answers and replaces any earlier submission
// @Tags quizzes
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Quiz ID"
// @Param body body SubmitQuizRequest true "Selections"
// @Success 200 {object} util.Response{data=object}
// @Router /quizzes/{id}/submit [post]
func (c *QuizController) Submit(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req SubmitQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub, result, err := c.QuizService.Submit(ctx.Request.Context(), actor, id, req.Answers)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"submission": sub, "result": result})
}

// @Summary Add question
// @Tags quizzes
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Quiz ID"
// @Param body body service.QuestionInput true "Question"
// @Success 201 {object} util.Response{data=model.Question}
// @Router /quizzes/{id}/questions [post]
func (c *QuizController) CreateQuestion(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.QuestionInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q, err := c.QuizService.CreateQuestion(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// @Summary Update question
// @Tags quizzes
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Question ID"
// @Param body body service.QuestionInput true "Question"
// @Success 200 {object} util.Response{data=model.Question}
// @Router /questions/{id} [put]
func (c *QuizController) UpdateQuestion(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.QuestionInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q, err := c.QuizService.UpdateQuestion(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// @Summary Delete question
// @Tags quizzes
// @Security ApiKeyAuth
// @Param id path int true "Question ID"
// @Success 200 {object} util.Response
// @Router /questions/{id} [delete]
func (c *QuizController) DeleteQuestion(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.QuizService.DeleteQuestion(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": id})
}

// @Summary Add answer
// @Tags quizzes
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Question ID"
// @Param body body service.AnswerInput true "Answer"
// @Success 201 {object} util.Response{data=model.Answer}
// @Router /questions/{id}/answers [post]
func (c *QuizController) CreateAnswer(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.AnswerInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	a, err := c.QuizService.CreateAnswer(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, a)
}

// @Summary Update answer
// @Tags quizzes
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "Answer ID"
// @Param body body service.AnswerInput true "Answer"
// @Success 200 {object} util.Response{data=model.Answer}
// @Router /answers/{id} [put]
func (c *QuizController) UpdateAnswer(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.AnswerInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	a, err := c.QuizService.UpdateAnswer(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// @Summary Delete answer
// @Tags quizzes
// @Security ApiKeyAuth
// @Param id path int true "Answer ID"
// @Success 200 {object} util.Response
// @Router /answers/{id} [delete]
func (c *QuizController) DeleteAnswer(ctx *gin.Context) {
	actor := requireActor(ctx)
	if actor == nil {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.QuizService.DeleteAnswer(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": id})
}
