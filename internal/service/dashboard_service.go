package service

import (
	"context"
	"intellearn_backend/internal/policy"
	"intellearn_backend/internal/repository"
	"intellearn_backend/internal/util"
)

type DashboardService struct {
	DashboardRepo  *repository.DashboardRepository
	EnrollmentRepo *repository.EnrollmentRepository
	QuizRepo       *repository.QuizRepository
	Progress       *ProgressService
	Access         *Access
}

func NewDashboardService(dashboardRepo *repository.DashboardRepository, enrollmentRepo *repository.EnrollmentRepository, quizRepo *repository.QuizRepository, progress *ProgressService, access *Access) *DashboardService {
	return &DashboardService{
		DashboardRepo:  dashboardRepo,
		EnrollmentRepo: enrollmentRepo,
		QuizRepo:       quizRepo,
		Progress:       progress,
		Access:         access,
	}
}

type InstructorDashboard struct {
	Courses       []repository.CourseStats `json:"courses"`
	TotalCourses  int                      `json:"totalCourses"`
	TotalStudents int64                    `json:"totalStudents"`
	TotalRevenue  float64                  `json:"totalRevenue"`
}

// Instructor summarizes the actor's courses; superusers see every course.
func (s *DashboardService) Instructor(ctx context.Context, actor *policy.Actor) (*InstructorDashboard, error) {
	if err := s.Access.Require(ctx, actor, policy.ViewInstructorDashboard, nil); err != nil {
		return nil, err
	}

	instructorID := actor.ID
	if actor.IsSuperuser {
		instructorID = 0
	}
	stats, err := s.DashboardRepo.InstructorCourseStats(ctx, instructorID)
	if err != nil {
		return nil, err
	}

	out := &InstructorDashboard{Courses: stats, TotalCourses: len(stats)}
	for _, c := range stats {
		out.TotalStudents += c.StudentCount
		out.TotalRevenue += c.Revenue
	}
	out.TotalRevenue = util.Round2(out.TotalRevenue)
	return out, nil
}

type StudentCourseRow struct {
	CourseProgress
	Status        string `json:"status"`
	QuizzesPassed int64  `json:"quizzesPassed"`
}

type StudentDashboard struct {
	Courses        []StudentCourseRow `json:"courses"`
	TotalCourses   int                `json:"totalCourses"`
	CompletedCount int                `json:"completedCount"`
}

func (s *DashboardService) Student(ctx context.Context, actor *policy.Actor) (*StudentDashboard, error) {
	enrollments, err := s.EnrollmentRepo.ListByStudent(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.ID)
	}
	passed, err := s.QuizRepo.PassedCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &StudentDashboard{Courses: make([]StudentCourseRow, 0, len(enrollments)), TotalCourses: len(enrollments)}
	for i := range enrollments {
		p, err := s.Progress.forEnrollment(ctx, &enrollments[i])
		if err != nil {
			return nil, err
		}
		if p.Total > 0 && p.Done == p.Total {
			out.CompletedCount++
		}
		out.Courses = append(out.Courses, StudentCourseRow{
			CourseProgress: *p,
			Status:         string(enrollments[i].Status),
			QuizzesPassed:  passed[enrollments[i].ID],
		})
	}
	return out, nil
}
