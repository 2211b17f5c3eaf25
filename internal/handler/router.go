package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-admission-api/internal/middleware"
	"github.com/noah-isme/phd-admission-api/internal/models"
)

// Handlers bundles every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth         *AuthHandler
	Applications *ApplicationHandler
	Intake       *IntakeHandler
	Scrutiny     *ScrutinyHandler
	Interviews   *InterviewHandler
	Verification *VerificationHandler
	Fees         *FeeHandler
	Guides       *GuideHandler
	Certificates *CertificateHandler
	Exemptions   *ExemptionHandler
	Analytics    *AnalyticsHandler
}

// RouteDeps carries the cross-cutting collaborators of the route table.
type RouteDeps struct {
	Tokens middleware.TokenValidator
	Audit  middleware.AuditSink
	Logger *zap.Logger
}

var (
	staff      = models.StaffRoles
	admins     = []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin}
	applicants = []models.UserRole{models.RoleApplicant}
	guides     = []models.UserRole{models.RoleFaculty, models.RoleAdmin, models.RoleSuperAdmin, models.RoleDRC}
	payers     = []models.UserRole{models.RoleApplicant, models.RoleDRC, models.RoleAdmin, models.RoleSuperAdmin}
)

// RegisterRoutes mounts the admission route table on api.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, deps RouteDeps) {
	audit := func(action string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, deps.Logger, action, "application")
	}
	authed := middleware.JWT(deps.Tokens)
	roles := func(set []models.UserRole) gin.HandlerFunc {
		return middleware.RequireRoles(set...)
	}

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	pet := api.Group("/pet")
	{
		pet.POST("/apply", middleware.OptionalJWT(deps.Tokens), audit(models.AuditActionApplicationSubmitted), h.Applications.Apply)
		pet.GET("/status/:ref", h.Applications.StatusByReference)

		exemption := pet.Group("/exemption", authed)
		exemption.POST("/request", roles(applicants),
			middleware.Audit(deps.Audit, deps.Logger, models.AuditActionExemptionRequested, "pet_exemption"), h.Exemptions.Request)
		exemption.GET("/pending", roles(staff), h.Exemptions.Pending)
		exemption.POST("/:id/review", roles(staff),
			middleware.Audit(deps.Audit, deps.Logger, models.AuditActionExemptionReviewed, "pet_exemption"), h.Exemptions.Review)
	}

	api.GET("/certificates/download", h.Certificates.Download)

	secured := api.Group("", authed)
	{
		secured.GET("/my-applications", h.Applications.Mine)

		apps := secured.Group("/applications")
		apps.GET("", roles(staff), h.Applications.List)
		apps.GET("/export", roles(admins), h.Applications.Export)
		apps.GET("/:id", h.Applications.Get)
		apps.GET("/:id/timeline", h.Applications.Timeline)
		apps.DELETE("/:id", roles(admins), audit(models.AuditActionApplicationDeleted), h.Applications.Delete)
		apps.POST("/:id/certificate", roles(staff), audit(models.AuditActionCertificateIssued), h.Certificates.Issue)
		apps.GET("/:id/certificate", h.Certificates.Get)
		apps.POST("/:id/student-accept", roles(applicants), audit(models.AuditActionGuideAcceptedByStudent), h.Guides.StudentAccept)
		apps.POST("/:id/guide-confirm", roles(guides), audit(models.AuditActionGuideDecision), h.Guides.Confirm)

		intake := secured.Group("/intake", roles(admins))
		intake.GET("/pending", h.Intake.Pending)
		intake.POST("/:id/approve", audit(models.AuditActionIntakeApproved), h.Intake.Approve)
		intake.POST("/:id/reject", audit(models.AuditActionIntakeRejected), h.Intake.Reject)

		scrutiny := secured.Group("/scrutiny", roles(staff))
		scrutiny.GET("/pending", h.Scrutiny.Pending)
		scrutiny.POST("/:id/start", audit(models.AuditActionScrutinyStarted), h.Scrutiny.Start)
		scrutiny.POST("/:id/decision", audit(models.AuditActionScrutinyDecided), h.Scrutiny.Decide)

		// :id is the application for schedule and the interview for evaluate.
		interviews := secured.Group("/interviews", roles(staff))
		interviews.GET("/eligible", h.Interviews.Eligible)
		interviews.GET("/evaluation/pending", h.Interviews.EvaluationPending)
		interviews.POST("/:id/schedule", audit(models.AuditActionInterviewScheduled), h.Interviews.Schedule)
		interviews.POST("/:id/evaluate", audit(models.AuditActionInterviewEvaluated), h.Interviews.Evaluate)

		verification := secured.Group("/verification", roles(staff))
		verification.GET("/pending", h.Verification.Pending)
		verification.POST("/:id/submit", audit(models.AuditActionDocumentsVerified), h.Verification.Submit)

		fees := secured.Group("/fees")
		fees.GET("/pending", roles(staff), h.Fees.Pending)
		fees.POST("/:id/pay", roles(payers), audit(models.AuditActionFeePaid), h.Fees.Pay)

		fee := secured.Group("/fee")
		fee.POST("/initiate", roles(applicants), audit(models.AuditActionFeeInitiated), h.Fees.Initiate)
		fee.POST("/confirm", roles(applicants), audit(models.AuditActionFeeConfirmed), h.Fees.Confirm)
		fee.GET("/:id", h.Fees.Info)
		fee.POST("/:id/verify", roles(staff), audit(models.AuditActionFeeVerified), h.Fees.Verify)
		fee.POST("/:id/reject", roles(staff), audit(models.AuditActionFeeRejected), h.Fees.Reject)

		guideAdmin := secured.Group("/guides", roles(staff))
		guideAdmin.GET("/available", h.Guides.Available)
		guideAdmin.GET("/pending", h.Guides.Pending)
		guideAdmin.POST("/:id/allocate", audit(models.AuditActionGuideAllocated), h.Guides.Allocate)

		guide := secured.Group("/guide")
		guide.POST("/verify", roles(guides), audit(models.AuditActionGuideVerified), h.Guides.Verify)
		guide.GET("/pending_verification", roles([]models.UserRole{models.RoleFaculty}), h.Guides.PendingVerification)
		guide.GET("/scholars", roles([]models.UserRole{models.RoleFaculty}), h.Guides.Scholars)
		guide.GET("/acceptance/:id", h.Guides.Acceptance)

		analytics := secured.Group("/analytics", roles(staff))
		analytics.GET("/stats", h.Analytics.Stats)
		analytics.GET("/system", roles(admins), h.Analytics.System)
	}
}
