package main

import (
	"log"
	"net/http"
	"time"

	"promarket/src/common"
	"promarket/src/config"
	"promarket/src/db"
	"promarket/src/models"
	"promarket/src/types"
	"promarket/src/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func projectHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/projects", func(ctx *gin.Context) {
			proID := ctx.GetUint("pro")
			if proID == 0 {
				ctx.Status(http.StatusForbidden)
				return
			}
			var body types.CreateProjectRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			// Duplicate titles get a numeric suffix instead of colliding.
			projectSlug := utils.UniqueSlug(body.Title, func(s string) bool {
				var count int64
				conn.Model(&models.Project{}).Where("slug = ?", s).Count(&count)
				return count > 0
			})
			project := models.Project{
				ProfessionalID:        proID,
				Title:                 body.Title,
				Slug:                  projectSlug,
				Price:                 body.Price,
				Currency:              body.Currency,
				ExecutionDuration:     body.ExecutionDuration,
				ExecutionDurationUnit: types.DurationUnit(body.ExecutionDurationUnit),
				BufferDuration:        body.BufferDuration,
				PreparationDuration:   body.PreparationDuration,
				MinResources:          body.MinResources,
				Status:                types.PROJECT_PUBLISHED,
			}
			if body.Description != "" {
				project.Description = &body.Description
			}
			if body.BufferDurationUnit != "" {
				project.BufferDurationUnit = types.DurationUnit(body.BufferDurationUnit)
			}
			if body.PreparationDurationUnit != "" {
				project.PreparationDurationUnit = types.DurationUnit(body.PreparationDurationUnit)
			}
			for _, v := range body.Variants {
				project.Variants = append(project.Variants, models.ProjectVariant{
					Title:                 v.Title,
					Price:                 v.Price,
					ExecutionDuration:     v.ExecutionDuration,
					ExecutionDurationUnit: types.DurationUnit(v.ExecutionDurationUnit),
					BufferDuration:        v.BufferDuration,
					BufferDurationUnit:    types.DurationUnit(v.BufferDurationUnit),
				})
			}
			err := conn.Transaction(func(tx *gorm.DB) error {
				if len(body.AssignedResources) > 0 {
					var count int64
					if err := tx.Model(&models.Employee{}).
						Where("id IN ? AND professional_id = ?", body.AssignedResources, proID).
						Count(&count).Error; err != nil {
						return err
					}
					if count != int64(len(body.AssignedResources)) {
						return types.NewValidationError("assigned resources must be your own team members")
					}
					for _, id := range body.AssignedResources {
						project.AssignedResources = append(project.AssignedResources, float64(id))
					}
				}
				return tx.Create(&project).Error
			})
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": project})
		}).
		GET("/projects", func(ctx *gin.Context) {
			conn := db.GetDb()
			var projects []models.Project
			q := conn.Where("status = ?", types.PROJECT_PUBLISHED)
			if proID := ctx.GetUint("pro"); proID > 0 {
				q = conn.Where("professional_id = ?", proID)
			}
			if err := q.Order("created_at desc").Find(&projects).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": projects})
		}).
		GET("/projects/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			var project models.Project
			if err := conn.First(&project, params.ID).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": project})
		}).
		POST("/projects/validate-schedule", func(ctx *gin.Context) {
			// Dry-run scheduling check so the UI can validate a chosen
			// start before the RFQ is submitted.
			var body types.ValidateScheduleRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			start, err := time.Parse(config.TIME_PARSE_FORMAT, body.StartDate)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date"})
				return
			}
			ownBlocked, err := ownBlockedIntervals(body.OwnBlocked)
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			conn := db.GetDb()
			var result *common.ScheduleResult
			err = conn.Transaction(func(tx *gorm.DB) error {
				r, err := common.BuildProjectSchedule(tx, &common.ScheduleRequest{
					ProjectID:    body.Project,
					VariantIndex: body.VariantIndex,
					Start:        start,
					StartTime:    body.StartTime,
					OwnBlocked:   ownBlocked,
				})
				if err != nil {
					return err
				}
				result = r
				return nil
			})
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			log.Printf("[Scheduling] Validated window for project %d: %s to %s\n",
				body.Project,
				result.Window.Start.Format(config.TIME_PARSE_FORMAT),
				result.Window.ReservedEnd().Format(config.TIME_PARSE_FORMAT))
			ctx.JSON(http.StatusOK, gin.H{
				"available": true,
				"window":    result.Window,
				"resources": result.Resources,
			})
		})
	return g
}
