package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"promarket/src/common"
	"promarket/src/config"
	"promarket/src/db"
	awslib "promarket/src/lib/aws"
	"promarket/src/models"
	"promarket/src/types"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ownsResource verifies that a resource id belongs to the caller's
// professional profile.
func ownsResource(tx *gorm.DB, proID, resourceID uint) error {
	var resource models.Employee
	if err := tx.First(&resource, resourceID).Error; err != nil {
		return types.NewValidationError("resource %d not found", resourceID)
	}
	if resource.ProfessionalID != proID {
		return types.NewAuthorizationError("resource belongs to another professional")
	}
	return nil
}

func professionalHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/resources", func(ctx *gin.Context) {
			proID := ctx.GetUint("pro")
			if proID == 0 {
				ctx.Status(http.StatusForbidden)
				return
			}
			conn := db.GetDb()
			var employees []models.Employee
			if err := conn.Where("professional_id = ?", proID).Find(&employees).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": employees})
		}).
		POST("/resources", func(ctx *gin.Context) {
			proID := ctx.GetUint("pro")
			if proID == 0 {
				ctx.Status(http.StatusForbidden)
				return
			}
			var body types.CreateEmployeeRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			employee := models.Employee{
				ProfessionalID: proID,
				Name:           body.Name,
			}
			if body.Email != "" {
				employee.Email = &body.Email
			}
			conn := db.GetDb()
			if err := conn.Create(&employee).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": employee})
		}).
		GET("/resources/:id/blocked-ranges", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			if err := ownsResource(conn, ctx.GetUint("pro"), params.ID); err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ranges, err := common.ListBlockedRanges(conn, params.ID)
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ranges})
		}).
		POST("/resources/:id/blocked-ranges", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.BlockedRangeRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			start, err := time.Parse(config.TIME_PARSE_FORMAT, body.Start)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid start"})
				return
			}
			end, err := time.Parse(config.TIME_PARSE_FORMAT, body.End)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid end"})
				return
			}
			reason := body.Reason
			if reason == "" {
				reason = "unavailable"
			}
			if common.IsBookingBlockTag(reason) {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "reserved reason prefix"})
				return
			}
			conn := db.GetDb()
			if err := ownsResource(conn, ctx.GetUint("pro"), params.ID); err != nil {
				respondBusinessError(ctx, err)
				return
			}
			block := models.BlockedRange{
				ResourceID: params.ID,
				Start:      start,
				End:        end,
				Reason:     reason,
			}
			if err := conn.Create(&block).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": block})
		}).
		DELETE("/resources/:id/blocked-ranges/:rangeId", func(ctx *gin.Context) {
			var params struct {
				ID      uint `uri:"id" binding:"required"`
				RangeID uint `uri:"rangeId" binding:"required"`
			}
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			if err := ownsResource(conn, ctx.GetUint("pro"), params.ID); err != nil {
				respondBusinessError(ctx, err)
				return
			}
			var block models.BlockedRange
			if err := conn.Where("id = ? AND resource_id = ?", params.RangeID, params.ID).First(&block).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			// Booking-derived blocks are owned by the lifecycle, not the
			// resource owner.
			if common.IsBookingBlockTag(block.Reason) {
				ctx.JSON(http.StatusConflict, gin.H{"error": "booking blocks are released by the booking lifecycle"})
				return
			}
			if err := conn.Unscoped().Delete(&block).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		POST("/professional/id-proof", func(ctx *gin.Context) {
			proID := ctx.GetUint("pro")
			if proID == 0 {
				ctx.Status(http.StatusForbidden)
				return
			}
			file, err := ctx.FormFile("file")
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
				return
			}
			src, err := file.Open()
			if err != nil {
				ctx.Status(http.StatusInternalServerError)
				return
			}
			defer src.Close()
			objectKey := fmt.Sprintf("id-proofs/%d/%s", proID, file.Filename)
			contentType := file.Header.Get("Content-Type")
			if _, err := awslib.UploadObject(ctx.Request.Context(), objectKey, contentType, src); err != nil {
				ctx.Status(http.StatusBadGateway)
				return
			}
			conn := db.GetDb()
			var pro models.Professional
			if err := conn.First(&pro, proID).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			if err := conn.Model(&models.Professional{}).Where("id = ?", proID).Update("id_proof_key", objectKey).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			if pro.IDProofKey != nil && *pro.IDProofKey != objectKey {
				if err := awslib.DeleteObject(ctx.Request.Context(), *pro.IDProofKey); err != nil {
					log.Printf("[Professionals] Could not delete replaced id proof %s: %s\n", *pro.IDProofKey, err.Error())
				}
			}
			ctx.JSON(http.StatusCreated, gin.H{"key": objectKey})
		})
	return g
}
