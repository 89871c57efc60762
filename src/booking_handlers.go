package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"time"

	"promarket/src/common"
	"promarket/src/config"
	"promarket/src/db"
	"promarket/src/lib"
	awslib "promarket/src/lib/aws"
	"promarket/src/models"
	"promarket/src/types"
	"promarket/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/yeqown/go-qrcode"
	"gorm.io/gorm"
)

func actorFromContext(ctx *gin.Context) common.Actor {
	return common.Actor{
		ID:             ctx.GetUint("id"),
		Role:           ctx.GetString("role"),
		ProfessionalID: ctx.GetUint("pro"),
	}
}

// respondBusinessError maps the error taxonomy onto HTTP statuses.
// Anything unrecognized is an infrastructure error.
func respondBusinessError(ctx *gin.Context, err error) {
	switch {
	case types.IsValidationError(err):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case types.IsAuthorizationError(err):
		ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case types.IsConflictError(err):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case types.IsDependencyError(err):
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		log.Printf("[API] Unexpected error: %s\n", err.Error())
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
	}
}

// ownBlockedIntervals parses customer-declared unavailable dates into
// day-long intervals.
func ownBlockedIntervals(dates []string) ([]common.Interval, error) {
	out := []common.Interval{}
	for _, d := range dates {
		day, err := time.Parse(config.DATE_PARSE_FORMAT, d)
		if err != nil {
			return nil, types.NewValidationError("invalid blocked date: %s", d)
		}
		out = append(out, common.Interval{Start: day, End: day.AddDate(0, 0, 1), Reason: "own-calendar"})
	}
	return out, nil
}

func transitionEndpoint(to types.BookingStatus) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var params types.SimpleRequestParams
		if err := ctx.ShouldBindUri(&params); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts := &common.TransitionOptions{}
		if to == types.BOOKING_CANCELED {
			var body types.CancelBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			opts.Reason = &body.Reason
		}
		if to == types.BOOKING_QUOTE_REJECTED {
			var body types.RejectQuoteRequestBody
			if err := ctx.ShouldBindJSON(&body); err == nil && body.Reason != "" {
				opts.Note = &body.Reason
			}
		}
		conn := db.GetDb()
		result, err := common.TransitionBooking(conn, params.ID, to, actorFromContext(ctx), opts)
		if err != nil {
			respondBusinessError(ctx, err)
			return
		}
		if !result.NoOp {
			go common.NotifyBookingStatus(conn, result.Booking, result.From, to)
		}
		resp := gin.H{"data": result.Booking}
		if result.ClientSecret != "" {
			resp["client_secret"] = result.ClientSecret
		}
		if result.ReserveWarning != "" {
			resp["warning"] = result.ReserveWarning
		}
		ctx.JSON(http.StatusOK, resp)
	}
}

func bookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/bookings", func(ctx *gin.Context) {
			var body types.CreateRFQRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if (body.Professional == nil) == (body.Project == nil) {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of professional or project must be set"})
				return
			}
			requestedDate, err := time.Parse(config.TIME_PARSE_FORMAT, body.RequestedDate)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid requested date"})
				return
			}
			ownBlocked, err := ownBlockedIntervals(body.OwnBlockedDates)
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}

			customerID := ctx.GetUint("id")
			conn := db.GetDb()
			booking := models.Booking{
				CustomerID:    customerID,
				Status:        types.BOOKING_RFQ,
				ServiceType:   body.ServiceType,
				RequestedDate: &requestedDate,
				RequestedTime: body.RequestedTime,
				VariantIndex:  body.VariantIndex,
			}
			if body.Description != "" {
				booking.Description = &body.Description
			}
			if body.Urgency != "" {
				booking.Urgency = types.UrgencyLevel(body.Urgency)
			}
			if body.BudgetRange != "" {
				booking.BudgetRange = &body.BudgetRange
			}
			if body.ServiceAddress != "" {
				booking.ServiceAddress = &body.ServiceAddress
			}
			for _, a := range body.Answers {
				booking.Answers = append(booking.Answers, map[string]any{"question": a.Question, "answer": a.Answer})
			}
			for _, key := range body.Attachments {
				booking.Attachments = append(booking.Attachments, key)
			}
			for _, d := range body.OwnBlockedDates {
				booking.OwnBlockedDates = append(booking.OwnBlockedDates, d)
			}

			err = conn.Transaction(func(tx *gorm.DB) error {
				if body.Professional != nil {
					var pro models.Professional
					if err := tx.First(&pro, *body.Professional).Error; err != nil {
						return types.NewValidationError("professional %d not found", *body.Professional)
					}
					booking.BookingType = types.BOOKING_TYPE_PROFESSIONAL
					booking.ProfessionalID = &pro.ID
				} else {
					booking.BookingType = types.BOOKING_TYPE_PROJECT
					booking.ProjectID = body.Project
					schedule, err := common.BuildProjectSchedule(tx, &common.ScheduleRequest{
						ProjectID:    *body.Project,
						VariantIndex: body.VariantIndex,
						Start:        requestedDate,
						StartTime:    body.RequestedTime,
						OwnBlocked:   ownBlocked,
					})
					if err != nil {
						return err
					}
					common.ApplyScheduleToBooking(&booking, schedule)
				}
				return tx.Create(&booking).Error
			})
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}

			if booking.ServiceAddress != nil {
				go func(id uint, address string) {
					geo := lib.GeocodeAddress(context.Background(), address)
					if geo == "" {
						return
					}
					meta := types.Metadata{"latlng": geo}
					if err := db.GetDb().Model(&models.Booking{}).Where("id = ?", id).Update("service_geo", &meta).Error; err != nil {
						log.Printf("[Bookings] Could not store geocode for %d: %s\n", id, err.Error())
					}
				}(booking.ID, *booking.ServiceAddress)
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": booking})
		}).
		GET("/bookings", func(ctx *gin.Context) {
			var filters types.BookingsQueryFilters
			if err := ctx.ShouldBindQuery(&filters); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			actor := actorFromContext(ctx)
			conn := db.GetDb()
			q := conn.Model(&models.Booking{}).Order("created_at desc")
			if actor.ProfessionalID > 0 {
				q = q.Where(
					"professional_id = ? OR project_id IN (?)",
					actor.ProfessionalID,
					conn.Model(&models.Project{}).Select("id").Where("professional_id = ?", actor.ProfessionalID),
				)
			} else {
				q = q.Where("customer_id = ?", actor.ID)
			}
			if filters.Status != "" {
				q = q.Where("status = ?", filters.Status)
			}
			if filters.Type != "" {
				q = q.Where("booking_type = ?", filters.Type)
			}
			var bookings []models.Booking
			if err := q.Find(&bookings).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			var booking models.Booking
			if err := conn.
				Preload("Project").
				Preload("StatusLogs").
				First(&booking, params.ID).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			if err := common.AuthorizeBookingActor(conn, &booking, actorFromContext(ctx)); err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		GET("/bookings/:id/status-log", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			var booking models.Booking
			if err := conn.First(&booking, params.ID).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			if err := common.AuthorizeBookingActor(conn, &booking, actorFromContext(ctx)); err != nil {
				respondBusinessError(ctx, err)
				return
			}
			var logs []models.StatusLog
			if err := conn.
				Where("booking_id = ?", params.ID).
				Order("created_at asc").
				Find(&logs).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": logs})
		}).
		POST("/bookings/:id/quote", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.SubmitQuoteRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			validUntil, err := time.Parse(config.TIME_PARSE_FORMAT, body.ValidUntil)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid validity deadline"})
				return
			}
			conn := db.GetDb()
			booking, err := common.SubmitQuote(conn, params.ID, actorFromContext(ctx), &body, validUntil)
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			// Sweep this quote close to its deadline instead of waiting
			// for the periodic job.
			if _, err := lib.NewScheduledJob(validUntil, map[string]string{
				"name":     fmt.Sprintf("quote-expiry-%d", booking.ID),
				"topic":    utils.WithSuffix(os.Getenv("NOTIFICATIONS_QUEUE")),
				"clientId": "quote-expiry",
			}, types.JSONB{"booking_id": booking.ID, "action": "expire-quote"}); err != nil {
				log.Printf("[Bookings] Could not schedule quote expiry for %d: %s\n", booking.ID, err.Error())
			}
			go common.NotifyBookingStatus(conn, booking, types.BOOKING_RFQ, types.BOOKING_QUOTED)
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		POST("/bookings/:id/accept", transitionEndpoint(types.BOOKING_QUOTE_ACCEPTED)).
		POST("/bookings/:id/reject", transitionEndpoint(types.BOOKING_QUOTE_REJECTED)).
		POST("/bookings/:id/cancel", transitionEndpoint(types.BOOKING_CANCELED)).
		POST("/bookings/:id/start", transitionEndpoint(types.BOOKING_IN_PROGRESS)).
		POST("/bookings/:id/complete", transitionEndpoint(types.BOOKING_COMPLETED)).
		POST("/bookings/:id/payment", func(ctx *gin.Context) {
			// Retry endpoint: returns the client secret for an eligible
			// booking, creating a fresh intent when the last one failed.
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			var secret string
			err := conn.Transaction(func(tx *gorm.DB) error {
				var booking models.Booking
				if err := tx.First(&booking, params.ID).Error; err != nil {
					return types.NewValidationError("booking %d not found", params.ID)
				}
				if booking.CustomerID != ctx.GetUint("id") {
					return types.NewAuthorizationError("only the customer may pay for this booking")
				}
				s, err := common.CreateAuthorization(tx, &booking)
				if err != nil {
					return err
				}
				secret = s
				return nil
			})
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"client_secret": secret})
		}).
		GET("/bookings/:id/voucher", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			var booking models.Booking
			if err := conn.First(&booking, params.ID).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			if booking.CustomerID != ctx.GetUint("id") && ctx.GetString("role") != types.ROLE_ADMIN {
				ctx.Status(http.StatusForbidden)
				return
			}
			if booking.Status != types.BOOKING_BOOKED && booking.Status != types.BOOKING_IN_PROGRESS && booking.Status != types.BOOKING_COMPLETED {
				ctx.JSON(http.StatusConflict, gin.H{"error": "voucher available once the booking is confirmed"})
				return
			}
			key, err := utils.VoucherKey()
			if err != nil {
				log.Printf("[Bookings] Voucher key unavailable: %s\n", err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
			rawText := fmt.Sprintf("booking:%d:customer:%d", booking.ID, booking.CustomerID)
			encrypted, err := utils.EncryptMessage(key, rawText)
			if err != nil {
				log.Printf("[Bookings] Error encrypting voucher: %s\n", err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
			qrc, err := qrcode.New(encrypted)
			if err != nil {
				ctx.Status(http.StatusInternalServerError)
				return
			}
			filename := fmt.Sprintf("voucher-%d.jpeg", booking.ID)
			filepath := path.Join(os.TempDir(), filename)
			if err := qrc.Save(filepath); err != nil {
				log.Printf("Could not save qrcode to file [%s]: %s\n", filepath, err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
			defer os.Remove(filepath)
			f, err := os.Open(filepath)
			if err != nil {
				ctx.Status(http.StatusInternalServerError)
				return
			}
			defer f.Close()
			objectKey := fmt.Sprintf("vouchers/%s", filename)
			if _, err := awslib.UploadObject(ctx.Request.Context(), objectKey, "image/jpeg", f); err != nil {
				ctx.Status(http.StatusInternalServerError)
				return
			}
			url, err := awslib.PresignGetObject(ctx.Request.Context(), objectKey, 15*time.Minute)
			if err != nil {
				ctx.Status(http.StatusInternalServerError)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"url": url})
		}).
		POST("/bookings/:id/verify-voucher", func(ctx *gin.Context) {
			// The professional scans the customer's voucher at the door;
			// the code decrypts back to the booking and customer ids.
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.VerifyVoucherRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if ctx.GetUint("pro") == 0 && ctx.GetString("role") != types.ROLE_ADMIN {
				ctx.Status(http.StatusForbidden)
				return
			}
			conn := db.GetDb()
			var booking models.Booking
			if err := conn.First(&booking, params.ID).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			if err := common.AuthorizeBookingActor(conn, &booking, actorFromContext(ctx)); err != nil {
				respondBusinessError(ctx, err)
				return
			}
			key, err := utils.VoucherKey()
			if err != nil {
				log.Printf("[Bookings] Voucher key unavailable: %s\n", err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
			plain, err := utils.DecryptMessage(key, body.Code)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid voucher"})
				return
			}
			expected := fmt.Sprintf("booking:%d:customer:%d", booking.ID, booking.CustomerID)
			ctx.JSON(http.StatusOK, gin.H{"valid": *plain == expected})
		}).
		POST("/bookings/:id/attachments", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			var booking models.Booking
			if err := conn.First(&booking, params.ID).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			if booking.CustomerID != ctx.GetUint("id") {
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
			objectKey := fmt.Sprintf("bookings/%d/%s", booking.ID, file.Filename)
			contentType := file.Header.Get("Content-Type")
			if _, err := awslib.UploadObject(ctx.Request.Context(), objectKey, contentType, src); err != nil {
				ctx.Status(http.StatusBadGateway)
				return
			}
			attachments := append(booking.Attachments, objectKey)
			if err := conn.Model(&models.Booking{}).Where("id = ?", booking.ID).Update("attachments", attachments).Error; err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"key": objectKey})
		})
	return g
}

// adminBookingHandlers hosts the refund endpoints, admin only.
func adminBookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.POST("/bookings/:id/refund", func(ctx *gin.Context) {
		var params types.SimpleRequestParams
		if err := ctx.ShouldBindUri(&params); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var body types.RefundRequestBody
		if err := ctx.ShouldBindJSON(&body); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		conn := db.GetDb()
		err := conn.Transaction(func(tx *gorm.DB) error {
			var booking models.Booking
			if err := tx.First(&booking, params.ID).Error; err != nil {
				return types.NewValidationError("booking %d not found", params.ID)
			}
			if body.Amount != nil {
				return common.ApplyPartialRefund(tx, &booking, *body.Amount, body.Reason, "admin", body.Notes)
			}
			if err := common.ApplyFullRefund(tx, &booking, body.Reason, "admin", body.Notes); err != nil {
				return err
			}
			// A full refund frees the resource time regardless of
			// whether the lifecycle graph allows a status move.
			return common.ReleaseBookingBlocks(tx, booking.ID)
		})
		if err != nil {
			respondBusinessError(ctx, err)
			return
		}
		if body.Amount == nil {
			note := "full refund issued by admin"
			if _, err := common.TransitionBooking(conn, params.ID, types.BOOKING_REFUNDED, common.SystemActor, &common.TransitionOptions{Note: &note}); err != nil && !types.IsConflictError(err) {
				respondBusinessError(ctx, err)
				return
			}
		}
		ctx.Status(http.StatusOK)
	})
	return g
}
