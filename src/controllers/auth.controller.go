package controllers

import (
	"context"
	"log"
	"net/http"

	"promarket/src/db"
	"promarket/src/lib"
	"promarket/src/models"
	"promarket/src/types"
	"promarket/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

// AuthRegister creates the local user row for a Firebase-authenticated
// identity. Professionals additionally get their profile, an owner
// resource record, and a Stripe connected account for payouts.
func AuthRegister(ctx *gin.Context) (id *uint, status int, err error) {
	var body types.RegisterUserRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return nil, http.StatusBadRequest, err
	}
	uid := ctx.GetString("uid")

	conn := db.GetDb()
	var userID uint
	err = conn.Transaction(func(tx *gorm.DB) error {
		user := models.User{
			Name:  body.Name,
			Email: body.Email,
			UID:   uid,
		}
		if body.Role != "" {
			user.Role = body.Role
		}
		if err := tx.Where(models.User{Email: body.Email}).FirstOrCreate(&user).Error; err != nil {
			return err
		}
		userID = user.ID
		if user.Role != types.ROLE_PROFESSIONAL {
			return nil
		}

		pro := models.Professional{
			UserID:      user.ID,
			CompanyName: body.Name,
			Slug:        slug.Make(body.Name),
		}
		if err := tx.Where(models.Professional{UserID: user.ID}).FirstOrCreate(&pro).Error; err != nil {
			return err
		}
		if pro.OwnResourceID == nil {
			owner := models.Employee{
				ProfessionalID: pro.ID,
				Name:           body.Name,
				Email:          &body.Email,
				IsOwner:        true,
			}
			if err := tx.Create(&owner).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Professional{}).Where("id = ?", pro.ID).Update("own_resource_id", owner.ID).Error; err != nil {
				return err
			}
		}
		if pro.StripeAccountId == nil {
			sc := lib.GetStripeClient()
			acc, err := sc.V1Accounts.Create(context.Background(), &stripe.AccountCreateParams{
				Type:  stripe.String(string(stripe.AccountTypeExpress)),
				Email: stripe.String(body.Email),
			})
			if err != nil {
				// Payouts can be connected later from the dashboard.
				log.Printf("[Auth] Could not create connected account for %d: %s\n", pro.ID, err.Error())
				return nil
			}
			if err := tx.Model(&models.Professional{}).Where("id = ?", pro.ID).Update("stripe_account_id", acc.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[Auth] Error registering user: %s\n", err.Error())
		return nil, http.StatusBadRequest, err
	}
	return &userID, http.StatusCreated, nil
}

// AuthLogin exchanges a verified Firebase identity for the first-party
// JWT used by the rest of the API.
func AuthLogin(ctx *gin.Context) (token *string, status int, err error) {
	var body types.LoginRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return nil, http.StatusBadRequest, err
	}
	auth, err := lib.GetFirebaseAuth()
	if err != nil {
		log.Printf("Error initializing FirebaseAuth client: %s\n", err.Error())
		return nil, http.StatusBadRequest, err
	}
	fuser, err := auth.GetUserByEmail(context.Background(), body.Email)
	if err != nil {
		log.Printf("error from Firebase: %s\n", err.Error())
		return nil, http.StatusNotFound, err
	}

	conn := db.GetDb()
	var user models.User
	if err = conn.
		Model(&models.User{}).
		Where(&models.User{Email: fuser.Email}).
		First(&user).
		Error; err != nil {
		log.Printf("error: %s\n", err.Error())
		return nil, http.StatusNotFound, err
	}

	var professionalID uint
	var pro models.Professional
	if err := conn.Where(&models.Professional{UserID: user.ID}).First(&pro).Error; err == nil {
		professionalID = pro.ID
	}

	jwt, err := utils.GenerateJWT(user.Email, user.ID, user.Role, professionalID)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return &jwt, http.StatusOK, nil
}
