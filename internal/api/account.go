package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"persona_chat_go_backend/internal/auth"
	apperrors "persona_chat_go_backend/internal/errors"
	"persona_chat_go_backend/internal/models"
	"persona_chat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
)

const (
	minTopUpCents = 500    // $5
	maxTopUpCents = 100000 // $1000
)

func getBalanceHandler(accounts services.AccountStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		balance, err := accounts.GetBalance(user.ID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance_cents": balance})
	}
}

func createTopUpHandler(stripeService *services.StripeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request struct {
			AmountCents int64 `json:"amount_cents" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}
		if request.AmountCents < minTopUpCents || request.AmountCents > maxTopUpCents {
			apperrors.HandleError(c, apperrors.New400Error(
				fmt.Sprintf("Amount must be between %d and %d cents", minTopUpCents, maxTopUpCents)))
			return
		}

		session, err := stripeService.CreateTopUpSession(user.ID.String(), request.AmountCents)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "url": session.URL})
	}
}

func stripeWebhookHandler(stripeService *services.StripeService, accounts services.AccountStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const MaxBodyBytes = int64(65536)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
			return
		}

		event, err := stripeService.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			log.Warn().Err(err).Msg("stripe webhook signature rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to verify webhook signature"})
			return
		}

		switch event.Type {
		case "checkout.session.completed":
			var session stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse checkout session"})
				return
			}
			if err := processCompletedCheckout(session, accounts); err != nil {
				log.Error().Err(err).Str("session_id", session.ID).Msg("failed to credit top-up")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process checkout session"})
				return
			}
		default:
			log.Debug().Str("event_type", string(event.Type)).Msg("unhandled stripe event")
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// processCompletedCheckout credits the account named in the session. The
// session id doubles as the idempotency key, so Stripe redelivering the event
// cannot double-credit.
func processCompletedCheckout(session stripe.CheckoutSession, accounts services.AccountStore) error {
	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return fmt.Errorf("invalid user ID: %v", err)
	}

	amountCents, err := strconv.ParseInt(session.Metadata["amount_cents"], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount: %v", err)
	}

	_, err = accounts.CreditBalance(userID, amountCents, "stripe", session.ID, "Balance top-up")
	return err
}

func getProfileHandler(userService *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		profile, err := userService.GetProfile(user.ID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		if profile == nil {
			c.JSON(http.StatusOK, gin.H{
				"interests": []string{},
				"skills":    []string{},
				"goals":     []string{},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"interests": decodeList(profile.Interests),
			"skills":    decodeList(profile.Skills),
			"goals":     decodeList(profile.Goals),
		})
	}
}

func updateProfileHandler(userService *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request struct {
			Interests []string `json:"interests"`
			Skills    []string `json:"skills"`
			Goals     []string `json:"goals"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		profile := &models.UserProfile{
			UserID:    user.ID,
			Interests: encodeList(request.Interests),
			Skills:    encodeList(request.Skills),
			Goals:     encodeList(request.Goals),
		}
		if err := userService.UpsertProfile(profile); err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"interests": request.Interests,
			"skills":    request.Skills,
			"goals":     request.Goals,
		})
	}
}

func decodeList(raw []byte) []string {
	out := []string{}
	if len(raw) > 0 {
		json.Unmarshal(raw, &out)
	}
	return out
}

func encodeList(items []string) []byte {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return data
}
