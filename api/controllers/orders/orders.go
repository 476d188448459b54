package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nokasa/pickup-backend/api/middleware"
	"github.com/nokasa/pickup-backend/api/responses"
	"github.com/nokasa/pickup-backend/api/validators"
	internalorders "github.com/nokasa/pickup-backend/internal/orders"
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	pkgerrors "github.com/nokasa/pickup-backend/pkg/errors"
	"github.com/nokasa/pickup-backend/pkg/logger"
	"github.com/nokasa/pickup-backend/pkg/pagination"
)

const (
	orderIDParam = "orderID"

	maxReasonLength  = 500
	maxAddressLength = 255
)

type createOrderRequest struct {
	ScheduledPickupTime time.Time                   `json:"scheduledPickupTime" validate:"required"`
	PickupAddress       internalorders.AddressInput `json:"pickupAddress"`
	Items               models.LineItems            `json:"items" validate:"required,min=1"`
	EstimatedWeight     decimal.Decimal             `json:"estimatedWeight"`
	ApplicationID       *int64                      `json:"applicationId,omitempty"`
}

type agentRequest struct {
	AgentID int64 `json:"agentId" validate:"required,gt=0"`
}

type reasonsRequest struct {
	Reasons []string `json:"reasons" validate:"required,min=1"`
}

type confirmRequest struct {
	OTP string `json:"otp" validate:"required"`
}

type itemsRequest struct {
	Items models.LineItems `json:"items" validate:"required,min=1"`
}

// Create books a pickup for the calling user.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			Principal:           principal,
			ScheduledPickupTime: body.ScheduledPickupTime,
			PickupAddress:       sanitizeAddress(body.PickupAddress),
			Items:               body.Items,
			EstimatedWeight:     body.EstimatedWeight,
			ApplicationID:       body.ApplicationID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Accept assigns one of the vendor's agents to a NEW order.
func Accept(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, orderID, err := orderRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body agentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Accept(r.Context(), internalorders.AcceptInput{
			Principal: principal,
			OrderID:   orderID,
			AgentID:   body.AgentID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Reject closes a NEW or ACCEPTED order on behalf of its vendor or agent.
func Reject(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, orderID, err := orderRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body, err := decodeReasons(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Reject(r.Context(), internalorders.RejectInput{
			Principal: principal,
			OrderID:   orderID,
			Reasons:   body.Reasons,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Cancel closes an ACCEPTED order on behalf of its vendor.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, orderID, err := orderRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body, err := decodeReasons(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			Principal: principal,
			OrderID:   orderID,
			Reasons:   body.Reasons,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Reassign swaps the agent on an ACCEPTED order.
func Reassign(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, orderID, err := orderRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body agentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Reassign(r.Context(), internalorders.ReassignInput{
			Principal: principal,
			OrderID:   orderID,
			AgentID:   body.AgentID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Confirm completes a pickup once the agent submits the customer's OTP.
func Confirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, orderID, err := orderRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body confirmRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), internalorders.ConfirmInput{
			Principal: principal,
			OrderID:   orderID,
			OTP:       strings.TrimSpace(body.OTP),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ResendOTP reissues the pickup code of an ACCEPTED order.
func ResendOTP(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, orderID, err := orderRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ResendOTP(r.Context(), internalorders.OrderRefInput{Principal: principal, OrderID: orderID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UpdateItems replaces the line items of an order the agent is collecting.
func UpdateItems(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, orderID, err := orderRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body itemsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpdateItems(r.Context(), internalorders.UpdateItemsInput{
			Principal: principal,
			OrderID:   orderID,
			Items:     body.Items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Detail returns an order priced through its vendor's price list.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, orderID, err := orderRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Details(r.Context(), internalorders.OrderRefInput{Principal: principal, OrderID: orderID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// VendorHistory pages through the vendor's closed orders.
func VendorHistory(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		page, err := svc.VendorHistory(r.Context(), internalorders.VendorHistoryInput{
			Principal: principal,
			Status:    enums.OrderStatus(strings.ToUpper(strings.TrimSpace(query.Get("status")))),
			Limit:     limit,
			Cursor:    strings.TrimSpace(query.Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AgentPricings lists the price sheet of the agent's vendor.
func AgentPricings(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		principal, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AgentPricings(r.Context(), principal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func principalFrom(r *http.Request) (auth.Principal, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return auth.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return principal, nil
}

func orderRef(r *http.Request) (auth.Principal, int64, error) {
	principal, err := principalFrom(r)
	if err != nil {
		return auth.Principal{}, 0, err
	}
	orderID, err := validators.ParseID(r, orderIDParam)
	if err != nil {
		return auth.Principal{}, 0, err
	}
	return principal, orderID, nil
}

// decodeReasons requires at least one reason and caps each one.
func decodeReasons(r *http.Request) (reasonsRequest, error) {
	var body reasonsRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		return body, err
	}
	for i, reason := range body.Reasons {
		body.Reasons[i] = validators.SanitizeString(reason, maxReasonLength)
	}
	return body, nil
}

func sanitizeAddress(in internalorders.AddressInput) internalorders.AddressInput {
	in.Street = validators.SanitizeString(in.Street, maxAddressLength)
	in.City = validators.SanitizeString(in.City, maxAddressLength)
	in.State = validators.SanitizeString(in.State, maxAddressLength)
	in.PostalCode = validators.SanitizeString(in.PostalCode, maxAddressLength)
	in.Country = validators.SanitizeString(in.Country, maxAddressLength)
	return in
}
