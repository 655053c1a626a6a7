package handlers

// admin.go implements the unprotected authoring endpoints under /admin (development and testing only)

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// ownerActor attributes admin actions on an envelope to its owner.
func ownerActor(ctx context.Context, svc *signing.Service, envelopeID uuid.UUID) (audit.Actor, error) {
	details, err := svc.GetEnvelopeDetails(ctx, envelopeID)
	if err != nil {
		return audit.Actor{}, err
	}
	owner, err := svc.GetUser(ctx, details.Envelope.OwnerUserID)
	if err != nil {
		return audit.Actor{}, err
	}
	return signing.UserActor(owner), nil
}

func envelopeResponse(svc *signing.Service, d signing.EnvelopeDetails) api.EnvelopeResponse {
	return api.NewEnvelopeResponse(d.Envelope, d.Items, d.Recipients, d.Fields, svc.SigningURL)
}

// HandleCreateUser godoc
//
//	@Summary	Create a user
//	@Tags		Admin
//	@Accept		json
//	@Produce	json
//	@Param		request	body		api.CreateUserRequest	true	"User details"
//	@Success	201		{object}	signing.User
//	@Failure	400		{object}	api.ErrorResponse	"Invalid request"
//	@Failure	409		{object}	api.ErrorResponse	"Email already in use"
//	@Router		/admin/users [post]
func HandleCreateUser(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.ContextRequestLogger(r.Context())

		var req api.CreateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		user, err := svc.CreateUser(r.Context(), signing.CreateUserRequest{Email: req.Email, Name: req.Name})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		reqLogger.Info("user created", slog.String("user_id", user.ID.String()))
		api.RespondWithJSONPayload(w, http.StatusCreated, user)
	}
}

// HandleGetUser godoc
//
//	@Summary	Get a user
//	@Tags		Admin
//	@Produce	json
//	@Param		userID	path		string	true	"User id"
//	@Success	200		{object}	signing.User
//	@Failure	404		{object}	api.ErrorResponse	"Not found"
//	@Router		/admin/users/{userID} [get]
func HandleGetUser(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "userID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		user, err := svc.GetUser(r.Context(), id)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		api.RespondWithJSONPayload(w, http.StatusOK, user)
	}
}

// HandleCreateEnvelope godoc
//
//	@Summary		Create a draft envelope
//	@Description	Creates a DRAFT envelope with one item per uploaded PDF. Documents are sent base64 encoded.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			request	body		api.CreateEnvelopeRequest	true	"Envelope"
//	@Success		201		{object}	api.EnvelopeResponse
//	@Failure		400		{object}	api.ErrorResponse	"Invalid request"
//	@Failure		404		{object}	api.ErrorResponse	"Owner not found"
//	@Router			/admin/envelopes [post]
func HandleCreateEnvelope(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.ContextRequestLogger(r.Context())

		var req api.CreateEnvelopeRequest
		if err := decodeJSON(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		owner, err := svc.GetUser(r.Context(), req.OwnerUserID)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		docs := make([]signing.DocumentUpload, 0, len(req.Documents))
		for _, d := range req.Documents {
			docs = append(docs, signing.DocumentUpload{Title: d.Title, Data: d.Data})
		}

		details, err := svc.CreateEnvelope(r.Context(), signing.CreateEnvelopeRequest{
			OwnerUserID:  owner.ID,
			Title:        req.Title,
			SigningOrder: req.SigningOrder,
			DateFormat:   req.DateFormat,
			Timezone:     req.Timezone,
			Documents:    docs,
			Actor:        signing.UserActor(owner),
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		reqLogger.Info("envelope created",
			slog.String("envelope_id", details.Envelope.ID.String()),
			slog.Int("documents", len(details.Items)),
		)
		api.RespondWithJSONPayload(w, http.StatusCreated, envelopeResponse(svc, details))
	}
}

// HandleGetEnvelope godoc
//
//	@Summary	Get an envelope
//	@Tags		Admin
//	@Produce	json
//	@Param		envelopeID	path		string	true	"Envelope id"
//	@Success	200			{object}	api.EnvelopeResponse
//	@Failure	404			{object}	api.ErrorResponse	"Not found"
//	@Router		/admin/envelopes/{envelopeID} [get]
func HandleGetEnvelope(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		details, err := svc.GetEnvelopeDetails(r.Context(), id)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		api.RespondWithJSONPayload(w, http.StatusOK, envelopeResponse(svc, details))
	}
}

// HandleAddRecipient godoc
//
//	@Summary	Add a recipient to a draft envelope
//	@Tags		Admin
//	@Accept		json
//	@Produce	json
//	@Param		envelopeID	path		string					true	"Envelope id"
//	@Param		request		body		api.AddRecipientRequest	true	"Recipient"
//	@Success	201			{object}	api.RecipientResponse
//	@Failure	400			{object}	api.ErrorResponse	"Invalid request"
//	@Failure	409			{object}	api.ErrorResponse	"Envelope is not a draft or recipient already added"
//	@Router		/admin/envelopes/{envelopeID}/recipients [post]
func HandleAddRecipient(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelopeID, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		var req api.AddRecipientRequest
		if err := decodeJSON(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		recipient, err := svc.AddRecipient(r.Context(), signing.AddRecipientRequest{
			EnvelopeID:   envelopeID,
			Email:        req.Email,
			Name:         req.Name,
			Role:         req.Role,
			SigningOrder: req.SigningOrder,
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		api.RespondWithJSONPayload(w, http.StatusCreated, api.RecipientResponse{
			Recipient:  recipient,
			SigningURL: svc.SigningURL(recipient),
		})
	}
}

// HandleResetRecipient godoc
//
//	@Summary		Reset a recipient's signature
//	@Description	Returns a signed recipient to NOT_SIGNED, removes their inserted fields from the documents
//	@Description	and invites them again. A completed envelope goes back to PENDING.
//	@Tags			Admin
//	@Produce		json
//	@Param			envelopeID	path		string	true	"Envelope id"
//	@Param			recipientID	path		string	true	"Recipient id"
//	@Success		200			{object}	api.RecipientResponse
//	@Failure		404			{object}	api.ErrorResponse	"Not found"
//	@Failure		409			{object}	api.ErrorResponse	"Recipient has not signed"
//	@Router			/admin/envelopes/{envelopeID}/recipients/{recipientID}/reset [post]
func HandleResetRecipient(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelopeID, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		recipientID, err := uuidParam(r, "recipientID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		actor, err := ownerActor(r.Context(), svc, envelopeID)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		recipient, err := svc.ResetRecipient(r.Context(), signing.ResetRecipientRequest{
			EnvelopeID:  envelopeID,
			RecipientID: recipientID,
			Actor:       actor,
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		api.RespondWithJSONPayload(w, http.StatusOK, api.RecipientResponse{
			Recipient:  recipient,
			SigningURL: svc.SigningURL(recipient),
		})
	}
}

// HandleAddField godoc
//
//	@Summary		Place a field on a draft envelope
//	@Description	Positions and sizes are fractions (0-1) of the page measured from the top left corner; page is 0-indexed.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			envelopeID	path		string				true	"Envelope id"
//	@Param			request		body		api.AddFieldRequest	true	"Field"
//	@Success		201			{object}	signing.Field
//	@Failure		400			{object}	api.ErrorResponse	"Invalid field"
//	@Failure		409			{object}	api.ErrorResponse	"Envelope is not a draft"
//	@Router			/admin/envelopes/{envelopeID}/fields [post]
func HandleAddField(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelopeID, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		var req api.AddFieldRequest
		if err := decodeJSON(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		field, err := svc.AddField(r.Context(), signing.AddFieldRequest{
			EnvelopeID:     envelopeID,
			EnvelopeItemID: req.EnvelopeItemID,
			RecipientID:    req.RecipientID,
			Type:           req.Type,
			Page:           req.Page,
			PositionX:      req.PositionX,
			PositionY:      req.PositionY,
			Width:          req.Width,
			Height:         req.Height,
			Meta:           req.FieldMeta,
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		api.RespondWithJSONPayload(w, http.StatusCreated, field)
	}
}

// HandleDeleteField godoc
//
//	@Summary	Remove a field from a draft envelope
//	@Tags		Admin
//	@Param		envelopeID	path	string	true	"Envelope id"
//	@Param		fieldID		path	string	true	"Field id"
//	@Success	204
//	@Failure	404	{object}	api.ErrorResponse	"Not found"
//	@Failure	409	{object}	api.ErrorResponse	"Envelope is not a draft"
//	@Router		/admin/envelopes/{envelopeID}/fields/{fieldID} [delete]
func HandleDeleteField(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelopeID, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		fieldID, err := uuidParam(r, "fieldID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		if err := svc.DeleteField(r.Context(), signing.DeleteFieldRequest{EnvelopeID: envelopeID, FieldID: fieldID}); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		api.RespondWithStatusCodeOnly(w, http.StatusNoContent)
	}
}

// HandleSendEnvelope godoc
//
//	@Summary		Send an envelope
//	@Description	Moves a draft envelope to PENDING and emails the signing links. Sequential envelopes only
//	@Description	invite the recipients whose turn it is.
//	@Tags			Admin
//	@Produce		json
//	@Param			envelopeID	path		string	true	"Envelope id"
//	@Success		200			{object}	api.EnvelopeResponse
//	@Failure		400			{object}	api.ErrorResponse	"Envelope is incomplete"
//	@Failure		404			{object}	api.ErrorResponse	"Not found"
//	@Failure		409			{object}	api.ErrorResponse	"Envelope already sent"
//	@Router			/admin/envelopes/{envelopeID}/send [post]
func HandleSendEnvelope(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.ContextRequestLogger(r.Context())

		envelopeID, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		actor, err := ownerActor(r.Context(), svc, envelopeID)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		if _, err := svc.SendEnvelope(r.Context(), signing.SendEnvelopeRequest{EnvelopeID: envelopeID, Actor: actor}); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		details, err := svc.GetEnvelopeDetails(r.Context(), envelopeID)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		reqLogger.Info("envelope sent", slog.String("envelope_id", envelopeID.String()))
		api.RespondWithJSONPayload(w, http.StatusOK, envelopeResponse(svc, details))
	}
}

// HandleDeleteEnvelope godoc
//
//	@Summary		Delete an envelope
//	@Description	Soft deletes the envelope. Signing links stop working; the audit log is kept.
//	@Tags			Admin
//	@Param			envelopeID	path	string	true	"Envelope id"
//	@Success		204
//	@Failure		404	{object}	api.ErrorResponse	"Not found"
//	@Router			/admin/envelopes/{envelopeID} [delete]
func HandleDeleteEnvelope(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelopeID, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		actor, err := ownerActor(r.Context(), svc, envelopeID)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		if err := svc.DeleteEnvelope(r.Context(), signing.DeleteEnvelopeRequest{EnvelopeID: envelopeID, Actor: actor}); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		api.RespondWithStatusCodeOnly(w, http.StatusNoContent)
	}
}

// HandleGetEnvelopeDocument godoc
//
//	@Summary	Download the current PDF of an envelope item
//	@Tags		Admin
//	@Produce	application/pdf
//	@Param		envelopeID	path	string	true	"Envelope id"
//	@Param		itemID		path	string	true	"Envelope item id"
//	@Success	200
//	@Failure	404	{object}	api.ErrorResponse	"Not found"
//	@Router		/admin/envelopes/{envelopeID}/items/{itemID}/pdf [get]
func HandleGetEnvelopeDocument(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelopeID, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		itemID, err := uuidParam(r, "itemID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		pdf, err := svc.GetEnvelopeDocument(r.Context(), envelopeID, itemID)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		api.RespondWithPDF(w, itemID.String()+".pdf", pdf)
	}
}

// HandleGetAuditLog godoc
//
//	@Summary		Get the audit log of an envelope
//	@Description	Entries are returned in sequence order. Each entry's checksum covers its content and the previous checksum.
//	@Tags			Admin
//	@Produce		json
//	@Param			envelopeID	path	string	true	"Envelope id"
//	@Success		200			{array}	audit.Entry
//	@Failure		404			{object}	api.ErrorResponse	"Not found"
//	@Router			/admin/envelopes/{envelopeID}/audit-log [get]
func HandleGetAuditLog(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelopeID, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		entries, err := svc.AuditLog(r.Context(), envelopeID)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}
		if entries == nil {
			entries = []audit.Entry{}
		}
		api.RespondWithJSONPayload(w, http.StatusOK, entries)
	}
}

// HandleGetCertificate godoc
//
//	@Summary		Get the signed certificate of an envelope
//	@Description	Returns the certificate (per recipient timestamps, addresses and inserted fields) together with
//	@Description	a JWS over its canonical JSON, signed with the key published at /.well-known/jwks.json.
//	@Tags			Admin
//	@Produce		json
//	@Param			envelopeID	path		string	true	"Envelope id"
//	@Success		200			{object}	audit.SignedCertificate
//	@Failure		404			{object}	api.ErrorResponse	"Not found"
//	@Router			/admin/envelopes/{envelopeID}/certificate [get]
func HandleGetCertificate(svc *signing.Service, signingKey jwk.Key) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelopeID, err := uuidParam(r, "envelopeID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		cert, err := svc.Certificate(r.Context(), envelopeID)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		signed, err := audit.SignCertificate(cert, signingKey)
		if err != nil {
			api.RespondWithErrorResponse(w, r, api.WrapInternalError(err, "failed to sign certificate"))
			return
		}
		api.RespondWithJSONPayload(w, http.StatusOK, signed)
	}
}
