package handlers

// signing.go implements the recipient endpoints under /api/v1/sign/{token}

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

// HandleOpenDocument godoc
//
//	@Summary		Open a signing link
//	@Description	Returns the envelope, the recipient's fields and whether the recipient can sign now.
//	@Description
//	@Description	The first call for a recipient records a DOCUMENT_OPENED audit event.
//	@Description	Unknown tokens, draft envelopes and deleted envelopes all return 404.
//	@Tags			Signing
//	@Produce		json
//	@Param			token	path		string						true	"Recipient token"
//	@Success		200		{object}	api.SigningViewResponse
//	@Failure		404		{object}	api.ErrorResponse	"Not found"
//	@Router			/api/v1/sign/{token} [get]
func HandleOpenDocument(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		view, err := svc.OpenDocument(r.Context(), signing.OpenDocumentRequest{
			Token:    token,
			Metadata: requestMetadata(r),
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		logger.ContextWithLogAttrs(r.Context(),
			slog.String("envelope_id", view.Envelope.ID.String()),
			slog.String("recipient_id", view.Recipient.ID.String()),
		)

		api.RespondWithJSONPayload(w, http.StatusOK, api.NewSigningViewResponse(token, view))
	}
}

// HandleGetSigningDocument godoc
//
//	@Summary		Download a document
//	@Description	Returns the current PDF bytes of an envelope item, including every field inserted so far.
//	@Tags			Signing
//	@Produce		application/pdf
//	@Param			token	path	string	true	"Recipient token"
//	@Param			itemID	path	string	true	"Envelope item id"
//	@Success		200
//	@Failure		404	{object}	api.ErrorResponse	"Not found"
//	@Router			/api/v1/sign/{token}/items/{itemID}/pdf [get]
func HandleGetSigningDocument(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuidParam(r, "itemID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		pdf, err := svc.GetSigningDocument(r.Context(), chi.URLParam(r, "token"), itemID)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		api.RespondWithPDF(w, itemID.String()+".pdf", pdf)
	}
}

// HandleSignField godoc
//
//	@Summary		Sign a single field
//	@Description	Validates the value, stores it and inserts it into the document.
//	@Description
//	@Description	Signature fields accept a base64 PNG/JPEG image (isBase64=true) or a typed signature.
//	@Description	Checkbox fields take the selected option values in `selected`.
//	@Description	Date, name and email fields are filled in automatically when the recipient completes signing.
//	@Tags			Signing
//	@Accept			json
//	@Param			token	path	string					true	"Recipient token"
//	@Param			fieldID	path	string					true	"Field id"
//	@Param			request	body	api.SignFieldRequest	true	"Field value"
//	@Success		204
//	@Failure		400	{object}	api.ErrorResponse	"Invalid value"
//	@Failure		404	{object}	api.ErrorResponse	"Not found"
//	@Failure		409	{object}	api.ErrorResponse	"Field already signed or not the recipient's turn"
//	@Failure		500	{object}	api.ErrorResponse	"Document could not be updated"
//	@Router			/api/v1/sign/{token}/fields/{fieldID} [put]
func HandleSignField(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fieldID, err := uuidParam(r, "fieldID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		var req api.SignFieldRequest
		if err := decodeJSON(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		input, err := signing.ParseFieldInput(fieldID, req.Value, req.IsBase64, req.Selected)
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		err = svc.SignField(r.Context(), signing.SignFieldRequest{
			Token:    chi.URLParam(r, "token"),
			Input:    input,
			Metadata: requestMetadata(r),
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		logger.ContextWithLogAttrs(r.Context(), slog.String("field_id", fieldID.String()))
		api.RespondWithStatusCodeOnly(w, http.StatusNoContent)
	}
}

// HandleRemoveSignedField godoc
//
//	@Summary		Remove a signed field
//	@Description	Clears a field the recipient inserted before completing. The document is rebuilt without it.
//	@Tags			Signing
//	@Param			token	path	string	true	"Recipient token"
//	@Param			fieldID	path	string	true	"Field id"
//	@Success		204
//	@Failure		404	{object}	api.ErrorResponse	"Not found"
//	@Failure		409	{object}	api.ErrorResponse	"Recipient has already completed signing"
//	@Router			/api/v1/sign/{token}/fields/{fieldID} [delete]
func HandleRemoveSignedField(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fieldID, err := uuidParam(r, "fieldID")
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		err = svc.RemoveSignedField(r.Context(), signing.RemoveSignedFieldRequest{
			Token:    chi.URLParam(r, "token"),
			FieldID:  fieldID,
			Metadata: requestMetadata(r),
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		api.RespondWithStatusCodeOnly(w, http.StatusNoContent)
	}
}

// HandleCompleteSigning godoc
//
//	@Summary		Complete signing
//	@Description	Submits the remaining field values and marks the recipient as signed, in one transaction.
//	@Description
//	@Description	Every value is validated before anything is written; a 400 response lists each rejected field.
//	@Description	When the last recipient signs the envelope is completed and completion emails are sent.
//	@Description	Submitting again after signing returns 409.
//	@Tags			Signing
//	@Accept			json
//	@Produce		json
//	@Param			token	path		string						true	"Recipient token"
//	@Param			request	body		api.CompleteSigningRequest	true	"Field values"
//	@Success		200		{object}	api.CompleteSigningResponse
//	@Failure		400		{object}	api.ErrorResponse	"One or more invalid values"
//	@Failure		404		{object}	api.ErrorResponse	"Not found"
//	@Failure		409		{object}	api.ErrorResponse	"Already signed or not the recipient's turn"
//	@Failure		500		{object}	api.ErrorResponse	"Document could not be updated"
//	@Router			/api/v1/sign/{token}/complete [post]
func HandleCompleteSigning(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.ContextRequestLogger(r.Context())

		var req api.CompleteSigningRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				api.RespondWithErrorResponse(w, r, err)
				return
			}
		}

		inputs := make([]signing.FieldInput, 0, len(req.Fields))
		for i, f := range req.Fields {
			input, err := f.ToFieldInput()
			if err != nil {
				api.RespondWithErrorResponse(w, r, fmt.Errorf("fields[%d]: %w", i, err))
				return
			}
			inputs = append(inputs, input)
		}

		result, err := svc.SignAllFields(r.Context(), signing.SignAllFieldsRequest{
			Token:    chi.URLParam(r, "token"),
			Fields:   inputs,
			Metadata: requestMetadata(r),
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		reqLogger.Info("recipient signed",
			slog.String("envelope_id", result.EnvelopeID.String()),
			slog.String("envelope_status", string(result.EnvelopeStatus)),
		)

		api.RespondWithJSONPayload(w, http.StatusOK, api.CompleteSigningResponse{
			DocumentToken:   result.DocumentToken,
			EnvelopeID:      result.EnvelopeID,
			EnvelopeStatus:  result.EnvelopeStatus,
			RecipientStatus: result.RecipientStatus,
		})
	}
}

// HandleRejectEnvelope godoc
//
//	@Summary		Reject an envelope
//	@Description	Approvers can reject a pending envelope. The envelope moves to REJECTED and the owner is notified.
//	@Tags			Signing
//	@Accept			json
//	@Produce		json
//	@Param			token	path		string				true	"Recipient token"
//	@Param			request	body		api.RejectRequest	true	"Rejection reason"
//	@Success		200		{object}	api.SigningEnvelope
//	@Failure		404		{object}	api.ErrorResponse	"Not found"
//	@Failure		409		{object}	api.ErrorResponse	"Envelope can no longer be rejected"
//	@Router			/api/v1/sign/{token}/reject [post]
func HandleRejectEnvelope(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.RejectRequest
		if err := decodeJSON(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		env, err := svc.RejectEnvelope(r.Context(), signing.RejectEnvelopeRequest{
			Token:    chi.URLParam(r, "token"),
			Reason:   req.Reason,
			Metadata: requestMetadata(r),
		})
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		api.RespondWithJSONPayload(w, http.StatusOK, api.SigningEnvelope{
			ID:           env.ID,
			Title:        env.Title,
			Status:       env.Status,
			SigningOrder: env.SigningOrder,
			CompletedAt:  env.CompletedAt,
		})
	}
}
