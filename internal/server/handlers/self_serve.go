package handlers

import (
	"log/slog"
	"net/http"

	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

// HandleCreateSelfServeEnvelope godoc
//
//	@Summary		Create and send an envelope in one request
//	@Description	Uploads a single PDF, adds the recipients and their fields and sends the envelope.
//	@Description	The envelope is owned by the service account configured with SERVICE_ACCOUNT_USER_ID;
//	@Description	the endpoint returns 409 when no service account is configured.
//	@Tags			Self-serve
//	@Accept			json
//	@Produce		json
//	@Param			request	body		api.SelfServeRequest	true	"Envelope, recipients and fields"
//	@Success		201		{object}	api.EnvelopeResponse
//	@Failure		400		{object}	api.ErrorResponse	"Invalid request"
//	@Failure		409		{object}	api.ErrorResponse	"Self-serve signing is not configured"
//	@Router			/api/v1/self-serve/envelopes [post]
func HandleCreateSelfServeEnvelope(svc *signing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.ContextRequestLogger(r.Context())

		var req api.SelfServeRequest
		if err := decodeJSON(r, &req); err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		result, err := svc.CreateSelfServeEnvelope(r.Context(), req.ToSigningRequest())
		if err != nil {
			api.RespondWithErrorResponse(w, r, err)
			return
		}

		reqLogger.Info("self-serve envelope sent",
			slog.String("envelope_id", result.Envelope.ID.String()),
			slog.Int("recipients", len(result.Recipients)),
		)
		api.RespondWithJSONPayload(w, http.StatusCreated,
			api.NewEnvelopeResponse(result.Envelope, result.Items, result.Recipients, result.Fields, svc.SigningURL))
	}
}
