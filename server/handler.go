package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mintel/lpipe/batch"
	apperrors "github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/route"
	"github.com/mintel/lpipe/server/middleware"
)

// HealthFunc reports the health of the service.
type HealthFunc func(ctx context.Context) *observability.ServiceHealth

// FailureBody describes one catastrophic record failure of an aborted batch.
type FailureBody struct {
	Record  int                 `json:"record"`
	Code    apperrors.ErrorCode `json:"code,omitempty"`
	Message string              `json:"message"`
}

// RegisterInvoke mounts the batch routes. POST /invoke decodes the body as
// a batch of the processor's source kind; POST /invoke/:source overrides
// the kind. The body is the raw batch and the response is the summary.
func (s *Server) RegisterInvoke(p *batch.Processor) {
	group := s.engine.Group("/invoke")
	if s.config.Auth.Enabled() {
		group.Use(middleware.Auth(middleware.AuthConfig{
			Validator: middleware.HS256([]byte(s.config.Auth.Secret), s.config.Auth.Issuer),
		}))
	}
	group.POST("", invoke(p))
	group.POST("/:source", invoke(p))
}

// RegisterHealth mounts GET /health. The status is 503 when the service
// is down and 200 otherwise.
func (s *Server) RegisterHealth(fn HealthFunc) {
	s.engine.GET("/health", func(c *gin.Context) {
		health := observability.NewServiceHealth("", "")
		if fn != nil {
			health = fn(c.Request.Context())
		}
		code := http.StatusOK
		if health.Status == observability.HealthStatusDown {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	})
}

func invoke(p *batch.Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		proc := p
		if src := c.Param("source"); src != "" {
			kind, err := route.ParseTransport(src)
			if err != nil {
				appErr, _ := apperrors.AsAppError(err)
				c.AbortWithStatusJSON(http.StatusBadRequest, appErr.ToResponse())
				return
			}
			proc = p.For(kind)
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
					apperrors.InvalidPayload("batch exceeds the body size limit").ToResponse())
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, apperrors.InvalidPayload(err.Error()).ToResponse())
			return
		}

		summary, err := proc.Process(c.Request.Context(), body)
		if err != nil {
			RespondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// RespondWithError writes err as an error body. An aborted batch answers
// 500 with every failure listed; an AppError uses its own status.
func RespondWithError(c *gin.Context, err error) {
	var batchErr *batch.BatchError
	if errors.As(err, &batchErr) {
		failures := make([]FailureBody, len(batchErr.Failures))
		for i, f := range batchErr.Failures {
			failures[i] = FailureBody{
				Record:  f.Record.Index,
				Code:    apperrors.CodeOf(f.Err),
				Message: f.Err.Error(),
			}
		}
		appErr := apperrors.Abort("%s", batchErr.Error()).
			WithDetail("invocation_id", batchErr.InvocationID).
			WithDetail("failures", failures)
		c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToResponse())
		return
	}

	if appErr, ok := apperrors.AsAppError(err); ok {
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError,
		apperrors.New(apperrors.ErrCodeAbort, err.Error(), http.StatusInternalServerError).ToResponse())
}
