package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/platform/apierr"
)

// Every JSON body carries a numeric "status" (domain.StatusCode); errors add
// a human readable "message".
type ErrorEnvelope struct {
	Status  domain.StatusCode `json:"status"`
	Message string            `json:"message"`
}

func RespondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	if ae == nil {
		ae = apierr.New(http.StatusInternalServerError, domain.StatusGenericError, nil)
	}
	msg := "unknown error"
	if ae.Err != nil {
		msg = ae.Err.Error()
	}
	if ae.Status >= http.StatusInternalServerError {
		// internals stay in the logs
		msg = http.StatusText(ae.Status)
	}
	c.AbortWithStatusJSON(ae.Status, ErrorEnvelope{Status: ae.Code, Message: msg})
}

// RespondOK merges payload into a success body.
func RespondOK(c *gin.Context, payload gin.H) {
	body := gin.H{"status": domain.StatusSuccess}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
