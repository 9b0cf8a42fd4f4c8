package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func RespondOK(c *gin.Context, payload any)       { c.JSON(http.StatusOK, payload) }
func RespondAccepted(c *gin.Context, payload any) { c.JSON(http.StatusAccepted, payload) }
func RespondNoContent(c *gin.Context)             { c.Status(http.StatusNoContent) }
